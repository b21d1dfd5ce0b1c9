package checker

import (
	"net"
	"net/url"
	"strings"
	"unicode/utf8"

	sharederrors "github.com/khanhnv2901/headerscope/internal/shared/errors"
	"golang.org/x/net/idna"
)

// NormalizeTarget turns user input into a URL suitable for probing.
// This handles various input formats:
//   - example.com            -> https://example.com
//   - http://example.com     (kept as-is)
//   - https://bücher.example -> https://xn--bcher-kva.example
func NormalizeTarget(target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", sharederrors.ErrEmptyTarget
	}

	lower := strings.ToLower(target)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		target = "https://" + target
	}

	parsed, err := url.Parse(target)
	if err != nil || parsed.Hostname() == "" {
		return "", sharederrors.ErrInvalidTarget
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)

	host := parsed.Hostname()
	if !isASCII(host) {
		ascii, err := idna.Lookup.ToASCII(host)
		if err != nil {
			return "", sharederrors.ErrInvalidTarget
		}
		if port := parsed.Port(); port != "" {
			parsed.Host = net.JoinHostPort(ascii, port)
		} else {
			parsed.Host = ascii
		}
	}

	return parsed.String(), nil
}

// ExtractHost returns the hostname of a normalized target, or "" when it
// cannot be parsed.
func ExtractHost(target string) string {
	parsed, err := url.Parse(target)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
