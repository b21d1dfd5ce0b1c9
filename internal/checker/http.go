package checker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	consts "github.com/khanhnv2901/headerscope/internal/shared/constants"
	sharederrors "github.com/khanhnv2901/headerscope/internal/shared/errors"
	"golang.org/x/net/http2"
)

// browserHeaders makes the probe look like a desktop Chrome navigation.
// Many CDNs answer bare Go clients with a challenge page instead of the
// origin's real headers.
var browserHeaders = map[string]string{
	"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7",
	"Accept-Language":           "en-US,en;q=0.9",
	"Accept-Encoding":           "gzip, deflate, br",
	"Upgrade-Insecure-Requests": "1",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Sec-Fetch-User":            "?1",
	"Cache-Control":             "max-age=0",
	"Sec-Ch-Ua":                 `"Chromium";v="124", "Google Chrome";v="124", "Not-A.Brand";v="99"`,
	"Sec-Ch-Ua-Mobile":          "?0",
	"Sec-Ch-Ua-Platform":        `"Windows"`,
	"Referer":                   "https://www.google.com/",
}

// BrowserHeaders returns a fresh copy of the default probe headers.
func BrowserHeaders() http.Header {
	h := make(http.Header, len(browserHeaders))
	for k, v := range browserHeaders {
		h.Set(k, v)
	}
	return h
}

// FetchErrorKind categorizes a failed probe
type FetchErrorKind string

const (
	FetchErrorTLS        FetchErrorKind = "tls"
	FetchErrorConnection FetchErrorKind = "connection"
	FetchErrorTimeout    FetchErrorKind = "timeout"
	FetchErrorInternal   FetchErrorKind = "internal"
)

// FetchError wraps a transport failure with its category
type FetchError struct {
	Kind FetchErrorKind
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed (%s): %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is lets callers match a FetchError against the shared sentinels.
func (e *FetchError) Is(target error) bool {
	switch e.Kind {
	case FetchErrorTLS:
		return target == sharederrors.ErrTLS
	case FetchErrorConnection:
		return target == sharederrors.ErrConnection
	case FetchErrorTimeout:
		return target == sharederrors.ErrTimeout
	}
	return false
}

// FetchResult is what the evaluator needs from a probe
type FetchResult struct {
	StatusCode int
	Header     http.Header
	FinalURL   string
}

// Fetcher performs a single GET against a target with certificate
// verification enabled.
type Fetcher struct {
	Timeout time.Duration
	Client  *http.Client
	Headers http.Header // request headers; browser defaults when nil
}

// NewFetcher creates a fetcher with an HTTP/2-capable transport.
func NewFetcher(timeout time.Duration) (*Fetcher, error) {
	if timeout <= 0 {
		timeout = consts.DefaultFetchTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		MaxIdleConns:          50,
		IdleConnTimeout:       90 * time.Second,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("configure http2 transport: %w", err)
	}

	return &Fetcher{
		Timeout: timeout,
		Client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}, nil
}

// Fetch requests target and returns its status code and headers
func (f *Fetcher) Fetch(ctx context.Context, target string) (*FetchResult, error) {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = consts.DefaultFetchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &FetchError{Kind: FetchErrorInternal, Err: fmt.Errorf("create request: %w", err)}
	}

	headers := f.Headers
	if headers == nil {
		headers = BrowserHeaders()
	}
	for name, values := range headers {
		req.Header[name] = append([]string(nil), values...)
	}

	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, ClassifyFetchError(err)
	}
	defer resp.Body.Close()

	// Drain a bounded amount so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, consts.DrainLimitBytes))

	result := &FetchResult{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		FinalURL:   target,
	}
	if resp.Request != nil && resp.Request.URL != nil {
		result.FinalURL = resp.Request.URL.String()
	}
	return result, nil
}

// ClassifyFetchError maps a client error onto a FetchErrorKind
func ClassifyFetchError(err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}

	kind := FetchErrorInternal
	switch {
	case isTLSError(err):
		kind = FetchErrorTLS
	case isTimeoutError(err):
		kind = FetchErrorTimeout
	case isConnectionError(err):
		kind = FetchErrorConnection
	}
	return &FetchError{Kind: kind, Err: err}
}

func isTLSError(err error) bool {
	var (
		verifyErr    *tls.CertificateVerificationError
		unknownAuth  x509.UnknownAuthorityError
		invalidCert  x509.CertificateInvalidError
		hostnameErr  x509.HostnameError
		recordHdrErr tls.RecordHeaderError
		alertErr     tls.AlertError
	)
	return errors.As(err, &verifyErr) ||
		errors.As(err, &unknownAuth) ||
		errors.As(err, &invalidCert) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &recordHdrErr) ||
		errors.As(err, &alertErr)
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isConnectionError(err error) bool {
	var (
		dnsErr *net.DNSError
		opErr  *net.OpError
	)
	return errors.As(err, &dnsErr) ||
		errors.As(err, &opErr) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
