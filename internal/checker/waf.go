package checker

import (
	"fmt"
	"net/http"
)

// WAFDetector decides whether a response looks like it came from an
// intermediary that blocked the scan rather than from the origin.
type WAFDetector interface {
	Detect(statusCode, score int) (reason string, suspected bool)
}

// StatusWAFDetector flags a zero score combined with a success or block
// status. An origin that sends none of the catalog headers while a
// firewall answers 200/403/429 is far more likely than one genuinely
// lacking all of them.
type StatusWAFDetector struct{}

// Detect implements WAFDetector.
func (StatusWAFDetector) Detect(statusCode, score int) (string, bool) {
	if score != 0 {
		return "", false
	}
	switch statusCode {
	case http.StatusForbidden, http.StatusTooManyRequests:
		return fmt.Sprintf("Access Denied (%d)", statusCode), true
	case http.StatusOK:
		return "Headers Hidden", true
	default:
		return "", false
	}
}

// FirewallAdvisory formats the recommendation prepended when a WAF is suspected.
func FirewallAdvisory(reason string) string {
	return fmt.Sprintf("⚠️ Firewall Detected: %s. Scanner was blocked.", reason)
}
