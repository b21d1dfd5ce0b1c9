// Package checker holds the header evaluation core of headerscope.
//
// Architecture overview:
//
//   - Catalog is the ordered, immutable list of HeaderRule entries. The
//     default catalog weighs seven security headers (HSTS, CSP,
//     X-Frame-Options, X-Content-Type-Options, Referrer-Policy,
//     Permissions-Policy, X-XSS-Protection) for a maximum of 100 points.
//   - Evaluator maps a ResponseHeaders set plus a status code onto an
//     Assessment: per-header findings, a truncated 0-100 score, and one
//     recommendation per missing header, all in catalog order.
//   - WAFDetector is an optional extension point. StatusWAFDetector flags
//     responses that score zero with a 200/403/429 status and prepends a
//     firewall advisory. A nil detector gives the plain scoring behavior.
//   - Fetcher and NormalizeTarget are the I/O edge: they turn user input
//     into a URL, probe it with browser-like headers, and classify
//     failures (tls, connection, timeout, internal) for callers.
//
// The evaluator performs no I/O and is safe for concurrent use.
package checker
