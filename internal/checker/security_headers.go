package checker

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	consts "github.com/khanhnv2901/headerscope/internal/shared/constants"
)

// HeaderRule describes how a single security header contributes to the score
type HeaderRule struct {
	Header         string
	Label          string
	Weight         int
	RiskMessage    string // shown when the header is absent
	Recommendation string // shown when the header is absent
}

// securityHeaderRules defines the headers to check, in evaluation order.
// Findings and recommendations follow this order.
var securityHeaderRules = []HeaderRule{
	{
		Header:         "Strict-Transport-Security",
		Label:          "HSTS",
		Weight:         30,
		RiskMessage:    "HSTS is not enabled. The site is exposed to SSL stripping and protocol downgrade attacks.",
		Recommendation: "Enable HSTS (Strict-Transport-Security) to force browsers to use HTTPS.",
	},
	{
		Header:         "Content-Security-Policy",
		Label:          "CSP",
		Weight:         25,
		RiskMessage:    "No CSP found. The site is exposed to XSS (Cross-Site Scripting) and data injection attacks.",
		Recommendation: "Implement a Content-Security-Policy (CSP) to restrict which script sources are allowed.",
	},
	{
		Header:         "X-Frame-Options",
		Label:          "X-Frame-Options",
		Weight:         15,
		RiskMessage:    "Header missing. The site can be embedded in a third-party iframe (clickjacking risk).",
		Recommendation: "Set X-Frame-Options to DENY or SAMEORIGIN to prevent clickjacking.",
	},
	{
		Header:         "X-Content-Type-Options",
		Label:          "X-Content-Type-Options",
		Weight:         10,
		RiskMessage:    "MIME-sniffing risk. Browsers may execute an image file as a script.",
		Recommendation: "Set this header to \"nosniff\" so browsers honor the declared content type.",
	},
	{
		Header:         "Referrer-Policy",
		Label:          "Referrer-Policy",
		Weight:         10,
		RiskMessage:    "No referrer policy set. User privacy may leak to third-party sites.",
		Recommendation: "Set a Referrer-Policy (e.g. strict-origin-when-cross-origin) to protect user privacy.",
	},
	{
		Header:         "Permissions-Policy",
		Label:          "Permissions-Policy",
		Weight:         5,
		RiskMessage:    "Access to browser features (camera/microphone) is not explicitly restricted.",
		Recommendation: "Use a Permissions-Policy to limit which browser features the site may use.",
	},
	{
		Header:         "X-XSS-Protection",
		Label:          "X-XSS-Protection",
		Weight:         5,
		RiskMessage:    "Legacy XSS protection is not enabled (only relevant for old browsers, CSP matters more).",
		Recommendation: "Enable this header for additional protection on older browsers.",
	},
}

// Catalog is an ordered, read-only set of header rules.
type Catalog struct {
	rules []HeaderRule
	keys  []string // lower-cased header names, parallel to rules
}

var defaultCatalog = mustCatalog(securityHeaderRules...)

// DefaultCatalog returns the built-in seven-header catalog.
func DefaultCatalog() *Catalog {
	return defaultCatalog
}

// NewCatalog validates rules and builds a catalog preserving their order.
func NewCatalog(rules ...HeaderRule) (*Catalog, error) {
	c := &Catalog{
		rules: make([]HeaderRule, 0, len(rules)),
		keys:  make([]string, 0, len(rules)),
	}
	seen := make(map[string]struct{}, len(rules))
	for _, rule := range rules {
		key := strings.ToLower(strings.TrimSpace(rule.Header))
		if key == "" {
			return nil, fmt.Errorf("header rule has empty name")
		}
		if rule.Weight <= 0 {
			return nil, fmt.Errorf("header rule %s: weight must be positive, got %d", rule.Header, rule.Weight)
		}
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("header rule %s defined more than once", rule.Header)
		}
		seen[key] = struct{}{}
		c.rules = append(c.rules, rule)
		c.keys = append(c.keys, key)
	}
	return c, nil
}

func mustCatalog(rules ...HeaderRule) *Catalog {
	c, err := NewCatalog(rules...)
	if err != nil {
		panic(err)
	}
	return c
}

// Rules returns a copy of the catalog entries in evaluation order.
func (c *Catalog) Rules() []HeaderRule {
	return append([]HeaderRule(nil), c.rules...)
}

// Len returns the number of rules.
func (c *Catalog) Len() int {
	return len(c.rules)
}

// MaxScore is the sum of all rule weights.
func (c *Catalog) MaxScore() int {
	total := 0
	for _, rule := range c.rules {
		total += rule.Weight
	}
	return total
}

// ResponseHeaders maps response header names to values. Lookups are
// case-insensitive.
type ResponseHeaders map[string]string

// HeadersFromHTTP flattens net/http headers, joining repeated values with ", ".
func HeadersFromHTTP(h http.Header) ResponseHeaders {
	out := make(ResponseHeaders, len(h))
	for name, values := range h {
		out[name] = strings.Join(values, ", ")
	}
	return out
}

// index builds a lower-cased lookup table. When two names differ only by
// case, the lexically smallest original name wins so results are stable.
func (h ResponseHeaders) index() map[string]string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	idx := make(map[string]string, len(h))
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, exists := idx[key]; exists {
			continue
		}
		idx[key] = h[name]
	}
	return idx
}

// Finding is the per-header outcome of an evaluation
type Finding struct {
	Header      string
	Label       string
	Present     bool
	Value       string // matched value, or MissingHeaderValue
	RiskMessage string // empty when the header is present
}

// Assessment is the aggregate result of evaluating one response
type Assessment struct {
	Target          string
	Score           int
	Findings        []Finding
	Recommendations []string
	WAFSuspected    bool
	StatusCode      int
}

// Missing returns the names of absent headers in catalog order.
func (a *Assessment) Missing() []string {
	missing := []string{}
	for _, f := range a.Findings {
		if !f.Present {
			missing = append(missing, f.Header)
		}
	}
	return missing
}

// Grade converts the score to a letter grade
func (a *Assessment) Grade() string {
	return calculateGrade(a.Score, 100)
}

// Rating buckets the score the way the web UI colors its gauge.
func (a *Assessment) Rating() string {
	switch {
	case a.Score >= 80:
		return "strong"
	case a.Score >= 50:
		return "moderate"
	default:
		return "weak"
	}
}

// Evaluator scores response headers against a catalog. It holds no mutable
// state and is safe for concurrent use.
type Evaluator struct {
	Catalog *Catalog
	// WAF is optional; a nil detector skips firewall detection entirely.
	WAF WAFDetector
}

var defaultEvaluator = NewEvaluator()

// NewEvaluator returns an evaluator over the default catalog with firewall
// detection enabled.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		Catalog: DefaultCatalog(),
		WAF:     StatusWAFDetector{},
	}
}

// Evaluate scores headers with the default evaluator.
func Evaluate(headers ResponseHeaders, statusCode int, target string) *Assessment {
	return defaultEvaluator.Evaluate(headers, statusCode, target)
}

// Evaluate checks every catalog rule against headers and builds the assessment.
func (e *Evaluator) Evaluate(headers ResponseHeaders, statusCode int, target string) *Assessment {
	catalog := e.Catalog
	if catalog == nil {
		catalog = DefaultCatalog()
	}

	result := &Assessment{
		Target:          target,
		StatusCode:      statusCode,
		Findings:        make([]Finding, 0, catalog.Len()),
		Recommendations: []string{},
	}

	idx := headers.index()
	earned := 0

	for i, rule := range catalog.rules {
		value, present := idx[catalog.keys[i]]

		finding := Finding{
			Header:  rule.Header,
			Label:   rule.Label,
			Present: present,
			Value:   consts.MissingHeaderValue,
		}

		if present {
			earned += rule.Weight
			if value != "" {
				finding.Value = value
			}
		} else {
			finding.RiskMessage = rule.RiskMessage
			result.Recommendations = append(result.Recommendations, rule.Recommendation)
		}

		result.Findings = append(result.Findings, finding)
	}

	result.Score = ComputeScore(earned, catalog.MaxScore())

	if e.WAF != nil {
		if reason, suspected := e.WAF.Detect(statusCode, result.Score); suspected {
			result.WAFSuspected = true
			result.Recommendations = append([]string{FirewallAdvisory(reason)}, result.Recommendations...)
		}
	}

	return result
}

// ComputeScore normalizes earned weight to 0-100, truncating toward zero.
func ComputeScore(earned, maxScore int) int {
	if maxScore <= 0 || earned <= 0 {
		return 0
	}
	if earned > maxScore {
		earned = maxScore
	}
	return earned * 100 / maxScore
}

// calculateGrade converts a score to a letter grade
func calculateGrade(score, maxScore int) string {
	percentage := float64(score) / float64(maxScore) * 100

	switch {
	case percentage >= 90:
		return "A"
	case percentage >= 80:
		return "B"
	case percentage >= 70:
		return "C"
	case percentage >= 60:
		return "D"
	case percentage >= 50:
		return "E"
	default:
		return "F"
	}
}
