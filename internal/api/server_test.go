package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	scanapp "github.com/khanhnv2901/headerscope/internal/application/scan"
	"github.com/khanhnv2901/headerscope/internal/checker"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"
)

type stubScanner struct {
	assessment *checker.Assessment
	err        error
	gotURL     string
}

func (s *stubScanner) Analyze(ctx context.Context, rawURL string) (*checker.Assessment, error) {
	s.gotURL = rawURL
	return s.assessment, s.err
}

type stubHealth struct {
	checkErr error
	readyErr error
}

func (h *stubHealth) Check(ctx context.Context) error { return h.checkErr }
func (h *stubHealth) Ready(ctx context.Context) error { return h.readyErr }

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = zaptest.NewLogger(t)
	}
	srv := NewServer(cfg)
	t.Cleanup(srv.Close)
	return srv
}

func postAnalyze(t *testing.T, srv http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	return rr
}

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	writeJSON(rr, http.StatusCreated, map[string]string{"status": "ok"})

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}
	if got := rr.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected application/json content-type, got %s", got)
	}
	if !strings.Contains(rr.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}

func TestWriteErrorInternal(t *testing.T) {
	logger := zaptest.NewLogger(t)
	s := &Server{cfg: Config{Logger: logger}}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	s.writeError(rr, req, http.StatusInternalServerError, errors.New("boom"))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "internal server error") {
		t.Fatalf("expected sanitized message, got %s", rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "boom") {
		t.Fatalf("internal detail leaked: %s", rr.Body.String())
	}
}

func TestWriteErrorClient(t *testing.T) {
	s := &Server{}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	s.writeError(rr, req, http.StatusBadRequest, errors.New("bad input"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "bad input") {
		t.Fatalf("expected original error message, got %s", rr.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := &Server{}
	rr := httptest.NewRecorder()
	s.methodNotAllowed(rr, httptest.NewRequest(http.MethodPut, "/", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", rr.Code)
	}
}

func TestHandleAnalyze_Success(t *testing.T) {
	assessment := checker.Evaluate(checker.ResponseHeaders{"Strict-Transport-Security": "max-age=100"}, http.StatusOK, "https://example.com")
	scanner := &stubScanner{assessment: assessment}
	srv := newTestServer(t, Config{Scanner: scanner})

	rr := postAnalyze(t, srv, "/analyze", `{"url":"example.com"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if scanner.gotURL != "example.com" {
		t.Errorf("expected raw URL to be passed through, got %q", scanner.gotURL)
	}

	var resp AnalyzeResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Target != "https://example.com" || resp.Score != 30 || resp.StatusCode != http.StatusOK {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.WAFSuspected {
		t.Error("expected waf_suspected false")
	}
	if len(resp.HeadersAnalyzed) != 7 {
		t.Fatalf("expected 7 headers analyzed, got %d", len(resp.HeadersAnalyzed))
	}
	if resp.HeadersAnalyzed[0].Header != "Strict-Transport-Security" || resp.HeadersAnalyzed[0].RiskMsg != nil {
		t.Errorf("unexpected first finding: %+v", resp.HeadersAnalyzed[0])
	}
	if resp.HeadersAnalyzed[1].RiskMsg == nil || resp.HeadersAnalyzed[1].Value != "Not Set / Missing" {
		t.Errorf("unexpected missing finding: %+v", resp.HeadersAnalyzed[1])
	}
	if len(resp.Recommendations) != 6 {
		t.Errorf("expected 6 recommendations, got %d", len(resp.Recommendations))
	}
}

func TestHandleAnalyze_WireFormat(t *testing.T) {
	assessment := checker.Evaluate(checker.ResponseHeaders{}, http.StatusForbidden, "https://blocked.example")
	srv := newTestServer(t, Config{Scanner: &stubScanner{assessment: assessment}})

	rr := postAnalyze(t, srv, "/api/v1/analyze", `{"url":"blocked.example"}`)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(rr.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	for _, key := range []string{"target", "score", "headers_analyzed", "recommendations", "waf_suspected", "status_code"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("expected key %q in response", key)
		}
	}
	if string(raw["waf_suspected"]) != "true" {
		t.Errorf("expected waf_suspected true, got %s", raw["waf_suspected"])
	}
	if !strings.Contains(rr.Body.String(), `"risk_msg":"`) {
		t.Errorf("expected risk messages for missing headers: %s", rr.Body.String())
	}
}

func TestHandleAnalyze_PresentRiskMsgIsNull(t *testing.T) {
	assessment := checker.Evaluate(checker.ResponseHeaders{"X-XSS-Protection": "1"}, http.StatusOK, "https://example.com")
	srv := newTestServer(t, Config{Scanner: &stubScanner{assessment: assessment}})

	rr := postAnalyze(t, srv, "/analyze", `{"url":"example.com"}`)

	if !strings.Contains(rr.Body.String(), `"risk_msg":null`) {
		t.Errorf("expected null risk_msg for present header: %s", rr.Body.String())
	}
}

func TestHandleAnalyze_ScanErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "empty url",
			err:        &scanapp.Error{Kind: scanapp.KindEmpty, Status: http.StatusBadRequest, Message: "URL must not be empty."},
			wantStatus: http.StatusBadRequest,
			wantBody:   "URL must not be empty.",
		},
		{
			name:       "timeout",
			err:        &scanapp.Error{Kind: scanapp.KindTimeout, Status: http.StatusBadRequest, Message: "Timeout: too slow"},
			wantStatus: http.StatusBadRequest,
			wantBody:   "Timeout: too slow",
		},
		{
			name:       "internal scan error keeps safe message",
			err:        &scanapp.Error{Kind: scanapp.KindInternal, Status: http.StatusInternalServerError, Message: "An internal error occurred.", Err: errors.New("secret")},
			wantStatus: http.StatusInternalServerError,
			wantBody:   "An internal error occurred.",
		},
		{
			name:       "unexpected error is sanitized",
			err:        errors.New("secret stack detail"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, Config{Scanner: &stubScanner{err: tt.err}})
			rr := postAnalyze(t, srv, "/analyze", `{"url":"x"}`)

			if rr.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rr.Code)
			}
			if !strings.Contains(rr.Body.String(), tt.wantBody) {
				t.Fatalf("expected body to contain %q, got %s", tt.wantBody, rr.Body.String())
			}
			if strings.Contains(rr.Body.String(), "secret") {
				t.Fatalf("internal detail leaked: %s", rr.Body.String())
			}
		})
	}
}

func TestHandleAnalyze_MalformedBody(t *testing.T) {
	scanner := &stubScanner{}
	srv := newTestServer(t, Config{Scanner: scanner})

	rr := postAnalyze(t, srv, "/analyze", `{"url":`)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "invalid input") {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
	if scanner.gotURL != "" {
		t.Error("scanner must not be called for malformed input")
	}
}

func TestHandleAnalyze_EmptyBodyReachesScanner(t *testing.T) {
	scanner := &stubScanner{err: &scanapp.Error{Kind: scanapp.KindEmpty, Status: http.StatusBadRequest, Message: "URL must not be empty."}}
	srv := newTestServer(t, Config{Scanner: scanner})

	rr := postAnalyze(t, srv, "/analyze", ``)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "URL must not be empty.") {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}

func TestHandleAnalyze_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, Config{Scanner: &stubScanner{}})

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/analyze", nil))

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestHandleAnalyze_NoScanner(t *testing.T) {
	srv := newTestServer(t, Config{})

	rr := postAnalyze(t, srv, "/analyze", `{"url":"example.com"}`)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestHealthAndReady(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		health     *stubHealth
		wantStatus int
	}{
		{name: "health ok", path: "/api/v1/health", health: &stubHealth{}, wantStatus: http.StatusOK},
		{name: "health alias", path: "/api/health", health: &stubHealth{}, wantStatus: http.StatusOK},
		{name: "health failing", path: "/api/v1/health", health: &stubHealth{checkErr: errors.New("down")}, wantStatus: http.StatusInternalServerError},
		{name: "ready ok", path: "/api/v1/ready", health: &stubHealth{}, wantStatus: http.StatusOK},
		{name: "not ready", path: "/api/v1/ready", health: &stubHealth{readyErr: errors.New("warming up")}, wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, Config{Health: tt.health})
			rr := httptest.NewRecorder()
			srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rr.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rr.Code)
			}
		})
	}
}

func TestRobots(t *testing.T) {
	srv := newTestServer(t, Config{AuthToken: "secret"})

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/robots.txt", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 without auth, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Disallow: /analyze") {
		t.Fatalf("unexpected robots.txt: %s", rr.Body.String())
	}
}

func TestAuth(t *testing.T) {
	srv := newTestServer(t, Config{AuthToken: "secret", Health: &stubHealth{}})

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Auth-Token", "secret")
	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rr.Code)
	}
}

func TestSecurityHeadersOnResponses(t *testing.T) {
	srv := newTestServer(t, Config{Health: &stubHealth{}})

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	// The service should score itself well on its own catalog
	flat := checker.HeadersFromHTTP(rr.Header())
	self := checker.Evaluate(flat, rr.Code, "self")
	if self.Score != 70 {
		t.Fatalf("expected 70 without TLS (no HSTS), got %d", self.Score)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, Config{Health: &stubHealth{}, RateLimit: 1, RateBurst: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
		req.RemoteAddr = "203.0.113.5:4000"
		rr := httptest.NewRecorder()
		srv.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
		if rr.Code == http.StatusTooManyRequests && rr.Header().Get("Retry-After") == "" {
			t.Error("expected Retry-After header on 429")
		}
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence: %v", codes)
	}

	// A different client has its own bucket
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.RemoteAddr = "203.0.113.6:4000"
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected other client to pass, got %d", rr.Code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[2001:db8::1]:5555"
	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")

	direct := &Server{}
	if got := direct.clientIP(req); got != "2001:db8::1" {
		t.Errorf("expected remote address host, got %q", got)
	}

	proxied := &Server{cfg: Config{TrustProxy: true}}
	if got := proxied.clientIP(req); got != "198.51.100.7" {
		t.Errorf("expected first forwarded address, got %q", got)
	}
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t, Config{CORSOrigins: []string{"https://app.example"}, Health: &stubHealth{}})

	req := httptest.NewRequest(http.MethodOptions, "/analyze", nil)
	req.Header.Set("Origin", "https://app.example")
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "https://app.example" {
		t.Fatalf("unexpected allow origin: %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("expected no CORS headers for unlisted origin")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv := newTestServer(t, Config{Health: &stubHealth{}, Metrics: NewMetrics(reg)})

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "headerscope_http_requests_total") {
		t.Fatalf("expected request counter in metrics output")
	}
	if !strings.Contains(body, `path="/api/v1/health"`) {
		t.Fatalf("expected route label in metrics output: %s", body)
	}
}

func TestMetricsEndpointDisabled(t *testing.T) {
	srv := newTestServer(t, Config{})

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestRateLimiterMapEvictIdle(t *testing.T) {
	m := newRateLimiterMap()
	defer m.stop()

	m.getLimiter("192.0.2.1", 1, 1)
	m.getLimiter("192.0.2.2", 1, 1)

	m.evictIdle(time.Hour)
	if n := limiterCount(m); n != 2 {
		t.Fatalf("expected fresh limiters to survive, got %d", n)
	}

	m.evictIdle(-time.Second)
	if n := limiterCount(m); n != 0 {
		t.Fatalf("expected idle limiters to be evicted, got %d", n)
	}

	// stop is idempotent
	m.stop()
}

func limiterCount(m *rateLimiterMap) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.limiters)
}
