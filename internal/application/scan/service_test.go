package scan

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/khanhnv2901/headerscope/internal/checker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"
)

type stubFetcher struct {
	result *checker.FetchResult
	err    error
	target string
	calls  int
}

func (f *stubFetcher) Fetch(ctx context.Context, target string) (*checker.FetchResult, error) {
	f.calls++
	f.target = target
	return f.result, f.err
}

func newTestService(t *testing.T, f Fetcher) (*Service, *Metrics) {
	t.Helper()
	metrics := NewMetrics(prometheus.NewRegistry())
	svc := NewService(Config{
		Fetcher: f,
		Timeout: 20 * time.Second,
		Logger:  zaptest.NewLogger(t),
		Metrics: metrics,
	})
	return svc, metrics
}

func TestAnalyze_Success(t *testing.T) {
	header := http.Header{}
	header.Set("Strict-Transport-Security", "max-age=100")
	f := &stubFetcher{result: &checker.FetchResult{StatusCode: http.StatusOK, Header: header}}
	svc, metrics := newTestService(t, f)

	assessment, err := svc.Analyze(context.Background(), " example.com ")
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}

	if f.target != "https://example.com" {
		t.Errorf("expected normalized target, got %q", f.target)
	}
	if assessment.Target != "https://example.com" {
		t.Errorf("expected assessment target https://example.com, got %q", assessment.Target)
	}
	if assessment.Score != 30 {
		t.Errorf("expected score 30, got %d", assessment.Score)
	}
	if assessment.WAFSuspected {
		t.Error("expected no WAF suspicion")
	}
	if got := testutil.ToFloat64(metrics.scansTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("expected 1 ok scan recorded, got %v", got)
	}
}

func TestAnalyze_WAFSuspected(t *testing.T) {
	f := &stubFetcher{result: &checker.FetchResult{StatusCode: http.StatusForbidden, Header: http.Header{}}}
	svc, metrics := newTestService(t, f)

	assessment, err := svc.Analyze(context.Background(), "https://blocked.example")
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if !assessment.WAFSuspected {
		t.Fatal("expected WAF suspicion")
	}
	if got := testutil.ToFloat64(metrics.wafSuspected); got != 1 {
		t.Errorf("expected waf counter 1, got %v", got)
	}
}

func TestAnalyze_EmptyURL(t *testing.T) {
	f := &stubFetcher{}
	svc, metrics := newTestService(t, f)

	_, err := svc.Analyze(context.Background(), "   ")

	var serr *Error
	if !errors.As(err, &serr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if serr.Kind != KindEmpty || serr.Status != http.StatusBadRequest {
		t.Errorf("unexpected error: kind=%s status=%d", serr.Kind, serr.Status)
	}
	if f.calls != 0 {
		t.Error("fetcher must not be called for empty input")
	}
	if got := testutil.ToFloat64(metrics.scansTotal.WithLabelValues("empty")); got != 1 {
		t.Errorf("expected 1 empty failure recorded, got %v", got)
	}
}

func TestAnalyze_InvalidURL(t *testing.T) {
	f := &stubFetcher{}
	svc, _ := newTestService(t, f)

	_, err := svc.Analyze(context.Background(), "https://")

	var serr *Error
	if !errors.As(err, &serr) || serr.Kind != KindInvalid {
		t.Fatalf("expected invalid error, got %v", err)
	}
	if f.calls != 0 {
		t.Error("fetcher must not be called for invalid input")
	}
}

func TestAnalyze_FetchFailures(t *testing.T) {
	tests := []struct {
		name        string
		kind        checker.FetchErrorKind
		wantKind    ErrorKind
		wantStatus  int
		wantMessage string
	}{
		{name: "tls", kind: checker.FetchErrorTLS, wantKind: KindTLS, wantStatus: http.StatusBadRequest, wantMessage: "SSL Error"},
		{name: "connection", kind: checker.FetchErrorConnection, wantKind: KindConnection, wantStatus: http.StatusBadRequest, wantMessage: "Connection Failed"},
		{name: "timeout", kind: checker.FetchErrorTimeout, wantKind: KindTimeout, wantStatus: http.StatusBadRequest, wantMessage: "more than 20 seconds"},
		{name: "internal", kind: checker.FetchErrorInternal, wantKind: KindInternal, wantStatus: http.StatusInternalServerError, wantMessage: "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cause := errors.New("secret detail from " + tt.name)
			f := &stubFetcher{err: &checker.FetchError{Kind: tt.kind, Err: cause}}
			svc, metrics := newTestService(t, f)

			_, err := svc.Analyze(context.Background(), "example.com")

			var serr *Error
			if !errors.As(err, &serr) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if serr.Kind != tt.wantKind {
				t.Errorf("expected kind %s, got %s", tt.wantKind, serr.Kind)
			}
			if serr.Status != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, serr.Status)
			}
			if !strings.Contains(serr.Error(), tt.wantMessage) {
				t.Errorf("expected message to contain %q, got %q", tt.wantMessage, serr.Error())
			}
			if strings.Contains(serr.Error(), "secret detail") {
				t.Errorf("client message leaks internal detail: %q", serr.Error())
			}
			if !errors.Is(err, cause) {
				t.Error("expected cause to remain reachable via errors.Is")
			}
			if got := testutil.ToFloat64(metrics.scansTotal.WithLabelValues(string(tt.wantKind))); got != 1 {
				t.Errorf("expected failure recorded, got %v", got)
			}
		})
	}
}

func TestAnalyze_UnclassifiedFetchError(t *testing.T) {
	f := &stubFetcher{err: errors.New("boom")}
	svc, _ := newTestService(t, f)

	_, err := svc.Analyze(context.Background(), "example.com")

	var serr *Error
	if !errors.As(err, &serr) || serr.Kind != KindInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestNewService_Defaults(t *testing.T) {
	svc := NewService(Config{Fetcher: &stubFetcher{}})

	if svc.evaluator == nil {
		t.Error("expected default evaluator")
	}
	if svc.logger == nil {
		t.Error("expected nop logger")
	}
	if svc.timeout != 20*time.Second {
		t.Errorf("expected default timeout 20s, got %s", svc.timeout)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.recordSuccess(&checker.Assessment{Score: 10}, time.Second)
	m.recordFailure(KindTimeout, time.Second)
}

func TestFormatSeconds(t *testing.T) {
	if got := formatSeconds(time.Second); got != "1 second" {
		t.Errorf("got %q", got)
	}
	if got := formatSeconds(10 * time.Second); got != "10 seconds" {
		t.Errorf("got %q", got)
	}
}
