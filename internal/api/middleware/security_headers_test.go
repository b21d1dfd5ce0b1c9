package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name     string
		mutate   func(r *http.Request)
		wantHSTS bool
	}{
		{name: "plain http", mutate: func(r *http.Request) {}},
		{name: "direct tls", mutate: func(r *http.Request) { r.TLS = &tls.ConnectionState{} }, wantHSTS: true},
		{name: "tls terminated at proxy", mutate: func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "https") }, wantHSTS: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.mutate(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			for _, name := range []string{
				"Content-Security-Policy",
				"X-Frame-Options",
				"X-Content-Type-Options",
				"Referrer-Policy",
				"Permissions-Policy",
				"X-XSS-Protection",
			} {
				if rec.Header().Get(name) == "" {
					t.Errorf("expected %s to be set", name)
				}
			}

			hasHSTS := rec.Header().Get("Strict-Transport-Security") != ""
			if hasHSTS != tt.wantHSTS {
				t.Errorf("HSTS present = %v, want %v", hasHSTS, tt.wantHSTS)
			}
		})
	}
}
