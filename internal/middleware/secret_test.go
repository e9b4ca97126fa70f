package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestSharedSecretMatch(t *testing.T) {
	mw := NewSharedSecret("X-Keygate-Secret", "s3cret", zap.NewNop())
	h := mw.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/internal/abuse", nil)
	req.Header.Set("X-Keygate-Secret", "s3cret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("matching secret got %d, want 200", rec.Code)
	}
}

func TestSharedSecretRejections(t *testing.T) {
	mw := NewSharedSecret("X-Keygate-Secret", "s3cret", zap.NewNop())
	h := mw.Middleware(okHandler())

	cases := []struct {
		name  string
		value string
		set   bool
	}{
		{"missing header", "", false},
		{"empty value", "", true},
		{"wrong value", "nope", true},
		{"prefix of secret", "s3cre", true},
		{"secret plus suffix", "s3cret!", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/internal/abuse", nil)
			if tc.set {
				req.Header.Set("X-Keygate-Secret", tc.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != http.StatusForbidden {
				t.Fatalf("got %d, want 403", rec.Code)
			}
		})
	}
}

func TestSharedSecretUnconfigured(t *testing.T) {
	// With no secret configured the stage refuses everything rather than
	// degrading into an open endpoint.
	mw := NewSharedSecret("X-Keygate-Secret", "", zap.NewNop())
	h := mw.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/internal/abuse", nil)
	req.Header.Set("X-Keygate-Secret", "")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("unconfigured secret got %d, want 403", rec.Code)
	}
}
