package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

type fakeChecker struct {
	blocked map[string]bool
	err     error
}

func (f *fakeChecker) IsBlocked(ip string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.blocked[ip], nil
}

func TestBlocklistRejectsBlockedIP(t *testing.T) {
	checker := &fakeChecker{blocked: map[string]bool{"203.0.113.7": true}}
	h := NewBlocklist(checker, zap.NewNop()).Middleware(okHandler())

	if rec := doRequest(t, h, "203.0.113.7:5000"); rec.Code != http.StatusForbidden {
		t.Fatalf("blocked address got %d, want 403", rec.Code)
	}
	if rec := doRequest(t, h, "198.51.100.1:5000"); rec.Code != http.StatusOK {
		t.Fatalf("clean address got %d, want 200", rec.Code)
	}
}

func TestBlocklistUsesForwardedFor(t *testing.T) {
	checker := &fakeChecker{blocked: map[string]bool{"203.0.113.7": true}}
	h := NewBlocklist(checker, zap.NewNop()).Middleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/gated", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("forwarded blocked address got %d, want 403", rec.Code)
	}
}

func TestBlocklistFailsOpenOnStoreFault(t *testing.T) {
	checker := &fakeChecker{err: errors.New("store unreachable")}
	h := NewBlocklist(checker, zap.NewNop()).Middleware(okHandler())

	if rec := doRequest(t, h, "203.0.113.7:5000"); rec.Code != http.StatusOK {
		t.Fatalf("store fault must let the request through, got %d", rec.Code)
	}
}
