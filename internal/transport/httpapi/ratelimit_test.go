package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRateLimit_RejectsBurstOverflow(t *testing.T) {
	mw := rateLimit(1, 1)
	called := 0
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called++
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)

	w1 := httptest.NewRecorder()
	h.ServeHTTP(w1, req)
	if w1.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", w1.Code)
	}

	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, req)
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled, got %d", w2.Code)
	}
	if called != 1 {
		t.Fatalf("expected handler invoked exactly once, got %d", called)
	}
}
