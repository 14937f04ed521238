package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testOwnerID = "3c9e3f1a-9e2a-4a76-8d6c-6f1f0b9f4c21"

func ownerEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(OwnerFromContext(r.Context())))
	})
}

func TestOwnerRequiresHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	Owner(ownerEcho()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestOwnerRejectsNonUUID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(OwnerHeader, "not-a-uuid")
	rec := httptest.NewRecorder()
	Owner(ownerEcho()).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestOwnerExposesIDToHandlers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(OwnerHeader, testOwnerID)
	rec := httptest.NewRecorder()
	Owner(ownerEcho()).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != testOwnerID {
		t.Fatalf("body = %q, want owner id", rec.Body.String())
	}
}

func TestRateLimitKeysByOwner(t *testing.T) {
	handler := Owner(RateLimit(2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	do := func(owner string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(OwnerHeader, owner)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := do(testOwnerID); code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, code)
		}
	}
	if code := do(testOwnerID); code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 once the owner's budget is spent", code)
	}
	// A different owner has its own bucket.
	if code := do("61f4c9de-8a0b-4f6f-b5ff-1d2a3b4c5d6e"); code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for a different owner", code)
	}
}
