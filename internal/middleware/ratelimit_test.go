package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type fakeCache struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeCache() *fakeCache {
	return &fakeCache{counts: make(map[string]int64)}
}

func (f *fakeCache) SetRevocationHorizon(uid string, ts time.Time, ttl time.Duration) error {
	return f.err
}

func (f *fakeCache) GetRevocationHorizon(uid string) (time.Time, bool, error) {
	return time.Time{}, false, f.err
}

func (f *fakeCache) IncrWithTTL(key string, ttl time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeCache) Close() error { return nil }

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitLoginBlocksSixthAttempt(t *testing.T) {
	cacheClient := newFakeCache()
	handler := RateLimitLogin(cacheClient)(okHandler())

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
		req.RemoteAddr = "203.0.113.7:51000"
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("attempt %d: got %d", i+1, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	req.RemoteAddr = "203.0.113.7:51000"
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("sixth attempt: got %d, want 429", rec.Code)
	}
}

func TestRateLimitLoginKeysByIP(t *testing.T) {
	cacheClient := newFakeCache()
	handler := RateLimitLogin(cacheClient)(okHandler())

	for i := 0; i < 6; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
		req.RemoteAddr = "203.0.113.7:51000"
		handler.ServeHTTP(rec, req)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	req.RemoteAddr = "198.51.100.9:51000"
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("other IP must not be throttled: got %d", rec.Code)
	}
}

func TestRateLimitLoginUsesForwardedFor(t *testing.T) {
	cacheClient := newFakeCache()
	handler := RateLimitLogin(cacheClient)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	req.RemoteAddr = "10.0.0.1:443"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if _, ok := cacheClient.counts["rl:login:203.0.113.7"]; !ok {
		t.Fatalf("expected count keyed by forwarded address, got %v", cacheClient.counts)
	}
}

func TestRateLimitFailsOpenOnCacheError(t *testing.T) {
	cacheClient := newFakeCache()
	cacheClient.err = errors.New("redis down")
	handler := RateLimitLogin(cacheClient)(okHandler())

	for i := 0; i < 20; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
		req.RemoteAddr = "203.0.113.7:51000"
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("counting errors must fail open: got %d", rec.Code)
		}
	}
}

func TestRateLimitEnrollTokenKeysByPrefix(t *testing.T) {
	cacheClient := newFakeCache()
	handler := RateLimitEnrollToken(cacheClient)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/scorers/enroll", nil)
	req.Header.Set("X-Ingest-Token", "fa_it_abc123SECRETSECRET")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if _, ok := cacheClient.counts["rl:enroll:token:fa_it_abc123"]; !ok {
		t.Fatalf("expected count keyed by token prefix, got %v", cacheClient.counts)
	}
}

func TestRateLimitEnrollTokenSkipsMissingHeader(t *testing.T) {
	cacheClient := newFakeCache()
	handler := RateLimitEnrollToken(cacheClient)(okHandler())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/scorers/enroll", nil)
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("missing token is the handler's problem, not the limiter's: got %d", rec.Code)
	}
	if len(cacheClient.counts) != 0 {
		t.Fatalf("no counter should be touched: %v", cacheClient.counts)
	}
}
