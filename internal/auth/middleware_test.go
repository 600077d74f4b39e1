package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// fakeCache implements cache.Client for middleware and issuer tests.
type fakeCache struct {
	mu       sync.Mutex
	horizons map[string]time.Time
	counts   map[string]int64
	err      error
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		horizons: make(map[string]time.Time),
		counts:   make(map[string]int64),
	}
}

func (c *fakeCache) SetRevocationHorizon(uid string, ts time.Time, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.horizons[uid] = ts
	return nil
}

func (c *fakeCache) GetRevocationHorizon(uid string) (time.Time, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return time.Time{}, false, c.err
	}
	ts, ok := c.horizons[uid]
	return ts, ok, nil
}

func (c *fakeCache) IncrWithTTL(key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	c.counts[key]++
	return c.counts[key], nil
}

func (c *fakeCache) Close() error { return nil }

var errCacheDown = errors.New("cache down")

func protect(cacheClient *fakeCache, captured *Principal) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			http.Error(w, "no principal", http.StatusInternalServerError)
			return
		}
		*captured = principal
		w.WriteHeader(http.StatusOK)
	})
	return Middleware(cacheClient)(inner)
}

func doRequest(t *testing.T, handler http.Handler, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareRejectsMissingCredential(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	var p Principal
	rec := doRequest(t, protect(newFakeCache(), &p), "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddlewareRejectsForgedCredential(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret-a")
	token, err := GenerateToken("uid-1", "viewer", "acme")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	t.Setenv("JWT_SECRET", "secret-b")
	var p Principal
	rec := doRequest(t, protect(newFakeCache(), &p), token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddlewareAttachesPrincipal(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	token, err := GenerateToken("uid-1", "admin", "acme")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	var p Principal
	rec := doRequest(t, protect(newFakeCache(), &p), token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if p.UID != "uid-1" || p.Role != "admin" || p.Org != "acme" {
		t.Fatalf("unexpected principal: %+v", p)
	}
}

func TestMiddlewareRejectsRevokedCredential(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	token, err := GenerateToken("uid-1", "viewer", "acme")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	cacheClient := newFakeCache()
	// Horizon strictly after issuance: previously minted tokens die.
	cacheClient.horizons["uid-1"] = time.Now().Add(time.Minute)

	var p Principal
	rec := doRequest(t, protect(cacheClient, &p), token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for revoked credential, got %d", rec.Code)
	}
}

func TestMiddlewareFailsOpenOnCacheError(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	token, err := GenerateToken("uid-1", "viewer", "acme")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	cacheClient := newFakeCache()
	cacheClient.err = errCacheDown

	var p Principal
	rec := doRequest(t, protect(cacheClient, &p), token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected fail-open 200, got %d", rec.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireAdmin(inner)

	req := httptest.NewRequest(http.MethodGet, "/v1/users", nil)
	req = req.WithContext(ContextWithPrincipal(req.Context(), Principal{UID: "v", Role: "viewer", Org: "acme"}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for viewer, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/users", nil)
	req = req.WithContext(ContextWithPrincipal(req.Context(), Principal{UID: "a", Role: "admin", Org: "acme"}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rec.Code)
	}
}
