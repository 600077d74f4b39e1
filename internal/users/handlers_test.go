package users

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"

	"fraudulert-backend/internal/auth"
)

func newTestRouter(t *testing.T, provider *fakeProvider, principal auth.Principal) (chi.Router, sqlmock.Sqlmock) {
	t.Helper()
	svc, mock, _ := newTestService(t, provider)
	handler := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(auth.ContextWithPrincipal(req.Context(), principal)))
		})
	})
	r.Post("/v1/users", handler.Create)
	r.Delete("/v1/users/{uid}", handler.Delete)
	r.Patch("/v1/users/{uid}/role", handler.ChangeRole)
	return r, mock
}

func TestDeleteHandlerPartialDeletion(t *testing.T) {
	provider := &fakeProvider{}
	router, mock := newTestRouter(t, provider, admin)

	mock.ExpectExec("DELETE FROM app_users").
		WithArgs("target-1", "acme").
		WillReturnResult(sqlmock.NewResult(0, 0))

	req := httptest.NewRequest(http.MethodDelete, "/v1/users/target-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for partial deletion, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["uid"] != "target-1" {
		t.Fatalf("partial deletion body must name the uid: %v", body)
	}
	if body["error"] != "partial deletion" {
		t.Fatalf("unexpected error label: %v", body)
	}
}

func TestCreateHandlerDegraded(t *testing.T) {
	provider := &fakeProvider{createUID: "prov-9"}
	router, mock := newTestRouter(t, provider, admin)

	mock.ExpectQuery("INSERT INTO app_users").
		WillReturnError(errors.New("db down"))

	payload := `{"email":"n@example.com","username":"n","role":"viewer"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/users", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for degraded create, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["provider_uid"] != "prov-9" {
		t.Fatalf("degraded body must carry the provider uid: %v", body)
	}
}

func TestDeleteHandlerForbiddenForViewer(t *testing.T) {
	provider := &fakeProvider{}
	viewer := auth.Principal{UID: "viewer-1", Role: "viewer", Org: "acme"}
	router, _ := newTestRouter(t, provider, viewer)

	req := httptest.NewRequest(http.MethodDelete, "/v1/users/target-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}
