package users

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fraudulert-backend/internal/auth"
	"fraudulert-backend/internal/identity"
	"fraudulert-backend/internal/models"
	"fraudulert-backend/internal/storage"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Create provisions a new identity in the caller's organisation
// @Summary Create user
// @Tags users
// @Accept json
// @Produce json
// @Param user body models.CreateUserInput true "New user"
// @Success 201 {object} models.User
// @Failure 403 {string} string "Admin access required"
// @Failure 409 {string} string "Email already registered"
// @Failure 502 {string} string "Identity provider unavailable"
// @Security BearerAuth
// @Router /v1/users [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var input models.CreateUserInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.service.Create(r.Context(), principal, input)
	if err != nil {
		var degraded *DegradedCreateError
		switch {
		case errors.As(err, &degraded):
			// Usable at the provider, un-enrolled locally. Distinct from a
			// clean failure so operators can reconcile.
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":        "degraded create",
				"provider_uid": degraded.UID,
				"detail":       degraded.Err.Error(),
			})
		case errors.Is(err, identity.ErrDuplicateIdentity):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, identity.ErrUpstreamUnavailable):
			http.Error(w, err.Error(), http.StatusBadGateway)
		case errors.Is(err, auth.ErrForbidden):
			http.Error(w, err.Error(), http.StatusForbidden)
		case errors.Is(err, ErrInvalidRole):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, "Failed to create user", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// List returns the identities created by the calling admin
// @Summary List users
// @Tags users
// @Produce json
// @Success 200 {array} models.User
// @Failure 403 {string} string "Admin access required"
// @Security BearerAuth
// @Router /v1/users [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	users, err := h.service.List(r.Context(), principal)
	if err != nil {
		if errors.Is(err, auth.ErrForbidden) {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		http.Error(w, "Failed to list users", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, users)
}

// Delete removes an identity, provider first
// @Summary Delete user
// @Tags users
// @Produce json
// @Param uid path string true "Identity uid"
// @Success 200 {object} map[string]bool
// @Failure 403 {string} string "Admin access required"
// @Failure 409 {object} map[string]string "Partial deletion"
// @Failure 502 {string} string "Identity provider unavailable"
// @Security BearerAuth
// @Router /v1/users/{uid} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	targetUID := chi.URLParam(r, "uid")
	if err := h.service.Delete(r.Context(), principal, targetUID); err != nil {
		switch {
		case errors.Is(err, ErrPartialDeletion):
			writeJSON(w, http.StatusConflict, map[string]any{
				"error": "partial deletion",
				"uid":   targetUID,
				"detail": "provider identity removed but the local record did not match " +
					"the organisation and non-admin conditions",
			})
		case errors.Is(err, identity.ErrUpstreamUnavailable):
			http.Error(w, err.Error(), http.StatusBadGateway)
		case errors.Is(err, identity.ErrIdentityNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, auth.ErrForbidden):
			http.Error(w, err.Error(), http.StatusForbidden)
		case errors.Is(err, ErrSelfTarget):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, "Failed to delete user", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

// ChangeRole updates a user's role and revokes outstanding credentials
// @Summary Change user role
// @Tags users
// @Accept json
// @Produce json
// @Param uid path string true "Identity uid"
// @Param role body changeRoleRequest true "New role"
// @Success 200 {object} models.User
// @Failure 403 {string} string "Admin access required"
// @Failure 404 {string} string "User not found in organisation"
// @Security BearerAuth
// @Router /v1/users/{uid}/role [patch]
func (h *Handler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req changeRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	targetUID := chi.URLParam(r, "uid")
	user, err := h.service.ChangeRole(r.Context(), principal, targetUID, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrUserNotFound):
			http.Error(w, "User not found", http.StatusNotFound)
		case errors.Is(err, auth.ErrForbidden):
			http.Error(w, err.Error(), http.StatusForbidden)
		case errors.Is(err, ErrInvalidRole), errors.Is(err, ErrSelfTarget):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, identity.ErrUpstreamUnavailable):
			http.Error(w, err.Error(), http.StatusBadGateway)
		default:
			http.Error(w, "Failed to change role", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
