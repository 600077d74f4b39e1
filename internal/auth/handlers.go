package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"fraudulert-backend/internal/identity"
	"fraudulert-backend/internal/storage"
)

type Handler struct {
	issuer *Issuer
	store  *storage.Storage
}

func NewHandler(issuer *Issuer, store *storage.Storage) *Handler {
	return &Handler{issuer: issuer, store: store}
}

type loginRequest struct {
	ProviderToken string `json:"provider_token"`
}

// Login exchanges a provider-issued identity token for a session credential
// @Summary Login
// @Description Verifies the provider token, reconciles the local identity record and mints a session token
// @Tags auth
// @Accept json
// @Produce json
// @Param credentials body loginRequest true "Provider identity token"
// @Success 200 {object} models.LoginResult "Session token and first-login flag"
// @Failure 400 {string} string "Invalid request body"
// @Failure 401 {string} string "Authentication failed"
// @Failure 404 {string} string "Identity not registered"
// @Failure 502 {string} string "Identity provider unavailable"
// @Router /v1/auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ProviderToken == "" {
		http.Error(w, "provider_token required", http.StatusBadRequest)
		return
	}

	result, err := h.issuer.Login(r.Context(), req.ProviderToken)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnregisteredIdentity):
			http.Error(w, ErrUnregisteredIdentity.Error(), http.StatusNotFound)
		case errors.Is(err, identity.ErrUpstreamUnavailable):
			http.Error(w, identity.ErrUpstreamUnavailable.Error(), http.StatusBadGateway)
		case errors.Is(err, ErrInvalidCredential):
			http.Error(w, ErrInvalidCredential.Error(), http.StatusUnauthorized)
		default:
			http.Error(w, "Login failed", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// Me returns the caller's identity record
// @Summary Current identity
// @Tags auth
// @Produce json
// @Success 200 {object} models.User
// @Failure 401 {string} string "Unauthorized"
// @Failure 404 {string} string "User not found"
// @Security BearerAuth
// @Router /v1/auth/me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := h.store.GetUser(r.Context(), principal.UID)
	if err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}
