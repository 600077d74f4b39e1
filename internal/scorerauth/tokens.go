package scorerauth

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"fraudulert-backend/internal/auth"
	"fraudulert-backend/internal/models"
	"fraudulert-backend/internal/storage"
)

// TokenHandler manages the ingest tokens admins mint for scorer workers.
// All routes sit behind the admin gate; the organisation always comes from
// the principal, never from the request.
type TokenHandler struct {
	store  *storage.Storage
	issuer *JWTIssuer
}

func NewTokenHandler(store *storage.Storage, issuer *JWTIssuer) *TokenHandler {
	return &TokenHandler{store: store, issuer: issuer}
}

// CreateToken godoc
// @Summary      Create an ingest token
// @Tags         scorers
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body models.CreateIngestTokenInput true "Token parameters"
// @Success      201 {object} models.CreateIngestTokenResponse
// @Router       /v1/ingest-tokens [post]
func (h *TokenHandler) CreateToken(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var input models.CreateIngestTokenInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request")
		return
	}

	result, err := h.store.CreateIngestToken(r.Context(), principal.Org, principal.UID, input)
	if err != nil {
		log.Printf("ERROR ingest tokens: create org=%s uid=%s: %v", principal.Org, principal.UID, err)
		respondError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	respondJSON(w, http.StatusCreated, result)
}

// ListTokens godoc
// @Summary      List ingest tokens
// @Tags         scorers
// @Produce      json
// @Security     BearerAuth
// @Success      200 {array} models.IngestToken
// @Router       /v1/ingest-tokens [get]
func (h *TokenHandler) ListTokens(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	tokens, err := h.store.ListIngestTokens(r.Context(), principal.Org)
	if err != nil {
		log.Printf("ERROR ingest tokens: list org=%s: %v", principal.Org, err)
		respondError(w, http.StatusInternalServerError, "failed to list tokens")
		return
	}

	respondJSON(w, http.StatusOK, tokens)
}

// RevokeToken godoc
// @Summary      Revoke an ingest token
// @Tags         scorers
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Token id"
// @Success      200 {object} map[string]bool
// @Failure      404 {object} map[string]string
// @Router       /v1/ingest-tokens/{id} [delete]
func (h *TokenHandler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	tokenID := chi.URLParam(r, "id")
	if tokenID == "" {
		respondError(w, http.StatusBadRequest, "missing token id")
		return
	}

	if err := h.store.RevokeIngestToken(r.Context(), tokenID, principal.Org); err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			respondError(w, http.StatusNotFound, "token not found")
			return
		}
		log.Printf("ERROR ingest tokens: revoke id=%s org=%s: %v", tokenID, principal.Org, err)
		respondError(w, http.StatusInternalServerError, "failed to revoke token")
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// MintCredentials godoc
// @Summary      Mint scorer credentials server-side
// @Description  Generates an NKey pair and returns a complete .creds file for the admin's organisation
// @Tags         scorers
// @Produce      json
// @Security     BearerAuth
// @Success      201 {object} models.ScorerCredentials
// @Router       /v1/scorers/credentials [post]
func (h *TokenHandler) MintCredentials(w http.ResponseWriter, r *http.Request) {
	if h.issuer == nil {
		respondError(w, http.StatusInternalServerError, "NATS JWT issuer not configured")
		return
	}

	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	seed, publicKey, err := GenerateUserKeyPair()
	if err != nil {
		log.Printf("ERROR scorer credentials: generate nkey: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to generate NKey")
		return
	}

	jwtToken, expiresAt, err := h.issuer.IssueScorerJWT(principal.Org, publicKey, defaultJWTExpiry)
	if err != nil {
		log.Printf("ERROR scorer credentials: issue jwt: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to issue JWT")
		return
	}

	respondJSON(w, http.StatusCreated, models.ScorerCredentials{
		ScorerID:     generateScorerID(),
		CredsContent: BuildCredsFile(jwtToken, seed),
		NKeySeed:     seed,
		JWT:          jwtToken,
		ExpiresAt:    expiresAt.Format(time.RFC3339),
	})
}

func generateScorerID() string {
	id := uuid.New().String()
	return "scorer-" + id[:8]
}
