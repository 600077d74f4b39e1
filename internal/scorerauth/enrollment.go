package scorerauth

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"fraudulert-backend/internal/models"
	"fraudulert-backend/internal/storage"
)

const defaultJWTExpiry = 30 * 24 * time.Hour

type EnrollmentConfig struct {
	NATSURLs []string
}

// EnrollmentHandler exchanges an ingest token plus an NKey possession
// proof for NATS credentials scoped to the token's organisation.
type EnrollmentHandler struct {
	store  *storage.Storage
	issuer *JWTIssuer
	config EnrollmentConfig
}

func NewEnrollmentHandler(store *storage.Storage, issuer *JWTIssuer, cfg EnrollmentConfig) *EnrollmentHandler {
	return &EnrollmentHandler{store: store, issuer: issuer, config: cfg}
}

// EnrollScorer godoc
// @Summary      Enroll a scorer worker
// @Description  Exchanges an ingest token and NKey signature for a NATS user JWT
// @Tags         scorers
// @Accept       json
// @Produce      json
// @Param        request body models.EnrollScorerRequest true "Enrollment request"
// @Success      201 {object} models.EnrollScorerResponse
// @Failure      400 {object} map[string]string
// @Failure      401 {object} map[string]string
// @Router       /v1/scorers/enroll [post]
func (h *EnrollmentHandler) EnrollScorer(w http.ResponseWriter, r *http.Request) {
	if h.issuer == nil {
		respondError(w, http.StatusInternalServerError, "NATS JWT issuer not configured")
		return
	}

	var req models.EnrollScorerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request")
		return
	}
	req.ScorerID = strings.TrimSpace(req.ScorerID)
	req.PublicKey = strings.TrimSpace(req.PublicKey)
	req.Nonce = strings.TrimSpace(req.Nonce)
	req.Signature = strings.TrimSpace(req.Signature)

	ingestToken := strings.TrimSpace(r.Header.Get("X-Ingest-Token"))
	if ingestToken == "" {
		respondError(w, http.StatusUnauthorized, "missing ingest token")
		return
	}

	if req.ScorerID == "" || req.PublicKey == "" || req.Nonce == "" || req.Timestamp == 0 || req.Signature == "" {
		respondError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	if !VerifyNKeySignature(req.PublicKey, req.Nonce, req.Timestamp, req.Signature) {
		respondError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	if !isTimestampFresh(req.Timestamp, 5*time.Minute) {
		respondError(w, http.StatusUnauthorized, "timestamp expired")
		return
	}

	token, err := h.store.ValidateIngestToken(r.Context(), ingestToken)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrTokenNotFound):
			respondError(w, http.StatusUnauthorized, "invalid token")
		case errors.Is(err, storage.ErrTokenRevoked):
			respondError(w, http.StatusUnauthorized, "token revoked")
		case errors.Is(err, storage.ErrTokenExpired):
			respondError(w, http.StatusUnauthorized, "token expired")
		case errors.Is(err, storage.ErrTokenUsageLimitReached):
			respondError(w, http.StatusUnauthorized, "token usage limit reached")
		default:
			log.Printf("ERROR scorer enrollment: validate token: %v", err)
			respondError(w, http.StatusInternalServerError, "token validation failed")
		}
		return
	}

	jwtToken, expiresAt, err := h.issuer.IssueScorerJWT(token.Organisation, req.PublicKey, defaultJWTExpiry)
	if err != nil {
		log.Printf("ERROR scorer enrollment: issue jwt: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to issue JWT")
		return
	}

	if err := h.store.IncrementIngestTokenUsage(r.Context(), token.ID); err != nil {
		if errors.Is(err, storage.ErrTokenUsageLimitReached) {
			// A concurrent enrollment claimed the last use after our
			// validation read.
			respondError(w, http.StatusUnauthorized, "token usage limit reached")
			return
		}
		log.Printf("ERROR scorer enrollment: increment usage token_id=%s: %v", token.ID, err)
		respondError(w, http.StatusInternalServerError, "failed to update token usage")
		return
	}

	respondJSON(w, http.StatusCreated, models.EnrollScorerResponse{
		ScorerID:       req.ScorerID,
		Organisation:   token.Organisation,
		JWT:            jwtToken,
		PublishSubject: PublishSubject(token.Organisation),
		ScoreSubject:   ScoreSubject(token.Organisation),
		ExpiresAt:      expiresAt.Format(time.RFC3339),
		NATSURLs:       h.config.NATSURLs,
	})
}

func isTimestampFresh(timestampMs int64, maxSkew time.Duration) bool {
	stamp := time.UnixMilli(timestampMs)
	return time.Since(stamp) <= maxSkew && time.Until(stamp) <= maxSkew
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{"error": message})
}
