package models

import "time"

// IngestToken authenticates machine clients (scorer workers) that enroll
// for NATS credentials. Only the bcrypt hash is stored; the plaintext is
// shown once at creation time.
type IngestToken struct {
	ID           string     `json:"id" db:"id"`
	Organisation string     `json:"organisation" db:"organisation"`
	TokenPrefix  string     `json:"token_prefix" db:"token_prefix"`
	Description  string     `json:"description,omitempty" db:"description"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	MaxUses      *int       `json:"max_uses,omitempty" db:"max_uses"`
	UseCount     int        `json:"use_count" db:"use_count"`
	CreatedBy    string     `json:"created_by" db:"created_by"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
}

type CreateIngestTokenInput struct {
	Description string     `json:"description"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	MaxUses     *int       `json:"max_uses,omitempty"`
}

type CreateIngestTokenResponse struct {
	IngestToken IngestToken `json:"ingest_token"`
	Token       string      `json:"token"`
}

// EnrollScorerRequest is the payload a scorer worker presents together
// with an ingest token to obtain NATS credentials.
type EnrollScorerRequest struct {
	ScorerID  string `json:"scorer_id"`
	PublicKey string `json:"public_key"`
	Nonce     string `json:"nonce"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
}

type EnrollScorerResponse struct {
	ScorerID       string   `json:"scorer_id"`
	Organisation   string   `json:"organisation"`
	JWT            string   `json:"jwt"`
	PublishSubject string   `json:"publish_subject"`
	ScoreSubject   string   `json:"score_subject"`
	ExpiresAt      string   `json:"expires_at"`
	NATSURLs       []string `json:"nats_urls,omitempty"`
}

// ScorerCredentials is the server-minted variant where the backend
// generates the keypair and hands back a complete .creds file.
type ScorerCredentials struct {
	ScorerID     string `json:"scorer_id"`
	CredsContent string `json:"creds_content"`
	NKeySeed     string `json:"nkey_seed"`
	JWT          string `json:"jwt"`
	ExpiresAt    string `json:"expires_at"`
}
