package storage

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"fraudulert-backend/internal/models"
)

var (
	ErrTokenNotFound          = errors.New("ingest token not found")
	ErrTokenRevoked           = errors.New("ingest token revoked")
	ErrTokenExpired           = errors.New("ingest token expired")
	ErrTokenUsageLimitReached = errors.New("ingest token usage limit reached")
)

const (
	TokenPrefix       = "fa_it_"
	TokenLength       = 32
	tokenPrefixLength = 12
)

type ingestTokenRow struct {
	ID           string
	Organisation string
	TokenPrefix  string
	TokenHash    string
	Description  sql.NullString
	ExpiresAt    *time.Time
	MaxUses      sql.NullInt64
	UseCount     int
	CreatedBy    string
	CreatedAt    time.Time
	LastUsedAt   *time.Time
	RevokedAt    *time.Time
}

func (s *Storage) CreateIngestToken(ctx context.Context, organisation, createdBy string, input models.CreateIngestTokenInput) (*models.CreateIngestTokenResponse, error) {
	token, prefix, hash, err := GenerateIngestToken()
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO ingest_tokens (
			organisation, token_hash, token_prefix, description,
			expires_at, max_uses, use_count, created_by, created_at, last_used_at, revoked_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, NOW(), NULL, NULL)
		RETURNING id, organisation, token_prefix, token_hash, description,
			expires_at, max_uses, use_count, created_by, created_at, last_used_at, revoked_at
	`

	var row ingestTokenRow
	err = s.db.QueryRowContext(ctx, query,
		organisation,
		hash,
		prefix,
		nullIfEmpty(input.Description),
		input.ExpiresAt,
		input.MaxUses,
		createdBy,
	).Scan(
		&row.ID,
		&row.Organisation,
		&row.TokenPrefix,
		&row.TokenHash,
		&row.Description,
		&row.ExpiresAt,
		&row.MaxUses,
		&row.UseCount,
		&row.CreatedBy,
		&row.CreatedAt,
		&row.LastUsedAt,
		&row.RevokedAt,
	)
	if err != nil {
		return nil, err
	}

	return &models.CreateIngestTokenResponse{
		IngestToken: mapIngestTokenRow(row),
		Token:       token,
	}, nil
}

func (s *Storage) ListIngestTokens(ctx context.Context, organisation string) ([]models.IngestToken, error) {
	query := `
		SELECT id, organisation, token_prefix, token_hash, description,
			expires_at, max_uses, use_count, created_by, created_at, last_used_at, revoked_at
		FROM ingest_tokens
		WHERE organisation = $1
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, organisation)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]models.IngestToken, 0)
	for rows.Next() {
		var row ingestTokenRow
		if err := scanIngestTokenRow(rows, &row); err != nil {
			return nil, err
		}
		result = append(result, mapIngestTokenRow(row))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// ValidateIngestToken resolves a presented token by prefix, checks the
// bcrypt hash and the revocation/expiry/usage gates, and returns the
// matching record.
func (s *Storage) ValidateIngestToken(ctx context.Context, token string) (*models.IngestToken, error) {
	if len(token) < tokenPrefixLength {
		return nil, ErrTokenNotFound
	}

	prefix := token[:tokenPrefixLength]
	query := `
		SELECT id, organisation, token_prefix, token_hash, description,
			expires_at, max_uses, use_count, created_by, created_at, last_used_at, revoked_at
		FROM ingest_tokens
		WHERE token_prefix = $1
	`

	rows, err := s.db.QueryContext(ctx, query, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var row ingestTokenRow
		if err := scanIngestTokenRow(rows, &row); err != nil {
			return nil, err
		}

		if !ValidateTokenHash(token, row.TokenHash) {
			continue
		}

		if row.RevokedAt != nil {
			return nil, ErrTokenRevoked
		}
		if row.ExpiresAt != nil && row.ExpiresAt.Before(time.Now()) {
			return nil, ErrTokenExpired
		}
		if row.MaxUses.Valid && row.UseCount >= int(row.MaxUses.Int64) {
			return nil, ErrTokenUsageLimitReached
		}

		it := mapIngestTokenRow(row)
		return &it, nil
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return nil, ErrTokenNotFound
}

// IncrementIngestTokenUsage claims one use of the token. The bump is
// conditioned on the usage limit so concurrent enrollments that both
// passed validation cannot overshoot max_uses.
func (s *Storage) IncrementIngestTokenUsage(ctx context.Context, tokenID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ingest_tokens
		SET use_count = use_count + 1, last_used_at = NOW()
		WHERE id = $1
		  AND revoked_at IS NULL
		  AND (max_uses IS NULL OR use_count < max_uses)
	`, tokenID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTokenUsageLimitReached
	}
	return nil
}

// RevokeIngestToken revokes a token inside the caller's organisation.
func (s *Storage) RevokeIngestToken(ctx context.Context, tokenID, organisation string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ingest_tokens
		SET revoked_at = NOW()
		WHERE id = $1 AND organisation = $2 AND revoked_at IS NULL
	`, tokenID, organisation)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func GenerateIngestToken() (token string, prefix string, hash string, err error) {
	bytes := make([]byte, TokenLength)
	if _, err = rand.Read(bytes); err != nil {
		return "", "", "", err
	}

	token = TokenPrefix + hex.EncodeToString(bytes)
	prefix = token[:tokenPrefixLength]

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", "", "", err
	}

	return token, prefix, string(hashBytes), nil
}

func ValidateTokenHash(token, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}

func scanIngestTokenRow(rows *sql.Rows, row *ingestTokenRow) error {
	return rows.Scan(
		&row.ID,
		&row.Organisation,
		&row.TokenPrefix,
		&row.TokenHash,
		&row.Description,
		&row.ExpiresAt,
		&row.MaxUses,
		&row.UseCount,
		&row.CreatedBy,
		&row.CreatedAt,
		&row.LastUsedAt,
		&row.RevokedAt,
	)
}

func mapIngestTokenRow(row ingestTokenRow) models.IngestToken {
	var maxUses *int
	if row.MaxUses.Valid {
		value := int(row.MaxUses.Int64)
		maxUses = &value
	}

	return models.IngestToken{
		ID:           row.ID,
		Organisation: row.Organisation,
		TokenPrefix:  row.TokenPrefix,
		Description:  row.Description.String,
		ExpiresAt:    row.ExpiresAt,
		MaxUses:      maxUses,
		UseCount:     row.UseCount,
		CreatedBy:    row.CreatedBy,
		CreatedAt:    row.CreatedAt,
		LastUsedAt:   row.LastUsedAt,
		RevokedAt:    row.RevokedAt,
	}
}
