package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func ingestTokenColumns() []string {
	return []string{
		"id", "organisation", "token_prefix", "token_hash", "description",
		"expires_at", "max_uses", "use_count", "created_by", "created_at", "last_used_at", "revoked_at",
	}
}

func TestGenerateIngestTokenShape(t *testing.T) {
	token, prefix, hash, err := GenerateIngestToken()
	if err != nil {
		t.Fatalf("GenerateIngestToken: %v", err)
	}
	if !strings.HasPrefix(token, TokenPrefix) {
		t.Fatalf("token missing prefix: %s", token)
	}
	if prefix != token[:12] {
		t.Fatalf("prefix mismatch: %s vs %s", prefix, token[:12])
	}
	if !ValidateTokenHash(token, hash) {
		t.Fatal("generated hash must validate its own token")
	}
	if ValidateTokenHash(token+"x", hash) {
		t.Fatal("modified token must not validate")
	}
}

func TestValidateIngestToken(t *testing.T) {
	store, mock := newTestStorage(t)

	token, prefix, hash, err := GenerateIngestToken()
	if err != nil {
		t.Fatalf("GenerateIngestToken: %v", err)
	}

	mock.ExpectQuery("FROM ingest_tokens").
		WithArgs(prefix).
		WillReturnRows(sqlmock.NewRows(ingestTokenColumns()).
			AddRow("tok-1", "acme", prefix, hash, "scorer A", nil, nil, 0, "admin-1", time.Now(), nil, nil))

	record, err := store.ValidateIngestToken(context.Background(), token)
	if err != nil {
		t.Fatalf("ValidateIngestToken: %v", err)
	}
	if record.Organisation != "acme" || record.ID != "tok-1" {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestValidateIngestTokenGates(t *testing.T) {
	token, prefix, hash, err := GenerateIngestToken()
	if err != nil {
		t.Fatalf("GenerateIngestToken: %v", err)
	}
	now := time.Now()
	past := now.Add(-time.Hour)
	maxUses := int64(5)

	cases := []struct {
		name string
		row  []driver.Value
		want error
	}{
		{
			name: "revoked",
			row:  []driver.Value{"tok-1", "acme", prefix, hash, "d", nil, nil, 0, "admin-1", now, nil, now},
			want: ErrTokenRevoked,
		},
		{
			name: "expired",
			row:  []driver.Value{"tok-1", "acme", prefix, hash, "d", past, nil, 0, "admin-1", now, nil, nil},
			want: ErrTokenExpired,
		},
		{
			name: "usage limit",
			row:  []driver.Value{"tok-1", "acme", prefix, hash, "d", nil, maxUses, 5, "admin-1", now, nil, nil},
			want: ErrTokenUsageLimitReached,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, mock := newTestStorage(t)
			rows := sqlmock.NewRows(ingestTokenColumns())
			rows.AddRow(tc.row...)
			mock.ExpectQuery("FROM ingest_tokens").WithArgs(prefix).WillReturnRows(rows)

			_, err := store.ValidateIngestToken(context.Background(), token)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateIngestTokenWrongSecretSamePrefix(t *testing.T) {
	store, mock := newTestStorage(t)

	token, prefix, _, err := GenerateIngestToken()
	if err != nil {
		t.Fatalf("GenerateIngestToken: %v", err)
	}
	_, _, otherHash, err := GenerateIngestToken()
	if err != nil {
		t.Fatalf("GenerateIngestToken: %v", err)
	}

	mock.ExpectQuery("FROM ingest_tokens").
		WithArgs(prefix).
		WillReturnRows(sqlmock.NewRows(ingestTokenColumns()).
			AddRow("tok-1", "acme", prefix, otherHash, "d", nil, nil, 0, "admin-1", time.Now(), nil, nil))

	_, err = store.ValidateIngestToken(context.Background(), token)
	if !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound for hash mismatch, got %v", err)
	}
}

func TestIncrementIngestTokenUsageBounded(t *testing.T) {
	store, mock := newTestStorage(t)

	mock.ExpectExec("UPDATE ingest_tokens").
		WithArgs("tok-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.IncrementIngestTokenUsage(context.Background(), "tok-1"); err != nil {
		t.Fatalf("IncrementIngestTokenUsage: %v", err)
	}

	// The conditioned update matches nothing once use_count has reached
	// max_uses, even when validation passed moments earlier.
	mock.ExpectExec("UPDATE ingest_tokens").
		WithArgs("tok-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.IncrementIngestTokenUsage(context.Background(), "tok-1")
	if !errors.Is(err, ErrTokenUsageLimitReached) {
		t.Fatalf("expected ErrTokenUsageLimitReached, got %v", err)
	}
}

func TestRevokeIngestTokenScoped(t *testing.T) {
	store, mock := newTestStorage(t)

	mock.ExpectExec("UPDATE ingest_tokens").
		WithArgs("tok-1", "other-org").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.RevokeIngestToken(context.Background(), "tok-1", "other-org")
	if !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("cross-organisation revoke must not match, got %v", err)
	}
}
