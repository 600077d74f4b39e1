package storage

import (
	"context"

	"github.com/lib/pq"

	"fraudulert-backend/internal/models"
)

// VisibleAccountsForAdmin returns every account the admin created.
func (s *Storage) VisibleAccountsForAdmin(ctx context.Context, adminUID string) ([]models.Account, error) {
	query := `
		SELECT id, current_age, birth_year, birth_month, gender, address,
		       credit_score, risk_score, is_active, created_by
		FROM accounts
		WHERE created_by = $1
		ORDER BY id
	`

	accounts := make([]models.Account, 0)
	if err := s.db.SelectContext(ctx, &accounts, query, adminUID); err != nil {
		return nil, err
	}
	return accounts, nil
}

// VisibleAccountsForViewer resolves visibility through the viewer's
// creator chain: accounts created by the admin that created the viewer,
// plus accounts the viewer created directly. The viewer's organisation
// column is deliberately not part of the predicate.
func (s *Storage) VisibleAccountsForViewer(ctx context.Context, viewerUID string) ([]models.Account, error) {
	query := `
		SELECT id, current_age, birth_year, birth_month, gender, address,
		       credit_score, risk_score, is_active, created_by
		FROM accounts
		WHERE created_by = (SELECT created_by FROM app_users WHERE uid = $1)
		   OR created_by = $1
		ORDER BY id
	`

	accounts := make([]models.Account, 0)
	if err := s.db.SelectContext(ctx, &accounts, query, viewerUID); err != nil {
		return nil, err
	}
	return accounts, nil
}

// InsertAccount inserts one externally keyed account row. A conflicting id
// is a no-op, reported as inserted=false so the ingestion report can count
// conflicts apart from failures.
func (s *Storage) InsertAccount(ctx context.Context, account *models.Account) (inserted bool, err error) {
	query := `
		INSERT INTO accounts (id, current_age, birth_year, birth_month, gender, address,
		                      credit_score, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8)
		ON CONFLICT (id) DO NOTHING
	`

	res, err := s.db.ExecContext(ctx, query,
		account.ID, account.CurrentAge, account.BirthYear, account.BirthMonth,
		account.Gender, account.Address, account.CreditScore, account.CreatedBy,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RefreshRiskScores rolls the highest fraud probability per client up into
// accounts.risk_score. Run periodically by the risk reconciler.
func (s *Storage) RefreshRiskScores(ctx context.Context) (int64, error) {
	query := `
		UPDATE accounts a
		SET risk_score = p.max_probability
		FROM (
			SELECT client_id, MAX(fraud_probability) AS max_probability
			FROM fraud_predictions
			GROUP BY client_id
		) p
		WHERE a.id = p.client_id
		  AND (a.risk_score IS DISTINCT FROM p.max_probability)
	`

	res, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// AccountExists reports whether the id belongs to an account created by
// one of the given creators.
func (s *Storage) AccountExists(ctx context.Context, id string, creators []string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM accounts WHERE id = $1 AND created_by = ANY($2)
		)
	`

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, id, pq.Array(creators)).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
