package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"fraudulert-backend/internal/models"
)

var ErrPredictionNotFound = errors.New("prediction not found")

// UpsertPrediction writes a scored transaction. Re-delivery of the same
// transaction updates the existing row, so the callback stream can be
// replayed safely.
func (s *Storage) UpsertPrediction(ctx context.Context, p *models.Prediction) error {
	query := `
		INSERT INTO fraud_predictions (transaction_id, client_id, fraud_probability,
		                               fraud_category, model_used, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (transaction_id)
		DO UPDATE SET fraud_probability = EXCLUDED.fraud_probability,
		              fraud_category = EXCLUDED.fraud_category,
		              model_used = EXCLUDED.model_used,
		              updated_at = NOW()
	`

	_, err := s.db.ExecContext(ctx, query,
		p.TransactionID, p.ClientID, p.FraudProbability, p.FraudCategory, p.ModelUsed)
	return err
}

// ListPredictions returns predictions for accounts created by any of the
// given creators, newest first.
func (s *Storage) ListPredictions(ctx context.Context, creators []string, limit int) ([]models.Prediction, error) {
	if limit <= 0 || limit > 10000 {
		limit = 10000
	}

	query := `
		SELECT fp.transaction_id, fp.client_id, fp.fraud_probability,
		       fp.fraud_category, fp.model_used, fp.updated_at
		FROM fraud_predictions fp
		JOIN accounts a ON fp.client_id = a.id
		WHERE a.created_by = ANY($1)
		ORDER BY fp.updated_at DESC
		LIMIT $2
	`

	predictions := make([]models.Prediction, 0)
	if err := s.db.SelectContext(ctx, &predictions, query, pq.Array(creators), limit); err != nil {
		return nil, err
	}
	return predictions, nil
}

func (s *Storage) GetPrediction(ctx context.Context, transactionID string) (*models.Prediction, error) {
	query := `
		SELECT transaction_id, client_id, fraud_probability, fraud_category, model_used, updated_at
		FROM fraud_predictions
		WHERE transaction_id = $1
	`

	var p models.Prediction
	if err := s.db.GetContext(ctx, &p, query, transactionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPredictionNotFound
		}
		return nil, err
	}
	return &p, nil
}

// DashboardMetrics aggregates the caller-visible slice of the store.
type DashboardMetrics struct {
	TotalAccounts    int      `json:"total_accounts" db:"total_accounts"`
	HighRiskAccounts int      `json:"high_risk_accounts" db:"high_risk_accounts"`
	AvgProbability   *float64 `json:"avg_probability" db:"avg_probability"`
}

func (s *Storage) GetDashboardMetrics(ctx context.Context, creators []string) (*DashboardMetrics, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM accounts
			 WHERE is_active = TRUE AND created_by = ANY($1)) AS total_accounts,
			(SELECT COUNT(DISTINCT fp.client_id)
			 FROM fraud_predictions fp
			 JOIN accounts a ON fp.client_id = a.id
			 WHERE a.created_by = ANY($1)
			   AND fp.fraud_category IN ('Very High Risk', 'High Risk')) AS high_risk_accounts,
			(SELECT AVG(fp.fraud_probability)
			 FROM fraud_predictions fp
			 JOIN accounts a ON fp.client_id = a.id
			 WHERE a.created_by = ANY($1)) AS avg_probability
	`

	var m DashboardMetrics
	if err := s.db.GetContext(ctx, &m, query, pq.Array(creators)); err != nil {
		return nil, err
	}
	return &m, nil
}

type RiskBucket struct {
	FraudCategory string  `json:"fraud_category" db:"fraud_category"`
	Count         int     `json:"count" db:"count"`
	Percentage    float64 `json:"percentage" db:"percentage"`
}

func (s *Storage) GetRiskDistribution(ctx context.Context, creators []string) ([]RiskBucket, error) {
	query := `
		SELECT fp.fraud_category,
		       COUNT(*) AS count,
		       COUNT(*) * 100.0 / SUM(COUNT(*)) OVER () AS percentage
		FROM fraud_predictions fp
		JOIN accounts a ON fp.client_id = a.id
		WHERE a.created_by = ANY($1)
		GROUP BY fp.fraud_category
		ORDER BY CASE fp.fraud_category
			WHEN 'Very High Risk' THEN 1
			WHEN 'High Risk' THEN 2
			WHEN 'Medium Risk' THEN 3
			WHEN 'Low Risk' THEN 4
			ELSE 5
		END
	`

	buckets := make([]RiskBucket, 0)
	if err := s.db.SelectContext(ctx, &buckets, query, pq.Array(creators)); err != nil {
		return nil, err
	}
	return buckets, nil
}

type HighRiskTransaction struct {
	TransactionID    string  `json:"transaction_id" db:"transaction_id"`
	ClientID         string  `json:"client_id" db:"client_id"`
	CurrentAge       int     `json:"current_age" db:"current_age"`
	Gender           string  `json:"gender" db:"gender"`
	FraudProbability float64 `json:"fraud_probability" db:"fraud_probability"`
	FraudCategory    string  `json:"fraud_category" db:"fraud_category"`
	ModelUsed        string  `json:"model_used" db:"model_used"`
}

func (s *Storage) GetHighRiskTransactions(ctx context.Context, creators []string, limit int) ([]HighRiskTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	query := `
		SELECT fp.transaction_id, fp.client_id, a.current_age, a.gender,
		       fp.fraud_probability, fp.fraud_category, fp.model_used
		FROM fraud_predictions fp
		JOIN accounts a ON fp.client_id = a.id
		WHERE a.created_by = ANY($1)
		  AND fp.fraud_category IN ('Very High Risk', 'High Risk')
		ORDER BY fp.updated_at DESC
		LIMIT $2
	`

	rows := make([]HighRiskTransaction, 0)
	if err := s.db.SelectContext(ctx, &rows, query, pq.Array(creators), limit); err != nil {
		return nil, err
	}
	return rows, nil
}
