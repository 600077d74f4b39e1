package models

import "time"

// Risk categories as produced by the scoring service.
const (
	RiskVeryHigh = "Very High Risk"
	RiskHigh     = "High Risk"
	RiskMedium   = "Medium Risk"
	RiskLow      = "Low Risk"
	RiskVeryLow  = "Very Low Risk"
)

// Prediction is a scored transaction. Written only by the ingestion
// pipeline and the scorer callback, never by end users.
type Prediction struct {
	TransactionID    string    `json:"transaction_id" db:"transaction_id"`
	ClientID         string    `json:"client_id" db:"client_id"`
	FraudProbability float64   `json:"fraud_probability" db:"fraud_probability"`
	FraudCategory    string    `json:"fraud_category" db:"fraud_category"`
	ModelUsed        string    `json:"model_used" db:"model_used"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// CategorizeFraud maps a probability to its discrete risk category using
// the scorer's thresholds.
func CategorizeFraud(prob float64) string {
	switch {
	case prob >= 0.9:
		return RiskVeryHigh
	case prob >= 0.7:
		return RiskHigh
	case prob >= 0.5:
		return RiskMedium
	case prob >= 0.3:
		return RiskLow
	default:
		return RiskVeryLow
	}
}

// PredictionBatch is the msgpack payload scorer workers publish on
// fraud.<org>.predictions.
type PredictionBatch struct {
	BatchID     string            `msgpack:"batch_id" json:"batch_id"`
	Org         string            `msgpack:"org" json:"org"`
	ModelUsed   string            `msgpack:"model_used" json:"model_used"`
	Predictions []ScoredTxn       `msgpack:"predictions" json:"predictions"`
	Meta        map[string]string `msgpack:"meta,omitempty" json:"meta,omitempty"`
}

// ScoredTxn is a single probability/category pair for a transaction.
type ScoredTxn struct {
	TransactionID    string  `msgpack:"transaction_id" json:"transaction_id"`
	ClientID         string  `msgpack:"client_id" json:"client_id"`
	FraudProbability float64 `msgpack:"fraud_probability" json:"fraud_probability"`
	FraudCategory    string  `msgpack:"fraud_category" json:"fraud_category"`
}

// ScoreRequest is the request-reply payload for on-demand scoring.
type ScoreRequest struct {
	RequestID     string `msgpack:"request_id"`
	TransactionID string `msgpack:"transaction_id"`
	ClientID      string `msgpack:"client_id"`
	Model         string `msgpack:"model,omitempty"`
}

// ScoreResponse carries the scorer's answer for a single transaction.
type ScoreResponse struct {
	RequestID        string  `msgpack:"request_id"`
	TransactionID    string  `msgpack:"transaction_id"`
	FraudProbability float64 `msgpack:"fraud_probability"`
	FraudCategory    string  `msgpack:"fraud_category"`
	ModelUsed        string  `msgpack:"model_used"`
	Error            string  `msgpack:"error,omitempty"`
}
