package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestGetPredictionNotFound(t *testing.T) {
	store, mock := newTestStorage(t)

	mock.ExpectQuery("FROM fraud_predictions").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{
			"transaction_id", "client_id", "fraud_probability", "fraud_category", "model_used", "updated_at",
		}))

	_, err := store.GetPrediction(context.Background(), "ghost")
	if !errors.Is(err, ErrPredictionNotFound) {
		t.Fatalf("expected ErrPredictionNotFound, got %v", err)
	}
}
