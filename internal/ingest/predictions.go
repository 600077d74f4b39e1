package ingest

import (
	"context"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"

	"fraudulert-backend/internal/models"
	"fraudulert-backend/internal/services"
	"fraudulert-backend/internal/storage"
)

// PredictionsConsumer applies scorer callback batches published on
// fraud.<org>.predictions. Batches are msgpack-encoded and may be
// redelivered; the prediction upsert keeps replays harmless.
type PredictionsConsumer struct {
	js      nats.JetStreamContext
	storage *storage.Storage
	alerts  *services.AlertClient
	sub     *nats.Subscription
}

func NewPredictionsConsumer(js nats.JetStreamContext, storage *storage.Storage, alerts *services.AlertClient) *PredictionsConsumer {
	return &PredictionsConsumer{js: js, storage: storage, alerts: alerts}
}

// Start begins consuming prediction batches from JetStream.
func (c *PredictionsConsumer) Start(ctx context.Context) error {
	sub, err := c.js.PullSubscribe(
		"fraud.*.predictions",
		"backend-predictions",
		nats.ManualAck(),
		nats.AckWait(30*time.Second),
		nats.MaxDeliver(3),
		nats.MaxAckPending(1000),
	)
	if err != nil {
		return err
	}
	c.sub = sub

	go c.consumeLoop(ctx)
	log.Println("INFO Predictions consumer started")
	return nil
}

func (c *PredictionsConsumer) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := c.sub.Fetch(64, nats.MaxWait(5*time.Second))
		if err != nil {
			if err != nats.ErrTimeout {
				log.Printf("WARN Fetch error: %v", err)
			}
			continue
		}

		for _, msg := range msgs {
			if err := c.processMessage(ctx, msg); err != nil {
				log.Printf("WARN Process error: %v", err)
				msg.NakWithDelay(5 * time.Second)
				continue
			}
			msg.Ack()
		}
	}
}

func (c *PredictionsConsumer) processMessage(ctx context.Context, msg *nats.Msg) error {
	var batch models.PredictionBatch
	if err := msgpack.Unmarshal(msg.Data, &batch); err != nil {
		log.Printf("ERROR Unmarshal error (terminating): %v", err)
		msg.Term()
		return nil
	}

	log.Printf("INFO Prediction batch received: batch=%s org=%s model=%s size=%d",
		batch.BatchID, batch.Org, batch.ModelUsed, len(batch.Predictions))

	for _, scored := range batch.Predictions {
		if scored.TransactionID == "" || scored.ClientID == "" {
			log.Printf("WARN Skipping prediction without ids in batch %s", batch.BatchID)
			continue
		}
		if scored.FraudProbability < 0 || scored.FraudProbability > 1 {
			log.Printf("WARN Skipping prediction %s with probability %f out of range",
				scored.TransactionID, scored.FraudProbability)
			continue
		}

		category := scored.FraudCategory
		if category == "" {
			category = models.CategorizeFraud(scored.FraudProbability)
		}

		prediction := &models.Prediction{
			TransactionID:    scored.TransactionID,
			ClientID:         scored.ClientID,
			FraudProbability: scored.FraudProbability,
			FraudCategory:    category,
			ModelUsed:        batch.ModelUsed,
		}

		if err := c.storage.UpsertPrediction(ctx, prediction); err != nil {
			return err
		}

		if c.alerts != nil && category == models.RiskVeryHigh {
			if err := c.alerts.SendHighRiskAlert(prediction); err != nil {
				log.Printf("WARN High-risk alert failed for %s: %v", prediction.TransactionID, err)
			}
		}
	}

	return nil
}

// Stop gracefully stops the consumer.
func (c *PredictionsConsumer) Stop() error {
	if c.sub != nil {
		return c.sub.Drain()
	}
	return nil
}
