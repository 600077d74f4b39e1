package workers

import (
	"context"
	"log"
	"time"

	"fraudulert-backend/internal/storage"
)

// StartRiskReconciler periodically folds the latest prediction scores back
// into accounts.risk_score so list views stay close to the stream without
// a write per message.
func StartRiskReconciler(ctx context.Context, store *storage.Storage) {
	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				reconcileOnce(ctx, store)
			}
		}
	}()
	log.Println("INFO Risk reconciler started")
}

func reconcileOnce(ctx context.Context, store *storage.Storage) {
	updated, err := store.RefreshRiskScores(ctx)
	if err != nil {
		log.Printf("WARN Risk reconciler refresh error: %v", err)
		return
	}
	if updated > 0 {
		log.Printf("INFO Risk reconciler updated %d accounts", updated)
	}
}
