package instrument

import (
	"context"
	"fmt"
	"log"
	"time"

	"secrets-backend/internal/store"
)

// CleanupOldEvents deletes events older than retention.
func CleanupOldEvents(ctx context.Context, s *store.Store, retention time.Duration) (int64, error) {
	pb := s.Dialect.NewParamBuilder()
	cutoff := s.Dialect.TimeParam(time.Now().Add(-retention))
	n, err := store.Exec(ctx, s.DB, "DELETE FROM _events WHERE created_at < "+pb.Add(cutoff), pb.Params()...)
	if err != nil {
		return 0, fmt.Errorf("event cleanup: %w", err)
	}
	if n > 0 {
		log.Printf("Event cleanup: deleted %d old events", n)
	}
	return n, nil
}
