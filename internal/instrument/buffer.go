package instrument

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"secrets-backend/internal/store"
)

var eventColumns = []string{
	"id", "trace_id", "span_id", "parent_span_id", "event_type", "source", "component", "action",
	"subject", "record_id", "user_id", "duration_ms", "status", "metadata", "created_at",
}

// EventBuffer collects events in memory and writes them to _events in
// batches, on a timer or when maxSize is reached.
type EventBuffer struct {
	mu      sync.Mutex
	events  []Event
	store   *store.Store
	maxSize int
	ticker  *time.Ticker
	done    chan struct{}
	stopped sync.Once
}

func NewEventBuffer(s *store.Store, maxSize, flushIntervalMs int) *EventBuffer {
	if maxSize <= 0 {
		maxSize = 500
	}
	if flushIntervalMs <= 0 {
		flushIntervalMs = 100
	}
	eb := &EventBuffer{
		store:   s,
		maxSize: maxSize,
		ticker:  time.NewTicker(time.Duration(flushIntervalMs) * time.Millisecond),
		done:    make(chan struct{}),
	}
	go eb.run()
	return eb
}

func (eb *EventBuffer) run() {
	for {
		select {
		case <-eb.done:
			return
		case <-eb.ticker.C:
			if err := eb.Flush(context.Background()); err != nil {
				log.Printf("ERROR: event buffer flush: %v", err)
			}
		}
	}
}

// Enqueue adds an event. A full buffer is flushed in the background.
func (eb *EventBuffer) Enqueue(e Event) {
	eb.mu.Lock()
	eb.events = append(eb.events, e)
	full := len(eb.events) >= eb.maxSize
	eb.mu.Unlock()
	if full {
		go func() {
			if err := eb.Flush(context.Background()); err != nil {
				log.Printf("ERROR: event buffer flush: %v", err)
			}
		}()
	}
}

// Len returns the number of events waiting to be flushed.
func (eb *EventBuffer) Len() int {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	return len(eb.events)
}

// Flush writes every buffered event in one insert. Events are dropped when
// the insert fails.
func (eb *EventBuffer) Flush(ctx context.Context) error {
	eb.mu.Lock()
	batch := eb.events
	eb.events = nil
	eb.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	d := eb.store.Dialect
	pb := d.NewParamBuilder()
	rows := make([]string, 0, len(batch))
	now := time.Now().UTC()
	for _, e := range batch {
		var meta any
		if e.Metadata != nil {
			b, err := json.Marshal(e.Metadata)
			if err != nil {
				return fmt.Errorf("encode event metadata: %w", err)
			}
			meta = string(b)
		}
		created := e.CreatedAt
		if created.IsZero() {
			created = now
		}
		id := e.ID
		if id == "" {
			id = uuid.NewString()
		}
		ph := []string{
			pb.Add(id), pb.Add(e.TraceID), pb.Add(e.SpanID), pb.Add(e.ParentSpanID), pb.Add(e.EventType),
			pb.Add(e.Source), pb.Add(e.Component), pb.Add(e.Action), pb.Add(e.Subject), pb.Add(e.RecordID),
			pb.Add(e.UserID), pb.Add(e.DurationMs), pb.Add(e.Status), pb.Add(meta), pb.Add(d.TimeParam(created)),
		}
		rows = append(rows, "("+strings.Join(ph, ", ")+")")
	}

	tx, err := eb.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if d.Name() == "postgres" {
		if _, err := tx.ExecContext(ctx, "SET LOCAL synchronous_commit = off"); err != nil {
			tx.Rollback()
			return fmt.Errorf("set sync commit: %w", err)
		}
	}
	query := fmt.Sprintf("INSERT INTO _events (%s) VALUES %s", strings.Join(eventColumns, ", "), strings.Join(rows, ", "))
	if _, err := tx.ExecContext(ctx, query, pb.Params()...); err != nil {
		tx.Rollback()
		return fmt.Errorf("insert events: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit events: %w", err)
	}
	return nil
}

// Stop halts the ticker and flushes what is left.
func (eb *EventBuffer) Stop(ctx context.Context) error {
	var err error
	eb.stopped.Do(func() {
		eb.ticker.Stop()
		close(eb.done)
		err = eb.Flush(ctx)
	})
	return err
}
