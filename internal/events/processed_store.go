package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long an event id is remembered. Meta retries webhook
// deliveries for well under a day, so a week leaves plenty of margin.
const DefaultTTL = 7 * 24 * time.Hour

// ProcessedStore records webhook events that were already handled, so
// provider redeliveries do not double-run side effects.
type ProcessedStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewProcessedStore builds a dedupe store on Redis. A zero ttl uses
// DefaultTTL.
func NewProcessedStore(client redis.UniversalClient, ttl time.Duration) *ProcessedStore {
	if client == nil {
		panic("events: redis client required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ProcessedStore{client: client, ttl: ttl}
}

// MarkProcessed claims an event id for the provider. It returns true when
// this call was the first to see the id, false when the event was already
// handled. The claim and the check are a single atomic SETNX.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	ok, err := s.client.SetNX(ctx, eventKey(provider, eventID), "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("events: mark processed: %w", err)
	}
	return ok, nil
}

// AlreadyProcessed checks whether an event id was seen, without claiming it.
func (s *ProcessedStore) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, eventKey(provider, eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("events: check processed: %w", err)
	}
	return n > 0, nil
}

func eventKey(provider, eventID string) string {
	return fmt.Sprintf("processed:%s:%s", provider, eventID)
}
