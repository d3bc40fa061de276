// Package viewstate persists the query of a list view per browser session,
// so page, sort order and filters survive a reload.
//
// State is stored in Redis as JSON with a sliding TTL. Only the query is
// stored, never fetched data.
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	store := viewstate.NewStore(redisClient, 24*time.Hour)
//
//	key := viewstate.Key{Session: sessionID, View: "transfers"}
//	spec, err := store.Load(ctx, key)
//	if errors.Is(err, viewstate.ErrNotFound) {
//		// first visit, use defaults
//	}
package viewstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/panel-aggregator/pkg/query"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultTTL is how long an untouched view state is kept.
const DefaultTTL = 24 * time.Hour

var (
	// ErrNotFound indicates no state is stored for the key.
	ErrNotFound = errors.New("view state not found")

	// ErrInvalidEntry indicates the stored state could not be decoded.
	ErrInvalidEntry = errors.New("invalid view state entry")

	// ErrInvalidKey indicates an incomplete key.
	ErrInvalidKey = errors.New("invalid view state key")
)

// Prometheus metrics for view-state operations.
var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "panel_viewstate_operations_total",
		Help: "Total view state operations by operation and result",
	}, []string{"operation", "result"})
)

// entry is the stored form of a view state.
type entry struct {
	Spec    query.Spec `json:"spec"`
	SavedAt time.Time  `json:"savedAt"`
}

// Store reads and writes view states in Redis.
type Store struct {
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewStore creates a Store. A ttl <= 0 uses DefaultTTL.
func NewStore(redisClient *redis.Client, ttl time.Duration) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		redis:  redisClient,
		ttl:    ttl,
		logger: log.With().Str("component", "viewstate").Logger(),
	}
}

// TTL returns the expiry applied on every Save.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Load returns the stored query of a view.
// Returns ErrNotFound if nothing is stored or the entry expired.
func (s *Store) Load(ctx context.Context, key Key) (query.Spec, error) {
	if err := key.Validate(); err != nil {
		return query.Spec{}, err
	}

	data, err := s.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			operationsTotal.WithLabelValues("load", "miss").Inc()
			return query.Spec{}, ErrNotFound
		}
		operationsTotal.WithLabelValues("load", "error").Inc()
		return query.Spec{}, fmt.Errorf("redis get: %w", err)
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		operationsTotal.WithLabelValues("load", "error").Inc()
		return query.Spec{}, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if err := e.Spec.Validate(); err != nil {
		operationsTotal.WithLabelValues("load", "error").Inc()
		return query.Spec{}, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	operationsTotal.WithLabelValues("load", "hit").Inc()
	s.logger.Debug().
		Str("key", key.String()).
		Str("query", e.Spec.Key()).
		Msg("View state loaded")

	return e.Spec, nil
}

// Save stores the query of a view and resets its TTL.
func (s *Store) Save(ctx context.Context, key Key, spec query.Spec) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if err := spec.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(entry{Spec: spec, SavedAt: time.Now().UTC()})
	if err != nil {
		operationsTotal.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("marshal view state: %w", err)
	}

	if err := s.redis.Set(ctx, key.String(), data, s.ttl).Err(); err != nil {
		operationsTotal.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	operationsTotal.WithLabelValues("save", "ok").Inc()
	return nil
}

// Delete removes the stored query of a view.
func (s *Store) Delete(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}

	if err := s.redis.Del(ctx, key.String()).Err(); err != nil {
		operationsTotal.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	operationsTotal.WithLabelValues("delete", "ok").Inc()
	return nil
}
