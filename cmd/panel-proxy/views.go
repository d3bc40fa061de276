package main

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Sternrassler/panel-aggregator/pkg/aggregate"
	"github.com/Sternrassler/panel-aggregator/pkg/fetcher"
	"github.com/Sternrassler/panel-aggregator/pkg/partition"
	"github.com/Sternrassler/panel-aggregator/pkg/query"
	"github.com/rs/zerolog"
)

// View is a dashboard list backed by one resource.
type View struct {
	Name       string           `json:"name"`
	Resource   string           `json:"resource"`
	TypeFilter string           `json:"typeFilter,omitempty"`
	Types      []string         `json:"types,omitempty"`
	Columns    query.Translator `json:"-"`
}

// defaultViews are the dashboard lists served by the proxy.
func defaultViews() []View {
	return []View{
		{
			Name:     "transfers",
			Resource: "transferencias",
			Types:    []string{"entrada", "saida"},
			Columns:  query.TransferColumns,
		},
		{
			Name:     "stock-adjustments",
			Resource: "ajustes-estoque",
			Types:    []string{"5", "6"},
			Columns:  query.InventoryColumns,
		},
		{
			Name:     "collections",
			Resource: "coletas",
			Columns:  query.CollectionColumns,
		},
		{
			Name:     "sales-reviews",
			Resource: "revisoes",
			Types:    []string{"venda", "compra"},
			Columns:  query.SalesColumns,
		},
	}
}

type sessionKey struct {
	session string
	view    string
}

type session struct {
	ctrl     *aggregate.Controller[json.RawMessage]
	lastUsed time.Time
}

// registry holds the views and one controller per session and view.
type registry struct {
	views   map[string]View
	order   []string
	fetcher *fetcher.Fetcher[json.RawMessage]
	scope   string
	idle    time.Duration
	ctx     context.Context
	logger  zerolog.Logger

	mu       sync.Mutex
	sessions map[sessionKey]*session
	now      func() time.Time
}

func newRegistry(ctx context.Context, views []View, f *fetcher.Fetcher[json.RawMessage], scope string, idle time.Duration, logger zerolog.Logger) *registry {
	r := &registry{
		views:    make(map[string]View, len(views)),
		fetcher:  f,
		scope:    scope,
		idle:     idle,
		ctx:      ctx,
		logger:   logger,
		sessions: make(map[sessionKey]*session),
		now:      time.Now,
	}
	for _, v := range views {
		r.views[v.Name] = v
		r.order = append(r.order, v.Name)
	}
	return r
}

// list returns the views in registration order.
func (r *registry) list() []View {
	out := make([]View, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.views[name])
	}
	return out
}

func (r *registry) view(name string) (View, bool) {
	v, ok := r.views[name]
	return v, ok
}

// controller returns the controller of a session's view, creating it on
// first use.
func (r *registry) controller(sessionID string, v View) *aggregate.Controller[json.RawMessage] {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := sessionKey{session: sessionID, view: v.Name}
	if s, ok := r.sessions[key]; ok {
		s.lastUsed = r.now()
		return s.ctrl
	}

	res := fetcher.Resource{
		Name:       v.Resource,
		Scope:      r.scope,
		Columns:    v.Columns,
		TypeFilter: v.TypeFilter,
	}
	ctrl := aggregate.NewController(
		aggregate.FetchFrom(r.fetcher, res),
		partition.NewPlanner(v.TypeFilter, v.Types...),
		aggregate.WithName(v.Name),
		aggregate.WithContext(r.ctx),
		aggregate.WithLogger(r.logger.With().Str("component", "controller").Str("session", sessionID).Logger()),
	)
	r.sessions[key] = &session{ctrl: ctrl, lastUsed: r.now()}

	r.logger.Debug().
		Str("session", sessionID).
		Str("view", v.Name).
		Msg("Controller created")

	return ctrl
}

// evictIdle closes controllers unused for longer than the idle timeout.
func (r *registry) evictIdle() int {
	if r.idle <= 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.idle)
	evicted := 0
	for key, s := range r.sessions {
		if s.lastUsed.Before(cutoff) {
			s.ctrl.Close()
			delete(r.sessions, key)
			evicted++
		}
	}
	return evicted
}

// run evicts idle controllers until ctx is done.
func (r *registry) run(ctx context.Context) {
	if r.idle <= 0 {
		return
	}

	ticker := time.NewTicker(r.idle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.evictIdle(); n > 0 {
				r.logger.Debug().Int("evicted", n).Msg("Idle controllers closed")
			}
		}
	}
}

// size returns the number of live controllers.
func (r *registry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close closes all controllers.
func (r *registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, s := range r.sessions {
		s.ctrl.Close()
		delete(r.sessions, key)
	}
}
