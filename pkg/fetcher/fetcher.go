// Package fetcher performs one backend request per partition and decodes
// the response into a Result.
//
// Fetch never returns an error past its boundary: transport failures become
// a *NetworkError and undecodable bodies a *ParseError inside Result.Err.
// It issues exactly one GET per call and never retries.
package fetcher

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/Sternrassler/panel-aggregator/pkg/client"
	"github.com/Sternrassler/panel-aggregator/pkg/partition"
	"github.com/Sternrassler/panel-aggregator/pkg/query"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for partition fetches.
var (
	partitionFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "panel_partition_fetches_total",
		Help: "Total partition fetches by resource and outcome",
	}, []string{"resource", "outcome"})

	partitionFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "panel_partition_fetch_duration_seconds",
		Help:    "Partition fetch duration in seconds by resource",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"resource"})
)

// Fetch outcomes used as metric labels.
const (
	OutcomeOK           = "ok"
	OutcomeNetworkError = "network_error"
	OutcomeParseError   = "parse_error"
)

// Getter performs a GET and returns the body. *client.Client implements it.
type Getter interface {
	Get(ctx context.Context, endpoint string, values url.Values) ([]byte, error)
}

// Resource is a paged REST resource, GET {Name}/{Scope}.
type Resource struct {
	// Name is the resource path, e.g. "transferencias".
	Name string

	// Scope is the scoping id appended to the path. Optional.
	Scope string

	// Columns maps UI sort keys to backend parameters.
	Columns query.Translator

	// TypeFilter is the UI filter replaced by the partition type value.
	// Defaults to partition.DefaultTypeFilter.
	TypeFilter string
}

// Endpoint returns the request path.
func (r Resource) Endpoint() string {
	name := strings.Trim(r.Name, "/")
	if r.Scope == "" {
		return "/" + name
	}
	return "/" + name + "/" + url.PathEscape(r.Scope)
}

func (r Resource) typeFilter() string {
	if r.TypeFilter == "" {
		return partition.DefaultTypeFilter
	}
	return r.TypeFilter
}

// Values renders the query parameters for one partition.
//
// A typed partition sends its own type value in place of the UI's type
// filter. An untyped partition forwards the type filter as one tipo
// parameter per listed value, so "5,6" becomes tipo=5&tipo=6.
func (r Resource) Values(spec query.Spec, p partition.Spec) url.Values {
	v := spec.Values(r.Columns, r.typeFilter())
	if p.TypeValue != "" {
		v.Add(query.ParamType, p.TypeValue)
		return v
	}
	for _, tv := range partition.SplitTypes(spec.Filters.Get(r.typeFilter())) {
		v.Add(query.ParamType, tv)
	}
	return v
}

// Result is the outcome of fetching one partition.
type Result[T any] struct {
	Items      []T
	TotalItems int
	TotalPages int
	Err        error
}

// Failed returns a Result carrying only err.
func Failed[T any](err error) Result[T] {
	return Result[T]{Items: []T{}, Err: err}
}

// Fetcher fetches partitions of a resource.
type Fetcher[T any] struct {
	getter Getter
	logger zerolog.Logger
}

// New creates a Fetcher over getter.
func New[T any](getter Getter) *Fetcher[T] {
	return &Fetcher[T]{
		getter: getter,
		logger: log.With().Str("component", "fetcher").Logger(),
	}
}

// Fetch requests one partition. Callers must skip disabled partitions; if
// one is passed anyway no request is made and the Result carries
// ErrPartitionDisabled.
func (f *Fetcher[T]) Fetch(ctx context.Context, res Resource, spec query.Spec, p partition.Spec) Result[T] {
	if !p.Enabled {
		return Failed[T](ErrPartitionDisabled)
	}

	start := time.Now()
	defer func() {
		partitionFetchDuration.WithLabelValues(res.Name).Observe(time.Since(start).Seconds())
	}()

	body, err := f.getter.Get(ctx, res.Endpoint(), res.Values(spec, p))
	if err != nil {
		netErr := &NetworkError{
			Resource:  res.Name,
			TypeValue: p.TypeValue,
			Class:     client.ErrorClassNetwork,
			Err:       err,
		}
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			netErr.StatusCode = apiErr.StatusCode
			if apiErr.ErrorClass != "" {
				netErr.Class = apiErr.ErrorClass
			}
		}

		partitionFetchesTotal.WithLabelValues(res.Name, OutcomeNetworkError).Inc()
		f.logger.Warn().
			Err(err).
			Str("resource", res.Name).
			Str("type", p.TypeValue).
			Str("error_class", string(netErr.Class)).
			Msg("Partition fetch failed")
		return Failed[T](netErr)
	}

	page, err := Decode[T](body, spec.PageSize)
	if err != nil {
		var parseErr *ParseError
		if errors.As(err, &parseErr) {
			parseErr.Resource = res.Name
			parseErr.TypeValue = p.TypeValue
		}

		partitionFetchesTotal.WithLabelValues(res.Name, OutcomeParseError).Inc()
		f.logger.Warn().
			Err(err).
			Str("resource", res.Name).
			Str("type", p.TypeValue).
			Int("body_bytes", len(body)).
			Msg("Partition response not recognized")
		return Failed[T](err)
	}

	partitionFetchesTotal.WithLabelValues(res.Name, OutcomeOK).Inc()
	f.logger.Debug().
		Str("resource", res.Name).
		Str("type", p.TypeValue).
		Str("shape", string(page.Shape)).
		Int("items", len(page.Items)).
		Int("total_items", page.TotalItems).
		Int("total_pages", page.TotalPages).
		Dur("duration", time.Since(start)).
		Msg("Partition fetched")

	return Result[T]{
		Items:      page.Items,
		TotalItems: page.TotalItems,
		TotalPages: page.TotalPages,
	}
}
