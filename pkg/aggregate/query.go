package aggregate

import (
	"context"
	"fmt"

	"github.com/Sternrassler/panel-aggregator/pkg/fetcher"
	"github.com/Sternrassler/panel-aggregator/pkg/partition"
	"github.com/Sternrassler/panel-aggregator/pkg/query"
	"golang.org/x/sync/errgroup"
)

// FetchFunc fetches one partition. Implementations report failures in
// Result.Err rather than panicking.
type FetchFunc[T any] func(ctx context.Context, spec query.Spec, p partition.Spec) fetcher.Result[T]

// FetchFrom binds a Fetcher to a resource.
func FetchFrom[T any](f *fetcher.Fetcher[T], res fetcher.Resource) FetchFunc[T] {
	return func(ctx context.Context, spec query.Spec, p partition.Spec) fetcher.Result[T] {
		return f.Fetch(ctx, res, spec, p)
	}
}

// Query fetches every enabled partition of plan concurrently and combines
// the results once all of them settled.
func Query[T any](ctx context.Context, spec query.Spec, plan []partition.Spec, fetch FetchFunc[T]) Result[T] {
	results := dispatch(ctx, fetch, spec, partition.Enabled(plan))
	return Combine(results, plan, nil)
}

// dispatch launches all partitions back to back and waits for all of them.
// Each goroutine writes only its own slot.
func dispatch[T any](ctx context.Context, fetch FetchFunc[T], spec query.Spec, enabled []partition.Spec) map[string]fetcher.Result[T] {
	slots := make([]fetcher.Result[T], len(enabled))

	var g errgroup.Group
	for i, p := range enabled {
		i, p := i, p
		g.Go(func() error {
			slots[i] = safeFetch(ctx, fetch, spec, p)
			return nil
		})
	}
	_ = g.Wait()

	results := make(map[string]fetcher.Result[T], len(enabled))
	for i, p := range enabled {
		results[p.Key()] = slots[i]
	}
	return results
}

func safeFetch[T any](ctx context.Context, fetch FetchFunc[T], spec query.Spec, p partition.Spec) (res fetcher.Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			res = fetcher.Failed[T](fmt.Errorf("fetch partition %q panicked: %v", p.TypeValue, r))
		}
	}()
	res = fetch(ctx, spec, p)
	if res.Items == nil {
		res.Items = []T{}
	}
	return res
}
