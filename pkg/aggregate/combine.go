package aggregate

import (
	"github.com/Sternrassler/panel-aggregator/pkg/fetcher"
	"github.com/Sternrassler/panel-aggregator/pkg/partition"
)

// Result is the merged view handed to the UI.
type Result[T any] struct {
	Items         []T
	TotalElements int
	TotalPages    int
	Loading       bool
	Err           error
}

// Error returns the user-visible error message, or "" when there is none.
func (r Result[T]) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Combine merges per-partition results following plan order.
//
// Only enabled partitions contribute: a disabled partition's stale result is
// ignored even if it is still in results. Loading is true while any enabled
// partition is in inFlight. Err is the first partition error in plan order;
// when other enabled partitions succeeded it is wrapped in a
// *PartialPartitionError.
func Combine[T any](results map[string]fetcher.Result[T], plan []partition.Spec, inFlight map[string]bool) Result[T] {
	out := Result[T]{Items: []T{}}

	var (
		firstErr     error
		firstErrType string
		failed       int
		succeeded    int
	)

	for _, p := range plan {
		if !p.Enabled {
			continue
		}
		key := p.Key()

		if inFlight[key] {
			out.Loading = true
		}

		r, ok := results[key]
		if !ok {
			continue
		}

		if r.Err != nil {
			failed++
			if firstErr == nil {
				firstErr = r.Err
				firstErrType = p.TypeValue
			}
		} else {
			succeeded++
		}

		out.Items = append(out.Items, r.Items...)
		out.TotalElements += r.TotalItems
		if r.TotalPages > out.TotalPages {
			out.TotalPages = r.TotalPages
		}
	}

	switch {
	case firstErr == nil:
	case succeeded > 0:
		out.Err = &PartialPartitionError{
			TypeValue: firstErrType,
			Failed:    failed,
			Succeeded: succeeded,
			Err:       firstErr,
		}
	default:
		out.Err = firstErr
	}

	return out
}
