// Package aggregate merges independently paged partitions into one list view.
//
// Combine is the pure merge: items in plan order, totals and page counts over
// enabled partitions only, the first partition error in plan order.
//
// Controller is the state machine a list page talks to. It owns the current
// query.Spec, re-plans and re-fetches whenever the Spec changes, and exposes
// the latest aggregate through Snapshot and Subscribe. Every fetch cycle is
// tagged with a generation; results of a superseded cycle are dropped on
// arrival, so rapid filter changes never apply out of order.
//
// Query is the one-shot form for callers that hold no state:
//
//	res := aggregate.Query(ctx, spec, planner(spec), aggregate.FetchFrom(f, resource))
//
// The page count of a combined view is the maximum over its partitions. Each
// partition is paged independently with the same page number, so a page past
// one partition's end still shows the others' items and the combined page is
// smaller than PageSize. This is a known precision loss of client-side
// partitioning; exact combined paging needs backend support.
package aggregate
