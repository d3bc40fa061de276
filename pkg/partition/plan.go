// Package partition splits a list view into independently fetched partitions.
//
// Some backends filter by a single record type per call. A view that shows
// several types together (transfers = entrada + saida) is planned as one
// partition per type value; the user's type filter decides which partitions
// are enabled. Disabled partitions are never fetched.
package partition

import (
	"strings"

	"github.com/Sternrassler/panel-aggregator/pkg/query"
)

// DefaultTypeFilter is the filter name that selects record types.
const DefaultTypeFilter = query.ParamType

// Spec is one partition of a view.
type Spec struct {
	// TypeValue is sent as the tipo parameter. Empty for untyped views.
	TypeValue string

	// Enabled is false when the user's type filter excludes TypeValue.
	Enabled bool
}

// Key identifies the partition inside a plan.
func (s Spec) Key() string {
	return s.TypeValue
}

// Plan derives the partitions for a view.
//
// A partition is enabled iff the type filter is empty or lists its type
// value (comma separated for multi-value filters). An empty typeValues list
// yields a single untyped partition that is always enabled. Repeated type
// values are planned once.
func Plan(filters query.Filters, typeFilter string, typeValues []string) []Spec {
	if len(typeValues) == 0 {
		return []Spec{{Enabled: true}}
	}

	selected := selectedTypes(filters.Get(typeFilter))

	plan := make([]Spec, 0, len(typeValues))
	seen := make(map[string]struct{}, len(typeValues))
	for _, tv := range typeValues {
		if _, dup := seen[tv]; dup {
			continue
		}
		seen[tv] = struct{}{}
		_, match := selected[tv]
		plan = append(plan, Spec{
			TypeValue: tv,
			Enabled:   len(selected) == 0 || match,
		})
	}
	return plan
}

func selectedTypes(raw string) map[string]struct{} {
	selected := make(map[string]struct{})
	for _, v := range SplitTypes(raw) {
		selected[v] = struct{}{}
	}
	return selected
}

// SplitTypes splits a type filter value such as "5,6" into its type values
// in order, dropping blanks and repeats.
func SplitTypes(raw string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		v := strings.TrimSpace(part)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Enabled returns the enabled partitions in plan order.
func Enabled(plan []Spec) []Spec {
	out := make([]Spec, 0, len(plan))
	for _, p := range plan {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// EnabledSet renders the enabled type values in plan order.
// Two plans with the same EnabledSet fetch the same partitions.
func EnabledSet(plan []Spec) string {
	keys := make([]string, 0, len(plan))
	for _, p := range plan {
		if p.Enabled {
			keys = append(keys, "["+p.Key()+"]")
		}
	}
	return strings.Join(keys, ",")
}

// Planner computes the plan for a Spec.
type Planner func(spec query.Spec) []Spec

// NewPlanner returns a Planner for a fixed list of type values.
func NewPlanner(typeFilter string, typeValues ...string) Planner {
	if typeFilter == "" {
		typeFilter = DefaultTypeFilter
	}
	values := append([]string(nil), typeValues...)
	return func(spec query.Spec) []Spec {
		return Plan(spec.Filters, typeFilter, values)
	}
}
