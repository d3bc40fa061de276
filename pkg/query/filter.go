package query

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// FilterValue is a filter selected in the UI: either a string or a bool.
type FilterValue struct {
	str    string
	b      bool
	isBool bool
}

// String returns a string filter value.
func String(s string) FilterValue {
	return FilterValue{str: s}
}

// Bool returns a boolean filter value.
func Bool(b bool) FilterValue {
	return FilterValue{b: b, isBool: true}
}

// IsBool reports whether the value is a boolean.
func (v FilterValue) IsBool() bool {
	return v.isBool
}

// BoolValue returns the boolean and whether the value is a boolean.
func (v FilterValue) BoolValue() (bool, bool) {
	return v.b, v.isBool
}

// IsEmpty reports whether the value is an empty string.
// Boolean values are never empty.
func (v FilterValue) IsEmpty() bool {
	return !v.isBool && v.str == ""
}

// String returns the query-string form of the value.
func (v FilterValue) String() string {
	if v.isBool {
		return strconv.FormatBool(v.b)
	}
	return v.str
}

// Encode returns a form that keeps "true" the string apart from true the bool.
func (v FilterValue) Encode() string {
	if v.isBool {
		return "b:" + strconv.FormatBool(v.b)
	}
	return "s:" + v.str
}

// MarshalJSON renders a boolean as a JSON bool and anything else as a string.
func (v FilterValue) MarshalJSON() ([]byte, error) {
	if v.isBool {
		return json.Marshal(v.b)
	}
	return json.Marshal(v.str)
}

// UnmarshalJSON accepts a JSON bool or string.
func (v *FilterValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case bool:
		*v = Bool(t)
	case string:
		*v = String(t)
	default:
		return fmt.Errorf("filter value is %T, want string or bool", raw)
	}
	return nil
}

// Filters maps filter names to their selected value.
type Filters map[string]FilterValue

// Clone returns an independent copy. The clone of nil is an empty map.
func (f Filters) Clone() Filters {
	c := make(Filters, len(f))
	for k, v := range f {
		c[k] = v
	}
	return c
}

// Get returns the string form of a filter, or "" when absent.
func (f Filters) Get(name string) string {
	v, ok := f[name]
	if !ok {
		return ""
	}
	return v.String()
}

// Names returns the filter names in sorted order.
func (f Filters) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Equal compares two filter sets by content. Empty string values are
// treated as absent.
func (f Filters) Equal(o Filters) bool {
	return f.normalized().equal(o.normalized())
}

func (f Filters) normalized() Filters {
	n := make(Filters, len(f))
	for k, v := range f {
		if v.IsEmpty() {
			continue
		}
		n[k] = v
	}
	return n
}

func (f Filters) equal(o Filters) bool {
	if len(f) != len(o) {
		return false
	}
	for k, v := range f {
		ov, ok := o[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}
