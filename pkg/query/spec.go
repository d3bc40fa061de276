package query

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var (
	// ErrInvalidPage is returned when a page number is below 1.
	ErrInvalidPage = errors.New("page must be >= 1")

	// ErrInvalidPageSize is returned when a page size is below 1.
	ErrInvalidPageSize = errors.New("page size must be >= 1")
)

// Backend query parameter names.
const (
	ParamPage          = "pagina"
	ParamPageSize      = "porPagina"
	ParamSortKey       = "sortKey"
	ParamSortDirection = "sortDirection"
	ParamSearch        = "busca"
	ParamType          = "tipo"
)

// Reserved reports whether name is a paging, sort or search parameter.
// Filters never use these names.
func Reserved(name string) bool {
	switch name {
	case ParamPage, ParamPageSize, ParamSortKey, ParamSortDirection, ParamSearch:
		return true
	}
	return false
}

// Direction is the sort direction of a list.
type Direction string

const (
	// Asc sorts in ascending order.
	Asc Direction = "asc"

	// Desc sorts in descending order.
	Desc Direction = "desc"
)

// ParseDirection converts a UI value into a Direction.
// Anything other than "desc" (case-insensitive) is ascending.
func ParseDirection(s string) Direction {
	if strings.EqualFold(strings.TrimSpace(s), string(Desc)) {
		return Desc
	}
	return Asc
}

// Spec describes one page of a list view.
// Treat it as a value: use the With* methods to derive a changed copy.
type Spec struct {
	// Page is the 1-based page number.
	Page int `json:"page"`

	// PageSize is the number of items requested per page.
	PageSize int `json:"pageSize"`

	// SortKey is the UI column key to sort by (empty for backend default).
	SortKey string `json:"sortKey,omitempty"`

	// SortDirection applies when SortKey is set. Empty means ascending.
	SortDirection Direction `json:"sortDirection,omitempty"`

	// Filters are the named filters selected in the UI.
	Filters Filters `json:"filters,omitempty"`

	// Search is the free-text search term.
	Search string `json:"search,omitempty"`
}

// Option configures a Spec built with New.
type Option func(*Spec)

// WithSort sets the sort column and direction.
func WithSort(key string, dir Direction) Option {
	return func(s *Spec) {
		s.SortKey = key
		s.SortDirection = dir
	}
}

// WithFilter sets a named filter.
func WithFilter(name string, value FilterValue) Option {
	return func(s *Spec) {
		if s.Filters == nil {
			s.Filters = make(Filters)
		}
		s.Filters[name] = value
	}
}

// WithFilters merges a filter set into the Spec.
func WithFilters(filters Filters) Option {
	return func(s *Spec) {
		if s.Filters == nil {
			s.Filters = make(Filters, len(filters))
		}
		for name, v := range filters {
			s.Filters[name] = v
		}
	}
}

// WithSearch sets the free-text search term.
func WithSearch(term string) Option {
	return func(s *Spec) {
		s.Search = term
	}
}

// New builds a validated Spec.
func New(page, pageSize int, opts ...Option) (Spec, error) {
	s := Spec{
		Page:     page,
		PageSize: pageSize,
		Filters:  make(Filters),
	}
	for _, opt := range opts {
		opt(&s)
	}
	if err := s.Validate(); err != nil {
		return Spec{}, err
	}
	return s, nil
}

// Validate checks the page invariants.
func (s Spec) Validate() error {
	if s.Page < 1 {
		return fmt.Errorf("%w (got %d)", ErrInvalidPage, s.Page)
	}
	if s.PageSize < 1 {
		return fmt.Errorf("%w (got %d)", ErrInvalidPageSize, s.PageSize)
	}
	return nil
}

// Clone returns a copy that shares no mutable state with s.
func (s Spec) Clone() Spec {
	s.Filters = s.Filters.Clone()
	return s
}

// WithPage returns a copy with a different page number.
func (s Spec) WithPage(page int) Spec {
	c := s.Clone()
	c.Page = page
	return c
}

// WithPageSize returns a copy with a different page size.
// Changing the page size resets the page to 1.
func (s Spec) WithPageSize(pageSize int) Spec {
	c := s.Clone()
	c.PageSize = pageSize
	c.Page = 1
	return c
}

// WithSort returns a copy sorted by key in the given direction.
func (s Spec) WithSort(key string, dir Direction) Spec {
	c := s.Clone()
	c.SortKey = key
	c.SortDirection = dir
	return c
}

// WithFilter returns a copy with the named filter set.
// An empty string value removes the filter.
func (s Spec) WithFilter(name string, value FilterValue) Spec {
	c := s.Clone()
	if value.IsEmpty() {
		delete(c.Filters, name)
		return c
	}
	c.Filters[name] = value
	return c
}

// WithoutFilter returns a copy without the named filter.
func (s Spec) WithoutFilter(name string) Spec {
	c := s.Clone()
	delete(c.Filters, name)
	return c
}

// WithSearch returns a copy with a different search term.
func (s Spec) WithSearch(term string) Spec {
	c := s.Clone()
	c.Search = term
	return c
}

// Direction returns the effective sort direction.
func (s Spec) Direction() Direction {
	if s.SortDirection == "" {
		return Asc
	}
	return s.SortDirection
}

// Equal reports whether two Specs request the same data.
func (s Spec) Equal(o Spec) bool {
	if s.Page != o.Page || s.PageSize != o.PageSize || s.Search != o.Search {
		return false
	}
	if s.SortKey != o.SortKey {
		return false
	}
	if s.SortKey != "" && s.Direction() != o.Direction() {
		return false
	}
	return s.Filters.Equal(o.Filters)
}

// Key renders a deterministic string for the Spec.
// Two Specs have the same Key iff they are Equal.
//
// Format: p=1:ps=10:sort=data,desc:q=term:f.status=aberto
func (s Spec) Key() string {
	parts := []string{
		"p=" + strconv.Itoa(s.Page),
		"ps=" + strconv.Itoa(s.PageSize),
	}
	if s.SortKey != "" {
		parts = append(parts, "sort="+s.SortKey+","+string(s.Direction()))
	}
	if s.Search != "" {
		parts = append(parts, "q="+url.QueryEscape(s.Search))
	}
	for _, name := range s.Filters.Names() {
		if s.Filters[name].IsEmpty() {
			continue
		}
		parts = append(parts, "f."+name+"="+url.QueryEscape(s.Filters[name].Encode()))
	}
	return strings.Join(parts, ":")
}

// Values renders the backend query parameters for the Spec.
//
// The sort parameters are only present when tr maps SortKey. Filters named
// in exclude or with a Reserved name are left out; the partition layer uses this to replace the
// UI's type filter with its own type value.
func (s Spec) Values(tr Translator, exclude ...string) url.Values {
	v := url.Values{}
	v.Set(ParamPage, strconv.Itoa(s.Page))
	v.Set(ParamPageSize, strconv.Itoa(s.PageSize))

	if s.SortKey != "" {
		if param, ok := tr.Translate(s.SortKey); ok {
			v.Set(ParamSortKey, param)
			v.Set(ParamSortDirection, string(s.Direction()))
		}
	}

	if term := strings.TrimSpace(s.Search); term != "" {
		v.Set(ParamSearch, term)
	}

	skip := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		skip[name] = struct{}{}
	}

	for _, name := range s.Filters.Names() {
		if _, ok := skip[name]; ok || Reserved(name) {
			continue
		}
		fv := s.Filters[name]
		if fv.IsEmpty() {
			continue
		}
		v.Add(name, fv.String())
	}

	return v
}
