package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// UI query parameter names accepted by ParseValues.
const (
	UIParamPage     = "page"
	UIParamPageSize = "pageSize"
	UIParamSort     = "sort"
	UIParamDir      = "dir"
	UIParamSearch   = "search"

	// UIFilterPrefix prefixes filter parameters, e.g. f.tipo=5.
	UIFilterPrefix = "f."
)

// PageConfig holds page size limits applied to UI-provided values.
type PageConfig struct {
	DefaultPageSize int
	MaxPageSize     int
}

// DefaultPageConfig returns the page size limits used by the dashboards.
func DefaultPageConfig() PageConfig {
	return PageConfig{
		DefaultPageSize: 10,
		MaxPageSize:     100,
	}
}

// Validate checks the limits.
func (c PageConfig) Validate() error {
	if c.DefaultPageSize < 1 {
		return fmt.Errorf("default_page_size must be positive")
	}
	if c.MaxPageSize < 1 {
		return fmt.Errorf("max_page_size must be positive")
	}
	if c.DefaultPageSize > c.MaxPageSize {
		return fmt.Errorf("default_page_size cannot exceed max_page_size")
	}
	return nil
}

// Normalize clamps page and page size into valid values.
func (c PageConfig) Normalize(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = c.DefaultPageSize
	}
	if pageSize > c.MaxPageSize {
		pageSize = c.MaxPageSize
	}
	return page, pageSize
}

// HasValues reports whether values carry any UI query parameter.
func HasValues(values url.Values) bool {
	for key := range values {
		switch {
		case key == UIParamPage, key == UIParamPageSize, key == UIParamSort,
			key == UIParamDir, key == UIParamSearch:
			return true
		case strings.HasPrefix(key, UIFilterPrefix):
			return true
		}
	}
	return false
}

// ParseValues builds a Spec from UI query parameters:
// page, pageSize, sort, dir, search and f.<name> filters.
// "true" and "false" filter values become boolean filters. Filters named
// like a backend paging, sort or search parameter are ignored.
func ParseValues(values url.Values, cfg PageConfig) Spec {
	page, _ := strconv.Atoi(values.Get(UIParamPage))
	pageSize, _ := strconv.Atoi(values.Get(UIParamPageSize))
	page, pageSize = cfg.Normalize(page, pageSize)

	s := Spec{
		Page:     page,
		PageSize: pageSize,
		SortKey:  strings.TrimSpace(values.Get(UIParamSort)),
		Search:   strings.TrimSpace(values.Get(UIParamSearch)),
		Filters:  make(Filters),
	}
	if s.SortKey != "" {
		s.SortDirection = ParseDirection(values.Get(UIParamDir))
	}

	for key, vals := range values {
		if !strings.HasPrefix(key, UIFilterPrefix) || len(vals) == 0 {
			continue
		}
		name := strings.TrimPrefix(key, UIFilterPrefix)
		raw := strings.TrimSpace(strings.Join(vals, ","))
		if name == "" || raw == "" || Reserved(name) {
			continue
		}
		switch raw {
		case "true":
			s.Filters[name] = Bool(true)
		case "false":
			s.Filters[name] = Bool(false)
		default:
			s.Filters[name] = String(raw)
		}
	}

	return s
}
