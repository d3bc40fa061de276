package fetcher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Envelope field names, in lookup order. Endpoints name them inconsistently.
var (
	ItemFields  = []string{"dados", "conteudo", "data"}
	CountFields = []string{"totalItens", "qtdElementos"}
	PageFields  = []string{"totalPaginas"}
)

// Shape tells which response shape a body was decoded from.
type Shape string

const (
	// ShapeArray is a bare JSON array of items.
	ShapeArray Shape = "array"

	// ShapeEnvelope is an object carrying items plus a total count.
	ShapeEnvelope Shape = "envelope"
)

// Page is a decoded backend page.
type Page[T any] struct {
	Items      []T
	TotalItems int
	TotalPages int
	Shape      Shape
}

// Decode converts a response body into a Page.
//
// A bare array is one complete page: TotalItems is its length and
// TotalPages is 1. An envelope object must carry its items under one of
// ItemFields; the total comes from CountFields (falling back to the item
// count) and the page count from PageFields or ceil(total / pageSize).
// Any other body yields a *ParseError.
func Decode[T any](body []byte, pageSize int) (Page[T], error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Page[T]{}, &ParseError{Reason: "empty response body", Err: ErrUnrecognizedShape}
	}

	switch trimmed[0] {
	case '[':
		return decodeArray[T](trimmed)
	case '{':
		return decodeEnvelope[T](trimmed, pageSize)
	default:
		return Page[T]{}, &ParseError{
			Reason: fmt.Sprintf("unexpected leading %q", trimmed[0]),
			Err:    ErrUnrecognizedShape,
		}
	}
}

func decodeArray[T any](body []byte) (Page[T], error) {
	var items []T
	if err := json.Unmarshal(body, &items); err != nil {
		return Page[T]{}, &ParseError{Reason: "decode item array", Err: err}
	}
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items:      items,
		TotalItems: len(items),
		TotalPages: 1,
		Shape:      ShapeArray,
	}, nil
}

func decodeEnvelope[T any](body []byte, pageSize int) (Page[T], error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return Page[T]{}, &ParseError{Reason: "decode envelope", Err: err}
	}

	rawItems, itemField, ok := lookup(fields, ItemFields)
	if !ok {
		return Page[T]{}, &ParseError{
			Reason: "no items field (want one of " + strings.Join(ItemFields, ", ") + ")",
			Err:    ErrUnrecognizedShape,
		}
	}

	var items []T
	if !isNull(rawItems) {
		trimmed := bytes.TrimSpace(rawItems)
		if len(trimmed) == 0 || trimmed[0] != '[' {
			return Page[T]{}, &ParseError{
				Reason: fmt.Sprintf("field %q is not an array", itemField),
				Err:    ErrUnrecognizedShape,
			}
		}
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return Page[T]{}, &ParseError{Reason: fmt.Sprintf("decode field %q", itemField), Err: err}
		}
	}
	if items == nil {
		items = []T{}
	}

	total := len(items)
	if rawCount, countField, ok := lookup(fields, CountFields); ok && !isNull(rawCount) {
		n, err := parseCount(rawCount)
		if err != nil {
			return Page[T]{}, &ParseError{Reason: fmt.Sprintf("decode field %q", countField), Err: err}
		}
		total = n
	}

	totalPages := -1
	if rawPages, pagesField, ok := lookup(fields, PageFields); ok && !isNull(rawPages) {
		n, err := parseCount(rawPages)
		if err != nil {
			return Page[T]{}, &ParseError{Reason: fmt.Sprintf("decode field %q", pagesField), Err: err}
		}
		totalPages = n
	}
	if totalPages < 0 {
		totalPages = PageCount(total, pageSize)
	}

	return Page[T]{
		Items:      items,
		TotalItems: total,
		TotalPages: totalPages,
		Shape:      ShapeEnvelope,
	}, nil
}

// PageCount returns ceil(total / pageSize). A page size below 1 counts
// everything as a single page.
func PageCount(total, pageSize int) int {
	if total <= 0 {
		return 0
	}
	if pageSize < 1 {
		return 1
	}
	return int(math.Ceil(float64(total) / float64(pageSize)))
}

func lookup(fields map[string]json.RawMessage, names []string) (json.RawMessage, string, bool) {
	for _, name := range names {
		if raw, ok := fields[name]; ok {
			return raw, name, true
		}
	}
	return nil, "", false
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// parseCount accepts a non-negative integer given as a JSON number or a
// numeric string.
func parseCount(raw json.RawMessage) (int, error) {
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, err
	}

	switch t := v.(type) {
	case json.Number:
		n = t
	case string:
		n = json.Number(strings.TrimSpace(t))
	default:
		return 0, fmt.Errorf("count is %T, want number", v)
	}

	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		if i < 0 {
			return 0, fmt.Errorf("count %d is negative", i)
		}
		return int(i), nil
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		return 0, fmt.Errorf("count %q is not numeric", n.String())
	}
	if f < 0 || f != math.Trunc(f) {
		return 0, fmt.Errorf("count %v is not a non-negative integer", f)
	}
	return int(f), nil
}
