// Package query describes what a paginated list view asks the backend for.
//
// A Spec is an immutable value holding the page, page size, sort column,
// filters and free-text search of a list page. A new Spec is built on every
// UI state change; the With* helpers return copies and never touch the
// receiver's filter map.
//
// UI column keys are mapped to backend query parameter names by a
// Translator. Keys missing from the table are not an error: the sort
// parameter is omitted and the backend applies its default order.
//
// Example usage:
//
//	spec, err := query.New(1, 10,
//		query.WithSort("data", query.Desc),
//		query.WithFilter("status", query.String("aberto")),
//	)
//	values := spec.Values(query.CollectionColumns)
//	// pagina=1&porPagina=10&sortKey=dataCadastro&sortDirection=desc&status=aberto
package query
