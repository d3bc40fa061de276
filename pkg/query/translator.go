package query

// Translator maps UI column keys to backend query parameter names.
// A nil Translator maps nothing.
type Translator map[string]string

// Translate returns the backend parameter for a column key.
// The second result is false for unmapped keys, which callers treat as
// "use the backend's default order".
func (t Translator) Translate(columnKey string) (string, bool) {
	param, ok := t[columnKey]
	if !ok || param == "" {
		return "", false
	}
	return param, true
}

// Static column tables per entity.
var (
	// CollectionColumns covers the warehouse collection list.
	CollectionColumns = Translator{
		"id":         "codColeta",
		"data":       "dataCadastro",
		"cliente":    "nomeCliente",
		"status":     "statusColeta",
		"transporte": "codTransportadora",
	}

	// InventoryColumns covers stock movement and adjustment lists.
	InventoryColumns = Translator{
		"id":         "codMovimento",
		"data":       "dataMovimento",
		"produto":    "descricaoProduto",
		"quantidade": "quantidade",
		"deposito":   "codDeposito",
	}

	// TransferColumns covers the combined transfers list.
	TransferColumns = Translator{
		"id":      "codTransferencia",
		"data":    "dataCadastro",
		"origem":  "depositoOrigem",
		"destino": "depositoDestino",
	}

	// SalesColumns covers the sales-force review lists.
	SalesColumns = Translator{
		"id":       "codRevisao",
		"data":     "dataRevisao",
		"vendedor": "nomeVendedor",
		"valor":    "valorTotal",
	}
)
