package writer

import (
	"encoding/json"
	"fmt"

	cbigquery "cloud.google.com/go/bigquery"

	"github.com/tillstock/tillstock-backend/internal/analytics/types"
	pkgbigquery "github.com/tillstock/tillstock-backend/pkg/bigquery"
)

const partitionColumn = "occurred_at"

// TableSpecs derives the table definitions from the row types so the client
// can create missing tables with the same schema the writer streams.
func TableSpecs(cfg Config) ([]pkgbigquery.TableSpec, error) {
	sales, err := cbigquery.InferSchema(types.SaleFactRow{})
	if err != nil {
		return nil, fmt.Errorf("infer sale fact schema: %w", err)
	}
	drawer, err := cbigquery.InferSchema(types.DrawerClosureRow{})
	if err != nil {
		return nil, fmt.Errorf("infer drawer closure schema: %w", err)
	}
	return []pkgbigquery.TableSpec{
		{Name: cfg.SalesTable, PartitionField: partitionColumn, Schema: sales},
		{Name: cfg.DrawerTable, PartitionField: partitionColumn, Schema: drawer},
	}, nil
}

// EncodeJSON converts a value for a JSON column. Raw bytes pass through as-is
// and empty input becomes NULL.
func EncodeJSON(v any) (cbigquery.NullJSON, error) {
	var raw []byte
	switch value := v.(type) {
	case nil:
		return cbigquery.NullJSON{}, nil
	case cbigquery.NullJSON:
		return value, nil
	case json.RawMessage:
		raw = value
	case []byte:
		raw = value
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return cbigquery.NullJSON{}, fmt.Errorf("marshal json: %w", err)
		}
		raw = b
	}
	if len(raw) == 0 || string(raw) == "null" {
		return cbigquery.NullJSON{}, nil
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}, nil
}
