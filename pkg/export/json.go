package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"github.com/David-Botos/retail-ingress/pkg/analytics"
)

type jsonTable struct {
	Name    string          `json:"name"`
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

type jsonResult struct {
	jsonTable
	Error      string  `json:"error,omitempty"`
	DurationMs float64 `json:"duration_ms"`
}

type jsonReport struct {
	Generation string       `json:"generation"`
	DurationMs float64      `json:"duration_ms"`
	Results    []jsonResult `json:"results"`
}

// newJSONTable converts money to JSON numbers with two decimals
func newJSONTable(t *analytics.Table) jsonTable {
	out := jsonTable{Name: t.Name, Columns: t.Columns, Rows: make([][]interface{}, 0, len(t.Rows))}
	for _, row := range t.Rows {
		cells := make([]interface{}, len(row))
		for i, v := range row {
			if d, ok := v.(decimal.Decimal); ok {
				cells[i] = json.Number(d.StringFixed(2))
				continue
			}
			cells[i] = v
		}
		out.Rows = append(out.Rows, cells)
	}
	return out
}

func newJSONReport(r *analytics.Report) jsonReport {
	out := jsonReport{
		Generation: r.Generation,
		DurationMs: float64(r.Duration.Microseconds()) / 1000,
		Results:    make([]jsonResult, 0, len(r.Results)),
	}
	for _, res := range r.Results {
		jr := jsonResult{
			jsonTable:  jsonTable{Name: res.Name, Columns: []string{}, Rows: [][]interface{}{}},
			Error:      ResultMessage(res.Err),
			DurationMs: float64(res.Duration.Microseconds()) / 1000,
		}
		if res.Err == nil && res.Table != nil {
			jr.jsonTable = newJSONTable(res.Table)
		}
		out.Results = append(out.Results, jr)
	}
	return out
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write JSON: %w", err)
	}
	return nil
}
