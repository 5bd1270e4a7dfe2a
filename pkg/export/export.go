// pkg/export/export.go
package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/David-Botos/retail-ingress/pkg/analytics"
	"github.com/David-Botos/retail-ingress/pkg/model"
)

// Format is an output format for query results
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
)

// Messages shown instead of a result table
const (
	MessageNoData      = "no data"
	MessageNoSelection = "nothing selected"
)

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatJSON, FormatCSV:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json or csv)", s)
	}
}

// Extension returns the file extension used when writing the format to disk
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatCSV:
		return "csv"
	default:
		return "txt"
	}
}

// FormatValue renders a cell; money is always shown with two decimals
func FormatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case decimal.Decimal:
		return val.StringFixed(2)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

// ResultMessage returns the text shown for a failed query of a report
func ResultMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, model.ErrNoSelection):
		return MessageNoSelection
	case model.IsStoreUnavailable(err):
		return MessageNoData
	default:
		return err.Error()
	}
}

// WriteTable writes a single result table in the given format
func WriteTable(w io.Writer, t *analytics.Table, f Format, useColor bool) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, newJSONTable(t))
	case FormatCSV:
		return writeCSV(w, t)
	default:
		return NewRenderer(useColor).RenderTable(w, t)
	}
}

// WriteReport writes every result of a report to w
func WriteReport(w io.Writer, r *analytics.Report, f Format, useColor bool) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, newJSONReport(r))
	case FormatCSV:
		for i, res := range r.Results {
			if i > 0 {
				if _, err := io.WriteString(w, "\n"); err != nil {
					return err
				}
			}
			if _, err := fmt.Fprintf(w, "# %s\n", res.Name); err != nil {
				return err
			}
			if res.Err != nil {
				if _, err := fmt.Fprintf(w, "# %s\n", ResultMessage(res.Err)); err != nil {
					return err
				}
				continue
			}
			if err := writeCSV(w, res.Table); err != nil {
				return err
			}
		}
		return nil
	default:
		return NewRenderer(useColor).RenderReport(w, r)
	}
}

// TimestampedFilename builds <dir>/<name>_<yyyymmdd_hhmmss>.<ext>
func TimestampedFilename(baseDir, name, ext string, at time.Time) string {
	return filepath.Join(baseDir, fmt.Sprintf("%s_%s.%s", name, at.Format("20060102_150405"), ext))
}

// ExportReport writes one file per successful query of the report into dir
// and returns the paths written. Failed queries produce no file.
func ExportReport(dir string, r *analytics.Report, f Format, at time.Time) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	paths := make([]string, 0, len(r.Results))
	for _, res := range r.Results {
		if res.Err != nil || res.Table == nil {
			continue
		}

		path := TimestampedFilename(dir, res.Name, f.Extension(), at)
		if err := writeFile(path, res.Table, f); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	return paths, nil
}

func writeFile(path string, t *analytics.Table, f Format) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	if err := WriteTable(file, t, f, false); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
