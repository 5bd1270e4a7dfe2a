package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/David-Botos/retail-ingress/pkg/analytics"
	"github.com/David-Botos/retail-ingress/pkg/store"
)

// Renderer draws query results as terminal tables
type Renderer struct {
	useColor bool
}

// NewRenderer creates a new renderer
func NewRenderer(useColor bool) *Renderer {
	return &Renderer{useColor: useColor}
}

// RenderTable draws one table, numeric columns right aligned
func (r *Renderer) RenderTable(w io.Writer, t *analytics.Table) error {
	if t.Len() == 0 {
		_, err := fmt.Fprintln(w, r.dim("(no rows)"))
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader(t.Columns)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetColumnAlignment(columnAlignment(t))

	for _, row := range t.Rows {
		cells := make([]string, len(t.Columns))
		for i := range cells {
			if i < len(row) {
				cells[i] = FormatValue(row[i])
			}
		}
		table.Append(cells)
	}

	table.Render()
	return nil
}

// RenderReport draws every result under a heading; failed queries show a message
func (r *Renderer) RenderReport(w io.Writer, rep *analytics.Report) error {
	for i, res := range rep.Results {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}

		if _, err := fmt.Fprintln(w, r.heading(res.Name)); err != nil {
			return err
		}

		if res.Err != nil {
			if _, err := fmt.Fprintln(w, r.warn(ResultMessage(res.Err))); err != nil {
				return err
			}
			continue
		}

		if err := r.RenderTable(w, res.Table); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintln(w, r.dim(fmt.Sprintf("\n%d queries, snapshot %s, %s",
		len(rep.Results), valueOr(rep.Generation, "-"), rep.Duration.Round(time.Millisecond))))
	return err
}

func (r *Renderer) heading(name string) string {
	title := strings.ToUpper(strings.ReplaceAll(name, "_", " "))
	if r.useColor {
		return color.New(color.FgCyan, color.Bold).Sprint(title)
	}
	return title
}

func (r *Renderer) warn(msg string) string {
	if r.useColor {
		return color.YellowString(msg)
	}
	return msg
}

func (r *Renderer) dim(msg string) string {
	if r.useColor {
		return color.New(color.Faint).Sprint(msg)
	}
	return msg
}

// columnAlignment right aligns a column when its first row holds a number
func columnAlignment(t *analytics.Table) []int {
	align := make([]int, len(t.Columns))
	for i := range align {
		align[i] = tablewriter.ALIGN_LEFT
		if len(t.Rows) == 0 || i >= len(t.Rows[0]) {
			continue
		}
		switch t.Rows[0][i].(type) {
		case decimal.Decimal, int, int64, float64:
			align[i] = tablewriter.ALIGN_RIGHT
		}
	}
	return align
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// RenderVerification draws one line per snapshot table followed by any issues
func (r *Renderer) RenderVerification(w io.Writer, rep *store.VerificationReport) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Table", "Rows", "Expected", "Structure", "Issues"})
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT,
	})

	for _, tv := range rep.Tables {
		expected := "-"
		if tv.ExpectedRowCount >= 0 {
			expected = fmt.Sprint(tv.ExpectedRowCount)
		}
		structure := r.status(tv.StructureMatches)
		if !tv.StructureMatches {
			structure = r.fail(fmt.Sprintf("%d differences", len(tv.StructureDiscrepancies)))
		}
		table.Append([]string{
			tv.Table,
			fmt.Sprint(tv.ActualRowCount),
			expected,
			structure,
			fmt.Sprint(len(tv.IntegrityIssues)),
		})
	}
	table.Render()

	for _, tv := range rep.Tables {
		for _, d := range tv.StructureDiscrepancies {
			if _, err := fmt.Fprintf(w, "%s %s.%s: %s\n", r.fail("-"), tv.Table, d.ColumnName, discrepancyText(d)); err != nil {
				return err
			}
		}
		for _, issue := range tv.IntegrityIssues {
			if _, err := fmt.Fprintf(w, "%s %s: %s (%d rows)\n", r.fail("-"), tv.Table, issue.Description, issue.AffectedRows); err != nil {
				return err
			}
		}
	}
	for _, issue := range rep.SnapshotIssues {
		line := fmt.Sprintf("%s %s: %s", r.fail("-"), issue.IssueType, issue.Description)
		if issue.AffectedRows > 0 {
			line += fmt.Sprintf(" (%d rows)", issue.AffectedRows)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(w, "\nSnapshot %s: %s\n", valueOr(rep.Generation, "-"), r.status(rep.Passed()))
	return err
}

func (r *Renderer) status(ok bool) string {
	if !ok {
		return r.fail("FAILED")
	}
	if r.useColor {
		return color.GreenString("ok")
	}
	return "ok"
}

func (r *Renderer) fail(msg string) string {
	if r.useColor {
		return color.RedString(msg)
	}
	return msg
}

func discrepancyText(d store.StructureDiscrepancy) string {
	switch {
	case d.IsMissing:
		return "missing"
	case d.IsExtra:
		return "unexpected column"
	case d.ExpectedType != d.ActualType:
		return fmt.Sprintf("type %s, expected %s", d.ActualType, d.ExpectedType)
	default:
		return fmt.Sprintf("nullable %t, expected %t", d.ActualNullable, d.ExpectedNullable)
	}
}
