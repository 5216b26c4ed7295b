package stockreport

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/steelworks-erp/steelworks/web"
)

const statementSheet = "Stock Statement"

// PDFRenderer converts HTML into a PDF document.
type PDFRenderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

var statementHeadings = []string{
	"Category", "Item", "UOM",
	"Opening Qty", "Opening Rate", "Opening Amount",
	"Receipt Qty", "Receipt Rate", "Receipt Amount",
	"Issue Qty", "Issue Rate", "Issue Amount",
	"Closing Qty", "Closing Rate", "Closing Amount",
}

// WriteXLSX writes the statement as a workbook: one header row, one row per
// item and a totals row.
func WriteXLSX(w io.Writer, st Statement) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", statementSheet); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(statementSheet, "A1", &statementHeadings); err != nil {
		return err
	}
	row := 2
	for _, l := range st.Lines {
		values := append([]any{l.Category, l.ItemName, l.UOM}, figureCells(l.Opening(), l.Receipt(), l.Issue(), l.Closing())...)
		if err := setRow(f, row, values); err != nil {
			return err
		}
		row++
	}
	t := st.Totals
	values := append([]any{"Total", "", ""}, figureCells(t.Opening(), t.Receipt(), t.Issue(), t.Closing())...)
	if err := setRow(f, row, values); err != nil {
		return err
	}
	headerEnd, err := excelize.CoordinatesToCellName(len(statementHeadings), 1)
	if err != nil {
		return err
	}
	totalEnd, err := excelize.CoordinatesToCellName(len(statementHeadings), row)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(statementSheet, "A1", headerEnd, bold); err != nil {
		return err
	}
	if err := f.SetCellStyle(statementSheet, fmt.Sprintf("A%d", row), totalEnd, bold); err != nil {
		return err
	}
	return f.Write(w)
}

func setRow(f *excelize.File, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(statementSheet, cell, &values)
}

func figureCells(figs ...Figure) []any {
	out := make([]any, 0, len(figs)*3)
	for _, fig := range figs {
		out = append(out, fig.Qty.InexactFloat64(), fig.Rate.InexactFloat64(), fig.Amount.InexactFloat64())
	}
	return out
}

var statementTemplate = template.Must(template.New("stock_statement.html").Funcs(template.FuncMap{
	"date": func(t time.Time) string { return t.Format(time.DateOnly) },
}).ParseFS(web.Templates, "templates/reports/stock_statement.html"))

type categoryGroup struct {
	Category string
	Lines    []Line
}

type statementView struct {
	Start       time.Time
	End         time.Time
	GeneratedAt string
	Groups      []categoryGroup
	Totals      Balances
}

// RenderHTML renders the printable statement, grouped by category.
func RenderHTML(st Statement, now time.Time) (string, error) {
	view := statementView{Start: st.Start, End: st.End, GeneratedAt: now.Format(time.RFC1123), Totals: st.Totals}
	for _, l := range st.Lines {
		if n := len(view.Groups); n == 0 || view.Groups[n-1].Category != l.Category {
			view.Groups = append(view.Groups, categoryGroup{Category: l.Category})
		}
		g := &view.Groups[len(view.Groups)-1]
		g.Lines = append(g.Lines, l)
	}
	var buf bytes.Buffer
	if err := statementTemplate.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderPDF renders the statement through renderer.
func RenderPDF(ctx context.Context, renderer PDFRenderer, st Statement, now time.Time) ([]byte, error) {
	html, err := RenderHTML(st, now)
	if err != nil {
		return nil, fmt.Errorf("stockreport: render html: %w", err)
	}
	pdf, err := renderer.RenderHTML(ctx, html)
	if err != nil {
		return nil, fmt.Errorf("stockreport: render pdf: %w", err)
	}
	return pdf, nil
}
