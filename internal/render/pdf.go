package render

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/go-pdf/fpdf"
)

// Column x positions in points, matching the legacy invoice layout.
const (
	colDescription = 50.0
	colQuantity    = 250.0
	colPrice       = 350.0
	colTotal       = 450.0

	rowHeight     = 18.0
	pageBottom    = 740.0
	maxDescLength = 34
)

// PDF lays out invoices with fpdf. Creation dates are pinned to the invoice
// date and catalog sorting is on, so identical documents yield identical bytes.
type PDF struct{}

func NewPDF() *PDF {
	return &PDF{}
}

func (p *PDF) Render(ctx context.Context, doc Document) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(doc.IssuedAt)
	pdf.SetModificationDate(doc.IssuedAt)
	pdf.SetTitle("Invoice "+doc.InvoiceID, false)
	pdf.SetAuthor(doc.TenantName, false)
	pdf.SetAutoPageBreak(false, 0)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 24)
	pdf.Text(colDescription, 70, "INVOICE")

	pdf.SetFont("Helvetica", "", 10)
	y := 100.0
	for _, line := range []string{
		"Invoice: " + doc.InvoiceID,
		"Date: " + doc.IssuedAt.UTC().Format("2006-01-02"),
		"From: " + doc.TenantName,
		"Bill to: " + customerLabel(doc),
	} {
		pdf.Text(colDescription, y, tr(line))
		y += 14
	}

	y += 20
	header := func() {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.Text(colDescription, y, "Description")
		pdf.Text(colQuantity, y, "Qty")
		pdf.Text(colPrice, y, "Price")
		pdf.Text(colTotal, y, "Total")
		pdf.Line(colDescription, y+5, 560, y+5)
		pdf.SetFont("Helvetica", "", 10)
		y += rowHeight + 4
	}
	header()

	for _, l := range doc.Lines {
		if y > pageBottom {
			pdf.AddPage()
			y = 60
			header()
		}
		pdf.Text(colDescription, y, tr(truncate(l.Description, maxDescLength)))
		pdf.Text(colQuantity, y, strconv.FormatInt(l.Quantity, 10))
		pdf.Text(colPrice, y, FormatCents(l.UnitAmountCents, doc.Currency))
		pdf.Text(colTotal, y, FormatCents(l.LineTotalCents, doc.Currency))
		y += rowHeight
	}

	if y > pageBottom {
		pdf.AddPage()
		y = 60
	}
	pdf.Line(colDescription, y, 560, y)
	pdf.SetFont("Helvetica", "B", 14)
	pdf.Text(colDescription, y+24, "TOTAL DUE: "+FormatCents(doc.TotalCents, doc.Currency))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render invoice pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func customerLabel(doc Document) string {
	if doc.CustomerName == "" || doc.CustomerName == doc.CustomerID {
		return doc.CustomerID
	}
	return doc.CustomerName + " (" + doc.CustomerID + ")"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
