// Package render turns computed invoices into documents. The computed line
// items and total are authoritative; renderers only lay them out.
package render

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edvin/metering/internal/config"
)

// ContentTypePDF is the media type every renderer produces.
const ContentTypePDF = "application/pdf"

type Line struct {
	Description     string
	Quantity        int64
	UnitAmountCents int64
	LineTotalCents  int64
	PeriodStart     time.Time
	PeriodEnd       time.Time
}

type Document struct {
	InvoiceID    string
	IssuedAt     time.Time
	TenantName   string
	CustomerID   string
	CustomerName string
	Currency     string
	Lines        []Line
	TotalCents   int64
}

// Renderer produces a PDF for a document. Output must depend only on doc.
type Renderer interface {
	Render(ctx context.Context, doc Document) ([]byte, error)
}

// New returns the renderer selected by INVOICE_RENDERER.
func New(cfg *config.Config) (Renderer, error) {
	switch cfg.InvoiceRenderer {
	case "chromedp":
		return NewChrome(ChromeOptions{RemoteURL: cfg.ChromeURL}), nil
	case "fpdf", "":
		return NewPDF(), nil
	default:
		return nil, fmt.Errorf("unknown invoice renderer %q", cfg.InvoiceRenderer)
	}
}

var currencySymbols = map[string]string{
	"USD": "$",
	"ZAR": "R",
	"GBP": "GBP ",
	"EUR": "EUR ",
}

// FormatCents renders an amount in minor units, e.g. 1505 USD as "$15.05".
// Unknown currencies are prefixed with their ISO code.
func FormatCents(cents int64, currency string) string {
	amount := decimal.New(cents, -2).StringFixed(2)
	symbol, ok := currencySymbols[currency]
	if !ok {
		symbol = currency + " "
	}
	if cents < 0 {
		return "-" + symbol + amount[1:]
	}
	return symbol + amount
}
