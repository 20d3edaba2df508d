package render

import (
	"bytes"
	"fmt"
	"html/template"
)

var invoiceTemplate = template.Must(template.New("invoice").Funcs(template.FuncMap{
	"money": FormatCents,
	"date":  func(d Document) string { return d.IssuedAt.UTC().Format("2006-01-02") },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Invoice {{.InvoiceID}}</title>
<style>
  body { font-family: Helvetica, Arial, sans-serif; font-size: 10pt; margin: 40px; }
  h1 { font-size: 24pt; margin-bottom: 16px; }
  table { width: 100%; border-collapse: collapse; margin-top: 24px; }
  th { text-align: left; border-bottom: 1px solid #000; padding: 4px 0; }
  td { padding: 4px 0; }
  td.num, th.num { text-align: right; }
  .total { margin-top: 24px; font-size: 14pt; font-weight: bold; }
</style>
</head>
<body>
<h1>INVOICE</h1>
<div>Invoice: {{.InvoiceID}}</div>
<div>Date: {{date .}}</div>
<div>From: {{.TenantName}}</div>
<div>Bill to: {{if and .CustomerName (ne .CustomerName .CustomerID)}}{{.CustomerName}} ({{.CustomerID}}){{else}}{{.CustomerID}}{{end}}</div>
<table>
<thead><tr><th>Description</th><th class="num">Qty</th><th class="num">Price</th><th class="num">Total</th></tr></thead>
<tbody>
{{- range .Lines}}
<tr><td>{{.Description}}</td><td class="num">{{.Quantity}}</td><td class="num">{{money .UnitAmountCents $.Currency}}</td><td class="num">{{money .LineTotalCents $.Currency}}</td></tr>
{{- end}}
</tbody>
</table>
<div class="total">TOTAL DUE: {{money .TotalCents .Currency}}</div>
</body>
</html>
`))

// RenderHTML produces the HTML page printed by the Chrome renderer.
func RenderHTML(doc Document) (string, error) {
	var buf bytes.Buffer
	if err := invoiceTemplate.Execute(&buf, doc); err != nil {
		return "", fmt.Errorf("render invoice html: %w", err)
	}
	return buf.String(), nil
}
