package export

import (
	"encoding/csv"
	"io"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/loja-gestor/loja-gestor/internal/analytics"
)

// DefaultLocale formats numbers the way the dashboard shows them.
var DefaultLocale = language.MustParse("pt-PT")

var deltaOrder = []string{analytics.DeltaSales, analytics.DeltaSpent, analytics.DeltaProfit, analytics.DeltaMargin}

// Formatter writes analytics results as CSV with locale-aware numbers.
type Formatter struct {
	printer *message.Printer
}

// NewFormatter builds a Formatter for tag; the zero tag uses DefaultLocale.
func NewFormatter(tag language.Tag) *Formatter {
	if tag == language.Und {
		tag = DefaultLocale
	}
	return &Formatter{printer: message.NewPrinter(tag)}
}

// WriteResult emits buckets, KPIs and deltas as three CSV blocks separated
// by an empty line.
func (f *Formatter) WriteResult(w io.Writer, result analytics.Result) error {
	if err := f.WriteBucketsCSV(w, result.Buckets); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return err
	}
	if err := f.WriteKPICSV(w, result.KPIs); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return err
	}
	return f.WriteDeltaCSV(w, result.Deltas)
}

// WriteBucketsCSV serialises the monthly series.
func (f *Formatter) WriteBucketsCSV(w io.Writer, buckets []analytics.MonthlyBucket) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Mês", "Vendas", "Compras", "Despesas", "Lucro", "Encomendas Pendentes", "Nº Encomendas"}); err != nil {
		return err
	}
	for _, b := range buckets {
		if err := writer.Write([]string{
			b.Month,
			f.money(b.SalesValue),
			f.money(b.PurchaseValue),
			f.money(b.ExpenseValue),
			f.money(b.Profit),
			f.money(b.PendingOrderValue),
			f.printer.Sprintf("%d", b.OrderCount),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteKPICSV serialises the KPI catalog.
func (f *Formatter) WriteKPICSV(w io.Writer, metrics []analytics.KPIMetric) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"KPI", "Valor", "Unidade", "Meta", "Abaixo da Meta"}); err != nil {
		return err
	}
	for _, m := range metrics {
		below := "não"
		if m.BelowTarget {
			below = "sim"
		}
		if err := writer.Write([]string{
			m.Label,
			f.number(m.Value),
			string(m.Unit),
			f.number(m.Target),
			below,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteDeltaCSV serialises the headline deltas in a stable order.
func (f *Formatter) WriteDeltaCSV(w io.Writer, deltas map[string]analytics.KpiDelta) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Indicador", "Últimos 30 dias", "Variação 30d %", "Mês Atual", "Variação Mensal %"}); err != nil {
		return err
	}
	for _, name := range deltaOrder {
		d, ok := deltas[name]
		if !ok {
			continue
		}
		if err := writer.Write([]string{
			name,
			f.number(d.Value30d),
			f.number(d.Pct30d),
			f.number(d.ValueMoM),
			f.number(d.PctMoM),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func (f *Formatter) money(d decimal.Decimal) string {
	return f.number(d.Round(analytics.DisplayPrecision).InexactFloat64())
}

func (f *Formatter) number(v float64) string {
	return f.printer.Sprintf("%.2f", v)
}
