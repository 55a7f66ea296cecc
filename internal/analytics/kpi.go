package analytics

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Unit describes how a KPI value is displayed.
type Unit string

const (
	UnitPercent  Unit = "percent"
	UnitCurrency Unit = "currency"
	UnitCount    Unit = "count"
)

// KPI names exposed to the dashboard and the target store.
const (
	KPIROI             = "roi"
	KPIProfitMargin    = "profit_margin"
	KPIConversionRate  = "conversion_rate"
	KPIAverageSale     = "average_sale_value"
	KPIAveragePurchase = "average_purchase_value"
	KPIProfitPerClient = "profit_per_client"
	KPISalesPerProduct = "sales_per_product"
	KPIExpenseRatio    = "expense_ratio"
	KPIPendingOrders   = "pending_orders"
)

// ErrUnknownKPI is returned when a target references a KPI outside the catalog.
var ErrUnknownKPI = errors.New("analytics: unknown kpi")

// KPIMetric is one derived indicator with its target comparison.
type KPIMetric struct {
	Name          string   `json:"name"`
	Label         string   `json:"label"`
	Value         float64  `json:"value"`
	Raw           float64  `json:"raw"`
	Unit          Unit     `json:"unit"`
	Target        float64  `json:"target"`
	PreviousValue *float64 `json:"previousValue,omitempty"`
	IsInverse     bool     `json:"isInverse"`
	BelowTarget   bool     `json:"belowTarget"`
}

// KPIInput carries the totals and counts the catalog derives from.
type KPIInput struct {
	Totals       Totals
	ClientCount  int64
	ProductCount int64
}

// KPIDefinition is a catalog entry.
type KPIDefinition struct {
	Name          string
	Label         string
	Unit          Unit
	DefaultTarget float64
	Inverse       bool
	compute       func(KPIInput) decimal.Decimal
}

var catalog = []KPIDefinition{
	{
		Name: KPIROI, Label: "ROI", Unit: UnitPercent, DefaultTarget: 20,
		compute: func(in KPIInput) decimal.Decimal {
			return SafePercent(in.Totals.Profit, in.Totals.Spent)
		},
	},
	{
		Name: KPIProfitMargin, Label: "Margem de Lucro", Unit: UnitPercent, DefaultTarget: 25,
		compute: func(in KPIInput) decimal.Decimal {
			return SafePercent(in.Totals.Profit, in.Totals.Sales)
		},
	},
	{
		Name: KPIConversionRate, Label: "Taxa de Conversão", Unit: UnitPercent, DefaultTarget: 50,
		compute: func(in KPIInput) decimal.Decimal {
			return SafePercent(decimal.NewFromInt(int64(in.Totals.SalesCount)), decimal.NewFromInt(in.ClientCount))
		},
	},
	{
		Name: KPIAverageSale, Label: "Valor Médio de Venda", Unit: UnitCurrency, DefaultTarget: 100,
		compute: func(in KPIInput) decimal.Decimal {
			return SafeDivide(in.Totals.Sales, decimal.NewFromInt(int64(in.Totals.SalesCount)))
		},
	},
	{
		Name: KPIAveragePurchase, Label: "Valor Médio de Compra", Unit: UnitCurrency, DefaultTarget: 500, Inverse: true,
		compute: func(in KPIInput) decimal.Decimal {
			return SafeDivide(in.Totals.Purchases, decimal.NewFromInt(int64(in.Totals.PurchaseCount)))
		},
	},
	{
		Name: KPIProfitPerClient, Label: "Lucro por Cliente", Unit: UnitCurrency, DefaultTarget: 100,
		compute: func(in KPIInput) decimal.Decimal {
			return SafeDivide(in.Totals.Profit, decimal.NewFromInt(in.ClientCount))
		},
	},
	{
		Name: KPISalesPerProduct, Label: "Vendas por Produto", Unit: UnitCurrency, DefaultTarget: 250,
		compute: func(in KPIInput) decimal.Decimal {
			return SafeDivide(in.Totals.Sales, decimal.NewFromInt(in.ProductCount))
		},
	},
	{
		Name: KPIExpenseRatio, Label: "Rácio de Despesas", Unit: UnitPercent, DefaultTarget: 15, Inverse: true,
		compute: func(in KPIInput) decimal.Decimal {
			return SafePercent(in.Totals.Expenses, in.Totals.Sales)
		},
	},
	{
		Name: KPIPendingOrders, Label: "Encomendas Pendentes", Unit: UnitCount, DefaultTarget: 5, Inverse: true,
		compute: func(in KPIInput) decimal.Decimal {
			return decimal.NewFromInt(int64(in.Totals.OrderCount))
		},
	},
}

// Catalog returns the KPI definitions in display order.
func Catalog() []KPIDefinition {
	out := make([]KPIDefinition, len(catalog))
	copy(out, catalog)
	return out
}

// LookupKPI finds a catalog entry by name.
func LookupKPI(name string) (KPIDefinition, bool) {
	for _, def := range catalog {
		if def.Name == name {
			return def, true
		}
	}
	return KPIDefinition{}, false
}

// ComputeKPIs evaluates the whole catalog against in using default targets.
func ComputeKPIs(in KPIInput) []KPIMetric {
	metrics := make([]KPIMetric, 0, len(catalog))
	for _, def := range catalog {
		value := def.compute(in)
		metrics = append(metrics, KPIMetric{
			Name:        def.Name,
			Label:       def.Label,
			Value:       display(value),
			Raw:         raw(value),
			Unit:        def.Unit,
			Target:      def.DefaultTarget,
			IsInverse:   def.Inverse,
			BelowTarget: belowTarget(display(value), def.DefaultTarget, def.Inverse),
		})
	}
	return metrics
}

// WithPrevious attaches the value of the same KPI from previous, matched by name.
func WithPrevious(current, previous []KPIMetric) []KPIMetric {
	byName := make(map[string]float64, len(previous))
	for _, m := range previous {
		byName[m.Name] = m.Value
	}
	out := make([]KPIMetric, len(current))
	for i, m := range current {
		if v, ok := byName[m.Name]; ok {
			prev := v
			m.PreviousValue = &prev
		}
		out[i] = m
	}
	return out
}
