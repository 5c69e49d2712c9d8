// Package calc computes line and document totals for invoices and quotes.
package calc

import "github.com/shopspring/decimal"

// VATRate is an enumerated tax category, not a raw percentage.
type VATRate string

const (
	VATZero     VATRate = "ZERO"
	VATReduced1 VATRate = "REDUCED_1"
	VATReduced2 VATRate = "REDUCED_2"
	VATReduced3 VATRate = "REDUCED_3"
	VATStandard VATRate = "STANDARD"
	VATExport   VATRate = "EXPORT"
)

var vatTable = map[VATRate]float64{
	VATZero:     0,
	VATReduced1: 2.1,
	VATReduced2: 5.5,
	VATReduced3: 10.0,
	VATStandard: 20.0,
	VATExport:   0,
}

// VATRateValue returns the percentage for code. Unknown codes resolve to the
// standard rate.
func VATRateValue(code VATRate) float64 {
	if v, ok := vatTable[code]; ok {
		return v
	}
	return vatTable[VATStandard]
}

// Valid reports whether code is one of the enumerated categories.
func (code VATRate) Valid() bool {
	_, ok := vatTable[code]
	return ok
}

// LineInput is the raw pricing data of one line item.
type LineInput struct {
	Quantity              float64
	UnitPriceExcludingTax float64
	DiscountPercentage    *float64
	DiscountAmount        *float64
	VATRate               VATRate
}

// LineResult holds the derived amounts of one line item.
type LineResult struct {
	LineTotal         float64
	DiscountApplied   float64
	TotalExcludingTax float64
	VATPercent        float64
	VATAmount         float64
	TotalIncludingTax float64
}

// Totals are the document-level sums.
type Totals struct {
	AmountExcludingTax float64 `json:"amount_excluding_tax"`
	Tax                float64 `json:"tax"`
	AmountIncludingTax float64 `json:"amount_including_tax"`
}

var hundred = decimal.NewFromInt(100)

type lineAmounts struct {
	lineTotal, discount, excl, vat, incl decimal.Decimal
	vatPercent                           float64
}

func computeLine(in LineInput) lineAmounts {
	lineTotal := decimal.NewFromFloat(in.Quantity).Mul(decimal.NewFromFloat(in.UnitPriceExcludingTax))

	discount := decimal.Zero
	switch {
	case in.DiscountPercentage != nil:
		discount = lineTotal.Mul(decimal.NewFromFloat(*in.DiscountPercentage)).Div(hundred)
	case in.DiscountAmount != nil:
		discount = decimal.NewFromFloat(*in.DiscountAmount)
	}

	excl := lineTotal.Sub(discount)
	vatPercent := VATRateValue(in.VATRate)
	vat := excl.Mul(decimal.NewFromFloat(vatPercent)).Div(hundred)

	return lineAmounts{
		lineTotal:  lineTotal,
		discount:   discount,
		excl:       excl,
		vat:        vat,
		incl:       excl.Add(vat),
		vatPercent: vatPercent,
	}
}

// CalculateLine prices a single line item. A discount percentage takes
// precedence over a discount amount; the two are never summed.
func CalculateLine(in LineInput) LineResult {
	a := computeLine(in)
	return LineResult{
		LineTotal:         a.lineTotal.InexactFloat64(),
		DiscountApplied:   a.discount.InexactFloat64(),
		TotalExcludingTax: a.excl.InexactFloat64(),
		VATPercent:        a.vatPercent,
		VATAmount:         a.vat.InexactFloat64(),
		TotalIncludingTax: a.incl.InexactFloat64(),
	}
}

// Calculate prices every line and sums them. No rounding is applied.
func Calculate(items []LineInput) (Totals, []LineResult) {
	results := make([]LineResult, len(items))
	excl, tax, incl := decimal.Zero, decimal.Zero, decimal.Zero
	for i, item := range items {
		a := computeLine(item)
		excl = excl.Add(a.excl)
		tax = tax.Add(a.incl.Sub(a.excl))
		incl = incl.Add(a.incl)
		results[i] = LineResult{
			LineTotal:         a.lineTotal.InexactFloat64(),
			DiscountApplied:   a.discount.InexactFloat64(),
			TotalExcludingTax: a.excl.InexactFloat64(),
			VATPercent:        a.vatPercent,
			VATAmount:         a.vat.InexactFloat64(),
			TotalIncludingTax: a.incl.InexactFloat64(),
		}
	}
	return Totals{
		AmountExcludingTax: excl.InexactFloat64(),
		Tax:                tax.InexactFloat64(),
		AmountIncludingTax: incl.InexactFloat64(),
	}, results
}

// Round2 rounds half away from zero to two decimals, for display only.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
