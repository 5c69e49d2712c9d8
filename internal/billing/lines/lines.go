// Package lines resolves raw line-item requests into priced lines shared by
// invoices and quotes.
package lines

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-billing/internal/billing/calc"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

// DefaultUnit applies when neither the request nor the product names one.
const DefaultUnit = "unit"

// Request is one line item as supplied by a caller.
type Request struct {
	ProductID             *int64       `json:"product_id,omitempty" validate:"omitempty,gt=0"`
	Name                  string       `json:"name" validate:"max=255"`
	Description           *string      `json:"description,omitempty"`
	Quantity              float64      `json:"quantity" validate:"gt=0"`
	Unit                  string       `json:"unit" validate:"max=20"`
	UnitPriceExcludingTax *float64     `json:"unit_price_excluding_tax,omitempty" validate:"omitempty,gte=0"`
	DiscountPercentage    *float64     `json:"discount_percentage,omitempty" validate:"omitempty,gte=0,lte=100"`
	DiscountAmount        *float64     `json:"discount_amount,omitempty" validate:"omitempty,gte=0"`
	VATRate               calc.VATRate `json:"vat_rate,omitempty"`
	SortOrder             *int         `json:"sort_order,omitempty" validate:"omitempty,gte=0"`
}

// Line is a priced line item as persisted on an invoice or quote.
type Line struct {
	ProductID             *int64       `json:"product_id,omitempty"`
	Name                  string       `json:"name"`
	Description           *string      `json:"description,omitempty"`
	Quantity              float64      `json:"quantity"`
	Unit                  string       `json:"unit"`
	UnitPriceExcludingTax float64      `json:"unit_price_excluding_tax"`
	DiscountPercentage    *float64     `json:"discount_percentage,omitempty"`
	DiscountAmount        *float64     `json:"discount_amount,omitempty"`
	VATRate               calc.VATRate `json:"vat_rate"`
	TotalExcludingTax     float64      `json:"total_excluding_tax"`
	TotalIncludingTax     float64      `json:"total_including_tax"`
	SortOrder             int          `json:"sort_order"`
}

// Request converts a stored line back into a request that reprices identically.
func (l Line) Request() Request {
	price := l.UnitPriceExcludingTax
	order := l.SortOrder
	return Request{
		ProductID:             l.ProductID,
		Name:                  l.Name,
		Description:           l.Description,
		Quantity:              l.Quantity,
		Unit:                  l.Unit,
		UnitPriceExcludingTax: &price,
		DiscountPercentage:    l.DiscountPercentage,
		DiscountAmount:        l.DiscountAmount,
		VATRate:               l.VATRate,
		SortOrder:             &order,
	}
}

// Product is the catalogue data a line can inherit.
type Product struct {
	ID                    int64        `json:"id"`
	Name                  string       `json:"name"`
	Description           *string      `json:"description,omitempty"`
	Unit                  string       `json:"unit"`
	UnitPriceExcludingTax float64      `json:"unit_price_excluding_tax"`
	VATRate               calc.VATRate `json:"vat_rate"`
}

// Customer is the summary embedded in invoices and quotes.
type Customer struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	Email *string `json:"email,omitempty"`
}

// ProductLookup resolves a product within a company.
type ProductLookup interface {
	LookupProduct(ctx context.Context, companyID, productID int64) (*Product, error)
}

// CustomerLookup resolves a customer within a company.
type CustomerLookup interface {
	LookupCustomer(ctx context.Context, companyID, customerID int64) (*Customer, error)
}

// Resolve prices every request. A line takes its price from
// unit_price_excluding_tax, falling back to the referenced product; a line
// with neither fails validation. Sort order defaults to the line's index.
func Resolve(ctx context.Context, products ProductLookup, companyID int64, reqs []Request) ([]Line, calc.Totals, error) {
	if len(reqs) == 0 {
		return nil, calc.Totals{}, shared.FieldError("items", "must contain at least 1 entries")
	}

	fields := map[string]string{}
	out := make([]Line, len(reqs))
	inputs := make([]calc.LineInput, len(reqs))
	for i, req := range reqs {
		prefix := fmt.Sprintf("items[%d]", i)
		line := Line{
			ProductID:          req.ProductID,
			Name:               strings.TrimSpace(req.Name),
			Description:        req.Description,
			Quantity:           req.Quantity,
			Unit:               strings.TrimSpace(req.Unit),
			DiscountPercentage: req.DiscountPercentage,
			DiscountAmount:     req.DiscountAmount,
			VATRate:            req.VATRate,
			SortOrder:          i,
		}
		if req.SortOrder != nil {
			line.SortOrder = *req.SortOrder
		}

		var product *Product
		if req.ProductID != nil && products != nil {
			p, err := products.LookupProduct(ctx, companyID, *req.ProductID)
			switch {
			case errors.Is(err, shared.ErrNotFound):
				fields[prefix+".product_id"] = "product not found"
			case err != nil:
				return nil, calc.Totals{}, fmt.Errorf("lookup product %d: %w", *req.ProductID, err)
			default:
				product = p
			}
		}

		switch {
		case req.UnitPriceExcludingTax != nil:
			line.UnitPriceExcludingTax = *req.UnitPriceExcludingTax
		case product != nil:
			line.UnitPriceExcludingTax = product.UnitPriceExcludingTax
		default:
			if _, bad := fields[prefix+".product_id"]; !bad {
				fields[prefix+".unit_price_excluding_tax"] = "price required when no product is referenced"
			}
		}
		if product != nil {
			if line.Name == "" {
				line.Name = product.Name
			}
			if line.Description == nil {
				line.Description = product.Description
			}
			if line.Unit == "" {
				line.Unit = product.Unit
			}
			if line.VATRate == "" {
				line.VATRate = product.VATRate
			}
		}
		if line.Name == "" {
			fields[prefix+".name"] = "is required"
		}
		if line.Unit == "" {
			line.Unit = DefaultUnit
		}
		if line.VATRate == "" {
			line.VATRate = calc.VATStandard
		}
		if req.Quantity <= 0 {
			fields[prefix+".quantity"] = "must be greater than 0"
		}

		out[i] = line
		inputs[i] = calc.LineInput{
			Quantity:              line.Quantity,
			UnitPriceExcludingTax: line.UnitPriceExcludingTax,
			DiscountPercentage:    line.DiscountPercentage,
			DiscountAmount:        line.DiscountAmount,
			VATRate:               line.VATRate,
		}
	}
	if len(fields) > 0 {
		return nil, calc.Totals{}, shared.NewValidationError("line items could not be priced", fields)
	}

	totals, results := calc.Calculate(inputs)
	for i := range out {
		out[i].TotalExcludingTax = results[i].TotalExcludingTax
		out[i].TotalIncludingTax = results[i].TotalIncludingTax
	}
	return out, totals, nil
}
