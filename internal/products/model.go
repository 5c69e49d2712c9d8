package products

import (
	"time"

	"github.com/odyssey-erp/odyssey-billing/internal/billing/calc"
)

// Product is a catalogue entry lines can reference for price and VAT.
type Product struct {
	ID                    int64        `json:"id"`
	CompanyID             int64        `json:"company_id"`
	SKU                   string       `json:"sku"`
	Name                  string       `json:"name"`
	Description           *string      `json:"description,omitempty"`
	Unit                  string       `json:"unit"`
	UnitPriceExcludingTax float64      `json:"unit_price_excluding_tax"`
	VATRate               calc.VATRate `json:"vat_rate"`
	StockQuantity         *float64     `json:"stock_quantity,omitempty"`
	IsActive              bool         `json:"is_active"`
	CreatedAt             time.Time    `json:"created_at"`
	UpdatedAt             time.Time    `json:"updated_at"`
}

type CreateProductRequest struct {
	SKU                   string       `json:"sku" validate:"required,max=64"`
	Name                  string       `json:"name" validate:"required,max=200"`
	Description           *string      `json:"description,omitempty"`
	Unit                  string       `json:"unit,omitempty" validate:"max=20"`
	UnitPriceExcludingTax float64      `json:"unit_price_excluding_tax" validate:"gte=0"`
	VATRate               calc.VATRate `json:"vat_rate,omitempty" validate:"omitempty,oneof=ZERO REDUCED_1 REDUCED_2 REDUCED_3 STANDARD EXPORT"`
	StockQuantity         *float64     `json:"stock_quantity,omitempty" validate:"omitempty,gte=0"`
}

type UpdateProductRequest struct {
	SKU                   *string       `json:"sku,omitempty" validate:"omitempty,min=1,max=64"`
	Name                  *string       `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description           *string       `json:"description,omitempty"`
	Unit                  *string       `json:"unit,omitempty" validate:"omitempty,max=20"`
	UnitPriceExcludingTax *float64      `json:"unit_price_excluding_tax,omitempty" validate:"omitempty,gte=0"`
	VATRate               *calc.VATRate `json:"vat_rate,omitempty" validate:"omitempty,oneof=ZERO REDUCED_1 REDUCED_2 REDUCED_3 STANDARD EXPORT"`
	IsActive              *bool         `json:"is_active,omitempty"`
}

// StockAdjustment moves the tracked stock by Delta.
type StockAdjustment struct {
	Delta float64 `json:"delta" validate:"required"`
}

type ListProductsRequest struct {
	Page       int
	Limit      int
	Search     string
	ActiveOnly bool
}
