package quotes

import (
	"time"

	"github.com/odyssey-erp/odyssey-billing/internal/billing/lines"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

type CreateQuoteRequest struct {
	CustomerID         int64           `json:"customer_id" validate:"required,gt=0"`
	Status             Status          `json:"status,omitempty" validate:"omitempty,oneof=draft pending"`
	IssueDate          *shared.Date    `json:"issue_date,omitempty"`
	ValidityDate       *shared.Date    `json:"validity_date,omitempty"`
	Currency           string          `json:"currency,omitempty" validate:"omitempty,iso4217"`
	DiscountPercentage *float64        `json:"discount_percentage,omitempty" validate:"omitempty,gte=0,lte=100"`
	DiscountAmount     *float64        `json:"discount_amount,omitempty" validate:"omitempty,gte=0"`
	ShippingAmount     float64         `json:"shipping_amount" validate:"gte=0"`
	PaymentTermsDays   *int            `json:"payment_terms_days,omitempty" validate:"omitempty,gte=0,lte=365"`
	Notes              *string         `json:"notes,omitempty"`
	Conditions         *string         `json:"conditions,omitempty"`
	Items              []lines.Request `json:"items" validate:"required,min=1,dive"`
}

type UpdateQuoteRequest struct {
	CustomerID         *int64           `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	Status             *Status          `json:"status,omitempty" validate:"omitempty,oneof=draft pending sent viewed accepted rejected expired cancelled converted"`
	IssueDate          *shared.Date     `json:"issue_date,omitempty"`
	ValidityDate       *shared.Date     `json:"validity_date,omitempty"`
	Currency           *string          `json:"currency,omitempty" validate:"omitempty,iso4217"`
	DiscountPercentage *float64         `json:"discount_percentage,omitempty" validate:"omitempty,gte=0,lte=100"`
	DiscountAmount     *float64         `json:"discount_amount,omitempty" validate:"omitempty,gte=0"`
	ShippingAmount     *float64         `json:"shipping_amount,omitempty" validate:"omitempty,gte=0"`
	PaymentTermsDays   *int             `json:"payment_terms_days,omitempty" validate:"omitempty,gte=0,lte=365"`
	Notes              *string          `json:"notes,omitempty"`
	Conditions         *string          `json:"conditions,omitempty"`
	Items              *[]lines.Request `json:"items,omitempty" validate:"omitempty,min=1,dive"`
}

// ConversionData overrides the dates of the invoice produced by a conversion.
type ConversionData struct {
	IssueDate        *shared.Date `json:"issue_date,omitempty"`
	DueDate          *shared.Date `json:"due_date,omitempty"`
	PaymentTermsDays *int         `json:"payment_terms_days,omitempty" validate:"omitempty,gte=0,lte=365"`
}

type ListQuotesRequest struct {
	Page       int
	Limit      int
	Search     string
	Status     *Status
	CustomerID *int64
	DateFrom   *time.Time
	DateTo     *time.Time
}

// DeleteResult confirms a removed quote.
type DeleteResult struct {
	ID int64 `json:"id"`
}
