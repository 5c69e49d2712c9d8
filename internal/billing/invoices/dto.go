package invoices

import (
	"time"

	"github.com/odyssey-erp/odyssey-billing/internal/billing/lines"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

type CreateInvoiceRequest struct {
	CustomerID         int64           `json:"customer_id" validate:"required,gt=0"`
	QuoteID            *int64          `json:"quote_id,omitempty" validate:"omitempty,gt=0"`
	Status             Status          `json:"status,omitempty" validate:"omitempty,oneof=draft pending"`
	IssueDate          *shared.Date    `json:"issue_date,omitempty"`
	DueDate            *shared.Date    `json:"due_date,omitempty"`
	Currency           string          `json:"currency,omitempty" validate:"omitempty,iso4217"`
	DiscountPercentage *float64        `json:"discount_percentage,omitempty" validate:"omitempty,gte=0,lte=100"`
	DiscountAmount     *float64        `json:"discount_amount,omitempty" validate:"omitempty,gte=0"`
	ShippingAmount     float64         `json:"shipping_amount" validate:"gte=0"`
	Notes              *string         `json:"notes,omitempty"`
	Conditions         *string         `json:"conditions,omitempty"`
	Items              []lines.Request `json:"items" validate:"required,min=1,dive"`
}

type UpdateInvoiceRequest struct {
	CustomerID         *int64           `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	Status             *Status          `json:"status,omitempty" validate:"omitempty,oneof=draft pending sent paid partially_paid overdue cancelled refunded"`
	IssueDate          *shared.Date     `json:"issue_date,omitempty"`
	DueDate            *shared.Date     `json:"due_date,omitempty"`
	Currency           *string          `json:"currency,omitempty" validate:"omitempty,iso4217"`
	DiscountPercentage *float64         `json:"discount_percentage,omitempty" validate:"omitempty,gte=0,lte=100"`
	DiscountAmount     *float64         `json:"discount_amount,omitempty" validate:"omitempty,gte=0"`
	ShippingAmount     *float64         `json:"shipping_amount,omitempty" validate:"omitempty,gte=0"`
	Notes              *string          `json:"notes,omitempty"`
	Conditions         *string          `json:"conditions,omitempty"`
	Items              *[]lines.Request `json:"items,omitempty" validate:"omitempty,min=1,dive"`
}

// touchesMoney reports whether the patch alters items or monetary fields.
func (r UpdateInvoiceRequest) touchesMoney() bool {
	return r.Items != nil || r.Currency != nil || r.DiscountPercentage != nil ||
		r.DiscountAmount != nil || r.ShippingAmount != nil
}

type PaymentData struct {
	Amount      *float64   `json:"amount,omitempty" validate:"omitempty,gt=0"`
	PaymentDate *shared.Date `json:"payment_date,omitempty"`
	Method      string     `json:"method,omitempty" validate:"omitempty,oneof=bank_transfer card cash check direct_debit other"`
	Reference   *string    `json:"reference,omitempty" validate:"omitempty,max=100"`
	Notes       *string    `json:"notes,omitempty"`
}

type ListInvoicesRequest struct {
	Page          int            `json:"page"`
	Limit         int            `json:"limit"`
	Search        string         `json:"search,omitempty"`
	Status        *Status        `json:"status,omitempty"`
	PaymentStatus *PaymentStatus `json:"payment_status,omitempty"`
	CustomerID    *int64         `json:"customer_id,omitempty"`
	DateFrom      *time.Time     `json:"date_from,omitempty"`
	DateTo        *time.Time     `json:"date_to,omitempty"`
}

// Bulk actions.
const (
	BulkSend          = "send"
	BulkMarkPaid      = "mark_paid"
	BulkMarkCancelled = "mark_cancelled"
	BulkDelete        = "delete"
)

type BulkActionRequest struct {
	IDs    []int64 `json:"ids" validate:"required,min=1,max=500,dive,gt=0"`
	Action string  `json:"action" validate:"required,oneof=send mark_paid mark_cancelled delete"`
}

type BulkError struct {
	ID    int64  `json:"id"`
	Error string `json:"error"`
}

type BulkResult struct {
	Success int         `json:"success"`
	Failed  int         `json:"failed"`
	Errors  []BulkError `json:"errors"`
}

// DeleteResult tells whether Delete removed the row or soft-cancelled it.
type DeleteResult struct {
	ID            int64 `json:"id"`
	SoftCancelled bool  `json:"soft_cancelled"`
}
