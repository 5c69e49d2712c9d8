package invoices

import (
	"time"

	"github.com/odyssey-erp/odyssey-billing/internal/billing/lines"
)

// Status is the invoice lifecycle state.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusPending       Status = "pending"
	StatusSent          Status = "sent"
	StatusPaid          Status = "paid"
	StatusPartiallyPaid Status = "partially_paid"
	StatusOverdue       Status = "overdue"
	StatusCancelled     Status = "cancelled"
	StatusRefunded      Status = "refunded"
)

// PaymentStatus is tracked independently of Status.
type PaymentStatus string

const (
	PaymentUnpaid        PaymentStatus = "unpaid"
	PaymentPartiallyPaid PaymentStatus = "partially_paid"
	PaymentPaid          PaymentStatus = "paid"
	PaymentFailed        PaymentStatus = "failed"
	PaymentRefunded      PaymentStatus = "refunded"
	PaymentCancelled     PaymentStatus = "cancelled"
)

// Invoice is the billing document issued to a customer.
type Invoice struct {
	ID                 int64           `json:"id"`
	CompanyID          int64           `json:"company_id"`
	CustomerID         int64           `json:"customer_id"`
	QuoteID            *int64          `json:"quote_id,omitempty"`
	InvoiceNumber      string          `json:"invoice_number"`
	Status             Status          `json:"status"`
	PaymentStatus      PaymentStatus   `json:"payment_status"`
	IssueDate          time.Time       `json:"issue_date"`
	DueDate            time.Time       `json:"due_date"`
	Currency           string          `json:"currency"`
	DiscountPercentage *float64        `json:"discount_percentage,omitempty"`
	DiscountAmount     *float64        `json:"discount_amount,omitempty"`
	ShippingAmount     float64         `json:"shipping_amount"`
	Notes              *string         `json:"notes,omitempty"`
	Conditions         *string         `json:"conditions,omitempty"`
	AmountExcludingTax float64         `json:"amount_excluding_tax"`
	Tax                float64         `json:"tax"`
	AmountIncludingTax float64         `json:"amount_including_tax"`
	SentAt             *time.Time      `json:"sent_at,omitempty"`
	PaidAt             *time.Time      `json:"paid_at,omitempty"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty"`
	CreatedBy          int64           `json:"created_by"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	Customer           *lines.Customer `json:"customer,omitempty"`
	Items              []Item          `json:"items,omitempty"`
	Payments           []Payment       `json:"payments,omitempty"`
}

// Item is a line owned by an invoice.
type Item struct {
	ID        int64 `json:"id"`
	InvoiceID int64 `json:"invoice_id"`
	lines.Line
}

// Payment records money received against an invoice.
type Payment struct {
	ID          int64     `json:"id"`
	InvoiceID   int64     `json:"invoice_id"`
	CompanyID   int64     `json:"company_id"`
	Amount      float64   `json:"amount"`
	PaymentDate time.Time `json:"payment_date"`
	Method      string    `json:"method"`
	Reference   *string   `json:"reference,omitempty"`
	Notes       *string   `json:"notes,omitempty"`
	CreatedBy   int64     `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// StatusStat aggregates invoices sharing a status.
type StatusStat struct {
	Count  int     `json:"count"`
	Amount float64 `json:"amount"`
}

// Stats summarises a company's invoices.
type Stats struct {
	TotalCount    int                   `json:"total_count"`
	TotalInvoiced float64               `json:"total_invoiced"`
	TotalPaid     float64               `json:"total_paid"`
	Outstanding   float64               `json:"outstanding"`
	OverdueCount  int                   `json:"overdue_count"`
	OverdueAmount float64               `json:"overdue_amount"`
	ByStatus      map[Status]StatusStat `json:"by_status"`
}

// OverdueRef identifies an invoice flipped by the overdue sweep.
type OverdueRef struct {
	ID        int64
	CompanyID int64
}
