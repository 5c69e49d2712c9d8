package quotes

import (
	"time"

	"github.com/odyssey-erp/odyssey-billing/internal/billing/lines"
)

// Status is the quote lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusViewed    Status = "viewed"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
	StatusConverted Status = "converted"
)

// locked reports whether the quote refuses edits and deletion.
func (s Status) locked() bool {
	return s == StatusAccepted || s == StatusConverted
}

// Quote is a priced offer that can become an invoice once accepted.
type Quote struct {
	ID                 int64           `json:"id"`
	CompanyID          int64           `json:"company_id"`
	CustomerID         int64           `json:"customer_id"`
	QuoteNumber        string          `json:"quote_number"`
	Status             Status          `json:"status"`
	IssueDate          time.Time       `json:"issue_date"`
	ValidityDate       time.Time       `json:"validity_date"`
	Currency           string          `json:"currency"`
	DiscountPercentage *float64        `json:"discount_percentage,omitempty"`
	DiscountAmount     *float64        `json:"discount_amount,omitempty"`
	ShippingAmount     float64         `json:"shipping_amount"`
	PaymentTermsDays   *int            `json:"payment_terms_days,omitempty"`
	Notes              *string         `json:"notes,omitempty"`
	Conditions         *string         `json:"conditions,omitempty"`
	AmountExcludingTax float64         `json:"amount_excluding_tax"`
	Tax                float64         `json:"tax"`
	AmountIncludingTax float64         `json:"amount_including_tax"`
	ConvertedToInvoice bool            `json:"converted_to_invoice"`
	InvoiceID          *int64          `json:"invoice_id,omitempty"`
	SentAt             *time.Time      `json:"sent_at,omitempty"`
	ViewedAt           *time.Time      `json:"viewed_at,omitempty"`
	AcceptedAt         *time.Time      `json:"accepted_at,omitempty"`
	RejectedAt         *time.Time      `json:"rejected_at,omitempty"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty"`
	CreatedBy          int64           `json:"created_by"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	Customer           *lines.Customer `json:"customer,omitempty"`
	Items              []Item          `json:"items,omitempty"`
}

// Item is a line owned by a quote.
type Item struct {
	ID      int64 `json:"id"`
	QuoteID int64 `json:"quote_id"`
	lines.Line
}

// StatusStat aggregates quotes sharing a status.
type StatusStat struct {
	Count  int     `json:"count"`
	Amount float64 `json:"amount"`
}

// Stats summarises a company's quotes.
type Stats struct {
	TotalCount     int                   `json:"total_count"`
	TotalAmount    float64               `json:"total_amount"`
	AcceptedCount  int                   `json:"accepted_count"`
	ConvertedCount int                   `json:"converted_count"`
	ConversionRate float64               `json:"conversion_rate"`
	ByStatus       map[Status]StatusStat `json:"by_status"`
}

// ExpiredRef identifies a quote flipped by the expiry sweep.
type ExpiredRef struct {
	ID        int64
	CompanyID int64
}
