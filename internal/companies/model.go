package companies

import "time"

// Company is a tenant. Every other record is scoped by its ID.
type Company struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	LegalName  *string   `json:"legal_name,omitempty"`
	Siret      *string   `json:"siret,omitempty"`
	VATNumber  *string   `json:"vat_number,omitempty"`
	Email      *string   `json:"email,omitempty"`
	Phone      *string   `json:"phone,omitempty"`
	Address    *string   `json:"address,omitempty"`
	City       *string   `json:"city,omitempty"`
	PostalCode *string   `json:"postal_code,omitempty"`
	Country    string    `json:"country"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Settings holds numbering and document defaults. The counters are advanced
// only by the sequence generator.
type Settings struct {
	CompanyID               int64     `json:"company_id"`
	InvoicePrefix           string    `json:"invoice_prefix"`
	QuotePrefix             string    `json:"quote_prefix"`
	NextInvoiceNumber       int64     `json:"next_invoice_number"`
	NextQuoteNumber         int64     `json:"next_quote_number"`
	DefaultPaymentTermsDays int       `json:"default_payment_terms_days"`
	DefaultCurrency         string    `json:"default_currency"`
	DefaultConditions       *string   `json:"default_conditions,omitempty"`
	UpdatedAt               time.Time `json:"updated_at"`
}

type CreateCompanyRequest struct {
	Name       string  `json:"name" validate:"required,max=200"`
	LegalName  *string `json:"legal_name,omitempty" validate:"omitempty,max=200"`
	Siret      *string `json:"siret,omitempty" validate:"omitempty,len=14,numeric"`
	VATNumber  *string `json:"vat_number,omitempty" validate:"omitempty,max=32"`
	Email      *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone      *string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Address    *string `json:"address,omitempty"`
	City       *string `json:"city,omitempty"`
	PostalCode *string `json:"postal_code,omitempty" validate:"omitempty,max=16"`
	Country    string  `json:"country,omitempty" validate:"omitempty,iso3166_1_alpha2"`
}

type UpdateCompanyRequest struct {
	Name       *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	LegalName  *string `json:"legal_name,omitempty" validate:"omitempty,max=200"`
	Siret      *string `json:"siret,omitempty" validate:"omitempty,len=14,numeric"`
	VATNumber  *string `json:"vat_number,omitempty" validate:"omitempty,max=32"`
	Email      *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone      *string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Address    *string `json:"address,omitempty"`
	City       *string `json:"city,omitempty"`
	PostalCode *string `json:"postal_code,omitempty" validate:"omitempty,max=16"`
	Country    *string `json:"country,omitempty" validate:"omitempty,iso3166_1_alpha2"`
}

// UpdateSettingsRequest carries no counter fields; unknown JSON keys such as
// next_invoice_number are rejected by the decoder.
type UpdateSettingsRequest struct {
	InvoicePrefix           *string `json:"invoice_prefix,omitempty" validate:"omitempty,min=1,max=10,alphanum"`
	QuotePrefix             *string `json:"quote_prefix,omitempty" validate:"omitempty,min=1,max=10,alphanum"`
	DefaultPaymentTermsDays *int    `json:"default_payment_terms_days,omitempty" validate:"omitempty,gte=0,lte=365"`
	DefaultCurrency         *string `json:"default_currency,omitempty" validate:"omitempty,iso4217"`
	DefaultConditions       *string `json:"default_conditions,omitempty"`
}
