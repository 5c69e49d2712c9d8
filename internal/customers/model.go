package customers

import "time"

// Customer is a billed party owned by a company.
type Customer struct {
	ID         int64     `json:"id"`
	CompanyID  int64     `json:"company_id"`
	Name       string    `json:"name"`
	Email      *string   `json:"email,omitempty"`
	Phone      *string   `json:"phone,omitempty"`
	Siret      *string   `json:"siret,omitempty"`
	VATNumber  *string   `json:"vat_number,omitempty"`
	Address    *string   `json:"address,omitempty"`
	City       *string   `json:"city,omitempty"`
	PostalCode *string   `json:"postal_code,omitempty"`
	Country    *string   `json:"country,omitempty"`
	Notes      *string   `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type CreateCustomerRequest struct {
	Name       string  `json:"name" validate:"required,max=200"`
	Email      *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone      *string `json:"phone,omitempty" validate:"omitempty,max=50"`
	Siret      *string `json:"siret,omitempty" validate:"omitempty,len=14,numeric"`
	VATNumber  *string `json:"vat_number,omitempty" validate:"omitempty,max=20"`
	Address    *string `json:"address,omitempty" validate:"omitempty,max=200"`
	City       *string `json:"city,omitempty" validate:"omitempty,max=100"`
	PostalCode *string `json:"postal_code,omitempty" validate:"omitempty,max=20"`
	Country    *string `json:"country,omitempty" validate:"omitempty,iso3166_1_alpha2"`
	Notes      *string `json:"notes,omitempty"`
}

type UpdateCustomerRequest struct {
	Name       *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Email      *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone      *string `json:"phone,omitempty" validate:"omitempty,max=50"`
	Siret      *string `json:"siret,omitempty" validate:"omitempty,len=14,numeric"`
	VATNumber  *string `json:"vat_number,omitempty" validate:"omitempty,max=20"`
	Address    *string `json:"address,omitempty" validate:"omitempty,max=200"`
	City       *string `json:"city,omitempty" validate:"omitempty,max=100"`
	PostalCode *string `json:"postal_code,omitempty" validate:"omitempty,max=20"`
	Country    *string `json:"country,omitempty" validate:"omitempty,iso3166_1_alpha2"`
	Notes      *string `json:"notes,omitempty"`
}

type ListCustomersRequest struct {
	Page   int
	Limit  int
	Search string
}
