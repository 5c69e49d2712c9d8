package companies

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-billing/internal/platform/db"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

type Repository interface {
	Get(ctx context.Context, id int64) (*Company, error)
	Create(ctx context.Context, c Company) (int64, error)
	Update(ctx context.Context, id int64, updates map[string]any) error
	GetSettings(ctx context.Context, companyID int64) (*Settings, error)
	UpsertSettings(ctx context.Context, companyID int64, updates map[string]any) error
	WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}

var (
	companyColumns = map[string]struct{}{
		"name": {}, "legal_name": {}, "siret": {}, "vat_number": {}, "email": {}, "phone": {},
		"address": {}, "city": {}, "postal_code": {}, "country": {},
	}
	settingsColumns = map[string]struct{}{
		"invoice_prefix": {}, "quote_prefix": {}, "default_payment_terms_days": {},
		"default_currency": {}, "default_conditions": {},
	}
)

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	return db.InTx(ctx, r.pool, func(ctx context.Context) error {
		return fn(ctx, r)
	})
}

func (r *repository) Get(ctx context.Context, id int64) (*Company, error) {
	var c Company
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, name, legal_name, siret, vat_number, email, phone, address, city, postal_code,
		       country, created_at, updated_at
		FROM companies WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.LegalName, &c.Siret, &c.VATNumber, &c.Email, &c.Phone, &c.Address,
		&c.City, &c.PostalCode, &c.Country, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, shared.NotFound("company", id)
		}
		return nil, err
	}
	return &c, nil
}

func (r *repository) Create(ctx context.Context, c Company) (int64, error) {
	var id int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO companies (name, legal_name, siret, vat_number, email, phone, address, city, postal_code, country)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		c.Name, c.LegalName, c.Siret, c.VATNumber, c.Email, c.Phone, c.Address, c.City, c.PostalCode, c.Country,
	).Scan(&id)
	if err != nil {
		return 0, duplicate(err, c.Siret)
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, id int64, updates map[string]any) error {
	query, args, err := db.UpdateStatement("companies", companyColumns, updates, db.Where{Column: "id", Value: id})
	if err != nil {
		return err
	}
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, query, args...)
	if err != nil {
		siret, _ := updates["siret"].(string)
		return duplicate(err, &siret)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("company", id)
	}
	return nil
}

func (r *repository) GetSettings(ctx context.Context, companyID int64) (*Settings, error) {
	var s Settings
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT company_id, invoice_prefix, quote_prefix, next_invoice_number, next_quote_number,
		       default_payment_terms_days, default_currency, default_conditions, updated_at
		FROM company_settings WHERE company_id = $1`, companyID,
	).Scan(&s.CompanyID, &s.InvoicePrefix, &s.QuotePrefix, &s.NextInvoiceNumber, &s.NextQuoteNumber,
		&s.DefaultPaymentTermsDays, &s.DefaultCurrency, &s.DefaultConditions, &s.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, shared.NotFound("company settings", companyID)
		}
		return nil, err
	}
	return &s, nil
}

// UpsertSettings creates the settings row with column defaults when missing,
// then applies updates. An empty update only ensures the row exists.
func (r *repository) UpsertSettings(ctx context.Context, companyID int64, updates map[string]any) error {
	return db.InTx(ctx, r.pool, func(ctx context.Context) error {
		conn := db.Conn(ctx, r.pool)
		if _, err := conn.Exec(ctx, `
			INSERT INTO company_settings (company_id) VALUES ($1)
			ON CONFLICT (company_id) DO NOTHING`, companyID); err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		query, args, err := db.UpdateStatement("company_settings", settingsColumns, updates,
			db.Where{Column: "company_id", Value: companyID})
		if err != nil {
			return err
		}
		_, err = conn.Exec(ctx, query, args...)
		return err
	})
}

func duplicate(err error, siret *string) error {
	if _, ok := db.IsUniqueViolation(err); ok {
		value := ""
		if siret != nil {
			value = *siret
		}
		return &shared.DuplicateError{Entity: "company", Field: "siret", Value: value}
	}
	return err
}

var _ Repository = (*repository)(nil)
