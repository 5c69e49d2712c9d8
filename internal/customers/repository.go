package customers

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-billing/internal/platform/db"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

type Repository interface {
	Get(ctx context.Context, companyID, id int64) (*Customer, error)
	List(ctx context.Context, companyID int64, req ListCustomersRequest) ([]Customer, int, error)
	Create(ctx context.Context, c Customer) (int64, error)
	Update(ctx context.Context, companyID, id int64, updates map[string]any) error
	Delete(ctx context.Context, companyID, id int64) error
	// CountReferences returns how many invoices and quotes point at the customer.
	CountReferences(ctx context.Context, id int64) (int, error)
}

var updatable = map[string]struct{}{
	"name": {}, "email": {}, "phone": {}, "siret": {}, "vat_number": {}, "address": {},
	"city": {}, "postal_code": {}, "country": {}, "notes": {},
}

// constraintFields maps unique indexes to the request field they guard.
var constraintFields = map[string]string{
	"customers_company_email_key": "email",
	"customers_company_siret_key": "siret",
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const customerColumns = `id, company_id, name, email, phone, siret, vat_number, address, city,
	postal_code, country, notes, created_at, updated_at`

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.CompanyID, &c.Name, &c.Email, &c.Phone, &c.Siret, &c.VATNumber,
		&c.Address, &c.City, &c.PostalCode, &c.Country, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (*Customer, error) {
	c, err := scanCustomer(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE company_id = $1 AND id = $2`, companyID, id))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, shared.NotFound("customer", id)
		}
		return nil, err
	}
	return c, nil
}

func (r *repository) List(ctx context.Context, companyID int64, req ListCustomersRequest) ([]Customer, int, error) {
	where := "WHERE company_id = $1"
	args := []any{companyID}
	if req.Search != "" {
		where += " AND (name ILIKE $2 OR email ILIKE $2 OR siret ILIKE $2)"
		args = append(args, "%"+req.Search+"%")
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, "SELECT COUNT(*) FROM customers "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, perPage := shared.NormalizePage(req.Page, req.Limit)
	query := fmt.Sprintf("SELECT %s FROM customers %s ORDER BY name, id LIMIT $%d OFFSET $%d",
		customerColumns, where, len(args)+1, len(args)+2)
	args = append(args, perPage, shared.Offset(page, perPage))

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	customers := []Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		customers = append(customers, *c)
	}
	return customers, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, c Customer) (int64, error) {
	var id int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO customers (company_id, name, email, phone, siret, vat_number, address, city, postal_code, country, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		c.CompanyID, c.Name, c.Email, c.Phone, c.Siret, c.VATNumber, c.Address, c.City, c.PostalCode, c.Country, c.Notes,
	).Scan(&id)
	if err != nil {
		return 0, duplicate(err)
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, companyID, id int64, updates map[string]any) error {
	query, args, err := db.UpdateStatement("customers", updatable, updates,
		db.Where{Column: "company_id", Value: companyID}, db.Where{Column: "id", Value: id})
	if err != nil {
		return err
	}
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, query, args...)
	if err != nil {
		return duplicate(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("customer", id)
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, companyID, id int64) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM customers WHERE company_id = $1 AND id = $2`, companyID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("customer", id)
	}
	return nil
}

func (r *repository) CountReferences(ctx context.Context, id int64) (int, error) {
	var n int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM invoices WHERE customer_id = $1)
		     + (SELECT COUNT(*) FROM quotes WHERE customer_id = $1)`, id).Scan(&n)
	return n, err
}

func duplicate(err error) error {
	if constraint, ok := db.IsUniqueViolation(err); ok {
		field := constraintFields[constraint]
		if field == "" {
			field = "name"
		}
		return &shared.DuplicateError{Entity: "customer", Field: field}
	}
	return err
}

var _ Repository = (*repository)(nil)
