package products

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-billing/internal/platform/db"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

type Repository interface {
	Get(ctx context.Context, companyID, id int64) (*Product, error)
	List(ctx context.Context, companyID int64, req ListProductsRequest) ([]Product, int, error)
	Create(ctx context.Context, p Product) (int64, error)
	Update(ctx context.Context, companyID, id int64, updates map[string]any) error
	Delete(ctx context.Context, companyID, id int64) error
	// AdjustStock applies delta unless the result would go negative, returning
	// the stock after the change and whether it was applied.
	AdjustStock(ctx context.Context, companyID, id int64, delta float64) (float64, bool, error)
}

var updatable = map[string]struct{}{
	"sku": {}, "name": {}, "description": {}, "unit": {}, "unit_price_excluding_tax": {},
	"vat_rate": {}, "is_active": {},
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const productColumns = `id, company_id, sku, name, description, unit, unit_price_excluding_tax,
	vat_rate, stock_quantity, is_active, created_at, updated_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.CompanyID, &p.SKU, &p.Name, &p.Description, &p.Unit, &p.UnitPriceExcludingTax,
		&p.VATRate, &p.StockQuantity, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (*Product, error) {
	p, err := scanProduct(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE company_id = $1 AND id = $2`, companyID, id))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, shared.NotFound("product", id)
		}
		return nil, err
	}
	return p, nil
}

func (r *repository) List(ctx context.Context, companyID int64, req ListProductsRequest) ([]Product, int, error) {
	where := "WHERE company_id = $1"
	args := []any{companyID}
	if req.Search != "" {
		args = append(args, "%"+req.Search+"%")
		where += fmt.Sprintf(" AND (name ILIKE $%d OR sku ILIKE $%d)", len(args), len(args))
	}
	if req.ActiveOnly {
		where += " AND is_active"
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, "SELECT COUNT(*) FROM products "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, perPage := shared.NormalizePage(req.Page, req.Limit)
	query := fmt.Sprintf("SELECT %s FROM products %s ORDER BY name, id LIMIT $%d OFFSET $%d",
		productColumns, where, len(args)+1, len(args)+2)
	args = append(args, perPage, shared.Offset(page, perPage))

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, *p)
	}
	return products, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, p Product) (int64, error) {
	var id int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO products (company_id, sku, name, description, unit, unit_price_excluding_tax, vat_rate, stock_quantity, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		p.CompanyID, p.SKU, p.Name, p.Description, p.Unit, p.UnitPriceExcludingTax, p.VATRate, p.StockQuantity, p.IsActive,
	).Scan(&id)
	if err != nil {
		return 0, duplicate(err, p.SKU)
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, companyID, id int64, updates map[string]any) error {
	query, args, err := db.UpdateStatement("products", updatable, updates,
		db.Where{Column: "company_id", Value: companyID}, db.Where{Column: "id", Value: id})
	if err != nil {
		return err
	}
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, query, args...)
	if err != nil {
		sku, _ := updates["sku"].(string)
		return duplicate(err, sku)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("product", id)
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, companyID, id int64) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM products WHERE company_id = $1 AND id = $2`, companyID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("product", id)
	}
	return nil
}

func (r *repository) AdjustStock(ctx context.Context, companyID, id int64, delta float64) (float64, bool, error) {
	var stock float64
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE products
		SET stock_quantity = COALESCE(stock_quantity, 0) + $3, updated_at = NOW()
		WHERE company_id = $1 AND id = $2 AND COALESCE(stock_quantity, 0) + $3 >= 0
		RETURNING stock_quantity`, companyID, id, delta).Scan(&stock)
	if err == nil {
		return stock, true, nil
	}
	if !db.IsNoRows(err) {
		return 0, false, err
	}
	p, err := r.Get(ctx, companyID, id)
	if err != nil {
		return 0, false, err
	}
	if p.StockQuantity != nil {
		stock = *p.StockQuantity
	}
	return stock, false, nil
}

func duplicate(err error, sku string) error {
	if _, ok := db.IsUniqueViolation(err); ok {
		return &shared.DuplicateError{Entity: "product", Field: "sku", Value: sku}
	}
	return err
}

var _ Repository = (*repository)(nil)
