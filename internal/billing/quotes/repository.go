package quotes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-billing/internal/billing/lines"
	"github.com/odyssey-erp/odyssey-billing/internal/platform/db"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, companyID, id int64) (*Quote, error)
	// GetForUpdate reads the quote header and holds its row lock until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, companyID, id int64) (*Quote, error)
	List(ctx context.Context, companyID int64, req ListQuotesRequest) ([]Quote, int, error)
	Create(ctx context.Context, quote Quote) (int64, error)
	Update(ctx context.Context, companyID, id int64, updates map[string]any) error
	Delete(ctx context.Context, companyID, id int64) error
	InsertItem(ctx context.Context, item Item) (int64, error)
	DeleteItems(ctx context.Context, quoteID int64) error
	Stats(ctx context.Context, companyID int64) (*Stats, error)
	ExpireStale(ctx context.Context, today time.Time) ([]ExpiredRef, error)
}

var updatable = map[string]struct{}{
	"customer_id": {}, "status": {}, "issue_date": {}, "validity_date": {}, "currency": {},
	"discount_percentage": {}, "discount_amount": {}, "shipping_amount": {}, "payment_terms_days": {},
	"notes": {}, "conditions": {}, "amount_excluding_tax": {}, "tax": {}, "amount_including_tax": {},
	"converted_to_invoice": {}, "invoice_id": {}, "sent_at": {}, "viewed_at": {}, "accepted_at": {},
	"rejected_at": {}, "cancelled_at": {},
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) conn(ctx context.Context) db.DBTX {
	return db.Conn(ctx, r.pool)
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.InTx(ctx, r.pool, func(ctx context.Context) error {
		return fn(ctx, r)
	})
}

const quoteColumns = `
	q.id, q.company_id, q.customer_id, q.quote_number, q.status, q.issue_date, q.validity_date,
	q.currency, q.discount_percentage, q.discount_amount, q.shipping_amount, q.payment_terms_days,
	q.notes, q.conditions, q.amount_excluding_tax, q.tax, q.amount_including_tax,
	q.converted_to_invoice, q.invoice_id, q.sent_at, q.viewed_at, q.accepted_at, q.rejected_at,
	q.cancelled_at, q.created_by, q.created_at, q.updated_at,
	c.id, c.name, c.email`

func scanQuote(row pgx.Row) (*Quote, error) {
	var q Quote
	var customer lines.Customer
	err := row.Scan(
		&q.ID, &q.CompanyID, &q.CustomerID, &q.QuoteNumber, &q.Status, &q.IssueDate, &q.ValidityDate,
		&q.Currency, &q.DiscountPercentage, &q.DiscountAmount, &q.ShippingAmount, &q.PaymentTermsDays,
		&q.Notes, &q.Conditions, &q.AmountExcludingTax, &q.Tax, &q.AmountIncludingTax,
		&q.ConvertedToInvoice, &q.InvoiceID, &q.SentAt, &q.ViewedAt, &q.AcceptedAt, &q.RejectedAt,
		&q.CancelledAt, &q.CreatedBy, &q.CreatedAt, &q.UpdatedAt,
		&customer.ID, &customer.Name, &customer.Email,
	)
	if err != nil {
		return nil, err
	}
	q.Customer = &customer
	return &q, nil
}

func (r *repository) get(ctx context.Context, companyID, id int64, lock bool) (*Quote, error) {
	query := `SELECT ` + quoteColumns + `
		FROM quotes q
		JOIN customers c ON c.id = q.customer_id
		WHERE q.company_id = $1 AND q.id = $2`
	if lock {
		query += ` FOR UPDATE OF q`
	}
	q, err := scanQuote(r.conn(ctx).QueryRow(ctx, query, companyID, id))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, shared.NotFound("quote", id)
		}
		return nil, err
	}
	items, err := r.items(ctx, id)
	if err != nil {
		return nil, err
	}
	q.Items = items
	return q, nil
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (*Quote, error) {
	return r.get(ctx, companyID, id, false)
}

func (r *repository) GetForUpdate(ctx context.Context, companyID, id int64) (*Quote, error) {
	if !db.InTransaction(ctx) {
		return nil, fmt.Errorf("quotes: GetForUpdate outside a transaction")
	}
	return r.get(ctx, companyID, id, true)
}

func (r *repository) items(ctx context.Context, quoteID int64) ([]Item, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, quote_id, product_id, name, description, quantity, unit, unit_price_excluding_tax,
		       discount_percentage, discount_amount, vat_rate, total_excluding_tax, total_including_tax, sort_order
		FROM quote_items
		WHERE quote_id = $1
		ORDER BY sort_order, id`, quoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(
			&it.ID, &it.QuoteID, &it.ProductID, &it.Name, &it.Description, &it.Quantity, &it.Unit,
			&it.UnitPriceExcludingTax, &it.DiscountPercentage, &it.DiscountAmount, &it.VATRate,
			&it.TotalExcludingTax, &it.TotalIncludingTax, &it.SortOrder,
		); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *repository) List(ctx context.Context, companyID int64, req ListQuotesRequest) ([]Quote, int, error) {
	conditions := []string{"q.company_id = $1"}
	args := []any{companyID}
	argPos := 2

	if req.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(q.quote_number ILIKE $%d OR c.name ILIKE $%d)", argPos, argPos))
		args = append(args, "%"+req.Search+"%")
		argPos++
	}
	if req.Status != nil {
		conditions = append(conditions, fmt.Sprintf("q.status = $%d", argPos))
		args = append(args, *req.Status)
		argPos++
	}
	if req.CustomerID != nil {
		conditions = append(conditions, fmt.Sprintf("q.customer_id = $%d", argPos))
		args = append(args, *req.CustomerID)
		argPos++
	}
	if req.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("q.issue_date >= $%d", argPos))
		args = append(args, *req.DateFrom)
		argPos++
	}
	if req.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("q.issue_date <= $%d", argPos))
		args = append(args, *req.DateTo)
		argPos++
	}

	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM quotes q JOIN customers c ON c.id = q.customer_id " + whereClause
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, perPage := shared.NormalizePage(req.Page, req.Limit)
	query := fmt.Sprintf(`SELECT %s
		FROM quotes q
		JOIN customers c ON c.id = q.customer_id
		%s
		ORDER BY q.issue_date DESC, q.id DESC
		LIMIT $%d OFFSET $%d`, quoteColumns, whereClause, argPos, argPos+1)
	args = append(args, perPage, shared.Offset(page, perPage))

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	quotes := []Quote{}
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, 0, err
		}
		quotes = append(quotes, *q)
	}
	return quotes, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, q Quote) (int64, error) {
	var id int64
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO quotes (
			company_id, customer_id, quote_number, status, issue_date, validity_date, currency,
			discount_percentage, discount_amount, shipping_amount, payment_terms_days, notes, conditions,
			amount_excluding_tax, tax, amount_including_tax, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id`,
		q.CompanyID, q.CustomerID, q.QuoteNumber, q.Status, q.IssueDate, q.ValidityDate, q.Currency,
		q.DiscountPercentage, q.DiscountAmount, q.ShippingAmount, q.PaymentTermsDays, q.Notes, q.Conditions,
		q.AmountExcludingTax, q.Tax, q.AmountIncludingTax, q.CreatedBy,
	).Scan(&id)
	if err != nil {
		if _, ok := db.IsUniqueViolation(err); ok {
			return 0, &shared.DuplicateError{Entity: "quote", Field: "quote_number", Value: q.QuoteNumber}
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, companyID, id int64, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	query, args, err := db.UpdateStatement("quotes", updatable, updates,
		db.Where{Column: "company_id", Value: companyID}, db.Where{Column: "id", Value: id})
	if err != nil {
		return err
	}
	tag, err := r.conn(ctx).Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("quote", id)
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, companyID, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM quotes WHERE company_id = $1 AND id = $2`, companyID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("quote", id)
	}
	return nil
}

func (r *repository) InsertItem(ctx context.Context, it Item) (int64, error) {
	var id int64
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO quote_items (
			quote_id, product_id, name, description, quantity, unit, unit_price_excluding_tax,
			discount_percentage, discount_amount, vat_rate, total_excluding_tax, total_including_tax, sort_order
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`,
		it.QuoteID, it.ProductID, it.Name, it.Description, it.Quantity, it.Unit, it.UnitPriceExcludingTax,
		it.DiscountPercentage, it.DiscountAmount, it.VATRate, it.TotalExcludingTax, it.TotalIncludingTax, it.SortOrder,
	).Scan(&id)
	return id, err
}

func (r *repository) DeleteItems(ctx context.Context, quoteID int64) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM quote_items WHERE quote_id = $1`, quoteID)
	return err
}

func (r *repository) Stats(ctx context.Context, companyID int64) (*Stats, error) {
	stats := &Stats{ByStatus: map[Status]StatusStat{}}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rows, err := r.pool.Query(gctx, `
			SELECT status, COUNT(*), COALESCE(SUM(amount_including_tax), 0)
			FROM quotes
			WHERE company_id = $1
			GROUP BY status`, companyID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				status Status
				stat   StatusStat
			)
			if err := rows.Scan(&status, &stat.Count, &stat.Amount); err != nil {
				return err
			}
			stats.ByStatus[status] = stat
		}
		return rows.Err()
	})

	var (
		total, accepted, converted int
		amount                     float64
	)
	g.Go(func() error {
		return r.pool.QueryRow(gctx, `
			SELECT COUNT(*),
			       COALESCE(SUM(amount_including_tax), 0),
			       COUNT(*) FILTER (WHERE accepted_at IS NOT NULL),
			       COUNT(*) FILTER (WHERE converted_to_invoice)
			FROM quotes
			WHERE company_id = $1`, companyID).
			Scan(&total, &amount, &accepted, &converted)
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	stats.TotalCount = total
	stats.TotalAmount = amount
	stats.AcceptedCount = accepted
	stats.ConvertedCount = converted
	if total > 0 {
		stats.ConversionRate = float64(converted) / float64(total)
	}
	return stats, nil
}

func (r *repository) ExpireStale(ctx context.Context, today time.Time) ([]ExpiredRef, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		UPDATE quotes
		SET status = 'expired', updated_at = NOW()
		WHERE status IN ('draft', 'pending', 'sent', 'viewed')
		  AND validity_date < $1
		RETURNING id, company_id`, today)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []ExpiredRef
	for rows.Next() {
		var ref ExpiredRef
		if err := rows.Scan(&ref.ID, &ref.CompanyID); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

var _ Repository = (*repository)(nil)
