package invoices

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
	Get(ctx context.Context, companyID, id int64) (*Invoice, error)
	// GetForUpdate reads and row-locks an invoice. It must run inside WithTx.
	GetForUpdate(ctx context.Context, companyID, id int64) (*Invoice, error)
	List(ctx context.Context, companyID int64, req ListInvoicesRequest) ([]Invoice, int, error)
	Create(ctx context.Context, invoice Invoice) (int64, error)
	Update(ctx context.Context, companyID, id int64, updates map[string]any) error
	Delete(ctx context.Context, companyID, id int64) error
	InsertItem(ctx context.Context, item Item) (int64, error)
	DeleteItems(ctx context.Context, invoiceID int64) error
	CountPayments(ctx context.Context, invoiceID int64) (int, error)
	InsertPayment(ctx context.Context, payment Payment) (int64, error)
	Stats(ctx context.Context, companyID int64, now time.Time) (*Stats, error)
	MarkOverdue(ctx context.Context, now time.Time) ([]OverdueRef, error)
}

// updatable lists the columns Update may touch.
var updatable = map[string]struct{}{
	"customer_id": {}, "status": {}, "payment_status": {}, "issue_date": {}, "due_date": {},
	"currency": {}, "discount_percentage": {}, "discount_amount": {}, "shipping_amount": {},
	"notes": {}, "conditions": {}, "amount_excluding_tax": {}, "tax": {}, "amount_including_tax": {},
	"sent_at": {}, "paid_at": {}, "cancelled_at": {},
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

const invoiceColumns = `
	i.id, i.company_id, i.customer_id, i.quote_id, i.invoice_number, i.status, i.payment_status,
	i.issue_date, i.due_date, i.currency, i.discount_percentage, i.discount_amount, i.shipping_amount,
	i.notes, i.conditions, i.amount_excluding_tax, i.tax, i.amount_including_tax,
	i.sent_at, i.paid_at, i.cancelled_at, i.created_by, i.created_at, i.updated_at,
	c.id, c.name, c.email`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	var customer lines.Customer
	err := row.Scan(
		&inv.ID, &inv.CompanyID, &inv.CustomerID, &inv.QuoteID, &inv.InvoiceNumber, &inv.Status, &inv.PaymentStatus,
		&inv.IssueDate, &inv.DueDate, &inv.Currency, &inv.DiscountPercentage, &inv.DiscountAmount, &inv.ShippingAmount,
		&inv.Notes, &inv.Conditions, &inv.AmountExcludingTax, &inv.Tax, &inv.AmountIncludingTax,
		&inv.SentAt, &inv.PaidAt, &inv.CancelledAt, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt,
		&customer.ID, &customer.Name, &customer.Email,
	)
	if err != nil {
		return nil, err
	}
	inv.Customer = &customer
	return &inv, nil
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (*Invoice, error) {
	return r.get(ctx, companyID, id, false)
}

func (r *repository) GetForUpdate(ctx context.Context, companyID, id int64) (*Invoice, error) {
	if !db.InTransaction(ctx) {
		return nil, fmt.Errorf("invoices: GetForUpdate outside a transaction")
	}
	return r.get(ctx, companyID, id, true)
}

func (r *repository) get(ctx context.Context, companyID, id int64, lock bool) (*Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices i
		JOIN customers c ON c.id = i.customer_id
		WHERE i.company_id = $1 AND i.id = $2`
	if lock {
		query += ` FOR UPDATE OF i`
	}
	inv, err := scanInvoice(r.conn(ctx).QueryRow(ctx, query, companyID, id))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, shared.NotFound("invoice", id)
		}
		return nil, err
	}

	items, err := r.items(ctx, id)
	if err != nil {
		return nil, err
	}
	inv.Items = items

	payments, err := r.payments(ctx, id)
	if err != nil {
		return nil, err
	}
	inv.Payments = payments
	return inv, nil
}

func (r *repository) items(ctx context.Context, invoiceID int64) ([]Item, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, invoice_id, product_id, name, description, quantity, unit, unit_price_excluding_tax,
		       discount_percentage, discount_amount, vat_rate, total_excluding_tax, total_including_tax, sort_order
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY sort_order, id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(
			&it.ID, &it.InvoiceID, &it.ProductID, &it.Name, &it.Description, &it.Quantity, &it.Unit,
			&it.UnitPriceExcludingTax, &it.DiscountPercentage, &it.DiscountAmount, &it.VATRate,
			&it.TotalExcludingTax, &it.TotalIncludingTax, &it.SortOrder,
		); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *repository) payments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, invoice_id, company_id, amount, payment_date, method, reference, notes, created_by, created_at
		FROM payments
		WHERE invoice_id = $1
		ORDER BY payment_date, id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.CompanyID, &p.Amount, &p.PaymentDate, &p.Method,
			&p.Reference, &p.Notes, &p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *repository) List(ctx context.Context, companyID int64, req ListInvoicesRequest) ([]Invoice, int, error) {
	conditions := []string{"i.company_id = $1"}
	args := []any{companyID}
	argPos := 2

	if req.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(i.invoice_number ILIKE $%d OR c.name ILIKE $%d)", argPos, argPos))
		args = append(args, "%"+req.Search+"%")
		argPos++
	}
	if req.Status != nil {
		conditions = append(conditions, fmt.Sprintf("i.status = $%d", argPos))
		args = append(args, *req.Status)
		argPos++
	}
	if req.PaymentStatus != nil {
		conditions = append(conditions, fmt.Sprintf("i.payment_status = $%d", argPos))
		args = append(args, *req.PaymentStatus)
		argPos++
	}
	if req.CustomerID != nil {
		conditions = append(conditions, fmt.Sprintf("i.customer_id = $%d", argPos))
		args = append(args, *req.CustomerID)
		argPos++
	}
	if req.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("i.issue_date >= $%d", argPos))
		args = append(args, *req.DateFrom)
		argPos++
	}
	if req.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("i.issue_date <= $%d", argPos))
		args = append(args, *req.DateTo)
		argPos++
	}

	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM invoices i JOIN customers c ON c.id = i.customer_id " + whereClause
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, perPage := shared.NormalizePage(req.Page, req.Limit)
	query := fmt.Sprintf(`SELECT %s
		FROM invoices i
		JOIN customers c ON c.id = i.customer_id
		%s
		ORDER BY i.issue_date DESC, i.id DESC
		LIMIT $%d OFFSET $%d`, invoiceColumns, whereClause, argPos, argPos+1)
	args = append(args, perPage, shared.Offset(page, perPage))

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	invoices := []Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO invoices (
			company_id, customer_id, quote_id, invoice_number, status, payment_status, issue_date, due_date,
			currency, discount_percentage, discount_amount, shipping_amount, notes, conditions,
			amount_excluding_tax, tax, amount_including_tax, created_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING id`,
		inv.CompanyID, inv.CustomerID, inv.QuoteID, inv.InvoiceNumber, inv.Status, inv.PaymentStatus,
		inv.IssueDate, inv.DueDate, inv.Currency, inv.DiscountPercentage, inv.DiscountAmount,
		inv.ShippingAmount, inv.Notes, inv.Conditions, inv.AmountExcludingTax, inv.Tax,
		inv.AmountIncludingTax, inv.CreatedBy,
	).Scan(&id)
	if err != nil {
		if _, ok := db.IsUniqueViolation(err); ok {
			return 0, &shared.DuplicateError{Entity: "invoice", Field: "invoice_number", Value: inv.InvoiceNumber}
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, companyID, id int64, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	query, args, err := db.UpdateStatement("invoices", updatable, updates,
		db.Where{Column: "company_id", Value: companyID}, db.Where{Column: "id", Value: id})
	if err != nil {
		return err
	}
	tag, err := r.conn(ctx).Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("invoice", id)
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, companyID, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM invoices WHERE company_id = $1 AND id = $2`, companyID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("invoice", id)
	}
	return nil
}

func (r *repository) InsertItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO invoice_items (
			invoice_id, product_id, name, description, quantity, unit, unit_price_excluding_tax,
			discount_percentage, discount_amount, vat_rate, total_excluding_tax, total_including_tax, sort_order
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id`,
		item.InvoiceID, item.ProductID, item.Name, item.Description, item.Quantity, item.Unit,
		item.UnitPriceExcludingTax, item.DiscountPercentage, item.DiscountAmount, item.VATRate,
		item.TotalExcludingTax, item.TotalIncludingTax, item.SortOrder,
	).Scan(&id)
	return id, err
}

func (r *repository) DeleteItems(ctx context.Context, invoiceID int64) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, invoiceID)
	return err
}

func (r *repository) CountPayments(ctx context.Context, invoiceID int64) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM payments WHERE invoice_id = $1`, invoiceID).Scan(&n)
	return n, err
}

func (r *repository) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO payments (invoice_id, company_id, amount, payment_date, method, reference, notes, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id`,
		p.InvoiceID, p.CompanyID, p.Amount, p.PaymentDate, p.Method, p.Reference, p.Notes, p.CreatedBy,
	).Scan(&id)
	return id, err
}

// Stats runs the per-status and the receivables aggregates concurrently.
func (r *repository) Stats(ctx context.Context, companyID int64, now time.Time) (*Stats, error) {
	stats := &Stats{ByStatus: map[Status]StatusStat{}}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rows, err := r.pool.Query(gctx, `
			SELECT status, COUNT(*), COALESCE(SUM(amount_including_tax), 0)
			FROM invoices
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
		totalCount                                int
		invoiced, paid, outstanding, overdueTotal float64
		overdueCount                              int
	)
	g.Go(func() error {
		return r.pool.QueryRow(gctx, `
			SELECT COUNT(*),
			       COALESCE(SUM(amount_including_tax) FILTER (WHERE status <> 'cancelled'), 0),
			       COALESCE(SUM(amount_including_tax) FILTER (WHERE payment_status = 'paid'), 0),
			       COALESCE(SUM(amount_including_tax) FILTER (WHERE payment_status <> 'paid' AND status NOT IN ('cancelled','draft','refunded')), 0),
			       COUNT(*) FILTER (WHERE payment_status <> 'paid' AND status NOT IN ('cancelled','draft','refunded') AND due_date < $2),
			       COALESCE(SUM(amount_including_tax) FILTER (WHERE payment_status <> 'paid' AND status NOT IN ('cancelled','draft','refunded') AND due_date < $2), 0)
			FROM invoices
			WHERE company_id = $1`, companyID, now).
			Scan(&totalCount, &invoiced, &paid, &outstanding, &overdueCount, &overdueTotal)
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	stats.TotalCount = totalCount
	stats.TotalInvoiced = invoiced
	stats.TotalPaid = paid
	stats.Outstanding = outstanding
	stats.OverdueCount = overdueCount
	stats.OverdueAmount = overdueTotal
	return stats, nil
}

func (r *repository) MarkOverdue(ctx context.Context, now time.Time) ([]OverdueRef, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		UPDATE invoices
		SET status = 'overdue', updated_at = NOW()
		WHERE status IN ('pending', 'sent')
		  AND payment_status NOT IN ('paid', 'refunded', 'cancelled')
		  AND due_date < $1
		RETURNING id, company_id`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []OverdueRef
	for rows.Next() {
		var ref OverdueRef
		if err := rows.Scan(&ref.ID, &ref.CompanyID); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

var _ Repository = (*repository)(nil)
