package invoices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-billing/internal/billing/lines"
	"github.com/odyssey-erp/odyssey-billing/internal/billing/sequence"
	"github.com/odyssey-erp/odyssey-billing/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

const (
	entity              = "invoice"
	defaultCurrency     = "EUR"
	defaultTermsDays    = 30
	defaultPaymentRoute = "bank_transfer"
)

// NumberGenerator issues document numbers.
type NumberGenerator interface {
	NextNumber(ctx context.Context, companyID int64, kind sequence.Kind) (string, error)
}

// TermsLookup returns a company's default payment terms in days.
type TermsLookup interface {
	DefaultPaymentTerms(ctx context.Context, companyID int64) (int, error)
}

// Cache is the best-effort read cache.
type Cache interface {
	Fetch(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
	Delete(ctx context.Context, keys ...string)
	DeleteByPattern(ctx context.Context, pattern string)
}

// Recorder receives domain events for metrics.
type Recorder interface {
	DocumentCreated(kind string)
	Transition(kind, action string)
}

type ServiceParams struct {
	Repo      Repository
	Customers lines.CustomerLookup
	Products  lines.ProductLookup
	Numbers   NumberGenerator
	Terms     TermsLookup
	Cache     Cache
	Metrics   Recorder
	Logger    *slog.Logger
	Now       func() time.Time
	// DefaultTermsDays applies when the company has no payment terms configured.
	DefaultTermsDays int
}

type Service struct {
	repo      Repository
	customers lines.CustomerLookup
	products  lines.ProductLookup
	numbers   NumberGenerator
	terms     TermsLookup
	cache     Cache
	metrics   Recorder
	logger    *slog.Logger
	now       func() time.Time
	validate  *validator.Validate

	defaultTerms int
}

func NewService(p ServiceParams) *Service {
	s := &Service{
		repo:      p.Repo,
		customers: p.Customers,
		products:  p.Products,
		numbers:   p.Numbers,
		terms:     p.Terms,
		cache:     p.Cache,
		metrics:   p.Metrics,
		logger:    p.Logger,
		now:       p.Now,
		validate:  shared.NewValidator(),

		defaultTerms: p.DefaultTermsDays,
	}
	if s.defaultTerms <= 0 {
		s.defaultTerms = defaultTermsDays
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.metrics == nil {
		s.metrics = noopRecorder{}
	}
	if s.cache == nil {
		s.cache = (*cache.Store)(nil)
	}
	return s
}

type noopRecorder struct{}

func (noopRecorder) DocumentCreated(string)    {}
func (noopRecorder) Transition(string, string) {}

func (s *Service) fail(ctx context.Context, op string, companyID, id int64, err error) error {
	return shared.WrapOperation(ctx, s.logger, entity, op, err,
		slog.Int64("company_id", companyID), slog.Int64("invoice_id", id))
}

// Create issues a new invoice: number, totals, header and items are written
// in one transaction and the stored invoice is returned.
func (s *Service) Create(ctx context.Context, companyID int64, req CreateInvoiceRequest, actor shared.Actor) (*Invoice, error) {
	inv, err := s.create(ctx, companyID, req, actor)
	if err != nil {
		return nil, s.fail(ctx, "create", companyID, 0, err)
	}
	return inv, nil
}

func (s *Service) create(ctx context.Context, companyID int64, req CreateInvoiceRequest, actor shared.Actor) (*Invoice, error) {
	if err := shared.ValidateStruct(s.validate, req); err != nil {
		return nil, err
	}
	if _, err := s.customers.LookupCustomer(ctx, companyID, req.CustomerID); err != nil {
		return nil, fmt.Errorf("verify customer: %w", err)
	}

	items, totals, err := lines.Resolve(ctx, s.products, companyID, req.Items)
	if err != nil {
		return nil, err
	}

	now := s.now()
	issueDate := dateOf(now)
	if req.IssueDate != nil {
		issueDate = dateOf(req.IssueDate.Time)
	}
	var dueDate time.Time
	if req.DueDate != nil {
		dueDate = dateOf(req.DueDate.Time)
	} else {
		days, err := s.paymentTerms(ctx, companyID)
		if err != nil {
			return nil, err
		}
		dueDate = issueDate.AddDate(0, 0, days)
	}
	if dueDate.Before(issueDate) {
		return nil, shared.FieldError("due_date", "must not be before issue_date")
	}

	status := req.Status
	if status == "" {
		status = StatusDraft
	}
	currency := req.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	invoice := Invoice{
		CompanyID:          companyID,
		CustomerID:         req.CustomerID,
		QuoteID:            req.QuoteID,
		Status:             status,
		PaymentStatus:      PaymentUnpaid,
		IssueDate:          issueDate,
		DueDate:            dueDate,
		Currency:           currency,
		DiscountPercentage: req.DiscountPercentage,
		DiscountAmount:     req.DiscountAmount,
		ShippingAmount:     req.ShippingAmount,
		Notes:              req.Notes,
		Conditions:         req.Conditions,
		AmountExcludingTax: totals.AmountExcludingTax,
		Tax:                totals.Tax,
		AmountIncludingTax: totals.AmountIncludingTax,
		CreatedBy:          actor.UserID,
	}

	var invoiceID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		number, err := s.numbers.NextNumber(ctx, companyID, sequence.KindInvoice)
		if err != nil {
			return err
		}
		invoice.InvoiceNumber = number

		id, err := repo.Create(ctx, invoice)
		if err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}
		invoiceID = id
		return insertItems(ctx, repo, id, items)
	})
	if err != nil {
		return nil, err
	}

	s.Invalidate(ctx, companyID, invoiceID)
	s.metrics.DocumentCreated(entity)
	s.logger.Info("invoice created",
		slog.Int64("company_id", companyID),
		slog.Int64("invoice_id", invoiceID),
		slog.String("invoice_number", invoice.InvoiceNumber))

	return s.repo.Get(ctx, companyID, invoiceID)
}

func insertItems(ctx context.Context, repo Repository, invoiceID int64, items []lines.Line) error {
	for _, line := range items {
		if _, err := repo.InsertItem(ctx, Item{InvoiceID: invoiceID, Line: line}); err != nil {
			return fmt.Errorf("insert invoice item: %w", err)
		}
	}
	return nil
}

func (s *Service) paymentTerms(ctx context.Context, companyID int64) (int, error) {
	if s.terms == nil {
		return s.defaultTerms, nil
	}
	days, err := s.terms.DefaultPaymentTerms(ctx, companyID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return s.defaultTerms, nil
		}
		return 0, fmt.Errorf("payment terms: %w", err)
	}
	return days, nil
}

// Update applies a patch. Items are replaced as a whole and totals recomputed.
func (s *Service) Update(ctx context.Context, companyID, id int64, req UpdateInvoiceRequest) (*Invoice, error) {
	inv, err := s.update(ctx, companyID, id, req)
	if err != nil {
		return nil, s.fail(ctx, "update", companyID, id, err)
	}
	return inv, nil
}

func (s *Service) update(ctx context.Context, companyID, id int64, req UpdateInvoiceRequest) (*Invoice, error) {
	if err := shared.ValidateStruct(s.validate, req); err != nil {
		return nil, err
	}
	existing, err := s.repo.Get(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if err := checkUpdatable(existing, req); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if req.CustomerID != nil && *req.CustomerID != existing.CustomerID {
		if _, err := s.customers.LookupCustomer(ctx, companyID, *req.CustomerID); err != nil {
			return nil, fmt.Errorf("verify customer: %w", err)
		}
		updates["customer_id"] = *req.CustomerID
	}
	issueDate, dueDate := existing.IssueDate, existing.DueDate
	if req.IssueDate != nil {
		issueDate = dateOf(req.IssueDate.Time)
		updates["issue_date"] = issueDate
	}
	if req.DueDate != nil {
		dueDate = dateOf(req.DueDate.Time)
		updates["due_date"] = dueDate
	}
	if dueDate.Before(issueDate) {
		return nil, shared.FieldError("due_date", "must not be before issue_date")
	}
	if req.Currency != nil {
		updates["currency"] = *req.Currency
	}
	if req.DiscountPercentage != nil {
		updates["discount_percentage"] = *req.DiscountPercentage
	}
	if req.DiscountAmount != nil {
		updates["discount_amount"] = *req.DiscountAmount
	}
	if req.ShippingAmount != nil {
		updates["shipping_amount"] = *req.ShippingAmount
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
	}
	if req.Conditions != nil {
		updates["conditions"] = *req.Conditions
	}
	if req.Status != nil && *req.Status != existing.Status {
		now := s.now()
		updates["status"] = *req.Status
		switch *req.Status {
		case StatusSent:
			if existing.SentAt == nil {
				updates["sent_at"] = now
			}
		case StatusCancelled:
			updates["cancelled_at"] = now
		}
	}

	var items []lines.Line
	if req.Items != nil {
		resolved, totals, err := lines.Resolve(ctx, s.products, companyID, *req.Items)
		if err != nil {
			return nil, err
		}
		items = resolved
		updates["amount_excluding_tax"] = totals.AmountExcludingTax
		updates["tax"] = totals.Tax
		updates["amount_including_tax"] = totals.AmountIncludingTax
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		current, err := repo.GetForUpdate(ctx, companyID, id)
		if err != nil {
			return err
		}
		if err := checkUpdatable(current, req); err != nil {
			return err
		}
		if err := repo.Update(ctx, companyID, id, updates); err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}
		if req.Items == nil {
			return nil
		}
		if err := repo.DeleteItems(ctx, id); err != nil {
			return fmt.Errorf("delete invoice items: %w", err)
		}
		return insertItems(ctx, repo, id, items)
	})
	if err != nil {
		return nil, err
	}

	s.Invalidate(ctx, companyID, id)
	return s.repo.Get(ctx, companyID, id)
}

// checkUpdatable rejects patches against final states. A paid invoice keeps
// its amounts and may only move on to refunded.
func checkUpdatable(inv *Invoice, req UpdateInvoiceRequest) error {
	switch {
	case inv.Status == StatusCancelled:
		return shared.InvoiceStatusError(string(inv.Status), "update")
	case inv.Status == StatusPaid && req.touchesMoney():
		return shared.InvoiceStatusError(string(inv.Status), "update items or amounts")
	case inv.Status == StatusPaid && req.Status != nil && *req.Status != StatusPaid && *req.Status != StatusRefunded:
		return shared.InvoiceStatusError(string(inv.Status), "change status")
	}
	return nil
}

// Delete removes an invoice. An invoice referenced by payments is
// soft-cancelled instead; a paid invoice cannot be deleted.
func (s *Service) Delete(ctx context.Context, companyID, id int64) (*DeleteResult, error) {
	res, err := s.delete(ctx, companyID, id)
	if err != nil {
		return nil, s.fail(ctx, "delete", companyID, id, err)
	}
	return res, nil
}

func (s *Service) delete(ctx context.Context, companyID, id int64) (*DeleteResult, error) {
	result := &DeleteResult{ID: id}
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		existing, err := repo.GetForUpdate(ctx, companyID, id)
		if err != nil {
			return err
		}
		if existing.Status == StatusPaid {
			return shared.InvoiceStatusError(string(existing.Status), "delete")
		}
		n, err := repo.CountPayments(ctx, id)
		if err != nil {
			return fmt.Errorf("count payments: %w", err)
		}
		if n > 0 {
			result.SoftCancelled = true
			return repo.Update(ctx, companyID, id, map[string]any{
				"status":       StatusCancelled,
				"cancelled_at": s.now(),
			})
		}
		return repo.Delete(ctx, companyID, id)
	})
	if err != nil {
		return nil, err
	}

	s.Invalidate(ctx, companyID, id)
	if result.SoftCancelled {
		s.metrics.Transition(entity, "cancel")
	}
	s.logger.Info("invoice deleted",
		slog.Int64("company_id", companyID),
		slog.Int64("invoice_id", id),
		slog.Bool("soft_cancelled", result.SoftCancelled))
	return result, nil
}

// MarkAsSent moves a draft or pending invoice to sent.
func (s *Service) MarkAsSent(ctx context.Context, companyID, id int64) (*Invoice, error) {
	inv, err := s.transition(ctx, companyID, id, "send", func(inv *Invoice) (map[string]any, error) {
		if inv.Status != StatusDraft && inv.Status != StatusPending {
			return nil, shared.InvoiceStatusError(string(inv.Status), "send")
		}
		return map[string]any{"status": StatusSent, "sent_at": s.now()}, nil
	})
	if err != nil {
		return nil, s.fail(ctx, "send", companyID, id, err)
	}
	return inv, nil
}

// Cancel moves an invoice to cancelled. Paid and cancelled invoices are final.
func (s *Service) Cancel(ctx context.Context, companyID, id int64) (*Invoice, error) {
	inv, err := s.transition(ctx, companyID, id, "cancel", func(inv *Invoice) (map[string]any, error) {
		if inv.Status == StatusPaid || inv.Status == StatusCancelled || inv.Status == StatusRefunded {
			return nil, shared.InvoiceStatusError(string(inv.Status), "cancel")
		}
		return map[string]any{"status": StatusCancelled, "cancelled_at": s.now()}, nil
	})
	if err != nil {
		return nil, s.fail(ctx, "cancel", companyID, id, err)
	}
	return inv, nil
}

func (s *Service) transition(ctx context.Context, companyID, id int64, action string, guard func(*Invoice) (map[string]any, error)) (*Invoice, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		existing, err := repo.GetForUpdate(ctx, companyID, id)
		if err != nil {
			return err
		}
		updates, err := guard(existing)
		if err != nil {
			return err
		}
		return repo.Update(ctx, companyID, id, updates)
	})
	if err != nil {
		return nil, err
	}
	s.Invalidate(ctx, companyID, id)
	s.metrics.Transition(entity, action)
	return s.repo.Get(ctx, companyID, id)
}

// MarkAsPaid sets payment_status to paid and, when data is given, records a
// Payment in the same transaction. Status is left untouched.
func (s *Service) MarkAsPaid(ctx context.Context, companyID, id int64, data *PaymentData, actor shared.Actor) (*Invoice, error) {
	inv, err := s.markAsPaid(ctx, companyID, id, data, actor)
	if err != nil {
		return nil, s.fail(ctx, "mark_paid", companyID, id, err)
	}
	return inv, nil
}

func (s *Service) markAsPaid(ctx context.Context, companyID, id int64, data *PaymentData, actor shared.Actor) (*Invoice, error) {
	if data != nil {
		if err := shared.ValidateStruct(s.validate, data); err != nil {
			return nil, err
		}
	}
	paidAt := s.now()
	if data != nil && data.PaymentDate != nil {
		paidAt = data.PaymentDate.Time
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		existing, err := repo.GetForUpdate(ctx, companyID, id)
		if err != nil {
			return err
		}
		if existing.PaymentStatus == PaymentPaid {
			return shared.InvoiceStatusError(string(existing.PaymentStatus), "mark as paid")
		}
		if existing.Status == StatusCancelled {
			return shared.InvoiceStatusError(string(existing.Status), "mark as paid")
		}
		if err := repo.Update(ctx, companyID, id, map[string]any{
			"payment_status": PaymentPaid,
			"paid_at":        paidAt,
		}); err != nil {
			return fmt.Errorf("update payment status: %w", err)
		}
		if data == nil {
			return nil
		}
		payment := Payment{
			InvoiceID:   id,
			CompanyID:   companyID,
			Amount:      existing.AmountIncludingTax,
			PaymentDate: dateOf(paidAt),
			Method:      data.Method,
			Reference:   data.Reference,
			Notes:       data.Notes,
			CreatedBy:   actor.UserID,
		}
		if data.Amount != nil {
			payment.Amount = *data.Amount
		}
		if payment.Method == "" {
			payment.Method = defaultPaymentRoute
		}
		if _, err := repo.InsertPayment(ctx, payment); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Invalidate(ctx, companyID, id)
	s.metrics.Transition(entity, "mark_paid")
	return s.repo.Get(ctx, companyID, id)
}

// BulkAction applies one action to each id independently and tallies the outcome.
func (s *Service) BulkAction(ctx context.Context, companyID int64, req BulkActionRequest, actor shared.Actor) (*BulkResult, error) {
	if err := shared.ValidateStruct(s.validate, req); err != nil {
		return nil, err
	}
	result := &BulkResult{Errors: []BulkError{}}
	for _, id := range req.IDs {
		var err error
		switch req.Action {
		case BulkSend:
			_, err = s.MarkAsSent(ctx, companyID, id)
		case BulkMarkPaid:
			_, err = s.MarkAsPaid(ctx, companyID, id, nil, actor)
		case BulkMarkCancelled:
			_, err = s.Cancel(ctx, companyID, id)
		case BulkDelete:
			_, err = s.Delete(ctx, companyID, id)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			result.Failed++
			result.Errors = append(result.Errors, BulkError{ID: id, Error: err.Error()})
			continue
		}
		result.Success++
	}
	s.logger.Info("invoice bulk action",
		slog.Int64("company_id", companyID),
		slog.String("action", req.Action),
		slog.Int("success", result.Success),
		slog.Int("failed", result.Failed))
	return result, nil
}

// Get returns one invoice with customer, items and payments.
func (s *Service) Get(ctx context.Context, companyID, id int64) (*Invoice, error) {
	var inv Invoice
	err := s.cache.Fetch(ctx, entityKey(companyID, id), &inv, func(ctx context.Context) (any, error) {
		return s.repo.Get(ctx, companyID, id)
	})
	if err != nil {
		return nil, s.fail(ctx, "get", companyID, id, err)
	}
	return &inv, nil
}

// List returns one page of invoices.
func (s *Service) List(ctx context.Context, companyID int64, req ListInvoicesRequest) (*shared.Page[Invoice], error) {
	req.Page, req.Limit = shared.NormalizePage(req.Page, req.Limit)
	var page shared.Page[Invoice]
	err := s.cache.Fetch(ctx, listKey(companyID, req), &page, func(ctx context.Context) (any, error) {
		invoices, total, err := s.repo.List(ctx, companyID, req)
		if err != nil {
			return nil, err
		}
		return shared.Page[Invoice]{Data: invoices, Pagination: shared.NewPagination(req.Page, req.Limit, total)}, nil
	})
	if err != nil {
		return nil, s.fail(ctx, "list", companyID, 0, err)
	}
	return &page, nil
}

// Stats returns the company's invoice aggregates.
func (s *Service) Stats(ctx context.Context, companyID int64) (*Stats, error) {
	var stats Stats
	err := s.cache.Fetch(ctx, statsKey(companyID), &stats, func(ctx context.Context) (any, error) {
		return s.repo.Stats(ctx, companyID, dateOf(s.now()))
	})
	if err != nil {
		return nil, s.fail(ctx, "stats", companyID, 0, err)
	}
	return &stats, nil
}

// MarkOverdue flips unpaid sent or pending invoices past their due date to
// overdue and returns how many changed.
func (s *Service) MarkOverdue(ctx context.Context, now time.Time) (int, error) {
	refs, err := s.repo.MarkOverdue(ctx, dateOf(now))
	if err != nil {
		return 0, s.fail(ctx, "mark_overdue", 0, 0, err)
	}
	for _, ref := range refs {
		s.Invalidate(ctx, ref.CompanyID, ref.ID)
		s.metrics.Transition(entity, "overdue")
	}
	return len(refs), nil
}

// Invalidate drops the entity, stats and list caches for an invoice.
func (s *Service) Invalidate(ctx context.Context, companyID, id int64) {
	if id > 0 {
		s.cache.Delete(ctx, entityKey(companyID, id), statsKey(companyID))
	} else {
		s.cache.Delete(ctx, statsKey(companyID))
	}
	s.cache.DeleteByPattern(ctx, listPattern(companyID))
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
