package quotes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-billing/internal/billing/invoices"
	"github.com/odyssey-erp/odyssey-billing/internal/billing/lines"
	"github.com/odyssey-erp/odyssey-billing/internal/billing/sequence"
	"github.com/odyssey-erp/odyssey-billing/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

const (
	entity               = "quote"
	defaultCurrency      = "EUR"
	defaultValidityDays  = 30
	defaultTermsFallback = 30
)

// InvoiceCreator is the part of the invoice lifecycle a conversion relies on.
type InvoiceCreator interface {
	Create(ctx context.Context, companyID int64, req invoices.CreateInvoiceRequest, actor shared.Actor) (*invoices.Invoice, error)
	Invalidate(ctx context.Context, companyID, id int64)
}

type ServiceParams struct {
	Repo      Repository
	Invoices  InvoiceCreator
	Customers lines.CustomerLookup
	Products  lines.ProductLookup
	Numbers   invoices.NumberGenerator
	Terms     invoices.TermsLookup
	Cache     invoices.Cache
	Metrics   invoices.Recorder
	Logger    *slog.Logger
	Now       func() time.Time
	// DefaultTermsDays applies to conversions when neither the quote nor the
	// company carries payment terms.
	DefaultTermsDays int
}

type Service struct {
	repo      Repository
	invoices  InvoiceCreator
	customers lines.CustomerLookup
	products  lines.ProductLookup
	numbers   invoices.NumberGenerator
	terms     invoices.TermsLookup
	cache     invoices.Cache
	metrics   invoices.Recorder
	logger    *slog.Logger
	now       func() time.Time
	validate  *validator.Validate

	defaultTerms int
}

func NewService(p ServiceParams) *Service {
	s := &Service{
		repo:      p.Repo,
		invoices:  p.Invoices,
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
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.cache == nil {
		s.cache = (*cache.Store)(nil)
	}
	if s.metrics == nil {
		s.metrics = noopRecorder{}
	}
	if s.defaultTerms <= 0 {
		s.defaultTerms = defaultTermsFallback
	}
	return s
}

type noopRecorder struct{}

func (noopRecorder) DocumentCreated(string)    {}
func (noopRecorder) Transition(string, string) {}

func (s *Service) fail(ctx context.Context, op string, companyID, id int64, err error) error {
	return shared.WrapOperation(ctx, s.logger, entity, op, err,
		slog.Int64("company_id", companyID), slog.Int64("quote_id", id))
}

// Create prices the items, draws a quote number and stores the quote.
func (s *Service) Create(ctx context.Context, companyID int64, req CreateQuoteRequest, actor shared.Actor) (*Quote, error) {
	q, err := s.create(ctx, companyID, req, actor)
	if err != nil {
		return nil, s.fail(ctx, "create", companyID, 0, err)
	}
	return q, nil
}

func (s *Service) create(ctx context.Context, companyID int64, req CreateQuoteRequest, actor shared.Actor) (*Quote, error) {
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

	issueDate := dateOf(s.now())
	if req.IssueDate != nil {
		issueDate = dateOf(req.IssueDate.Time)
	}
	validity := issueDate.AddDate(0, 0, defaultValidityDays)
	if req.ValidityDate != nil {
		validity = dateOf(req.ValidityDate.Time)
	}
	if validity.Before(issueDate) {
		return nil, shared.FieldError("validity_date", "must not be before issue_date")
	}

	status := req.Status
	if status == "" {
		status = StatusDraft
	}
	currency := req.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	quote := Quote{
		CompanyID:          companyID,
		CustomerID:         req.CustomerID,
		Status:             status,
		IssueDate:          issueDate,
		ValidityDate:       validity,
		Currency:           currency,
		DiscountPercentage: req.DiscountPercentage,
		DiscountAmount:     req.DiscountAmount,
		ShippingAmount:     req.ShippingAmount,
		PaymentTermsDays:   req.PaymentTermsDays,
		Notes:              req.Notes,
		Conditions:         req.Conditions,
		AmountExcludingTax: totals.AmountExcludingTax,
		Tax:                totals.Tax,
		AmountIncludingTax: totals.AmountIncludingTax,
		CreatedBy:          actor.UserID,
	}

	var quoteID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		number, err := s.numbers.NextNumber(ctx, companyID, sequence.KindQuote)
		if err != nil {
			return err
		}
		quote.QuoteNumber = number
		id, err := repo.Create(ctx, quote)
		if err != nil {
			return fmt.Errorf("create quote: %w", err)
		}
		quoteID = id
		return insertItems(ctx, repo, id, items)
	})
	if err != nil {
		return nil, err
	}

	s.Invalidate(ctx, companyID, quoteID)
	s.metrics.DocumentCreated(entity)
	s.logger.Info("quote created",
		slog.Int64("company_id", companyID),
		slog.Int64("quote_id", quoteID),
		slog.String("quote_number", quote.QuoteNumber))
	return s.repo.Get(ctx, companyID, quoteID)
}

func insertItems(ctx context.Context, repo Repository, quoteID int64, items []lines.Line) error {
	for _, line := range items {
		if _, err := repo.InsertItem(ctx, Item{QuoteID: quoteID, Line: line}); err != nil {
			return fmt.Errorf("insert quote item: %w", err)
		}
	}
	return nil
}

// Update applies a patch. Accepted quotes only take patches that move them to
// another status; converted quotes take none.
func (s *Service) Update(ctx context.Context, companyID, id int64, req UpdateQuoteRequest) (*Quote, error) {
	q, err := s.update(ctx, companyID, id, req)
	if err != nil {
		return nil, s.fail(ctx, "update", companyID, id, err)
	}
	return q, nil
}

func (s *Service) update(ctx context.Context, companyID, id int64, req UpdateQuoteRequest) (*Quote, error) {
	if err := shared.ValidateStruct(s.validate, req); err != nil {
		return nil, err
	}
	if req.Status != nil && *req.Status == StatusConverted {
		return nil, shared.FieldError("status", "converted is set by conversion only")
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
	issueDate, validity := existing.IssueDate, existing.ValidityDate
	if req.IssueDate != nil {
		issueDate = dateOf(req.IssueDate.Time)
		updates["issue_date"] = issueDate
	}
	if req.ValidityDate != nil {
		validity = dateOf(req.ValidityDate.Time)
		updates["validity_date"] = validity
	}
	if validity.Before(issueDate) {
		return nil, shared.FieldError("validity_date", "must not be before issue_date")
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
	if req.PaymentTermsDays != nil {
		updates["payment_terms_days"] = *req.PaymentTermsDays
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
	}
	if req.Conditions != nil {
		updates["conditions"] = *req.Conditions
	}
	if req.Status != nil && *req.Status != existing.Status {
		now := s.now()
		if *req.Status == StatusAccepted && validity.Before(dateOf(now)) {
			return nil, shared.QuoteStatusError(string(StatusExpired), "accept")
		}
		updates["status"] = *req.Status
		if col := stampColumn(*req.Status); col != "" {
			updates[col] = now
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
			return fmt.Errorf("update quote: %w", err)
		}
		if req.Items == nil {
			return nil
		}
		if err := repo.DeleteItems(ctx, id); err != nil {
			return fmt.Errorf("delete quote items: %w", err)
		}
		return insertItems(ctx, repo, id, items)
	})
	if err != nil {
		return nil, err
	}

	s.Invalidate(ctx, companyID, id)
	return s.repo.Get(ctx, companyID, id)
}

// checkUpdatable rejects edits to converted quotes, and to accepted quotes
// unless the patch moves them to another status.
func checkUpdatable(q *Quote, req UpdateQuoteRequest) error {
	if q.Status == StatusConverted || q.ConvertedToInvoice {
		return shared.QuoteStatusError(string(q.Status), "update")
	}
	if q.Status.locked() && (req.Status == nil || *req.Status == q.Status) {
		return shared.QuoteStatusError(string(q.Status), "update")
	}
	return nil
}

func stampColumn(status Status) string {
	switch status {
	case StatusSent:
		return "sent_at"
	case StatusViewed:
		return "viewed_at"
	case StatusAccepted:
		return "accepted_at"
	case StatusRejected:
		return "rejected_at"
	case StatusCancelled:
		return "cancelled_at"
	}
	return ""
}

// Delete removes a quote that was never accepted or converted.
func (s *Service) Delete(ctx context.Context, companyID, id int64) (*DeleteResult, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		existing, err := repo.GetForUpdate(ctx, companyID, id)
		if err != nil {
			return err
		}
		if existing.Status.locked() || existing.ConvertedToInvoice {
			return shared.QuoteStatusError(string(existing.Status), "delete")
		}
		return repo.Delete(ctx, companyID, id)
	})
	if err != nil {
		return nil, s.fail(ctx, "delete", companyID, id, err)
	}
	s.Invalidate(ctx, companyID, id)
	s.logger.Info("quote deleted", slog.Int64("company_id", companyID), slog.Int64("quote_id", id))
	return &DeleteResult{ID: id}, nil
}

// MarkAsSent moves a draft or pending quote to sent.
func (s *Service) MarkAsSent(ctx context.Context, companyID, id int64) (*Quote, error) {
	return s.transition(ctx, companyID, id, "send", func(q *Quote) (map[string]any, error) {
		if q.Status != StatusDraft && q.Status != StatusPending {
			return nil, shared.QuoteStatusError(string(q.Status), "send")
		}
		return map[string]any{"status": StatusSent, "sent_at": s.now()}, nil
	})
}

// MarkAsViewed records that the customer opened a sent quote.
func (s *Service) MarkAsViewed(ctx context.Context, companyID, id int64) (*Quote, error) {
	return s.transition(ctx, companyID, id, "view", func(q *Quote) (map[string]any, error) {
		if q.Status != StatusSent {
			return nil, shared.QuoteStatusError(string(q.Status), "view")
		}
		return map[string]any{"status": StatusViewed, "viewed_at": s.now()}, nil
	})
}

// MarkAsAccepted accepts a quote whose validity date has not passed.
func (s *Service) MarkAsAccepted(ctx context.Context, companyID, id int64) (*Quote, error) {
	return s.transition(ctx, companyID, id, "accept", func(q *Quote) (map[string]any, error) {
		if q.Status.locked() {
			return nil, shared.QuoteStatusError(string(q.Status), "accept")
		}
		now := s.now()
		if q.ValidityDate.Before(dateOf(now)) {
			return nil, shared.QuoteStatusError(string(StatusExpired), "accept")
		}
		return map[string]any{"status": StatusAccepted, "accepted_at": now}, nil
	})
}

// MarkAsRejected records the customer's refusal.
func (s *Service) MarkAsRejected(ctx context.Context, companyID, id int64) (*Quote, error) {
	return s.transition(ctx, companyID, id, "reject", func(q *Quote) (map[string]any, error) {
		if q.Status.locked() || q.Status == StatusRejected {
			return nil, shared.QuoteStatusError(string(q.Status), "reject")
		}
		return map[string]any{"status": StatusRejected, "rejected_at": s.now()}, nil
	})
}

// Cancel withdraws a quote that has not been accepted.
func (s *Service) Cancel(ctx context.Context, companyID, id int64) (*Quote, error) {
	return s.transition(ctx, companyID, id, "cancel", func(q *Quote) (map[string]any, error) {
		if q.Status.locked() || q.Status == StatusCancelled {
			return nil, shared.QuoteStatusError(string(q.Status), "cancel")
		}
		return map[string]any{"status": StatusCancelled, "cancelled_at": s.now()}, nil
	})
}

func (s *Service) transition(ctx context.Context, companyID, id int64, action string, guard func(*Quote) (map[string]any, error)) (*Quote, error) {
	q, err := func() (*Quote, error) {
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
	}()
	if err != nil {
		return nil, s.fail(ctx, action, companyID, id, err)
	}
	return q, nil
}

// ConvertToInvoice turns an accepted quote into an invoice exactly once. The
// invoice creation and the quote update share one transaction.
func (s *Service) ConvertToInvoice(ctx context.Context, companyID, id int64, data ConversionData, actor shared.Actor) (*Quote, *invoices.Invoice, error) {
	q, inv, err := s.convert(ctx, companyID, id, data, actor)
	if err != nil {
		return nil, nil, s.fail(ctx, "convert", companyID, id, err)
	}
	return q, inv, nil
}

func (s *Service) convert(ctx context.Context, companyID, id int64, data ConversionData, actor shared.Actor) (*Quote, *invoices.Invoice, error) {
	if err := shared.ValidateStruct(s.validate, data); err != nil {
		return nil, nil, err
	}

	var invoice *invoices.Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		q, err := repo.GetForUpdate(ctx, companyID, id)
		if err != nil {
			return err
		}
		if q.ConvertedToInvoice || q.Status == StatusConverted {
			return shared.QuoteStatusError(string(StatusConverted), "convert")
		}
		if q.Status != StatusAccepted {
			return shared.QuoteStatusError(string(q.Status), "convert")
		}

		req, err := s.invoiceRequest(ctx, q, data)
		if err != nil {
			return err
		}
		invoice, err = s.invoices.Create(ctx, companyID, req, actor)
		if err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}
		return repo.Update(ctx, companyID, id, map[string]any{
			"status":               StatusConverted,
			"converted_to_invoice": true,
			"invoice_id":           invoice.ID,
		})
	})
	if err != nil {
		return nil, nil, err
	}

	s.Invalidate(ctx, companyID, id)
	s.invoices.Invalidate(ctx, companyID, invoice.ID)
	s.metrics.Transition(entity, "convert")
	s.logger.Info("quote converted",
		slog.Int64("company_id", companyID),
		slog.Int64("quote_id", id),
		slog.Int64("invoice_id", invoice.ID),
		slog.String("invoice_number", invoice.InvoiceNumber))

	q, err := s.repo.Get(ctx, companyID, id)
	if err != nil {
		return nil, nil, err
	}
	return q, invoice, nil
}

func (s *Service) invoiceRequest(ctx context.Context, q *Quote, data ConversionData) (invoices.CreateInvoiceRequest, error) {
	issue := dateOf(s.now())
	if data.IssueDate != nil {
		issue = dateOf(data.IssueDate.Time)
	}
	due := data.DueDate
	if due == nil {
		days, err := s.conversionTerms(ctx, q, data)
		if err != nil {
			return invoices.CreateInvoiceRequest{}, err
		}
		due = &shared.Date{Time: dateOf(s.now()).AddDate(0, 0, days)}
	}

	items := make([]lines.Request, 0, len(q.Items))
	for _, it := range q.Items {
		items = append(items, it.Request())
	}
	quoteID := q.ID
	return invoices.CreateInvoiceRequest{
		CustomerID:         q.CustomerID,
		QuoteID:            &quoteID,
		Status:             invoices.StatusDraft,
		IssueDate:          &shared.Date{Time: issue},
		DueDate:            due,
		Currency:           q.Currency,
		DiscountPercentage: q.DiscountPercentage,
		DiscountAmount:     q.DiscountAmount,
		ShippingAmount:     q.ShippingAmount,
		Notes:              q.Notes,
		Conditions:         q.Conditions,
		Items:              items,
	}, nil
}

// conversionTerms picks payment terms: override, quote, company, configured default.
func (s *Service) conversionTerms(ctx context.Context, q *Quote, data ConversionData) (int, error) {
	if data.PaymentTermsDays != nil {
		return *data.PaymentTermsDays, nil
	}
	if q.PaymentTermsDays != nil {
		return *q.PaymentTermsDays, nil
	}
	if s.terms == nil {
		return s.defaultTerms, nil
	}
	days, err := s.terms.DefaultPaymentTerms(ctx, q.CompanyID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return s.defaultTerms, nil
		}
		return 0, fmt.Errorf("payment terms: %w", err)
	}
	return days, nil
}

// Get returns one quote with customer and items.
func (s *Service) Get(ctx context.Context, companyID, id int64) (*Quote, error) {
	var q Quote
	err := s.cache.Fetch(ctx, entityKey(companyID, id), &q, func(ctx context.Context) (any, error) {
		return s.repo.Get(ctx, companyID, id)
	})
	if err != nil {
		return nil, s.fail(ctx, "get", companyID, id, err)
	}
	return &q, nil
}

// List returns one page of quotes.
func (s *Service) List(ctx context.Context, companyID int64, req ListQuotesRequest) (*shared.Page[Quote], error) {
	req.Page, req.Limit = shared.NormalizePage(req.Page, req.Limit)
	var page shared.Page[Quote]
	err := s.cache.Fetch(ctx, listKey(companyID, req), &page, func(ctx context.Context) (any, error) {
		quotes, total, err := s.repo.List(ctx, companyID, req)
		if err != nil {
			return nil, err
		}
		return shared.Page[Quote]{Data: quotes, Pagination: shared.NewPagination(req.Page, req.Limit, total)}, nil
	})
	if err != nil {
		return nil, s.fail(ctx, "list", companyID, 0, err)
	}
	return &page, nil
}

// Stats returns the company's quote aggregates.
func (s *Service) Stats(ctx context.Context, companyID int64) (*Stats, error) {
	var stats Stats
	err := s.cache.Fetch(ctx, statsKey(companyID), &stats, func(ctx context.Context) (any, error) {
		return s.repo.Stats(ctx, companyID)
	})
	if err != nil {
		return nil, s.fail(ctx, "stats", companyID, 0, err)
	}
	return &stats, nil
}

// ExpireStale moves open quotes past their validity date to expired.
func (s *Service) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	refs, err := s.repo.ExpireStale(ctx, dateOf(now))
	if err != nil {
		return 0, s.fail(ctx, "expire", 0, 0, err)
	}
	for _, ref := range refs {
		s.Invalidate(ctx, ref.CompanyID, ref.ID)
		s.metrics.Transition(entity, "expire")
	}
	return len(refs), nil
}

// Invalidate drops the entity, stats and list caches for a quote.
func (s *Service) Invalidate(ctx context.Context, companyID, id int64) {
	s.cache.Delete(ctx, entityKey(companyID, id), statsKey(companyID))
	s.cache.DeleteByPattern(ctx, listPattern(companyID))
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
