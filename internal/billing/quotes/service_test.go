package quotes

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-billing/internal/billing/calc"
	"github.com/odyssey-erp/odyssey-billing/internal/billing/invoices"
	"github.com/odyssey-erp/odyssey-billing/internal/billing/lines"
	"github.com/odyssey-erp/odyssey-billing/internal/billing/sequence"
	"github.com/odyssey-erp/odyssey-billing/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	txMu     sync.Mutex
	mu       sync.Mutex
	quotes   map[int64]*Quote
	items    map[int64][]Item
	nextID   int64
	nextItem int64

	updateErr   error
	lockedReads int
}

func newMockRepository() *mockRepository {
	return &mockRepository{quotes: map[int64]*Quote{}, items: map[int64][]Item{}}
}

type mockTxKey struct{}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	m.mu.Lock()
	quotes := make(map[int64]Quote, len(m.quotes))
	for id, q := range m.quotes {
		quotes[id] = *q
	}
	items := make(map[int64][]Item, len(m.items))
	for id, it := range m.items {
		items[id] = append([]Item(nil), it...)
	}
	m.mu.Unlock()

	if err := fn(context.WithValue(ctx, mockTxKey{}, true), m); err != nil {
		m.mu.Lock()
		m.quotes = map[int64]*Quote{}
		for id, q := range quotes {
			q := q
			m.quotes[id] = &q
		}
		m.items = items
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *mockRepository) Get(_ context.Context, companyID, id int64) (*Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[id]
	if !ok || q.CompanyID != companyID {
		return nil, shared.NotFound("quote", id)
	}
	out := *q
	out.Items = append([]Item(nil), m.items[id]...)
	return &out, nil
}

func (m *mockRepository) GetForUpdate(ctx context.Context, companyID, id int64) (*Quote, error) {
	if ctx.Value(mockTxKey{}) == nil {
		return nil, errors.New("quotes: GetForUpdate outside a transaction")
	}
	m.mu.Lock()
	m.lockedReads++
	m.mu.Unlock()
	return m.Get(ctx, companyID, id)
}

func (m *mockRepository) List(_ context.Context, companyID int64, req ListQuotesRequest) ([]Quote, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Quote
	for id := int64(1); id <= m.nextID; id++ {
		q, ok := m.quotes[id]
		if !ok || q.CompanyID != companyID {
			continue
		}
		if req.Status != nil && q.Status != *req.Status {
			continue
		}
		out = append(out, *q)
	}
	return out, len(out), nil
}

func (m *mockRepository) Create(_ context.Context, q Quote) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	q.ID = m.nextID
	m.quotes[q.ID] = &q
	return q.ID, nil
}

func (m *mockRepository) Update(_ context.Context, companyID, id int64, updates map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	q, ok := m.quotes[id]
	if !ok || q.CompanyID != companyID {
		return shared.NotFound("quote", id)
	}
	for col, v := range updates {
		switch col {
		case "customer_id":
			q.CustomerID = v.(int64)
		case "status":
			q.Status = v.(Status)
		case "issue_date":
			q.IssueDate = v.(time.Time)
		case "validity_date":
			q.ValidityDate = v.(time.Time)
		case "currency":
			q.Currency = v.(string)
		case "discount_percentage":
			f := v.(float64)
			q.DiscountPercentage = &f
		case "discount_amount":
			f := v.(float64)
			q.DiscountAmount = &f
		case "shipping_amount":
			q.ShippingAmount = v.(float64)
		case "payment_terms_days":
			d := v.(int)
			q.PaymentTermsDays = &d
		case "notes":
			s := v.(string)
			q.Notes = &s
		case "conditions":
			s := v.(string)
			q.Conditions = &s
		case "amount_excluding_tax":
			q.AmountExcludingTax = v.(float64)
		case "tax":
			q.Tax = v.(float64)
		case "amount_including_tax":
			q.AmountIncludingTax = v.(float64)
		case "converted_to_invoice":
			q.ConvertedToInvoice = v.(bool)
		case "invoice_id":
			id := v.(int64)
			q.InvoiceID = &id
		case "sent_at", "viewed_at", "accepted_at", "rejected_at", "cancelled_at":
			t := v.(time.Time)
			switch col {
			case "sent_at":
				q.SentAt = &t
			case "viewed_at":
				q.ViewedAt = &t
			case "accepted_at":
				q.AcceptedAt = &t
			case "rejected_at":
				q.RejectedAt = &t
			case "cancelled_at":
				q.CancelledAt = &t
			}
		default:
			return fmt.Errorf("column %q is not updatable", col)
		}
	}
	return nil
}

func (m *mockRepository) Delete(_ context.Context, companyID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[id]
	if !ok || q.CompanyID != companyID {
		return shared.NotFound("quote", id)
	}
	delete(m.quotes, id)
	delete(m.items, id)
	return nil
}

func (m *mockRepository) InsertItem(_ context.Context, it Item) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextItem++
	it.ID = m.nextItem
	m.items[it.QuoteID] = append(m.items[it.QuoteID], it)
	return it.ID, nil
}

func (m *mockRepository) DeleteItems(_ context.Context, quoteID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, quoteID)
	return nil
}

func (m *mockRepository) Stats(_ context.Context, companyID int64) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &Stats{ByStatus: map[Status]StatusStat{}}
	for _, q := range m.quotes {
		if q.CompanyID != companyID {
			continue
		}
		stats.TotalCount++
		if q.ConvertedToInvoice {
			stats.ConvertedCount++
		}
	}
	return stats, nil
}

func (m *mockRepository) ExpireStale(_ context.Context, today time.Time) ([]ExpiredRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var refs []ExpiredRef
	for _, q := range m.quotes {
		switch q.Status {
		case StatusDraft, StatusPending, StatusSent, StatusViewed:
			if q.ValidityDate.Before(today) {
				q.Status = StatusExpired
				refs = append(refs, ExpiredRef{ID: q.ID, CompanyID: q.CompanyID})
			}
		}
	}
	return refs, nil
}

// ============================================================================
// STUBS
// ============================================================================

// fakeInvoices prices the request the way the invoice lifecycle does and
// records what it was asked to create.
type fakeInvoices struct {
	mu          sync.Mutex
	created     []invoices.CreateInvoiceRequest
	invalidated []int64
	err         error
	nextID      int64
}

func (f *fakeInvoices) Create(ctx context.Context, companyID int64, req invoices.CreateInvoiceRequest, actor shared.Actor) (*invoices.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	resolved, totals, err := lines.Resolve(ctx, nil, companyID, req.Items)
	if err != nil {
		return nil, err
	}
	f.created = append(f.created, req)
	f.nextID++
	inv := &invoices.Invoice{
		ID:                 f.nextID,
		CompanyID:          companyID,
		CustomerID:         req.CustomerID,
		QuoteID:            req.QuoteID,
		InvoiceNumber:      sequence.Format("INV", f.nextID),
		Status:             invoices.StatusDraft,
		PaymentStatus:      invoices.PaymentUnpaid,
		IssueDate:          req.IssueDate.Time,
		DueDate:            req.DueDate.Time,
		Currency:           req.Currency,
		ShippingAmount:     req.ShippingAmount,
		AmountExcludingTax: totals.AmountExcludingTax,
		Tax:                totals.Tax,
		AmountIncludingTax: totals.AmountIncludingTax,
		CreatedBy:          actor.UserID,
	}
	for _, line := range resolved {
		inv.Items = append(inv.Items, invoices.Item{InvoiceID: inv.ID, Line: line})
	}
	return inv, nil
}

func (f *fakeInvoices) Invalidate(_ context.Context, _ int64, id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, id)
}

type stubCustomers map[int64]*lines.Customer

func (s stubCustomers) LookupCustomer(_ context.Context, _ int64, id int64) (*lines.Customer, error) {
	c, ok := s[id]
	if !ok {
		return nil, shared.NotFound("customer", id)
	}
	return c, nil
}

type stubTerms struct {
	days int
	err  error
}

func (s stubTerms) DefaultPaymentTerms(context.Context, int64) (int, error) { return s.days, s.err }

// ============================================================================
// FIXTURE
// ============================================================================

const companyID int64 = 1

var fixedNow = time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	repo     *mockRepository
	invoices *fakeInvoices
	mr       *miniredis.Miniredis
	actor    shared.Actor
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		repo:     newMockRepository(),
		invoices: &fakeInvoices{},
		mr:       mr,
		actor:    shared.Actor{UserID: 7, Role: shared.RoleAccountant, CompanyID: companyID},
		now:      fixedNow,
	}
	f.svc = NewService(ServiceParams{
		Repo:      f.repo,
		Invoices:  f.invoices,
		Customers: stubCustomers{10: {ID: 10, Name: "Acme SARL"}},
		Numbers:   sequence.NewGenerator(sequence.NewMemoryStore()),
		Terms:     stubTerms{days: 45},
		Cache:     cache.NewStore(client, time.Minute, nil),
		Now:       func() time.Time { return f.now },
	})
	return f
}

func price(v float64) *float64 { return &v }

func workedExample() CreateQuoteRequest {
	return CreateQuoteRequest{
		CustomerID: 10,
		Items: []lines.Request{
			{Name: "Consulting", Quantity: 3, UnitPriceExcludingTax: price(100), VATRate: calc.VATStandard},
			{Name: "Books", Quantity: 1, UnitPriceExcludingTax: price(50), VATRate: calc.VATReduced2},
		},
	}
}

func (f *fixture) create(t *testing.T, req CreateQuoteRequest) *Quote {
	t.Helper()
	q, err := f.svc.Create(context.Background(), companyID, req, f.actor)
	require.NoError(t, err)
	return q
}

func (f *fixture) accepted(t *testing.T) *Quote {
	t.Helper()
	q := f.create(t, workedExample())
	_, err := f.svc.MarkAsSent(context.Background(), companyID, q.ID)
	require.NoError(t, err)
	q, err = f.svc.MarkAsAccepted(context.Background(), companyID, q.ID)
	require.NoError(t, err)
	return q
}

// ============================================================================
// CREATE / UPDATE / DELETE
// ============================================================================

func TestCreateQuoteComputesTotals(t *testing.T) {
	f := newFixture(t)

	q := f.create(t, workedExample())

	assert.Equal(t, "QUO-0001", q.QuoteNumber)
	assert.Equal(t, StatusDraft, q.Status)
	assert.InDelta(t, 350.0, q.AmountExcludingTax, 1e-9)
	assert.InDelta(t, 62.75, q.Tax, 1e-9)
	assert.InDelta(t, 412.75, q.AmountIncludingTax, 1e-9)
	assert.Equal(t, time.Date(2024, 4, 9, 0, 0, 0, 0, time.UTC), q.ValidityDate)
	assert.Len(t, q.Items, 2)
}

func TestCreateQuoteUnknownCustomer(t *testing.T) {
	f := newFixture(t)
	req := workedExample()
	req.CustomerID = 404

	_, err := f.svc.Create(context.Background(), companyID, req, f.actor)

	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Empty(t, f.repo.quotes)
}

func TestUpdateAcceptedQuoteLocked(t *testing.T) {
	f := newFixture(t)
	q := f.accepted(t)

	notes := "new scope"
	_, err := f.svc.Update(context.Background(), companyID, q.ID, UpdateQuoteRequest{Notes: &notes})
	var serr *shared.StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "QUOTE_STATUS_ERROR", serr.Code())
	assert.Equal(t, "accepted", serr.Current)

	rejected := StatusRejected
	updated, err := f.svc.Update(context.Background(), companyID, q.ID, UpdateQuoteRequest{Status: &rejected, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, updated.Status)
	assert.NotNil(t, updated.RejectedAt)
}

func TestUpdateAcceptedQuoteSameStatusStaysLocked(t *testing.T) {
	f := newFixture(t)
	q := f.accepted(t)
	accepted := StatusAccepted
	items := []lines.Request{{Name: "Discounted rework", Quantity: 1, UnitPriceExcludingTax: price(1)}}

	_, err := f.svc.Update(context.Background(), companyID, q.ID, UpdateQuoteRequest{Status: &accepted, Items: &items})

	var serr *shared.StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "accepted", serr.Current)
	got, err := f.repo.Get(context.Background(), companyID, q.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 2)
	assert.InDelta(t, 412.75, got.AmountIncludingTax, 1e-9)
}

func TestUpdateToAcceptedPastValidityFails(t *testing.T) {
	f := newFixture(t)
	q := f.create(t, workedExample())
	f.now = q.ValidityDate.AddDate(0, 0, 1)
	accepted := StatusAccepted

	_, err := f.svc.Update(context.Background(), companyID, q.ID, UpdateQuoteRequest{Status: &accepted})

	var serr *shared.StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "expired", serr.Current)
	got, err := f.repo.Get(context.Background(), companyID, q.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, got.Status)
	assert.Nil(t, got.AcceptedAt)

	_, _, err = f.svc.ConvertToInvoice(context.Background(), companyID, q.ID, ConversionData{}, f.actor)
	assert.ErrorIs(t, err, shared.ErrInvalidStatus)
	assert.Empty(t, f.invoices.created)
}

func TestUpdateToAcceptedWithinValidityStampsAcceptedAt(t *testing.T) {
	f := newFixture(t)
	q := f.create(t, workedExample())
	accepted := StatusAccepted

	updated, err := f.svc.Update(context.Background(), companyID, q.ID, UpdateQuoteRequest{Status: &accepted})
	require.NoError(t, err)

	assert.Equal(t, StatusAccepted, updated.Status)
	require.NotNil(t, updated.AcceptedAt)
	assert.Equal(t, fixedNow, *updated.AcceptedAt)
}

func TestConcurrentAcceptOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	q := f.create(t, workedExample())

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.MarkAsAccepted(context.Background(), companyID, q.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, rejected int
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, shared.ErrInvalidStatus)
		rejected++
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, callers-1, rejected)
}

func TestUpdateCannotSetConverted(t *testing.T) {
	f := newFixture(t)
	q := f.create(t, workedExample())
	converted := StatusConverted

	_, err := f.svc.Update(context.Background(), companyID, q.ID, UpdateQuoteRequest{Status: &converted})

	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateReplacesItems(t *testing.T) {
	f := newFixture(t)
	q := f.create(t, workedExample())

	items := []lines.Request{{Name: "Workshop", Quantity: 2, UnitPriceExcludingTax: price(500), VATRate: calc.VATZero}}
	updated, err := f.svc.Update(context.Background(), companyID, q.ID, UpdateQuoteRequest{Items: &items})
	require.NoError(t, err)

	require.Len(t, updated.Items, 1)
	assert.InDelta(t, 1000.0, updated.AmountIncludingTax, 1e-9)
	assert.InDelta(t, 0.0, updated.Tax, 1e-9)
}

func TestDeleteRules(t *testing.T) {
	f := newFixture(t)
	draft := f.create(t, workedExample())
	accepted := f.accepted(t)

	_, err := f.svc.Delete(context.Background(), companyID, accepted.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidStatus)

	res, err := f.svc.Delete(context.Background(), companyID, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, draft.ID, res.ID)
	assert.NotContains(t, f.repo.quotes, draft.ID)
}

// ============================================================================
// TRANSITIONS
// ============================================================================

func TestSendViewAccept(t *testing.T) {
	f := newFixture(t)
	q := f.create(t, workedExample())
	ctx := context.Background()

	_, err := f.svc.MarkAsViewed(ctx, companyID, q.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidStatus)

	q, err = f.svc.MarkAsSent(ctx, companyID, q.ID)
	require.NoError(t, err)
	q, err = f.svc.MarkAsViewed(ctx, companyID, q.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusViewed, q.Status)

	q, err = f.svc.MarkAsAccepted(ctx, companyID, q.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, q.Status)
	assert.Equal(t, fixedNow, *q.AcceptedAt)

	_, err = f.svc.MarkAsAccepted(ctx, companyID, q.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func TestAcceptPastValidityFails(t *testing.T) {
	f := newFixture(t)
	req := workedExample()
	req.IssueDate = &shared.Date{Time: fixedNow.AddDate(0, -2, 0)}
	req.ValidityDate = &shared.Date{Time: fixedNow.AddDate(0, 0, -1)}
	q := f.create(t, req)

	_, err := f.svc.MarkAsAccepted(context.Background(), companyID, q.ID)

	var serr *shared.StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "expired", serr.Current)
	got, _ := f.repo.Get(context.Background(), companyID, q.ID)
	assert.Equal(t, StatusDraft, got.Status)
}

func TestAcceptOnValidityDaySucceeds(t *testing.T) {
	f := newFixture(t)
	req := workedExample()
	req.ValidityDate = &shared.Date{Time: fixedNow}
	q := f.create(t, req)

	_, err := f.svc.MarkAsAccepted(context.Background(), companyID, q.ID)

	assert.NoError(t, err)
}

func TestRejectAndCancelNotFromAccepted(t *testing.T) {
	f := newFixture(t)
	q := f.accepted(t)

	_, err := f.svc.MarkAsRejected(context.Background(), companyID, q.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidStatus)
	_, err = f.svc.Cancel(context.Background(), companyID, q.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidStatus)

	other := f.create(t, workedExample())
	cancelled, err := f.svc.Cancel(context.Background(), companyID, other.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
}

func TestExpireStale(t *testing.T) {
	f := newFixture(t)
	stale := f.create(t, workedExample())
	accepted := f.accepted(t)

	n, err := f.svc.ExpireStale(context.Background(), stale.ValidityDate.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ := f.repo.Get(context.Background(), companyID, stale.ID)
	assert.Equal(t, StatusExpired, got.Status)
	got, _ = f.repo.Get(context.Background(), companyID, accepted.ID)
	assert.Equal(t, StatusAccepted, got.Status)
}

// ============================================================================
// CONVERSION
// ============================================================================

func TestConvertAcceptedQuote(t *testing.T) {
	f := newFixture(t)
	q := f.accepted(t)
	reads := f.repo.lockedReads

	converted, inv, err := f.svc.ConvertToInvoice(context.Background(), companyID, q.ID, ConversionData{}, f.actor)
	require.NoError(t, err)

	assert.Equal(t, StatusConverted, converted.Status)
	assert.True(t, converted.ConvertedToInvoice)
	require.NotNil(t, converted.InvoiceID)
	assert.Equal(t, inv.ID, *converted.InvoiceID)
	assert.Equal(t, q.ID, *inv.QuoteID)
	assert.Equal(t, q.CustomerID, inv.CustomerID)
	assert.InDelta(t, 350.0, inv.AmountExcludingTax, 1e-9)
	assert.InDelta(t, 62.75, inv.Tax, 1e-9)
	assert.InDelta(t, 412.75, inv.AmountIncludingTax, 1e-9)
	assert.Equal(t, time.Date(2024, 4, 24, 0, 0, 0, 0, time.UTC), inv.DueDate)
	assert.Equal(t, reads+1, f.repo.lockedReads)
	assert.Equal(t, []int64{inv.ID}, f.invoices.invalidated)

	sent := f.invoices.created[0]
	require.Len(t, sent.Items, 2)
	assert.Equal(t, "Consulting", sent.Items[0].Name)
	assert.Equal(t, calc.VATReduced2, sent.Items[1].VATRate)
	require.NotNil(t, sent.Items[1].SortOrder)
	assert.Equal(t, 1, *sent.Items[1].SortOrder)
}

func TestConvertPendingQuoteFails(t *testing.T) {
	f := newFixture(t)
	req := workedExample()
	req.Status = StatusPending
	q := f.create(t, req)

	_, _, err := f.svc.ConvertToInvoice(context.Background(), companyID, q.ID, ConversionData{}, f.actor)

	var serr *shared.StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "pending", serr.Current)
	assert.Empty(t, f.invoices.created)
}

func TestConvertIgnoresValidityOnceAccepted(t *testing.T) {
	f := newFixture(t)
	q := f.accepted(t)
	f.now = q.ValidityDate.AddDate(0, 1, 0)

	_, inv, err := f.svc.ConvertToInvoice(context.Background(), companyID, q.ID, ConversionData{}, f.actor)

	require.NoError(t, err)
	assert.NotNil(t, inv)
}

func TestConvertTwiceFailsWithoutMutation(t *testing.T) {
	f := newFixture(t)
	q := f.accepted(t)
	first, inv, err := f.svc.ConvertToInvoice(context.Background(), companyID, q.ID, ConversionData{}, f.actor)
	require.NoError(t, err)

	_, _, err = f.svc.ConvertToInvoice(context.Background(), companyID, q.ID, ConversionData{}, f.actor)

	var serr *shared.StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "converted", serr.Current)
	assert.Len(t, f.invoices.created, 1)
	again, _ := f.repo.Get(context.Background(), companyID, q.ID)
	assert.Equal(t, *first.InvoiceID, *again.InvoiceID)
	assert.Equal(t, inv.ID, *again.InvoiceID)
}

func TestConvertRollsBackWhenQuoteUpdateFails(t *testing.T) {
	f := newFixture(t)
	q := f.accepted(t)
	f.repo.mu.Lock()
	f.repo.updateErr = errors.New("deadlock detected")
	f.repo.mu.Unlock()

	_, _, err := f.svc.ConvertToInvoice(context.Background(), companyID, q.ID, ConversionData{}, f.actor)

	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrInternal)
	got, _ := f.repo.Get(context.Background(), companyID, q.ID)
	assert.Equal(t, StatusAccepted, got.Status)
	assert.False(t, got.ConvertedToInvoice)
	assert.Empty(t, f.invoices.invalidated)
}

func TestConvertFailsWhenInvoiceCreationFails(t *testing.T) {
	f := newFixture(t)
	q := f.accepted(t)
	f.invoices.err = shared.NewValidationError("customer archived", nil)

	_, _, err := f.svc.ConvertToInvoice(context.Background(), companyID, q.ID, ConversionData{}, f.actor)

	assert.ErrorIs(t, err, shared.ErrValidation)
	got, _ := f.repo.Get(context.Background(), companyID, q.ID)
	assert.Equal(t, StatusAccepted, got.Status)
	assert.Nil(t, got.InvoiceID)
}

func TestConvertDueDateResolution(t *testing.T) {
	terms := 10
	override := shared.Date{Time: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}

	cases := []struct {
		name      string
		quoteDays *int
		data      ConversionData
		terms     stubTerms
		want      time.Time
	}{
		{"explicit due date", nil, ConversionData{DueDate: &override}, stubTerms{days: 45}, override.Time},
		{"conversion terms", &terms, ConversionData{PaymentTermsDays: &terms}, stubTerms{days: 45}, time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)},
		{"quote terms", &terms, ConversionData{}, stubTerms{days: 45}, time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)},
		{"company terms", nil, ConversionData{}, stubTerms{days: 45}, time.Date(2024, 4, 24, 0, 0, 0, 0, time.UTC)},
		{"configured default", nil, ConversionData{}, stubTerms{err: shared.NotFound("company", 1)}, time.Date(2024, 4, 9, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.svc.terms = tc.terms
			req := workedExample()
			req.PaymentTermsDays = tc.quoteDays
			q := f.create(t, req)
			_, err := f.svc.MarkAsAccepted(context.Background(), companyID, q.ID)
			require.NoError(t, err)

			_, inv, err := f.svc.ConvertToInvoice(context.Background(), companyID, q.ID, tc.data, f.actor)
			require.NoError(t, err)
			assert.Equal(t, tc.want, inv.DueDate)
		})
	}
}

// ============================================================================
// CACHE
// ============================================================================

func TestTransitionsInvalidateCache(t *testing.T) {
	f := newFixture(t)
	q := f.create(t, workedExample())

	_, err := f.svc.Get(context.Background(), companyID, q.ID)
	require.NoError(t, err)
	_, err = f.svc.List(context.Background(), companyID, ListQuotesRequest{})
	require.NoError(t, err)
	assert.True(t, f.mr.Exists(entityKey(companyID, q.ID)))
	assert.Len(t, f.mr.Keys(), 2)

	_, err = f.svc.MarkAsSent(context.Background(), companyID, q.ID)
	require.NoError(t, err)
	assert.Empty(t, f.mr.Keys())

	got, err := f.svc.Get(context.Background(), companyID, q.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, got.Status)
}
