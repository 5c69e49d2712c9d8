package customers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

type mockRepository struct {
	mu        sync.Mutex
	customers map[int64]*Customer
	refs      map[int64]int
	nextID    int64
	listErr   error
}

func newMockRepository() *mockRepository {
	return &mockRepository{customers: map[int64]*Customer{}, refs: map[int64]int{}}
}

func (m *mockRepository) Get(_ context.Context, companyID, id int64) (*Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok || c.CompanyID != companyID {
		return nil, shared.NotFound("customer", id)
	}
	out := *c
	return &out, nil
}

func (m *mockRepository) List(_ context.Context, companyID int64, req ListCustomersRequest) ([]Customer, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	var out []Customer
	for id := int64(1); id <= m.nextID; id++ {
		c, ok := m.customers[id]
		if ok && c.CompanyID == companyID && strings.Contains(strings.ToLower(c.Name), strings.ToLower(req.Search)) {
			out = append(out, *c)
		}
	}
	return out, len(out), nil
}

func (m *mockRepository) Create(_ context.Context, c Customer) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.customers {
		if existing.CompanyID == c.CompanyID && existing.Email != nil && c.Email != nil && *existing.Email == *c.Email {
			return 0, &shared.DuplicateError{Entity: "customer", Field: "email"}
		}
	}
	m.nextID++
	c.ID = m.nextID
	m.customers[c.ID] = &c
	return c.ID, nil
}

func (m *mockRepository) Update(_ context.Context, companyID, id int64, updates map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok || c.CompanyID != companyID {
		return shared.NotFound("customer", id)
	}
	for col, v := range updates {
		s := v.(string)
		switch col {
		case "name":
			c.Name = s
		case "email":
			c.Email = &s
		case "city":
			c.City = &s
		}
	}
	return nil
}

func (m *mockRepository) Delete(_ context.Context, companyID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.customers, id)
	return nil
}

func (m *mockRepository) CountReferences(_ context.Context, id int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refs[id], nil
}

func str(s string) *string { return &s }

func TestCreateCustomerNormalizesEmail(t *testing.T) {
	svc := NewService(newMockRepository(), nil)

	c, err := svc.Create(context.Background(), 1, CreateCustomerRequest{Name: "  Acme SARL ", Email: str(" Billing@Acme.FR ")})
	require.NoError(t, err)

	assert.Equal(t, "Acme SARL", c.Name)
	assert.Equal(t, "billing@acme.fr", *c.Email)
}

func TestCreateCustomerDuplicateEmail(t *testing.T) {
	svc := NewService(newMockRepository(), nil)
	_, err := svc.Create(context.Background(), 1, CreateCustomerRequest{Name: "Acme", Email: str("ops@acme.fr")})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), 1, CreateCustomerRequest{Name: "Acme bis", Email: str("OPS@acme.fr")})

	assert.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestCreateCustomerValidation(t *testing.T) {
	svc := NewService(newMockRepository(), nil)

	_, err := svc.Create(context.Background(), 1, CreateCustomerRequest{Email: str("not-an-email"), Siret: str("123")})

	var verr *shared.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "name")
	assert.Contains(t, verr.Fields, "email")
	assert.Contains(t, verr.Fields, "siret")
}

func TestCustomerIsolatedByCompany(t *testing.T) {
	svc := NewService(newMockRepository(), nil)
	c, err := svc.Create(context.Background(), 1, CreateCustomerRequest{Name: "Acme"})
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), 2, c.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.LookupCustomer(context.Background(), 2, c.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUpdateCustomer(t *testing.T) {
	svc := NewService(newMockRepository(), nil)
	c, err := svc.Create(context.Background(), 1, CreateCustomerRequest{Name: "Acme"})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), 1, c.ID, UpdateCustomerRequest{City: str("Lyon")})
	require.NoError(t, err)
	assert.Equal(t, "Lyon", *updated.City)
}

func TestDeleteReferencedCustomerRejected(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)
	c, err := svc.Create(context.Background(), 1, CreateCustomerRequest{Name: "Acme"})
	require.NoError(t, err)
	repo.refs[c.ID] = 2

	err = svc.Delete(context.Background(), 1, c.ID)
	assert.ErrorIs(t, err, shared.ErrValidation)

	repo.refs[c.ID] = 0
	require.NoError(t, svc.Delete(context.Background(), 1, c.ID))
	_, err = svc.Get(context.Background(), 1, c.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestListHidesInfrastructureErrors(t *testing.T) {
	repo := newMockRepository()
	repo.listErr = errors.New("dial tcp 10.0.0.5:5432: connection refused")
	svc := NewService(repo, nil)

	_, err := svc.List(context.Background(), 1, ListCustomersRequest{})

	assert.ErrorIs(t, err, shared.ErrInternal)
	assert.Equal(t, "customer operation failed", err.Error())
}

func TestLookupCustomerSummary(t *testing.T) {
	svc := NewService(newMockRepository(), nil)
	c, err := svc.Create(context.Background(), 1, CreateCustomerRequest{Name: "Acme", Email: str("a@acme.fr")})
	require.NoError(t, err)

	summary, err := svc.LookupCustomer(context.Background(), 1, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", summary.Name)
	assert.Equal(t, "a@acme.fr", *summary.Email)
}
