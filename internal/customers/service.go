package customers

import (
	"context"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-billing/internal/billing/lines"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

type Service struct {
	repo     Repository
	logger   *slog.Logger
	validate *validator.Validate
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, validate: shared.NewValidator()}
}

func (s *Service) fail(ctx context.Context, op string, companyID, id int64, err error) error {
	return shared.WrapOperation(ctx, s.logger, "customer", op, err,
		slog.Int64("company_id", companyID), slog.Int64("customer_id", id))
}

func (s *Service) Create(ctx context.Context, companyID int64, req CreateCustomerRequest) (*Customer, error) {
	if err := shared.ValidateStruct(s.validate, req); err != nil {
		return nil, err
	}
	c := Customer{
		CompanyID:  companyID,
		Name:       strings.TrimSpace(req.Name),
		Email:      normalizeEmail(req.Email),
		Phone:      req.Phone,
		Siret:      req.Siret,
		VATNumber:  req.VATNumber,
		Address:    req.Address,
		City:       req.City,
		PostalCode: req.PostalCode,
		Country:    req.Country,
		Notes:      req.Notes,
	}
	id, err := s.repo.Create(ctx, c)
	if err != nil {
		return nil, s.fail(ctx, "create", companyID, 0, err)
	}
	s.logger.Info("customer created", slog.Int64("company_id", companyID), slog.Int64("customer_id", id))
	return s.Get(ctx, companyID, id)
}

func (s *Service) Get(ctx context.Context, companyID, id int64) (*Customer, error) {
	c, err := s.repo.Get(ctx, companyID, id)
	if err != nil {
		return nil, s.fail(ctx, "get", companyID, id, err)
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, companyID int64, req ListCustomersRequest) (*shared.Page[Customer], error) {
	req.Page, req.Limit = shared.NormalizePage(req.Page, req.Limit)
	customers, total, err := s.repo.List(ctx, companyID, req)
	if err != nil {
		return nil, s.fail(ctx, "list", companyID, 0, err)
	}
	return &shared.Page[Customer]{Data: customers, Pagination: shared.NewPagination(req.Page, req.Limit, total)}, nil
}

func (s *Service) Update(ctx context.Context, companyID, id int64, req UpdateCustomerRequest) (*Customer, error) {
	if err := shared.ValidateStruct(s.validate, req); err != nil {
		return nil, err
	}
	updates := map[string]any{}
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		updates["email"] = *normalizeEmail(req.Email)
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.Siret != nil {
		updates["siret"] = *req.Siret
	}
	if req.VATNumber != nil {
		updates["vat_number"] = *req.VATNumber
	}
	if req.Address != nil {
		updates["address"] = *req.Address
	}
	if req.City != nil {
		updates["city"] = *req.City
	}
	if req.PostalCode != nil {
		updates["postal_code"] = *req.PostalCode
	}
	if req.Country != nil {
		updates["country"] = *req.Country
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
	}
	if len(updates) == 0 {
		return s.Get(ctx, companyID, id)
	}
	if err := s.repo.Update(ctx, companyID, id, updates); err != nil {
		return nil, s.fail(ctx, "update", companyID, id, err)
	}
	return s.Get(ctx, companyID, id)
}

// Delete removes a customer no invoice or quote refers to.
func (s *Service) Delete(ctx context.Context, companyID, id int64) error {
	if _, err := s.repo.Get(ctx, companyID, id); err != nil {
		return s.fail(ctx, "delete", companyID, id, err)
	}
	n, err := s.repo.CountReferences(ctx, id)
	if err != nil {
		return s.fail(ctx, "delete", companyID, id, err)
	}
	if n > 0 {
		return shared.NewValidationError("customer has invoices or quotes and cannot be deleted",
			map[string]string{"id": "referenced by invoices or quotes"})
	}
	if err := s.repo.Delete(ctx, companyID, id); err != nil {
		return s.fail(ctx, "delete", companyID, id, err)
	}
	s.logger.Info("customer deleted", slog.Int64("company_id", companyID), slog.Int64("customer_id", id))
	return nil
}

// LookupCustomer returns the summary embedded in invoices and quotes.
func (s *Service) LookupCustomer(ctx context.Context, companyID, id int64) (*lines.Customer, error) {
	c, err := s.repo.Get(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	return &lines.Customer{ID: c.ID, Name: c.Name, Email: c.Email}, nil
}

var _ lines.CustomerLookup = (*Service)(nil)

func normalizeEmail(email *string) *string {
	if email == nil {
		return nil
	}
	v := strings.ToLower(strings.TrimSpace(*email))
	return &v
}
