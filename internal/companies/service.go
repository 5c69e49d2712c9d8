package companies

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-billing/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

const defaultCountry = "FR"

// Cache is the best-effort read cache used for payment terms.
type Cache interface {
	Fetch(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
	Delete(ctx context.Context, keys ...string)
}

type ServiceParams struct {
	Repo   Repository
	Cache  Cache
	Logger *slog.Logger
}

type Service struct {
	repo     Repository
	cache    Cache
	logger   *slog.Logger
	validate *validator.Validate
}

func NewService(p ServiceParams) *Service {
	s := &Service{repo: p.Repo, cache: p.Cache, logger: p.Logger, validate: shared.NewValidator()}
	if s.cache == nil {
		s.cache = (*cache.Store)(nil)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

func termsKey(companyID int64) string {
	return fmt.Sprintf("billing:company:terms:%d", companyID)
}

func (s *Service) fail(ctx context.Context, op string, companyID int64, err error) error {
	return shared.WrapOperation(ctx, s.logger, "company", op, err, slog.Int64("company_id", companyID))
}

// Create registers a tenant together with its default settings row. Only
// administrators may create companies.
func (s *Service) Create(ctx context.Context, actor shared.Actor, req CreateCompanyRequest) (*Company, error) {
	if actor.Role != shared.RoleAdmin {
		return nil, shared.ErrForbidden
	}
	if err := shared.ValidateStruct(s.validate, req); err != nil {
		return nil, err
	}
	c := Company{
		Name:       strings.TrimSpace(req.Name),
		LegalName:  req.LegalName,
		Siret:      req.Siret,
		VATNumber:  req.VATNumber,
		Email:      req.Email,
		Phone:      req.Phone,
		Address:    req.Address,
		City:       req.City,
		PostalCode: req.PostalCode,
		Country:    req.Country,
	}
	if c.Country == "" {
		c.Country = defaultCountry
	}
	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		if id, err = repo.Create(ctx, c); err != nil {
			return err
		}
		return repo.UpsertSettings(ctx, id, nil)
	})
	if err != nil {
		return nil, s.fail(ctx, "create", 0, err)
	}
	s.logger.Info("company created", slog.Int64("company_id", id), slog.Int64("actor_id", actor.UserID))
	return s.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id int64) (*Company, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, "get", id, err)
	}
	return c, nil
}

func (s *Service) Update(ctx context.Context, id int64, req UpdateCompanyRequest) (*Company, error) {
	if err := shared.ValidateStruct(s.validate, req); err != nil {
		return nil, err
	}
	updates := map[string]any{}
	set := func(col string, v *string) {
		if v != nil {
			updates[col] = strings.TrimSpace(*v)
		}
	}
	set("name", req.Name)
	set("legal_name", req.LegalName)
	set("siret", req.Siret)
	set("vat_number", req.VATNumber)
	set("email", req.Email)
	set("phone", req.Phone)
	set("address", req.Address)
	set("city", req.City)
	set("postal_code", req.PostalCode)
	set("country", req.Country)
	if len(updates) == 0 {
		return s.Get(ctx, id)
	}
	if err := s.repo.Update(ctx, id, updates); err != nil {
		return nil, s.fail(ctx, "update", id, err)
	}
	return s.Get(ctx, id)
}

func (s *Service) GetSettings(ctx context.Context, companyID int64) (*Settings, error) {
	settings, err := s.repo.GetSettings(ctx, companyID)
	if err != nil {
		return nil, s.fail(ctx, "get_settings", companyID, err)
	}
	return settings, nil
}

func (s *Service) UpdateSettings(ctx context.Context, companyID int64, req UpdateSettingsRequest) (*Settings, error) {
	if err := shared.ValidateStruct(s.validate, req); err != nil {
		return nil, err
	}
	updates := map[string]any{}
	if req.InvoicePrefix != nil {
		updates["invoice_prefix"] = strings.ToUpper(*req.InvoicePrefix)
	}
	if req.QuotePrefix != nil {
		updates["quote_prefix"] = strings.ToUpper(*req.QuotePrefix)
	}
	if req.DefaultPaymentTermsDays != nil {
		updates["default_payment_terms_days"] = *req.DefaultPaymentTermsDays
	}
	if req.DefaultCurrency != nil {
		updates["default_currency"] = strings.ToUpper(*req.DefaultCurrency)
	}
	if req.DefaultConditions != nil {
		updates["default_conditions"] = *req.DefaultConditions
	}
	if err := s.repo.UpsertSettings(ctx, companyID, updates); err != nil {
		return nil, s.fail(ctx, "update_settings", companyID, err)
	}
	s.cache.Delete(ctx, termsKey(companyID))
	return s.GetSettings(ctx, companyID)
}

// DefaultPaymentTerms returns the company's configured terms in days. A
// company without a settings row reports NotFound so callers apply their own
// default.
func (s *Service) DefaultPaymentTerms(ctx context.Context, companyID int64) (int, error) {
	var days int
	err := s.cache.Fetch(ctx, termsKey(companyID), &days, func(ctx context.Context) (any, error) {
		settings, err := s.repo.GetSettings(ctx, companyID)
		if err != nil {
			return nil, err
		}
		return settings.DefaultPaymentTermsDays, nil
	})
	if err != nil {
		return 0, err
	}
	return days, nil
}
