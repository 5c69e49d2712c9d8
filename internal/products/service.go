package products

import (
	"context"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-billing/internal/billing/calc"
	"github.com/odyssey-erp/odyssey-billing/internal/billing/lines"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

const defaultUnit = "unit"

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
	return shared.WrapOperation(ctx, s.logger, "product", op, err,
		slog.Int64("company_id", companyID), slog.Int64("product_id", id))
}

func (s *Service) Create(ctx context.Context, companyID int64, req CreateProductRequest) (*Product, error) {
	if err := shared.ValidateStruct(s.validate, req); err != nil {
		return nil, err
	}
	p := Product{
		CompanyID:             companyID,
		SKU:                   strings.TrimSpace(req.SKU),
		Name:                  strings.TrimSpace(req.Name),
		Description:           req.Description,
		Unit:                  req.Unit,
		UnitPriceExcludingTax: calc.Round2(req.UnitPriceExcludingTax),
		VATRate:               req.VATRate,
		StockQuantity:         req.StockQuantity,
		IsActive:              true,
	}
	if p.Unit == "" {
		p.Unit = defaultUnit
	}
	if p.VATRate == "" {
		p.VATRate = calc.VATStandard
	}
	id, err := s.repo.Create(ctx, p)
	if err != nil {
		return nil, s.fail(ctx, "create", companyID, 0, err)
	}
	s.logger.Info("product created", slog.Int64("company_id", companyID), slog.Int64("product_id", id),
		slog.String("sku", p.SKU))
	return s.Get(ctx, companyID, id)
}

func (s *Service) Get(ctx context.Context, companyID, id int64) (*Product, error) {
	p, err := s.repo.Get(ctx, companyID, id)
	if err != nil {
		return nil, s.fail(ctx, "get", companyID, id, err)
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, companyID int64, req ListProductsRequest) (*shared.Page[Product], error) {
	req.Page, req.Limit = shared.NormalizePage(req.Page, req.Limit)
	items, total, err := s.repo.List(ctx, companyID, req)
	if err != nil {
		return nil, s.fail(ctx, "list", companyID, 0, err)
	}
	return &shared.Page[Product]{Data: items, Pagination: shared.NewPagination(req.Page, req.Limit, total)}, nil
}

func (s *Service) Update(ctx context.Context, companyID, id int64, req UpdateProductRequest) (*Product, error) {
	if err := shared.ValidateStruct(s.validate, req); err != nil {
		return nil, err
	}
	updates := map[string]any{}
	if req.SKU != nil {
		updates["sku"] = strings.TrimSpace(*req.SKU)
	}
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Unit != nil {
		updates["unit"] = *req.Unit
	}
	if req.UnitPriceExcludingTax != nil {
		updates["unit_price_excluding_tax"] = calc.Round2(*req.UnitPriceExcludingTax)
	}
	if req.VATRate != nil {
		updates["vat_rate"] = *req.VATRate
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) == 0 {
		return s.Get(ctx, companyID, id)
	}
	if err := s.repo.Update(ctx, companyID, id, updates); err != nil {
		return nil, s.fail(ctx, "update", companyID, id, err)
	}
	return s.Get(ctx, companyID, id)
}

// Delete removes the product. Lines that referenced it keep their copied
// description and price.
func (s *Service) Delete(ctx context.Context, companyID, id int64) error {
	if err := s.repo.Delete(ctx, companyID, id); err != nil {
		return s.fail(ctx, "delete", companyID, id, err)
	}
	s.logger.Info("product deleted", slog.Int64("company_id", companyID), slog.Int64("product_id", id))
	return nil
}

// AdjustStock moves tracked stock; a withdrawal larger than the stock on hand
// fails with a StockError and changes nothing.
func (s *Service) AdjustStock(ctx context.Context, companyID, id int64, req StockAdjustment) (*Product, error) {
	if err := shared.ValidateStruct(s.validate, req); err != nil {
		return nil, err
	}
	stock, applied, err := s.repo.AdjustStock(ctx, companyID, id, req.Delta)
	if err != nil {
		return nil, s.fail(ctx, "adjust_stock", companyID, id, err)
	}
	if !applied {
		return nil, &shared.StockError{ProductID: id, Requested: -req.Delta, Available: stock}
	}
	s.logger.Info("product stock adjusted", slog.Int64("company_id", companyID), slog.Int64("product_id", id),
		slog.Float64("delta", req.Delta), slog.Float64("stock", stock))
	return s.Get(ctx, companyID, id)
}

// LookupProduct feeds line pricing. Inactive products are not offered.
func (s *Service) LookupProduct(ctx context.Context, companyID, id int64) (*lines.Product, error) {
	p, err := s.repo.Get(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, shared.NotFound("product", id)
	}
	return &lines.Product{
		ID:                    p.ID,
		Name:                  p.Name,
		Description:           p.Description,
		Unit:                  p.Unit,
		UnitPriceExcludingTax: p.UnitPriceExcludingTax,
		VATRate:               p.VATRate,
	}, nil
}

var _ lines.ProductLookup = (*Service)(nil)
