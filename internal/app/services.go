package app

import (
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-billing/internal/auth"
	"github.com/odyssey-erp/odyssey-billing/internal/billing/invoices"
	"github.com/odyssey-erp/odyssey-billing/internal/billing/quotes"
	"github.com/odyssey-erp/odyssey-billing/internal/billing/sequence"
	"github.com/odyssey-erp/odyssey-billing/internal/companies"
	"github.com/odyssey-erp/odyssey-billing/internal/customers"
	"github.com/odyssey-erp/odyssey-billing/internal/observability"
	"github.com/odyssey-erp/odyssey-billing/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-billing/internal/products"
	"github.com/odyssey-erp/odyssey-billing/internal/rbac"
)

// Services is the wired domain layer shared by the API server, the worker
// and the ops CLI.
type Services struct {
	Auth      *auth.Service
	Companies *companies.Service
	Customers *customers.Service
	Products  *products.Service
	Invoices  *invoices.Service
	Quotes    *quotes.Service
	Policy    *rbac.Policy
	Cache     *cache.Store
}

// ServiceDeps are the infrastructure handles the services are built from.
// Redis and Metrics may be nil.
type ServiceDeps struct {
	Config  *Config
	Logger  *slog.Logger
	Pool    *pgxpool.Pool
	Redis   redis.UniversalClient
	Metrics *observability.Metrics
	Now     func() time.Time
}

// NewServices builds every domain service.
func NewServices(deps ServiceDeps) *Services {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config
	if cfg == nil {
		cfg = &Config{}
	}

	var store *cache.Store
	var denylist auth.Denylist
	if deps.Redis != nil {
		store = cache.NewStore(deps.Redis, cfg.CacheTTL, logger)
		denylist = auth.NewRedisDenylist(deps.Redis)
	}

	numbers := sequence.NewGenerator(sequence.NewPGStore(deps.Pool))
	companySvc := companies.NewService(companies.ServiceParams{
		Repo:   companies.NewRepository(deps.Pool),
		Cache:  store,
		Logger: logger,
	})
	customerSvc := customers.NewService(customers.NewRepository(deps.Pool), logger)
	productSvc := products.NewService(products.NewRepository(deps.Pool), logger)

	var recorder invoices.Recorder
	if deps.Metrics != nil {
		recorder = deps.Metrics
	}
	invoiceSvc := invoices.NewService(invoices.ServiceParams{
		Repo:             invoices.NewRepository(deps.Pool),
		Customers:        customerSvc,
		Products:         productSvc,
		Numbers:          numbers,
		Terms:            companySvc,
		Cache:            store,
		Metrics:          recorder,
		Logger:           logger,
		Now:              deps.Now,
		DefaultTermsDays: cfg.DefaultPaymentTermsDays,
	})
	quoteSvc := quotes.NewService(quotes.ServiceParams{
		Repo:             quotes.NewRepository(deps.Pool),
		Invoices:         invoiceSvc,
		Customers:        customerSvc,
		Products:         productSvc,
		Numbers:          numbers,
		Terms:            companySvc,
		Cache:            store,
		Metrics:          recorder,
		Logger:           logger,
		Now:              deps.Now,
		DefaultTermsDays: cfg.DefaultPaymentTermsDays,
	})

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL, deps.Now)
	return &Services{
		Auth:      auth.NewService(auth.NewRepository(deps.Pool), tokens, denylist, logger),
		Companies: companySvc,
		Customers: customerSvc,
		Products:  productSvc,
		Invoices:  invoiceSvc,
		Quotes:    quoteSvc,
		Policy:    rbac.DefaultPolicy(),
		Cache:     store,
	}
}
