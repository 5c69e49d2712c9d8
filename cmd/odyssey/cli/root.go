// Package cli implements billingctl, the operator command line for the
// billing service.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-billing/internal/app"
	"github.com/odyssey-erp/odyssey-billing/internal/auth"
	"github.com/odyssey-erp/odyssey-billing/internal/companies"
	"github.com/odyssey-erp/odyssey-billing/internal/observability"
	"github.com/odyssey-erp/odyssey-billing/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-billing/internal/platform/db"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
	"github.com/odyssey-erp/odyssey-billing/jobs"
)

// Runtime is the lazily built environment shared by subcommands.
type Runtime struct {
	Config   *app.Config
	Logger   *slog.Logger
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Services *app.Services
}

// Close releases connections opened by Open.
func (rt *Runtime) Close() {
	if rt == nil {
		return
	}
	if rt.Redis != nil {
		_ = rt.Redis.Close()
	}
	if rt.Pool != nil {
		rt.Pool.Close()
	}
}

// Opener builds a Runtime. Tests replace it to avoid real infrastructure.
type Opener func(ctx context.Context, envFiles []string) (*Runtime, error)

// Open loads config and connects to Postgres and Redis.
func Open(ctx context.Context, envFiles []string) (*Runtime, error) {
	cfg, err := app.LoadConfig(envFiles...)
	if err != nil {
		return nil, err
	}
	logger := app.NewLogger(cfg)
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	services := app.NewServices(app.ServiceDeps{
		Config:  cfg,
		Logger:  logger,
		Pool:    pool,
		Redis:   redisClient,
		Metrics: observability.NewMetrics(),
	})
	return &Runtime{Config: cfg, Logger: logger, Pool: pool, Redis: redisClient, Services: services}, nil
}

// NewRootCommand assembles the billingctl command tree.
func NewRootCommand(open Opener) *cobra.Command {
	if open == nil {
		open = Open
	}
	var envFiles []string
	root := &cobra.Command{
		Use:           "billingctl",
		Short:         "Operator tooling for the Odyssey billing service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load before the environment (default .env)")

	withRuntime := func(run func(cmd *cobra.Command, args []string, rt *Runtime) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			rt, err := open(cmd.Context(), envFiles)
			if err != nil {
				return err
			}
			defer rt.Close()
			return run(cmd, args, rt)
		}
	}

	root.AddCommand(
		newMigrateCommand(withRuntime),
		newJobsCommand(&envFiles),
		newTokenCommand(withRuntime),
		newSeedCommand(withRuntime),
	)
	return root
}

type runtimeWrapper func(func(cmd *cobra.Command, args []string, rt *Runtime) error) func(*cobra.Command, []string) error

func newMigrateCommand(withRuntime runtimeWrapper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: withRuntime(func(cmd *cobra.Command, _ []string, rt *Runtime) error {
			applied, err := db.Migrate(cmd.Context(), rt.Pool, rt.Logger)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "database is up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			return nil
		}),
	}
}

func newJobsCommand(envFiles *[]string) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Trigger and inspect background sweeps",
	}

	connect := func() (*JobsCLI, error) {
		cfg, err := app.LoadConfig(*envFiles...)
		if err != nil {
			return nil, err
		}
		return NewJobsCLI(cfg.Asynq())
	}

	var at string
	trigger := &cobra.Command{
		Use:   "trigger <job>",
		Short: "Enqueue a one-off sweep run",
		Long:  "Enqueue a one-off sweep run. Known jobs: " + strings.Join(jobs.TaskNames(), ", "),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ValidateJob(args[0]); err != nil {
				return err
			}
			runAt, err := parseRunAt(at)
			if err != nil {
				return err
			}
			c, err := connect()
			if err != nil {
				return err
			}
			defer c.Close()
			info, err := c.Trigger(cmd.Context(), args[0], runAt)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}
	trigger.Flags().StringVar(&at, "at", "", "reference date for the sweep (YYYY-MM-DD), default today")

	inspect := &cobra.Command{
		Use:   "inspect",
		Short: "Print queue statistics as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := connect()
			if err != nil {
				return err
			}
			defer c.Close()
			stats, err := c.InspectQueue(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), stats)
		},
	}

	jobsCmd.AddCommand(trigger, inspect)
	return jobsCmd
}

func newTokenCommand(withRuntime runtimeWrapper) *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an existing user",
		Args:  cobra.NoArgs,
		RunE: withRuntime(func(cmd *cobra.Command, _ []string, rt *Runtime) error {
			token, expires, err := rt.Services.Auth.IssueToken(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"token":      token,
				"expires_at": expires.UTC().Format(time.RFC3339),
			})
		}),
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

type seedOptions struct {
	company  string
	email    string
	password string
	name     string
}

func newSeedCommand(withRuntime runtimeWrapper) *cobra.Command {
	var opts seedOptions
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a company and its first admin user",
		Args:  cobra.NoArgs,
		RunE: withRuntime(func(cmd *cobra.Command, _ []string, rt *Runtime) error {
			ctx := cmd.Context()
			company, err := rt.Services.Companies.Create(ctx,
				shared.Actor{Role: shared.RoleAdmin},
				companies.CreateCompanyRequest{Name: opts.company})
			if err != nil {
				return err
			}
			user, err := rt.Services.Auth.CreateUser(ctx, auth.NewUser{
				CompanyID: company.ID,
				Email:     opts.email,
				Password:  opts.password,
				FullName:  opts.name,
				Role:      shared.RoleAdmin,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"company_id": company.ID,
				"user_id":    user.ID,
				"email":      user.Email,
			})
		}),
	}
	cmd.Flags().StringVar(&opts.company, "company", "", "company name")
	cmd.Flags().StringVar(&opts.email, "email", "", "admin email")
	cmd.Flags().StringVar(&opts.password, "password", "", "admin password (min 8 chars)")
	cmd.Flags().StringVar(&opts.name, "name", "", "admin full name")
	for _, flag := range []string{"company", "email", "password"} {
		_ = cmd.MarkFlagRequired(flag)
	}
	return cmd
}

func parseRunAt(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	at, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid --at %q: expected YYYY-MM-DD", raw)
	}
	return &at, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
