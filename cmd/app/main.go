package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atvirokodosprendimai/desiauth/internal/app"
	"github.com/atvirokodosprendimai/desiauth/internal/config"
	"github.com/atvirokodosprendimai/desiauth/internal/core/domain"
	"github.com/atvirokodosprendimai/desiauth/internal/core/usecase"
	"github.com/atvirokodosprendimai/desiauth/internal/logger"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func main() {
	cmd := &cli.Command{
		Name:  "desiauth",
		Usage: "Multi-tenant credential resolution and session service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Sources: cli.EnvVars("DESIAUTH_CONFIG"),
				Usage:   "YAML config file",
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Sources: cli.EnvVars("DESIAUTH_DATA_DIR"),
				Usage:   "Directory holding registry.sqlite and tenants/ (overrides storage.data_dir)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Sources: cli.EnvVars("DESIAUTH_LOG_LEVEL"),
				Usage:   "debug, info, warn or error (overrides logging.level)",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			tenantCommand(),
			adminKeyCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Sources: cli.EnvVars("DESIAUTH_ADDR"),
				Usage:   "HTTP listen address (overrides server.addr)",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, logr, err := loadConfig(c)
			if err != nil {
				return err
			}
			defer func() { _ = logr.Sync() }()
			if addr := c.String("addr"); addr != "" {
				cfg.Server.Addr = addr
			}

			a, err := app.New(ctx, cfg, logr)
			if err != nil {
				return fmt.Errorf("create app: %w", err)
			}
			defer func() {
				if closeErr := a.Close(); closeErr != nil {
					logr.Error("close resources", zap.Error(closeErr))
				}
			}()

			if cfg.Admin.BootstrapEmail != "" {
				if _, err := a.BootstrapAdmin(ctx, cfg.Admin.BootstrapEmail, false); err != nil {
					return err
				}
			}

			a.Start(ctx)
			server := a.Server()
			errCh := make(chan error, 1)
			go func() {
				logr.Info("listening", zap.String("addr", cfg.Server.Addr))
				errCh <- server.ListenAndServe()
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			shutdown := func() error {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
				defer cancel()
				return server.Shutdown(shutdownCtx)
			}

			select {
			case <-ctx.Done():
				return shutdown()
			case sig := <-sigCh:
				logr.Info("received signal", zap.String("signal", sig.String()))
				return shutdown()
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}
}

func tenantCommand() *cli.Command {
	return &cli.Command{
		Name:  "tenant",
		Usage: "Manage tenants",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Register a tenant and create its store",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true, Usage: "Display name"},
					&cli.StringFlag{Name: "slug", Required: true, Usage: "URL slug, ^[a-z0-9][a-z0-9-]{1,62}$"},
					&cli.StringFlag{Name: "plan", Value: string(domain.PlanFree), Usage: "free, pro or enterprise"},
					&cli.StringFlag{Name: "admin-email", Usage: "Invite this address as the first tenant admin"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					a, done, err := openApp(ctx, c)
					if err != nil {
						return err
					}
					defer done()

					tenant, err := a.Tenants.CreateTenant(ctx, usecase.CreateTenantInput{
						Name: c.String("name"),
						Slug: c.String("slug"),
						Plan: domain.Plan(c.String("plan")),
					})
					if err != nil {
						return fmt.Errorf("create tenant: %w", err)
					}
					fmt.Fprintf(c.Root().Writer, "tenant %s created (id %s, plan %s)\n", tenant.Slug, tenant.ID, tenant.Plan)

					if email := c.String("admin-email"); email != "" {
						user, token, err := a.Accounts.InviteTenantAdmin(ctx, tenant, email, "")
						if err != nil {
							return fmt.Errorf("invite tenant admin: %w", err)
						}
						fmt.Fprintf(c.Root().Writer, "admin %s invited, invite token: %s\n", user.Email, token)
					}
					return nil
				},
			},
		},
	}
}

func adminKeyCommand() *cli.Command {
	return &cli.Command{
		Name:  "admin-key",
		Usage: "Manage the super-admin API key",
		Commands: []*cli.Command{
			{
				Name:  "issue",
				Usage: "Issue a super-admin key and write it to the admin key file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "email",
						Sources: cli.EnvVars("DESIAUTH_ADMIN_EMAIL"),
						Usage:   "Super admin email (defaults to admin.bootstrap_email)",
					},
					&cli.BoolFlag{Name: "force", Usage: "Revoke the current key and issue a new one"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					a, done, err := openApp(ctx, c)
					if err != nil {
						return err
					}
					defer done()

					email := c.String("email")
					if email == "" {
						email = a.Config.Admin.BootstrapEmail
					}
					if email == "" {
						return errors.New("--email or admin.bootstrap_email is required")
					}
					issue, err := a.BootstrapAdmin(ctx, email, c.Bool("force"))
					if err != nil {
						return err
					}
					w := c.Root().Writer
					if !issue.Created {
						fmt.Fprintf(w, "admin key %s... already exists (created %s); use --force to replace it\n",
							issue.Key.KeyPrefix, issue.Key.CreatedAt.Format(time.RFC3339))
						return nil
					}
					fmt.Fprintf(w, "admin key written to %s\n", a.Config.AdminKeyPath())
					return nil
				},
			},
		},
	}
}

func loadConfig(c *cli.Command) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return config.Config{}, nil, err
	}
	if dir := c.String("data-dir"); dir != "" {
		cfg.Storage.DataDir = dir
	}
	if level := c.String("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	logr, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Service: "desiauth",
	})
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, logr, nil
}

// openApp wires the service for one-shot commands. done closes it.
func openApp(ctx context.Context, c *cli.Command) (*app.App, func(), error) {
	cfg, logr, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(ctx, cfg, logr)
	if err != nil {
		return nil, nil, fmt.Errorf("create app: %w", err)
	}
	return a, func() {
		if err := a.Close(); err != nil {
			logr.Error("close resources", zap.Error(err))
		}
		_ = logr.Sync()
	}, nil
}
