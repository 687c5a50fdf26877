// Command server runs the chatwire gateway.
//
// Configuration is read from a YAML file (--config, CHATWIRE_CONFIG,
// ./config.yaml or /etc/chatwire/config.yaml) and CHATWIRE_* environment
// variables. See pkg/config for the full list.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/rhuss/chatwire/pkg/api"
	"github.com/rhuss/chatwire/pkg/auth"
	"github.com/rhuss/chatwire/pkg/auth/apikey"
	"github.com/rhuss/chatwire/pkg/auth/jwt"
	"github.com/rhuss/chatwire/pkg/auth/noop"
	"github.com/rhuss/chatwire/pkg/config"
	"github.com/rhuss/chatwire/pkg/debug"
	"github.com/rhuss/chatwire/pkg/engine"
	"github.com/rhuss/chatwire/pkg/observability"
	"github.com/rhuss/chatwire/pkg/provider/registry"
	"github.com/rhuss/chatwire/pkg/provider/remote"
	"github.com/rhuss/chatwire/pkg/storage/memory"
	"github.com/rhuss/chatwire/pkg/storage/postgres"
	"github.com/rhuss/chatwire/pkg/transport"
	transporthttp "github.com/rhuss/chatwire/pkg/transport/http"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "chatwire-server",
		Short:         "Serve the chatwire gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := run(cmd.Context(), configPath); err != nil {
				slog.Error("server failed", "error", err)
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the configuration file")
	return cmd
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	debug.Init(debug.Options{
		Categories: cfg.Logging.Debug,
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
	})
	logger := slog.Default()

	reg, err := registry.New(cfg.Providers, cfg.Gateway.DefaultProvider, registry.Options{
		Breaker: remote.BreakerConfig{
			Disabled:    cfg.Breaker.Disabled,
			MaxFailures: cfg.Breaker.MaxFailures,
			Timeout:     cfg.Breaker.Timeout,
			Interval:    cfg.Breaker.Interval,
		},
		Observer: observability.StreamObserver{},
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("creating providers: %w", err)
	}
	defer reg.Close()

	store, err := newStore(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	validation := api.DefaultValidationConfig()
	validation.MaxMessages = cfg.Gateway.MaxMessages

	eng, err := engine.New(reg, store, engine.Config{
		Defaults:   cfg.Defaults.CompletionOptions(),
		Validation: validation,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	authMiddleware, err := newAuthMiddleware(cfg.Auth, logger)
	if err != nil {
		return err
	}

	opts := []transporthttp.ServerOption{
		transporthttp.WithAddr(":" + strconv.Itoa(cfg.Server.Port)),
		transporthttp.WithMaxBodySize(cfg.Server.MaxBodySize),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithLogger(logger),
	}
	if cfg.Observability.Metrics.Enabled {
		opts = append(opts,
			transporthttp.WithHTTPMiddleware(observability.MetricsMiddleware),
			transporthttp.WithRoute("GET "+cfg.Observability.Metrics.Path, promhttp.Handler()),
		)
	}
	if authMiddleware != nil {
		opts = append(opts, transporthttp.WithHTTPMiddleware(authMiddleware))
	}

	srv := transporthttp.NewServer(eng, store, eng, opts...)

	logger.Info("chatwire starting",
		"port", cfg.Server.Port,
		"providers", len(cfg.Providers),
		"storage", cfg.Storage.Type,
		"auth", cfg.Auth.Type,
	)
	return srv.ListenAndServe()
}

// newStore returns nil when storage is disabled.
func newStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (transport.TranscriptStore, error) {
	switch cfg.Type {
	case "", "memory":
		logger.Info("storage enabled", "type", "memory", "max_size", cfg.MaxSize)
		return memory.New(cfg.MaxSize), nil
	case "postgres":
		s, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
			Logger:         logger,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		logger.Info("storage enabled", "type", "postgres")
		return s, nil
	case "none":
		logger.Info("storage disabled")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// newAuthMiddleware returns nil when auth is off and no rate limits apply.
func newAuthMiddleware(cfg config.AuthConfig, logger *slog.Logger) (func(http.Handler) http.Handler, error) {
	var authn auth.Authenticator
	switch cfg.Type {
	case "", "none":
		authn = noop.Authenticator{}
	case "apikey":
		keys := make([]apikey.Key, 0, len(cfg.APIKeys))
		for _, k := range cfg.APIKeys {
			keys = append(keys, apikey.Key{
				Key: k.Key,
				Identity: auth.Identity{
					Subject:     k.Subject,
					TenantID:    k.TenantID,
					ServiceTier: k.ServiceTier,
				},
			})
		}
		authn = &auth.Chain{Authenticators: []auth.Authenticator{apikey.New(keys)}, Default: auth.No}
	case "jwt":
		authn = &auth.Chain{
			Authenticators: []auth.Authenticator{jwt.New(jwt.Config{
				Issuer:      cfg.JWT.Issuer,
				Audience:    cfg.JWT.Audience,
				JWKSURL:     cfg.JWT.JWKSURL,
				UserClaim:   cfg.JWT.UserClaim,
				TenantClaim: cfg.JWT.TenantClaim,
				ScopesClaim: cfg.JWT.ScopesClaim,
				TierClaim:   cfg.JWT.TierClaim,
				CacheTTL:    cfg.JWT.CacheTTL,
				Logger:      logger,
			})},
			Default: auth.No,
		}
	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Type)
	}

	var limiter *auth.Limiter
	if len(cfg.RateLimits) > 0 {
		tiers := make(map[string]auth.Tier, len(cfg.RateLimits))
		for name, rl := range cfg.RateLimits {
			tiers[name] = auth.Tier{RequestsPerMinute: rl.RequestsPerMinute, Burst: rl.Burst}
		}
		limiter = auth.NewLimiter(tiers)
	}

	if _, open := authn.(noop.Authenticator); open && limiter == nil {
		return nil, nil
	}
	logger.Info("auth enabled", "type", cfg.Type, "rate_limited_tiers", len(cfg.RateLimits))
	return auth.Middleware(authn, limiter, auth.DefaultBypass, logger), nil
}
