package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/idbridge/internal/audit"
	"github.com/dropDatabas3/idbridge/internal/authority"
	"github.com/dropDatabas3/idbridge/internal/cache"
	memcache "github.com/dropDatabas3/idbridge/internal/cache/memory"
	rediscache "github.com/dropDatabas3/idbridge/internal/cache/redis"
	"github.com/dropDatabas3/idbridge/internal/config"
	"github.com/dropDatabas3/idbridge/internal/domain"
	"github.com/dropDatabas3/idbridge/internal/flow"
	adminctrl "github.com/dropDatabas3/idbridge/internal/http/controllers/admin"
	authctrl "github.com/dropDatabas3/idbridge/internal/http/controllers/auth"
	wkctrl "github.com/dropDatabas3/idbridge/internal/http/controllers/wellknown"
	"github.com/dropDatabas3/idbridge/internal/http/router"
	"github.com/dropDatabas3/idbridge/internal/idp"
	"github.com/dropDatabas3/idbridge/internal/idp/apple"
	idpoidc "github.com/dropDatabas3/idbridge/internal/idp/oidc"
	"github.com/dropDatabas3/idbridge/internal/idp/openidfed"
	idpsaml "github.com/dropDatabas3/idbridge/internal/idp/saml"
	"github.com/dropDatabas3/idbridge/internal/idp/spid"
	"github.com/dropDatabas3/idbridge/internal/jwt"
	"github.com/dropDatabas3/idbridge/internal/metrics"
	"github.com/dropDatabas3/idbridge/internal/observability/logger"
	"github.com/dropDatabas3/idbridge/internal/principal"
	"github.com/dropDatabas3/idbridge/internal/store/memory"
	"github.com/dropDatabas3/idbridge/internal/store/pg"
	"github.com/dropDatabas3/idbridge/internal/user"
	pgmigrations "github.com/dropDatabas3/idbridge/migrations/postgres"
)

func newServeCmd(cfgPath *string) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Levanta el gateway HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), *cfgPath, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "aplica migraciones al arrancar (driver postgres)")
	return cmd
}

// repositories agrupa los repos elegidos por driver.
type repositories struct {
	users    domain.UserRepository
	accounts domain.AccountRepository
	creds    domain.CredentialRepository
	configs  authority.ConfigStore
	closeFn  func()
}

func serve(ctx context.Context, cfgPath string, migrate bool) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: "idbridge",
		Version:     version,
	})
	defer func() { _ = logger.Sync() }()
	log := logger.L()

	repos, err := openRepositories(ctx, cfg, migrate)
	if err != nil {
		return err
	}
	defer repos.closeFn()

	var c cache.Cache
	switch cfg.Cache.Kind {
	case "redis":
		rc := rediscache.New(cfg.Cache.Redis.Addr, cfg.Cache.Redis.DB, cfg.Cache.Redis.Prefix)
		if err := rc.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		c = rc
	default:
		c = memcache.New(cfg.MemoryTTL())
	}

	if err := metrics.Register(nil); err != nil {
		return err
	}

	keys, err := jwt.NewEd25519("idbridge-session-1")
	if err != nil {
		return err
	}
	sessions := jwt.NewIssuer(cfg.JWT.Issuer, keys, cfg.SessionTTL())

	registry := authority.NewRegistry(repos.configs, cfg.Realms.System)
	scripts := principal.NewScriptEngine(cfg.ScriptTimeout())
	publisher := audit.NewPublisher(nil)

	service := flow.NewService(flow.Options{
		Registry: registry,
		Adapters: []idp.Adapter{
			idpoidc.New(),
			apple.New(),
			idpsaml.New(),
			spid.New(),
			openidfed.New(nil),
		},
		Requests:        flow.NewRequestStore(c, cfg.StateTTL()),
		Normalizer:      principal.NewNormalizer(scripts),
		Scripts:         scripts,
		Resolver:        user.NewResolver(repos.users, repos.accounts),
		Sessions:        sessions,
		Audit:           publisher,
		BaseURL:         cfg.Server.BaseURL,
		ExchangeTimeout: cfg.ExchangeTimeout(),
	})

	handler := router.New(router.Deps{
		Auth: authctrl.NewController(service, authctrl.Pages{
			Landing:    cfg.Pages.Landing,
			LoginError: cfg.Pages.LoginError,
		}),
		Providers: adminctrl.NewProvidersController(registry, publisher),
		Accounts: adminctrl.NewAccountsController(
			user.NewLifecycle(repos.accounts),
			user.NewCredentialService(repos.creds),
		),
		Wellknown: wkctrl.NewController(cfg.JWT.Issuer, cfg.Server.BaseURL, keys),
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info("shutting down", logger.String("signal", sig.String()))
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openRepositories(ctx context.Context, cfg *config.Config, migrate bool) (*repositories, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		st, err := pg.New(ctx, cfg.Storage.DSN, int32(cfg.Storage.Postgres.MaxConns))
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if migrate {
			if err := st.Migrate(ctx, pgmigrations.FS); err != nil {
				st.Close()
				return nil, err
			}
		}
		return &repositories{
			users:    st.Users(),
			accounts: st.Accounts(),
			creds:    st.Credentials(),
			configs:  st,
			closeFn:  st.Close,
		}, nil
	default:
		st := memory.New()
		return &repositories{
			users:    st.Users(),
			accounts: st.Accounts(),
			creds:    st.Credentials(),
			configs:  st,
			closeFn:  func() {},
		}, nil
	}
}
