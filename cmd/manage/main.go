package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/openfed/manage/pkg/api"
	"github.com/openfed/manage/pkg/config"
	"github.com/openfed/manage/pkg/engine"
	"github.com/openfed/manage/pkg/hooks"
	"github.com/openfed/manage/pkg/httputil"
	"github.com/openfed/manage/pkg/importer"
	"github.com/openfed/manage/pkg/observability"
	"github.com/openfed/manage/pkg/oidc"
	"github.com/openfed/manage/pkg/push"
	"github.com/openfed/manage/pkg/schema"
	"github.com/openfed/manage/pkg/storage"
	"github.com/openfed/manage/pkg/storage/postgres"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}

	log := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	store, err := buildStore(cfg.Storage)
	if err != nil {
		log.WithError(err).Fatal("initializing storage")
	}
	log.WithField("type", cfg.Storage.Type).Info("storage initialized")

	schemas := schema.NewRegistry()
	if cfg.Schema.Dir != "" {
		if err := schemas.LoadDir(cfg.Schema.Dir); err != nil {
			log.WithError(err).Fatal("loading schema overrides")
		}
		if cfg.Schema.Watch {
			// Watch blocks until shutdown, so it gets its own goroutine.
			go func() {
				if err := schemas.Watch(ctx, log); err != nil {
					log.WithError(err).Warn("schema reload unavailable")
				}
			}()
		}
	}

	notifier := buildNotifier(cfg.Push, log, metrics)
	hookChain := buildHooks(cfg.OIDC, store, schemas, log)
	feeds := importer.NewClient(cfg.Feed.Timeout)

	service := engine.NewService(store, schemas, hookChain, notifier, feeds, log, metrics)
	server := api.NewServer(service, feeds, log, metrics)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Feed.SweepSchedule, func() {
		if _, err := service.SweepOrphanedArchives(context.Background()); err != nil {
			log.WithError(err).Error("orphaned archive sweep failed")
		}
	}); err != nil {
		log.WithError(err).Fatal("invalid sweep schedule")
	}
	scheduler.Start()
	defer scheduler.Stop()

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthHandler(cfg, registry),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", apiServer.Addr).Info("starting API server")
		if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.WithField("addr", healthServer.Addr).Info("starting health server")
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		healthServer.Shutdown(shutdownCtx)
		return apiServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Fatal("server terminated")
	}
	log.Info("shutdown complete")
}

func buildStore(cfg storage.Config) (storage.Store, error) {
	var backend storage.Store
	switch cfg.Type {
	case "postgres":
		store, err := postgres.New(cfg.PostgresURL, cfg.PostgresMaxConns)
		if err != nil {
			return nil, err
		}
		backend = store
	default:
		backend = storage.NewMemoryStore()
	}

	if cfg.CacheEnabled {
		return storage.NewCachingStore(backend, cfg.CacheSize)
	}
	return backend, nil
}

func buildNotifier(cfg config.PushConfig, log *logrus.Logger, metrics *observability.Metrics) push.Notifier {
	if cfg.Endpoint == "" {
		return push.NoopNotifier{}
	}
	return push.NewHTTPNotifier(cfg.Endpoint, cfg.Username, cfg.Password, log, metrics)
}

// buildHooks assembles the hook pipeline. Order matters: values are coerced
// before entityid rules run, references are reconciled before the OIDC
// registration sees the record, and secrets are hashed last.
func buildHooks(cfg config.OIDCConfig, store storage.Store, schemas *schema.Registry, log *logrus.Logger) *hooks.Composite {
	chain := []hooks.Hook{
		hooks.NewTypeSafetyHook(schemas),
		hooks.NewEntityIDConstraintsHook(store),
		hooks.NewEntityIDReconcilerHook(store, log),
	}
	if cfg.BaseURL != "" {
		clients := oidc.NewHTTPRegistry(oidc.Config{
			BaseURL:      cfg.BaseURL,
			TokenURL:     cfg.TokenURL,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Timeout:      cfg.Timeout,
		})
		chain = append(chain, hooks.NewOIDCRegistrationHook(clients, log))
	}
	chain = append(chain, hooks.NewSecretHook())
	return hooks.NewComposite(chain...)
}

func healthHandler(cfg *config.Config, registry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteSuccess(w, map[string]string{"status": "ok"})
	})
	if cfg.Observability.MetricsEnabled {
		mux.Handle("/metrics", observability.Handler(registry))
	}
	return mux
}
