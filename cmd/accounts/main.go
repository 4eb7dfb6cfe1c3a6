package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/activitymap"
	"github.com/goliatone/go-accounts/config"
	"github.com/goliatone/go-accounts/logging"
	"github.com/goliatone/go-accounts/provider/kratos"
	"github.com/goliatone/go-accounts/provider/memory"
	"github.com/goliatone/go-accounts/repository"
	"github.com/goliatone/go-router"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	zl, err := logging.NewZap(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer zl.Sync()
	logger := logging.NewZapLogger(zl)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	stores := repository.NewStores(db)
	stores.MustValidate()

	if cfg.AutoMigrate {
		if err := stores.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info("schema ready", "driver", cfg.DatabaseDriver)
	}

	bridge, err := identityBridge(cfg, logger)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := accounts.NewMetrics(registry)

	activityLog := zl.Named("activity")
	activity := accounts.ActivitySinkFunc(func(_ context.Context, e accounts.ActivityEvent) error {
		record := activitymap.Normalize(e)
		activityLog.Info(record.Verb,
			zap.String("actor_id", record.ActorID),
			zap.String("object_type", record.ObjectType),
			zap.String("object_id", record.ObjectID),
			zap.String("channel", record.Channel),
			zap.Any("metadata", record.Metadata),
			zap.Time("occurred_at", record.OccurredAt),
		)
		return nil
	})

	reconciler := accounts.NewReconcileUserHandler(stores,
		accounts.WithReconcileLogger(logger.Named("reconcile")),
		accounts.WithReconcileMetrics(metrics),
		accounts.WithReconcileActivitySink(activity),
	)

	graphs := accounts.NewGraphService(stores.Users(), stores.Graphs(),
		accounts.WithMessagesPerRoom(cfg.MessagesPerRoom),
		accounts.WithGraphLogger(logger.Named("graph")),
		accounts.WithGraphMetrics(metrics),
	)

	service := accounts.NewAccountService(stores, reconciler, graphs,
		accounts.WithAccountLogger(logger.Named("accounts")),
		accounts.WithAccountActivitySink(activity),
	)

	flows := accounts.NewFlowStore(bridge, reconciler,
		accounts.WithFlowTTL(cfg.FlowTTL),
		accounts.WithFlowStoreLogger(logger.Named("flows")),
		accounts.WithFlowOptions(
			accounts.WithFlowMetrics(metrics),
			accounts.WithFlowActivitySink(activity),
			accounts.WithMaxCodeAttempts(cfg.MaxCodeAttempts),
		),
	)
	go flows.Run(ctx, time.Minute)

	tokens := accounts.NewTokenService(
		[]byte(cfg.JWTSigningKey),
		cfg.JWTTTL,
		cfg.JWTIssuer,
		jwt.ClaimStrings{cfg.JWTAudience},
		logger.Named("tokens"),
	)

	auther := accounts.NewRouteAuthenticator(tokens,
		accounts.WithSignInRoute(cfg.SignInRoute),
		accounts.WithCookieDuration(cfg.JWTTTL),
		accounts.WithSecureCookies(cfg.SecureCookies),
		accounts.WithAuthenticatorLogger(logger.Named("auth")),
	)

	controller := accounts.NewAccountController(flows, service, auther,
		accounts.WithControllerLogger(logger.Named("http")),
		accounts.WithMetricsGatherer(registry),
	)

	srv := router.NewFiberAdapter(func(_ *fiber.App) *fiber.App {
		app := fiber.New(fiber.Config{
			AppName:               "go-accounts",
			ReadTimeout:           cfg.RequestTimeout,
			WriteTimeout:          cfg.RequestTimeout,
			ErrorHandler:          accounts.FiberErrorHandler(logger.Named("http")),
			DisableStartupMessage: true,
		})
		app.Use(recover.New())
		app.Use(logging.RequestLogger(zl.Named("http")))
		return app
	})

	r := srv.Router().WithLogger(logger.Named("router").Printf())
	accounts.RegisterAccountRoutes(r, controller)

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", cfg.Address, "identity_provider", cfg.IdentityProvider)
		errc <- srv.Serve(cfg.Address)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func identityBridge(cfg config.Config, logger *logging.ZapLogger) (accounts.IdentityBridge, error) {
	switch cfg.IdentityProvider {
	case config.ProviderKratos:
		kcfg := kratos.DefaultConfig(cfg.KratosPublicURL)
		kcfg.Timeout = cfg.KratosTimeout
		return kratos.New(kcfg, kratos.WithLogger(logger.Named("kratos")))
	default:
		opts := []memory.Option{memory.WithLogger(logger.Named("memory"))}
		if cfg.DevCode != "" {
			opts = append(opts, memory.WithCodeGenerator(memory.StaticCode(cfg.DevCode)))
		}
		logger.Warn("using the in-memory identity provider, identities are lost on restart")
		return memory.New(opts...), nil
	}
}
