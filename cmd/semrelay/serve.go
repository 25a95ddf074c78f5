package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/semrelayhq/semrelay/internal/analytics"
	"github.com/semrelayhq/semrelay/internal/channel"
	"github.com/semrelayhq/semrelay/internal/completion"
	"github.com/semrelayhq/semrelay/internal/config"
	"github.com/semrelayhq/semrelay/internal/conversation"
	"github.com/semrelayhq/semrelay/internal/db"
	"github.com/semrelayhq/semrelay/internal/embeddings"
	"github.com/semrelayhq/semrelay/internal/handlers"
	"github.com/semrelayhq/semrelay/internal/identity"
	"github.com/semrelayhq/semrelay/internal/logger"
	"github.com/semrelayhq/semrelay/internal/onboarding"
	"github.com/semrelayhq/semrelay/internal/semcache"
	"github.com/semrelayhq/semrelay/internal/server"
	"github.com/semrelayhq/semrelay/internal/similarity"
	"github.com/semrelayhq/semrelay/internal/stats"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBPool,
			provideEmbedder,
			provideEvaluator,
			provideCacheService,
			provideIdentityResolver,
			provideCompletionService,
			provideSender,
			provideEmitter,
			provideOnboarding,
			provideTurnScope,
			provideOrchestrator,
			provideStatsReporter,
			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(provideAuthHandler),
			provideServerHandler(provideAdminHandler),
			provideServerHandler(provideWebhookHandler),
			provideServer,
		),
		fx.Invoke(
			startStatsReporter,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.Postgres); err != nil {
		return nil, err
	}
	pool, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { pool.Close(); return nil }})
	return pool, nil
}

func provideEmbedder(log *slog.Logger, cfg config.Config) embeddings.Embedder {
	timeout := time.Duration(cfg.Embeddings.TimeoutSeconds) * time.Second
	return embeddings.NewClient(log, cfg.Embeddings.APIKey, cfg.Embeddings.BaseURL, cfg.Embeddings.Model, timeout)
}

func provideEvaluator(cfg config.Config) *similarity.Evaluator {
	return similarity.NewEvaluator(cfg.Cache.SimilarityThreshold)
}

func provideCacheService(log *slog.Logger, pool *pgxpool.Pool, embedder embeddings.Embedder, evaluator *similarity.Evaluator) *semcache.Service {
	return semcache.NewService(log, semcache.NewPGStore(pool), embedder, evaluator)
}

func provideIdentityResolver(log *slog.Logger, pool *pgxpool.Pool, cfg config.Config) *identity.Resolver {
	return identity.NewResolver(log, identity.NewPGStore(pool), cfg.Identity.BcryptCost)
}

func provideCompletionService(log *slog.Logger, cfg config.Config) *completion.Service {
	engine := completion.NewOpenAIEngine(cfg.Completion.APIKey, cfg.Completion.BaseURL)
	interval := time.Duration(cfg.Completion.PollIntervalSeconds) * time.Second
	return completion.NewService(log, engine, cfg.Completion.AssistantID, interval, cfg.Completion.PollMaxAttempts)
}

func provideSender(log *slog.Logger, cfg config.Config) (channel.Sender, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Outbound.Adapter)) {
	case "", "http":
		return channel.NewHTTPSender(log, cfg.Outbound.SendURL, cfg.Outbound.Token, 15*time.Second), nil
	case "telegram":
		return channel.NewTelegramSender(log, cfg.Outbound.TelegramToken)
	default:
		return nil, fmt.Errorf("unknown outbound adapter %q", cfg.Outbound.Adapter)
	}
}

func provideEmitter(log *slog.Logger, cfg config.Config) analytics.Emitter {
	if strings.TrimSpace(cfg.Analytics.Endpoint) == "" {
		return analytics.NopEmitter{}
	}
	return analytics.NewHTTPEmitter(log, cfg.Analytics.Endpoint, 5*time.Second)
}

func provideOnboarding(log *slog.Logger, cfg config.Config) (onboarding.Content, error) {
	return onboarding.Load(log, cfg.Onboarding.TermsPath, cfg.Onboarding.InstructionsPath)
}

// turnScope is the context governing asynchronous turn processing; it is
// cancelled on shutdown so in-flight completion polling stops promptly.
type turnScope struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func provideTurnScope(lc fx.Lifecycle) *turnScope {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{OnStop: func(context.Context) error { cancel(); return nil }})
	return &turnScope{ctx: ctx, cancel: cancel}
}

func provideOrchestrator(log *slog.Logger, cache *semcache.Service, resolver *identity.Resolver, completions *completion.Service, sender channel.Sender, emitter analytics.Emitter, content onboarding.Content) *conversation.Orchestrator {
	return conversation.NewOrchestrator(log, cache, resolver, completions, sender, emitter, content)
}

func provideStatsReporter(log *slog.Logger, resolver *identity.Resolver, cache *semcache.Service) *stats.Reporter {
	return stats.NewReporter(log, resolver, cache)
}

func provideAuthHandler(log *slog.Logger, cfg config.Config) (*handlers.AuthHandler, error) {
	expiresIn, err := time.ParseDuration(cfg.Auth.JWTExpiresIn)
	if err != nil {
		return nil, fmt.Errorf("parse jwt_expires_in: %w", err)
	}
	return handlers.NewAuthHandler(log, cfg.Admin.Username, cfg.Admin.Password, cfg.Auth.JWTSecret, expiresIn), nil
}

func provideAdminHandler(log *slog.Logger, resolver *identity.Resolver, cache *semcache.Service) *handlers.AdminHandler {
	return handlers.NewAdminHandler(log, resolver, cache)
}

func provideWebhookHandler(log *slog.Logger, cfg config.Config, orch *conversation.Orchestrator, scope *turnScope, shutdowner fx.Shutdowner) *handlers.WebhookHandler {
	h := handlers.NewWebhookHandler(log, orch, cfg.Webhook.VerifyToken)
	h.SetBaseContext(func() context.Context { return scope.ctx })
	h.SetFatalFunc(func(error) { _ = shutdowner.Shutdown(fx.ExitCode(1)) })
	return h
}

type serverParams struct {
	fx.In
	Logger   *slog.Logger
	Config   config.Config
	Handlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.Config.Auth.JWTSecret, params.Handlers)
}

func startStatsReporter(lc fx.Lifecycle, cfg config.Config, reporter *stats.Reporter) {
	if !cfg.Stats.Enabled {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return reporter.Start(cfg.Stats.Schedule) },
		OnStop:  func(ctx context.Context) error { return reporter.Stop(ctx) },
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
