package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/ridesplit/ridesplit/internal/auth"
	"github.com/ridesplit/ridesplit/internal/cache"
	"github.com/ridesplit/ridesplit/internal/cleanup"
	"github.com/ridesplit/ridesplit/internal/config"
	"github.com/ridesplit/ridesplit/internal/handler"
	"github.com/ridesplit/ridesplit/internal/metrics"
	"github.com/ridesplit/ridesplit/internal/middleware"
	"github.com/ridesplit/ridesplit/internal/ocr"
	"github.com/ridesplit/ridesplit/internal/realtime"
	"github.com/ridesplit/ridesplit/internal/repository"
	"github.com/ridesplit/ridesplit/internal/server"
	"github.com/ridesplit/ridesplit/internal/service"
)

var migrateOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the group cleanup worker",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	if migrateOnStart {
		if err := repository.Migrate(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migrate: %s", sanitizeError(err, cfg.DatabaseURL))
		}
		logger.Info("migrations applied")
	}

	repo, cacheClient, err := connect(ctx, cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewPrometheus(reg)

	hub := realtime.NewHub(cacheClient.Client(), logger, recorder)
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	ocrClient := ocr.NewClient(ocr.Config{
		Endpoint:    cfg.OCRURL,
		APIKey:      cfg.OCRAPIKey,
		Timeout:     cfg.OCRTimeout,
		MaxAttempts: cfg.OCRMaxAttempts,
		RatePerSec:  cfg.OCRRatePerSec,
		Burst:       cfg.OCRBurst,
	}, logger, recorder)

	groupService := service.NewGroupService(repo, repo, loc, logger, recorder)
	authService := service.NewAuthService(repo, tokens, cfg.AllowedEmailDomain, logger)
	chatService := service.NewChatService(repo, repo, hub, logger, recorder)
	splitService := service.NewSplitService(repo, repo, repo, ocrClient, hub, logger, recorder)

	r := setupRouter(routes{
		root:     handler.New(),
		health:   handler.NewHealthHandler(repo, cacheClient),
		auth:     handler.NewAuthHandler(authService, logger),
		groups:   handler.NewGroupHandler(groupService, logger),
		messages: handler.NewMessageHandler(chatService, logger),
		splits:   handler.NewSplitHandler(splitService, cfg.MaxUploadSize, logger),
		metrics:  reg,
		tokens:   tokens,
		limiter:  cacheClient,
	}, cfg, logger)

	srv := server.New(r, cfg.AppPort, cfg.ReadTimeout, cfg.WriteTimeout, cfg.ShutdownTimeout, logger)

	worker := cleanup.NewWorker(repo, hub, logger, recorder, cfg.CleanupInterval, cfg.GroupRetention)
	go func() {
		if err := worker.Run(ctx); err != nil {
			logger.Error("cleanup worker exited", "error", err)
		}
	}()

	srv.OnShutdown("postgres", func(context.Context) error {
		repo.Close()
		return nil
	})
	srv.OnShutdown("redis", func(context.Context) error {
		return cacheClient.Close()
	})
	srv.OnShutdown("cleanup", worker.Shutdown)

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"slot_timezone", cfg.SlotTimezone,
	)

	return srv.Run(ctx)
}

// connect opens postgres and redis, closing postgres again if redis fails.
func connect(ctx context.Context, cfg *config.Config) (*repository.Repository, *cache.Cache, error) {
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		return nil, nil, fmt.Errorf("connect database: %s", sanitizeError(err, cfg.DatabaseURL))
	}
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		repo.Close()
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		return nil, nil, fmt.Errorf("connect redis: %s", sanitizeError(err, cfg.RedisURL))
	}
	logger.Info("connected to Redis")

	return repo, cacheClient, nil
}

// routes holds everything setupRouter mounts.
type routes struct {
	root     *handler.Handler
	health   *handler.HealthHandler
	auth     *handler.AuthHandler
	groups   *handler.GroupHandler
	messages *handler.MessageHandler
	splits   *handler.SplitHandler
	metrics  prometheus.Gatherer
	tokens   middleware.TokenVerifier
	limiter  middleware.RateLimiter
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(rt routes, cfg *config.Config, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment()}))
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

	r.Get("/healthz", rt.health.Healthz)
	r.Get("/readyz", rt.health.Readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(rt.metrics))
	r.Get("/", rt.root.Root)

	authCfg := middleware.AuthConfig{
		Logger: logger,
		Tokens: rt.tokens,
	}

	rateLimitCfg := middleware.RateLimitConfig{
		Logger:        logger,
		Limiter:       rt.limiter,
		Enabled:       cfg.RateLimitEnabled,
		UserPerMinute: cfg.RateLimitUserPerMinute,
		UserBurst:     cfg.RateLimitUserBurst,
		IPPerSecond:   cfg.RateLimitAuthRPS,
		IPBurst:       cfg.RateLimitAuthBurst,
	}

	r.Route("/auth", func(r chi.Router) {
		r.Use(middleware.RateLimitIP(rateLimitCfg))
		r.Post("/signup", rt.auth.SignUp)
		r.Post("/signin", rt.auth.SignIn)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(authCfg))
		r.Use(middleware.RateLimitUser(rateLimitCfg))

		r.Get("/me", rt.auth.Me)
		r.Get("/slots/labels", rt.groups.SlotLabels)

		r.Route("/groups", func(r chi.Router) {
			r.Get("/", rt.groups.List)
			r.Post("/search", rt.groups.Search)

			r.Route("/{id}", func(r chi.Router) {
				r.Use(middleware.ValidateIDParams("id"))

				r.Get("/", rt.groups.Get)
				r.Post("/join", rt.groups.Join)

				r.Get("/messages", rt.messages.List)
				r.Post("/messages", rt.messages.Send)
				r.Get("/messages/stream", rt.messages.Stream)

				r.With(middleware.MaxUploadSize(cfg.MaxUploadSize)).Post("/fare", rt.splits.Fare)

				r.Post("/split", rt.splits.Start)
				r.Get("/split", rt.splits.Status)
				r.With(middleware.ValidateIDParams("user_id")).Put("/split/{user_id}", rt.splits.SetPaid)
			})
		})
	})

	r.NotFound(rt.root.NotFound)
	r.MethodNotAllowed(rt.root.MethodNotAllowed)

	return r
}
