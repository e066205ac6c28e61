package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-sortie/internal/backoffice"
	"github.com/noah-isme/backend-sortie/internal/catalog"
	"github.com/noah-isme/backend-sortie/internal/common"
	"github.com/noah-isme/backend-sortie/internal/config"
	"github.com/noah-isme/backend-sortie/internal/health"
	"github.com/noah-isme/backend-sortie/internal/lock"
	"github.com/noah-isme/backend-sortie/internal/obs"
	"github.com/noah-isme/backend-sortie/internal/pricing"
	"github.com/noah-isme/backend-sortie/internal/promotion"
	"github.com/noah-isme/backend-sortie/internal/ratelimit"
	"github.com/noah-isme/backend-sortie/internal/resilience"
	"github.com/noah-isme/backend-sortie/internal/security"
	"github.com/noah-isme/backend-sortie/internal/sortie"
)

const draftsPath = "/api/v1/sorties/drafts"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()
	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracingEnabled := cfg.Obs.EnableTracing
	if tracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "sortie-api",
			Endpoint:      cfg.Obs.OTLPEndpoint,
			Exporter:      cfg.Obs.TracingExporter,
			SamplingRatio: cfg.Obs.SamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	probes := map[string]health.Probe{}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient = connectRedis(ctx, cfg, logger)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
		probes["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	} else {
		logger.Warn().Msg("REDIS_URL not set: catalog cache, idempotency, submit lock and rate limit disabled")
	}

	breaker := resilience.NewBreaker(cfg.BackofficeBreakerMinCalls, cfg.BackofficeBreakerRatio, cfg.BackofficeBreakerCooldown)
	boClient, err := backoffice.NewClient(backoffice.Config{
		BaseURL:          cfg.BackofficeBaseURL,
		Breaker:          breaker,
		Timeout:          cfg.BackofficeTimeout,
		DuplicateMarkers: cfg.BackofficeDuplicateMarkers,
		Logger:           &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise backoffice client")
	}
	probes["backoffice"] = boClient.Ready

	var (
		source       catalog.Source           = boClient
		orderNumbers sortie.OrderNumberSource = boClient
	)
	if cfg.DatabaseURL != "" {
		pool := connectDB(ctx, cfg, logger)
		defer pool.Close()
		pg, err := backoffice.NewPGSource(pool)
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise database source")
		}
		source, orderNumbers = pg, pg
		probes["db"] = pool.Ping
	}

	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Source: source,
		Cache:  catalog.NewCache(redisClient, cfg.CatalogCacheTTL),
		Logger: &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}

	resolver, err := promotion.NewResolver(promotion.Config{
		Rules:      catalogService,
		Products:   catalogService,
		ContextTag: cfg.PromotionContext,
		Timeout:    cfg.PromotionLookupTimeout,
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise promotion resolver")
	}

	sessionCfg := sortie.Config{
		Catalog:      catalogService,
		Resolver:     resolver,
		OrderNumbers: orderNumbers,
		Submitter:    boClient,
		GuardTTL:     cfg.SubmitGuardTTL,
		Mode:         pricing.ParseSurchargeMode(cfg.PricingSurchargeMode),
		IdleTTL:      cfg.DraftIdleTTL,
		Logger:       &logger,
	}
	if redisClient != nil {
		sessionCfg.Guard = lock.Locker{R: redisClient, Prefix: "sortie:lock:"}
	}
	sessions, err := sortie.NewSessions(sessionCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise draft sessions")
	}
	go sessions.Janitor(ctx, cfg.DraftSweepInterval)

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	limiter := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient},
		Config:  ratelimit.Config{Key: ratelimit.DraftKey, Window: cfg.SubmitRateWindow, Max: cfg.SubmitRateLimit},
		OnError: func(err error) { logger.Warn().Err(err).Msg("submit rate limiter unavailable") },
	}
	drafts := &sortie.Handler{Sessions: sessions, BasePath: draftsPath}

	var httpMetrics *obs.HTTPMetrics
	if cfg.Obs.EnablePrometheus {
		httpMetrics = obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, obs.ParseBucketsCSV(cfg.Obs.MetricsBuckets), nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders: []string{"Retry-After", "X-RateLimit-Remaining", "Idempotent-Replayed"},
		MaxAge:         300,
	}))
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.AppEnv == "production"}.Middleware)

	if cfg.Obs.EnablePrometheus {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.Obs.EnablePprof {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), cfg.Obs.PprofUser, cfg.Obs.PprofPass))
	}

	healthHandler := health.Handler{Probes: probes, Timeout: cfg.Obs.ReadyTimeout}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route(draftsPath, func(d chi.Router) {
		d.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)
		drafts.Routes(d, limiter.Middleware, idem.Middleware)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Str("surcharge_mode", string(sessionCfg.Mode)).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Int("open_drafts", sessions.Len()).Msg("server stopped")
}

func connectRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if cfg.Obs.EnablePrometheus {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}

func connectDB(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "sortie-api"
	poolConfig.ConnConfig.RuntimeParams["default_transaction_read_only"] = "on"

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(connectCtx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
