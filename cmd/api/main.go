package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"retailgate.org/internal/access"
	"retailgate.org/internal/audit"
	"retailgate.org/internal/auth"
	"retailgate.org/internal/branches"
	"retailgate.org/internal/config"
	"retailgate.org/internal/dataaccess"
	"retailgate.org/internal/httpapi"
	"retailgate.org/internal/obs"
	"retailgate.org/internal/ratelimit"
	"retailgate.org/internal/session"
	"retailgate.org/internal/store/pg"
	"retailgate.org/internal/stream"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "retailgate-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := obs.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	obs.SetLogger(logger)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	verifier, err := auth.NewVerifier(cfg.Auth.Secret, auth.WithIssuer(cfg.Auth.Issuer))
	if err != nil {
		return err
	}

	feed := stream.New()
	var (
		db      *sql.DB
		store   *pg.Store
		rows    httpapi.RowSource
		source  branches.Source
		sinks   = []audit.Sink{audit.NewLogSink(logger), feed}
		rclient redis.UniversalClient
	)
	if cfg.Database.DSN != "" {
		store, err = pg.Open(cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer store.Close()
		db = store.DB()
		rows = store
		source = store
		sinks = append(sinks, audit.NewPGSink(db))
	}
	if cfg.BranchesFile != "" {
		dir, err := branches.LoadFile(cfg.BranchesFile)
		if err != nil {
			return err
		}
		logger.Info("branch directory loaded", zap.String("file", cfg.BranchesFile), zap.Int("branches", dir.Len()))
		source = dir
	}

	limiterOpts := []ratelimit.Option{
		ratelimit.WithWindow(cfg.RateLimit.Window),
		ratelimit.WithLimit(cfg.RateLimit.Limit),
		ratelimit.WithLogger(logger),
	}
	for op, n := range cfg.RateLimit.PerOp {
		limiterOpts = append(limiterOpts, ratelimit.WithOperationLimit(op, n))
	}
	var counters ratelimit.CounterStore
	if cfg.RateLimit.RedisAddr != "" {
		rclient = redis.NewClient(&redis.Options{
			Addr:     cfg.RateLimit.RedisAddr,
			Password: cfg.RateLimit.RedisPass,
			DB:       cfg.RateLimit.RedisDB,
		})
		defer rclient.Close()
		counters = ratelimit.NewRedisStore(rclient)
		limiterOpts = append(limiterOpts, ratelimit.WithFallback(ratelimit.NewMemoryStore(nil)))
	}

	registry := session.NewRegistry(
		session.WithTimeout(cfg.Session.Timeout),
		session.WithMaxConcurrent(cfg.Session.MaxConcurrent),
	)
	janitor := session.NewJanitor(registry, cfg.Session.CleanupInterval, logger)
	if err := janitor.Start(); err != nil {
		return err
	}
	defer janitor.Stop()

	probe := httpapi.ReadyProbe{DB: db, Redis: rclient}
	api := httpapi.New(version, httpapi.Deps{
		Engine:   access.NewEngine(cfg.Access),
		Sessions: registry,
		Mediator: dataaccess.NewMediator(),
		Limiter:  ratelimit.New(counters, limiterOpts...),
		Branches: source,
		Verifier: verifier,
		Audit:    audit.Multi(sinks...),
		Rows:     rows,
		Ready:    probe,
		Stream:   feed,
	},
		httpapi.WithLogger(logger),
		httpapi.WithAllowedOrigins(cfg.HTTP.AllowedOrigins...),
		httpapi.WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes),
		httpapi.WithClientRateLimit(cfg.HTTP.ClientRPS, cfg.HTTP.ClientBurst),
	)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	httpLis, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen http: %w", err)
	}
	grpcLis, err := net.Listen("tcp", cfg.HTTP.GRPCAddr)
	if err != nil {
		_ = httpLis.Close()
		return fmt.Errorf("listen grpc: %w", err)
	}
	grpcSrv := grpc.NewServer()
	health := httpapi.NewGRPCServer(probe, logger)
	health.Register(grpcSrv)

	logger.Info("starting", zap.String("version", version))
	return servers{
		http:            srv,
		httpLis:         httpLis,
		grpc:            grpcSrv,
		grpcLis:         grpcLis,
		health:          health,
		healthInterval:  10 * time.Second,
		shutdownTimeout: cfg.HTTP.ShutdownTimeout,
		logger:          logger,
	}.serve(ctx)
}
