package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tenantauth.org/internal/auth"
	"tenantauth.org/internal/config"
	"tenantauth.org/internal/grpcapi"
	"tenantauth.org/internal/httpapi"
	"tenantauth.org/internal/obs"
	"tenantauth.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := obs.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	restore := obs.SetLogger(logger)
	os.Exit(finish(logger, restore, run(cfg, logger)))
}

// finish logs the result of run, restores the global logger and flushes
// buffered entries. It returns the process exit code.
func finish(logger *zap.Logger, restore func(), err error) int {
	code := 0
	if err != nil {
		logger.Error("server stopped", zap.Error(err))
		code = 1
	}
	restore()
	_ = logger.Sync()
	return code
}

func run(cfg config.Config, logger *zap.Logger) error {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	store, err := pg.Open(cfg.Database.DSN, pg.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	hasher, err := auth.NewHasher(cfg.Auth.PasswordScheme, cfg.Auth.BcryptCost)
	if err != nil {
		return err
	}
	codec, err := auth.NewTokenCodec(auth.TokenConfig{
		Secret:     cfg.Auth.Secret,
		Algorithm:  cfg.Auth.Algorithm,
		Issuer:     cfg.Auth.Issuer,
		AccessTTL:  cfg.Auth.AccessTTL(),
		RefreshTTL: cfg.Auth.RefreshTTL(),
	})
	if err != nil {
		return err
	}
	blacklist := auth.NewBlacklistRevocations(store.Blacklist())
	revoked := auth.NewCachedRevocations(blacklist, 10*time.Minute)
	resolver := auth.NewResolver(codec, revoked, store.Users(), logger.Named("resolver"))
	sessions, err := auth.NewSessionManager(store.Users(), hasher, codec, revoked, resolver,
		auth.WithSessionLogger(logger.Named("session")))
	if err != nil {
		return err
	}
	signupCeiling, err := cfg.Auth.SignupLevelCeiling()
	if err != nil {
		return err
	}
	tenants, err := auth.NewTenants(store, hasher,
		auth.WithTenantLogger(logger.Named("tenants")),
		auth.WithSignupLevelCeiling(signupCeiling))
	if err != nil {
		return err
	}

	api := httpapi.New(httpapi.Services{
		Resolver: resolver,
		Sessions: sessions,
		Tenants:  tenants,
	}, httpapi.Options{
		Version:        version,
		CookieSecure:   cfg.Auth.CookieSecure,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		LoginBurst:     cfg.RateLimit.LoginBurst,
		LoginPerSecond: cfg.RateLimit.LoginPerSecond,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		Ready:          httpapi.PingFunc(store.Ping),

		TrustForwardedFor: cfg.HTTP.TrustForwardedFor,
	}, logger.Named("http"))

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	grpcSrv := grpcapi.New(httpapi.PingFunc(store.Ping), logger.Named("grpc"))
	grpcLis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("grpc listening", zap.String("addr", grpcLis.Addr().String()))
		return grpcSrv.GRPC().Serve(grpcLis)
	})
	g.Go(func() error {
		grpcSrv.Watch(ctx, 5*time.Second)
		return nil
	})
	g.Go(func() error {
		prunerLog := logger.Named("pruner")
		blacklist.PruneEvery(ctx, cfg.Auth.RevocationPruneInterval, func(n int64, err error) {
			if err != nil {
				prunerLog.Warn("prune revocations", zap.Error(err))
				return
			}
			obs.AddPrunedRevocations(n)
			prunerLog.Debug("pruned revocations", zap.Int64("removed", n))
		})
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		grpcSrv.Shutdown()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}
