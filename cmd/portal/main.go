package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"noorstitching.org/internal/backend"
	"noorstitching.org/internal/clientstate"
	"noorstitching.org/internal/config"
	"noorstitching.org/internal/httpapi"
	"noorstitching.org/internal/migrate"
	"noorstitching.org/internal/obs"
	"noorstitching.org/internal/portal"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// Persisted client state is dropped this long after its last update.
const stateRetention = 45 * 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)
	logger := obs.Logger()
	defer func() { _ = logger.Sync() }()

	api, err := backend.New(cfg.BackendURL, backend.WithTimeout(cfg.BackendTimeout))
	if err != nil {
		logger.Fatal("backend_client", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	state, err := openState(ctx, cfg)
	if err != nil {
		logger.Fatal("client_state_open", zap.String("driver", cfg.StateDriver), zap.Error(err))
	}
	defer func() { _ = state.Close() }()

	clients := portal.NewRegistry(api, state,
		portal.WithIdleTTL(cfg.ClientIdleTTL),
		portal.WithOpTimeout(cfg.BackendTimeout),
	)
	go clients.Run(ctx)
	if pg, ok := state.(*clientstate.Postgres); ok {
		go sweepState(ctx, pg)
	}

	probe := httpapi.ReadyProbe{Backend: api, State: state}
	handler := httpapi.New(probe, version, api, clients,
		httpapi.WithRateLimit(cfg.RateBurst, cfg.RatePerSec),
		httpapi.WithLoginRate(cfg.LoginRatePerMin),
		httpapi.WithSecureCookies(cfg.CookieSecure),
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// Session events stream; each write is bounded by the client instead.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	health := httpapi.NewGRPCServer(probe)
	grpcSrv := grpc.NewServer()
	health.Register(grpcSrv)
	go health.Run(ctx, 10*time.Second)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("grpc_listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}
	go func() {
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error("grpc_serve", zap.Error(err))
			stop()
		}
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_listen", zap.Error(err))
			stop()
		}
	}()
	logger.Info("portal_started",
		zap.String("version", version),
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("grpc_addr", cfg.GRPCAddr),
		zap.String("backend", api.BaseURL()),
		zap.String("state_driver", cfg.StateDriver),
	)

	<-ctx.Done()
	logger.Info("portal_shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownDeadline)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http_shutdown", zap.Error(err))
	}
	stopped := make(chan struct{})
	go func() {
		grpcSrv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		grpcSrv.Stop()
	}
	logger.Info("portal_stopped")
}

func openState(ctx context.Context, cfg config.Config) (clientstate.Store, error) {
	switch cfg.StateDriver {
	case config.DriverPostgres:
		pg, err := clientstate.OpenPostgres(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		applied, err := migrate.NewManager(pg.DB(), clientstate.Migrations, clientstate.MigrationsDir).Up(mctx)
		if err != nil {
			_ = pg.Close()
			return nil, err
		}
		if len(applied) > 0 {
			obs.Logger().Info("client_state_migrated", zap.Strings("applied", applied))
		}
		return pg, nil
	case config.DriverRedis:
		dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return clientstate.DialRedis(dctx, cfg.RedisAddr, cfg.RedisPassword, stateRetention)
	}
	return clientstate.NewMemory(), nil
}

func sweepState(ctx context.Context, pg *clientstate.Postgres) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := pg.Sweep(ctx, time.Now().Add(-stateRetention))
			if err != nil {
				obs.Logger().Warn("client_state_sweep", zap.Error(err))
				continue
			}
			if n > 0 {
				obs.Logger().Info("client_state_swept", zap.Int64("rows", n))
			}
		}
	}
}
