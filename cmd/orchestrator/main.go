package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/athulya-anil/axon-orchestrator/pkg/api"
	"github.com/athulya-anil/axon-orchestrator/pkg/config"
	"github.com/athulya-anil/axon-orchestrator/pkg/coordinator"
	"github.com/athulya-anil/axon-orchestrator/pkg/dashboard"
	"github.com/athulya-anil/axon-orchestrator/pkg/ledger"
	"github.com/athulya-anil/axon-orchestrator/pkg/liveness"
	"github.com/athulya-anil/axon-orchestrator/pkg/rpc"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("orchestrator exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coord := coordinator.New(ledger.New(), liveness.NewTracker(),
		coordinator.WithLogger(logger),
		coordinator.WithSilentAfter(cfg.SilentAfter),
	)

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.NewAPI(coord), logger)
	dashboard.NewDashboard(coord, cfg.DashboardInterval).SetupRoutes(router)

	g, gctx := errgroup.WithContext(ctx)

	// Request contexts derive from gctx so open SSE streams end on shutdown.
	httpServer := &http.Server{
		Addr:        cfg.HTTPAddr,
		Handler:     router,
		BaseContext: func(net.Listener) context.Context { return gctx },
	}

	grpcServer := rpc.NewGRPCServer(coord, logger)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}

	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("grpc server listening", "addr", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		grpcServer.GracefulStop()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	s := coord.Status()
	logger.Info("orchestrator stopped",
		"jobs_total", s.Jobs.Total,
		"jobs_complete", s.Jobs.Complete,
		"workers", s.WorkersTotal,
	)
	return nil
}
