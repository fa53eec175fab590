// hookwatch server - runs hook detection behind HTTP, WebSocket and gRPC health endpoints
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
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/hookwatch/internal/config"
	"github.com/GriffinCanCode/hookwatch/internal/grpcclient"
	"github.com/GriffinCanCode/hookwatch/internal/grpcserver"
	"github.com/GriffinCanCode/hookwatch/internal/orchestrator"
	"github.com/GriffinCanCode/hookwatch/internal/server"
)

func main() {
	probe := flag.Bool("probe", false, "check the detector health endpoint of a running instance and exit")
	autostart := flag.Bool("start", false, "begin detection immediately")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if *probe {
		os.Exit(runProbe(cfg.GRPCAddr))
	}

	if err := run(cfg, *autostart); err != nil {
		slog.Error("hookwatch exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, autostart bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mgr, err := orchestrator.New(cfg)
	if err != nil {
		return err
	}
	if err := mgr.Start(ctx); err != nil {
		return err
	}
	defer mgr.Stop()

	srv := server.New(mgr)
	defer srv.Close()

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	health := grpcserver.New()
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	events, unsubscribe := mgr.Subscribe()
	defer unsubscribe()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		health.Follow(gctx, events)
		return nil
	})
	g.Go(func() error {
		slog.Info("http server starting", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		slog.Info("grpc health server starting", "addr", cfg.GRPCAddr)
		return health.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		mgr.StopDetection()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown error", "error", err)
		}
		health.GracefulStop()
		return nil
	})

	if autostart {
		mgr.StartDetection()
	}

	err = g.Wait()
	slog.Info("shutdown complete")
	return err
}

func runProbe(addr string) int {
	client, err := grpcclient.New(addr)
	if err != nil {
		slog.Error("probe failed", "addr", addr, "error", err)
		return 1
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), grpcclient.HealthCheckTimeout)
	defer cancel()

	serving, err := client.Serving(ctx, grpcserver.ServiceName)
	if err != nil {
		slog.Error("probe failed", "addr", addr, "error", err)
		return 1
	}
	slog.Info("probe", "addr", addr, "detecting", serving)
	if !serving {
		return 1
	}
	return 0
}
