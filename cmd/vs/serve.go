package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/viewshare/internal/changefeed"
	"github.com/alfredjeanlab/viewshare/internal/config"
	"github.com/alfredjeanlab/viewshare/internal/events"
	"github.com/alfredjeanlab/viewshare/internal/gateway"
	"github.com/alfredjeanlab/viewshare/internal/model"
	"github.com/alfredjeanlab/viewshare/internal/server"
	"github.com/alfredjeanlab/viewshare/internal/store"
	"github.com/alfredjeanlab/viewshare/internal/store/memory"
	"github.com/alfredjeanlab/viewshare/internal/store/postgres"
	vssync "github.com/alfredjeanlab/viewshare/internal/sync"
)

// openBus picks the session transport: an external NATS server when
// natsURL is set, an in-process NATS server when embed is set, and an
// in-memory bus otherwise. The returned stop func shuts down anything
// openBus started besides the bus itself.
func openBus(natsURL string, embed bool, logger *slog.Logger) (events.Bus, func(), error) {
	if natsURL != "" {
		bus, err := events.NewNATSBus(natsURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("serve: session transport", "nats_url", natsURL)
		return bus, func() {}, nil
	}
	if !embed {
		logger.Info("serve: session transport in memory (VIEWSHARE_NATS_URL not set)")
		return events.NewMemoryBus(), func() {}, nil
	}

	ns, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1, NoSigs: true})
	if err != nil {
		return nil, nil, fmt.Errorf("starting embedded NATS: %w", err)
	}
	ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, nil, errors.New("embedded NATS not ready")
	}
	bus, err := events.NewNATSBus(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		return nil, nil, err
	}
	logger.Info("serve: session transport on embedded NATS", "nats_url", ns.ClientURL())
	return bus, ns.Shutdown, nil
}

// openStore connects to Postgres when databaseURL is set and relays its row
// notifications; otherwise rows live in memory and are relayed directly.
func openStore(ctx context.Context, databaseURL string, relay *changefeed.Relay, logger *slog.Logger) (store.Store, error) {
	if databaseURL == "" {
		mem := memory.New()
		mem.OnChange = func(rc model.RowChange) {
			if err := relay.Forward(ctx, rc); err != nil {
				logger.Warn("serve: relaying row change failed", "session_id", rc.SessionID(), "err", err)
			}
		}
		logger.Info("serve: session rows in memory (VIEWSHARE_DATABASE_URL not set)")
		return mem, nil
	}

	pg, err := postgres.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := relay.Listen(ctx, databaseURL, postgres.NotifyChannel); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("serve: changefeed stopped", "err", err)
		}
	}()
	return pg, nil
}

// syncDestinations builds the export targets named by cfg.
func syncDestinations(ctx context.Context, cfg *config.Config, logger *slog.Logger) []vssync.Destination {
	var dests []vssync.Destination
	if cfg.SyncS3Bucket != "" {
		s3Dest, err := vssync.NewS3Destination(ctx, cfg.SyncS3Bucket, cfg.SyncS3Key, cfg.SyncS3Region, cfg.SyncS3Endpoint)
		if err != nil {
			logger.Error("serve: S3 export destination failed", "err", err)
		} else {
			dests = append(dests, s3Dest)
			logger.Info("serve: S3 export enabled", "bucket", cfg.SyncS3Bucket, "key", cfg.SyncS3Key)
		}
	}
	if cfg.SyncFile != "" {
		dests = append(dests, vssync.NewFileDestination(cfg.SyncFile))
		logger.Info("serve: file export enabled", "path", cfg.SyncFile)
	}
	return dests
}

var serveCmd = &cobra.Command{
	Use:               "serve",
	Short:             "Start the registry, changefeed and websocket gateway",
	GroupID:           "system",
	Args:              cobra.NoArgs,
	PersistentPreRunE: noConnect,
	RunE: func(cmd *cobra.Command, args []string) error {
		embed, _ := cmd.Flags().GetBool("embed-nats")
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		bus, stopNATS, err := openBus(cfg.NATSURL, embed, logger)
		if err != nil {
			return err
		}
		defer stopNATS()
		defer bus.Close()

		relay := changefeed.New(bus, logger)
		st, err := openStore(ctx, cfg.DatabaseURL, relay, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		registryServer := server.NewRegistryServer(store.NewRegistry(st), bus, logger)
		gw := gateway.New(bus, gateway.Config{}, logger)
		registryServer.Gateway = gw
		grpcServer := server.NewGRPCServer(registryServer, cfg.AuthToken)

		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		go func() {
			logger.Info("serve: gRPC listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("serve: gRPC server error", "err", err)
			}
		}()

		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           registryServer.NewHTTPHandler(cfg.AuthToken),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("serve: HTTP listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("serve: HTTP server error", "err", err)
			}
		}()

		var scheduler *vssync.Scheduler
		if cfg.SyncInterval > 0 {
			if dests := syncDestinations(ctx, cfg, logger); len(dests) > 0 {
				scheduler = vssync.NewScheduler(st, dests, cfg.SyncInterval, logger)
				scheduler.Start()
				logger.Info("serve: export scheduler started", "interval", cfg.SyncInterval)
			}
		}

		logger.Info("serve: started", "grpc_addr", cfg.GRPCAddr, "http_addr", cfg.HTTPAddr)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("serve: shutting down", "signal", sig)

		grpcServer.GracefulStop()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("serve: HTTP shutdown error", "err", err)
		}
		// Writes have stopped; the scheduler's last export sees them all.
		if scheduler != nil {
			scheduler.Stop()
		}
		cancel()

		logger.Info("serve: shutdown complete", "open_sockets", gw.Connections())
		return nil
	},
}

func init() {
	serveCmd.Flags().Bool("embed-nats", false, "run an in-process NATS server when VIEWSHARE_NATS_URL is unset")
}
