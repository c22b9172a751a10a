package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/abhisek/vizlearn/internal/logger"
	"github.com/abhisek/vizlearn/internal/observability"
	"github.com/abhisek/vizlearn/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer log.Sync()

		gin.SetMode(cfg.Server.Mode)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		shutdownOTel := observability.InitOTel(ctx, log, cfg.OTel, version)

		d, err := buildDeps(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer d.close()

		h := server.NewHandler(server.HandlerConfig{
			Orchestrator:     d.orch,
			ForKey:           d.keyedProvider(cfg, log),
			AllowRequestKeys: cfg.Server.AllowRequestKeys,
			Image:            cfg.Image.Options(),
			Logger:           log,
		})

		routerCfg := server.RouterConfig{
			Handler:        h,
			Logger:         log,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		}
		if cfg.OTel.Enabled {
			routerCfg.ServiceName = cfg.OTel.ServiceName
		}
		srv := server.NewServer(cfg.Server.Addr, server.NewRouter(routerCfg), cfg.Server.ReadHeaderTimeout, log)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(srv.Run)
		g.Go(func() error {
			<-gctx.Done()
			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn("server shutdown", "error", err)
			}
			if err := shutdownOTel(shutdownCtx); err != nil {
				log.Warn("otel shutdown", "error", err)
			}
			return nil
		})
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
}
