package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/helix-collective/z88/internal/api"
	"github.com/helix-collective/z88/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the z88 HTTP API.

Examples:
  # Start with the configured address (default 127.0.0.1:8088)
  z88 serve

  # Listen on all interfaces
  z88 serve --host 0.0.0.0 --port 3000`,
	RunE: runServe,
}

var (
	serveHost string
	servePort int
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "host address to bind to")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "port to listen on")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	logger := newLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := telemetry.Init(ctx, cfg.Telemetry, "z88", appVersion); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Agents.PresetsFile != "" && cfg.Agents.WatchPresets {
		go func() {
			if err := a.presets.Watch(ctx, cfg.Agents.PresetsFile, logger); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("presets watcher stopped", "error", err)
			}
		}()
	}

	server := api.NewServer(api.Deps{
		Stories:  a.stories,
		Enhancer: a.enhancer,
		Store:    a.store,
		Presets:  a.presets,
		Prober:   a.router,
		Events:   a.bus,
	},
		api.WithLogger(logger),
		api.WithCORSOrigins(cfg.Server.CORSOrigins),
	)

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	logger.Info("z88 ready",
		"addr", addr,
		"storage", a.store.Driver(),
		"providers", fmt.Sprint(a.router.Configured()),
	)
	return server.ListenAndServe(ctx, addr, api.Timeouts{
		Read:     cfg.Server.ReadTimeout,
		Write:    cfg.Server.WriteTimeout,
		Shutdown: cfg.Server.ShutdownTimeout,
	})
}
