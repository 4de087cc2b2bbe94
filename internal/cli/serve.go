package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/captioncast/captioncast/internal/api"
	"github.com/captioncast/captioncast/internal/health"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s", "server", "run"},
	Short:   "Start the CaptionCast HTTP service",
	Long: `Start the CaptionCast HTTP service in main mode.

The service renders captioned videos on POST /render, serves them under the
public path until they expire, and brokers TikTok OAuth tokens.

Example:
  captioncast serve --config config.yaml --port 3000`,
	RunE: runServe,
}

var serveFlags struct {
	Host    string
	Port    int
	Timeout time.Duration
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.Host, "host", "", "Server host (overrides config)")
	serveCmd.Flags().IntVar(&serveFlags.Port, "port", 0, "Server port (overrides config and PORT)")
	serveCmd.Flags().DurationVar(&serveFlags.Timeout, "timeout", envDuration("SHUTDOWN_TIMEOUT", 0), "Shutdown timeout (overrides config)")

	RootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if serveFlags.Host != "" {
		cfg.Server.Host = serveFlags.Host
	}
	if serveFlags.Port != 0 {
		cfg.Server.HTTPPort = serveFlags.Port
	}
	if serveFlags.Timeout > 0 {
		cfg.Server.ShutdownTimeout = serveFlags.Timeout
	}
	if err := cfg.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server flags: %w", err)
	}

	logger := newLogger(cfg)
	a := newApp(cfg, logger, true)

	if err := a.renderer.EnsureOutputDir(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.scheduler != nil {
		if err := a.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start expiry scheduler: %w", err)
		}
		defer func() {
			if err := a.scheduler.Stop(); err != nil {
				logger.Warn("expiry scheduler stop failed", "error", err)
			}
		}()
	}

	if report := a.checker.Run(); report.HasFailures {
		for _, check := range report.Checks {
			if check.Status != health.StatusPass {
				logger.Warn("startup check", "check", check.ID, "status", string(check.Status), "message", check.Message)
			}
		}
	}

	server := api.NewServer(cfg, a.dependencies())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run()
	}()

	sigCh := api.SetupSignalHandler()
	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	a.drainNotices(shutdownCtx)
	return nil
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
