package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/captioncast/captioncast/internal/api"
	"github.com/captioncast/captioncast/internal/cleanup"
	"github.com/captioncast/captioncast/internal/config"
	"github.com/captioncast/captioncast/internal/encoder"
	"github.com/captioncast/captioncast/internal/health"
	"github.com/captioncast/captioncast/internal/logging"
	"github.com/captioncast/captioncast/internal/metrics"
	"github.com/captioncast/captioncast/internal/render"
	"github.com/captioncast/captioncast/internal/telegram"
	"github.com/captioncast/captioncast/internal/tiktok"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	metrics   *metrics.Metrics
	renderer  *render.Service
	scheduler *cleanup.Scheduler
	broker    *tiktok.Broker
	checker   *health.Checker
	notifier  *telegram.Notifier
}

// loadConfig reads the file named by --config plus environment overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader(globalFlags.Config).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *logging.Logger {
	level := logging.ParseLevel(cfg.Server.LogLevel)
	if globalFlags.Verbose {
		level = logging.LevelDebug
	}
	return logging.NewLogger(logging.WithLevel(level))
}

// newApp builds every component from cfg. The expiry scheduler is only
// created when withExpiry is set and a TTL is configured; it is not started.
func newApp(cfg *config.Config, logger *logging.Logger, withExpiry bool) *app {
	m := metrics.NewMetrics(cfg.Metrics.Namespace)
	notifier := telegram.NewNotifier(cfg.Telegram, logger.Component("telegram"))

	a := &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		checker:  health.NewChecker(cfg),
		notifier: notifier,
	}

	ffmpeg := encoder.NewFFmpeg(cfg.Render.FFmpegPath,
		encoder.WithMetrics(m),
		encoder.WithLogger(logger.Component("encoder")),
	)

	renderOpts := []render.Option{
		render.WithMetrics(m),
		render.WithLogger(logger.Component("render")),
	}
	if notifier != nil {
		renderOpts = append(renderOpts, render.WithNotifier(notifier))
	}
	if withExpiry && cfg.Render.VideoTTL() > 0 {
		a.scheduler = cleanup.NewScheduler(cleanup.Config{
			Dir:          cfg.Render.OutputDir,
			TTL:          cfg.Render.VideoTTL(),
			SweepOnStart: cfg.Render.SweepOnStart,
			Match:        render.IsOutputFile,
		}, m, logger.Component("cleanup"))
		renderOpts = append(renderOpts, render.WithScheduler(a.scheduler))
	}
	a.renderer = render.NewService(cfg.Render, ffmpeg, renderOpts...)

	client := tiktok.NewClient(cfg.TikTok,
		tiktok.WithClientMetrics(m),
		tiktok.WithClientLogger(logger.Component("tiktok")),
	)
	brokerOpts := []tiktok.BrokerOption{tiktok.WithLogger(logger.Component("tiktok"))}
	if notifier != nil {
		brokerOpts = append(brokerOpts, tiktok.WithNotifier(notifier))
	}
	a.broker = tiktok.NewBroker(cfg.TikTok, client, brokerOpts...)

	return a
}

// dependencies returns the API collaborators. A nil scheduler is left out
// so the interface stays nil.
func (a *app) dependencies() api.Dependencies {
	deps := api.Dependencies{
		Renderer: a.renderer,
		Broker:   a.broker,
		Health:   a.checker,
		Metrics:  a.metrics,
		Logger:   a.logger,
	}
	if a.scheduler != nil {
		deps.Expiry = a.scheduler
	}
	return deps
}

// noticeDrainTimeout bounds how long one-shot commands wait for notices.
const noticeDrainTimeout = 15 * time.Second

func (a *app) drainNoticesFor(d time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	a.drainNotices(ctx)
}

// drainNotices waits for queued Telegram notices until ctx expires.
func (a *app) drainNotices(ctx context.Context) {
	if a.notifier == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		a.notifier.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("shutdown timed out waiting for telegram notices")
	}
}
