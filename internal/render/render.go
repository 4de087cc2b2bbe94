package render

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/captioncast/captioncast/internal/config"
	"github.com/captioncast/captioncast/internal/encoder"
	"github.com/captioncast/captioncast/internal/errors"
	"github.com/captioncast/captioncast/internal/logging"
)

const (
	filePrefix = "out_"
	fileSuffix = ".mp4"
	idBytes    = 8

	requiredMessage = "top_text and bottom_text are required"
)

// Render outcomes reported to metrics.
const (
	OutcomeOK           = "ok"
	OutcomeInvalid      = "invalid"
	OutcomeMissingAsset = "missing_asset"
	OutcomeEncodeFailed = "encode_failed"
	OutcomeError        = "error"
)

// Request holds the two caption lines.
type Request struct {
	TopText    string `json:"top_text"`
	BottomText string `json:"bottom_text"`
}

// Result describes a rendered file.
type Result struct {
	FileName string
	Path     string
	// TTL is zero when the file is kept forever.
	TTL time.Duration
}

// Scheduler deletes files after a delay.
type Scheduler interface {
	Schedule(path string, ttl time.Duration)
}

// Notifier sends operator notices.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// MetricsRecorder receives render outcomes.
type MetricsRecorder interface {
	RecordRender(outcome string)
}

// Service validates caption requests, runs the encoder and schedules expiry.
type Service struct {
	cfg       config.RenderConfig
	encoder   encoder.Encoder
	scheduler Scheduler
	notifier  Notifier
	metrics   MetricsRecorder
	logger    *logging.Logger
	newID     func() (string, error)
}

// Option configures a Service.
type Option func(*Service)

// WithScheduler enables expiry of rendered files.
func WithScheduler(s Scheduler) Option {
	return func(svc *Service) {
		svc.scheduler = s
	}
}

// WithNotifier reports encoder failures to an operator.
func WithNotifier(n Notifier) Option {
	return func(svc *Service) {
		svc.notifier = n
	}
}

// WithMetrics records render outcomes.
func WithMetrics(m MetricsRecorder) Option {
	return func(svc *Service) {
		svc.metrics = m
	}
}

// WithLogger sets the service logger.
func WithLogger(l *logging.Logger) Option {
	return func(svc *Service) {
		svc.logger = l
	}
}

// NewService creates a render service.
func NewService(cfg config.RenderConfig, enc encoder.Encoder, opts ...Option) *Service {
	svc := &Service{
		cfg:     cfg,
		encoder: enc,
		logger:  logging.Nop(),
		newID:   NewID,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// EnsureOutputDir creates the output directory if needed.
func (s *Service) EnsureOutputDir() error {
	if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
		return &errors.ErrDirectoryCreate{Path: s.cfg.OutputDir, Err: err}
	}
	return nil
}

// Render produces one captioned video.
func (s *Service) Render(ctx context.Context, req Request) (*Result, error) {
	top := strings.TrimSpace(req.TopText)
	bottom := strings.TrimSpace(req.BottomText)
	if top == "" || bottom == "" {
		s.record(OutcomeInvalid)
		return nil, &errors.ErrValidation{Message: requiredMessage}
	}

	background, err := s.asset(s.cfg.BackgroundPath)
	if err != nil {
		s.record(OutcomeMissingAsset)
		return nil, err
	}
	font, err := s.asset(s.cfg.FontPath)
	if err != nil {
		s.record(OutcomeMissingAsset)
		return nil, err
	}

	id, err := s.newID()
	if err != nil {
		s.record(OutcomeError)
		return nil, fmt.Errorf("generate file id: %w", err)
	}
	name := FileName(id)
	out := filepath.Join(s.cfg.OutputDir, name)

	err = s.encoder.Encode(ctx, encoder.Job{
		Background: background,
		Font:       font,
		Output:     out,
		TopText:    top,
		BottomText: bottom,
	})
	if err != nil {
		s.record(OutcomeEncodeFailed)
		s.logger.ErrorWithContext(ctx, "encode failed", "output", out, "error", err)
		s.notifyFailure(ctx, name, err)
		return nil, err
	}

	res := &Result{FileName: name, Path: out}
	if ttl := s.cfg.VideoTTL(); ttl > 0 && s.scheduler != nil {
		s.scheduler.Schedule(out, ttl)
		res.TTL = ttl
	}

	s.record(OutcomeOK)
	s.logger.InfoWithContext(ctx, "video rendered", "file", name, "ttl_seconds", int(res.TTL.Seconds()))
	return res, nil
}

// asset resolves a configured asset path and checks that it exists.
// The check runs on every request so a replaced asset is picked up.
func (s *Service) asset(path string) (string, error) {
	resolved := path
	if !filepath.IsAbs(path) && s.cfg.WorkDir != "" {
		resolved = filepath.Join(s.cfg.WorkDir, path)
	}
	if _, err := os.Stat(resolved); err != nil {
		return "", &errors.ErrDependencyMissing{Asset: filepath.Base(path), Path: resolved}
	}
	return resolved, nil
}

func (s *Service) notifyFailure(ctx context.Context, name string, err error) {
	if s.notifier == nil {
		return
	}
	text := fmt.Sprintf("captioncast: render of %s failed: %v", name, err)
	if nerr := s.notifier.Notify(ctx, truncate(text, 1000)); nerr != nil {
		s.logger.WarnWithContext(ctx, "failed to send failure notice", "error", nerr)
	}
}

func (s *Service) record(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordRender(outcome)
	}
}

// NewID returns 16 lowercase hex characters from crypto/rand.
func NewID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// FileName builds the output file name for an id.
func FileName(id string) string {
	return filePrefix + id + fileSuffix
}

// IsOutputFile reports whether name looks like a rendered file.
func IsOutputFile(name string) bool {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	if len(id) != idBytes*2 {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil && strings.ToLower(id) == id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
