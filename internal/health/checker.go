package health

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/captioncast/captioncast/internal/config"
)

// Status is the outcome of a single check.
type Status string

const (
	StatusPass Status = "pass"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

// Check is one diagnostic line.
type Check struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// Report is the combined result of a checker run.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	HasFailures bool      `json:"has_failures"`
	Checks      []Check   `json:"checks"`
}

// Checker validates the encoder binary, render assets, the output
// directory and the provider settings.
type Checker struct {
	render config.RenderConfig
	tiktok config.TikTokConfig

	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker(cfg *config.Config) *Checker {
	return &Checker{
		render:     cfg.Render,
		tiktok:     cfg.TikTok,
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// Run executes every check.
func (c *Checker) Run() Report {
	checks := []Check{
		c.checkEncoder(),
		c.checkAsset("background", "Background video", c.render.BackgroundPath),
		c.checkAsset("font", "Font", c.render.FontPath),
		c.checkOutputDir(),
		c.checkTikTok(),
	}

	report := Report{GeneratedAt: time.Now().UTC(), Checks: checks}
	for _, check := range checks {
		if check.Status == StatusFail {
			report.HasFailures = true
			break
		}
	}
	return report
}

func (c *Checker) checkEncoder() Check {
	check := Check{ID: "ffmpeg", Name: "ffmpeg"}
	path, err := c.lookPath(c.render.FFmpegPath)
	if err != nil {
		check.Status = StatusFail
		check.Message = fmt.Sprintf("Encoder not found: %s", c.render.FFmpegPath)
		check.Hint = "Install ffmpeg or set render.ffmpeg_path."
		return check
	}
	check.Status = StatusPass
	check.Message = fmt.Sprintf("Found at %s", path)
	return check
}

func (c *Checker) checkAsset(id, name, path string) Check {
	check := Check{ID: id, Name: name}
	resolved := path
	if !filepath.IsAbs(path) && c.render.WorkDir != "" {
		resolved = filepath.Join(c.render.WorkDir, path)
	}

	info, err := c.stat(resolved)
	switch {
	case err != nil && errors.Is(err, os.ErrNotExist):
		check.Status = StatusFail
		check.Message = fmt.Sprintf("%s missing", filepath.Base(path))
		check.Hint = fmt.Sprintf("Place the file at %s.", resolved)
	case err != nil:
		check.Status = StatusFail
		check.Message = fmt.Sprintf("Cannot access %s: %v", resolved, err)
	case info.IsDir():
		check.Status = StatusFail
		check.Message = fmt.Sprintf("%s is a directory", resolved)
	default:
		check.Status = StatusPass
		check.Message = fmt.Sprintf("Found %s", resolved)
	}
	return check
}

func (c *Checker) checkOutputDir() Check {
	check := Check{ID: "output_dir", Name: "Output directory"}
	dir := c.render.OutputDir

	if strings.TrimSpace(dir) == "" {
		check.Status = StatusFail
		check.Message = "Output directory is empty."
		return check
	}
	if err := c.mkdirAll(dir, 0o755); err != nil {
		check.Status = StatusFail
		check.Message = fmt.Sprintf("Cannot create output directory: %s", dir)
		check.Hint = "Choose a writable location or adjust filesystem permissions."
		return check
	}

	tmp, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		check.Status = StatusFail
		check.Message = fmt.Sprintf("Output directory is not writable: %s", dir)
		check.Hint = "Choose a writable location or adjust filesystem permissions."
		return check
	}
	name := tmp.Name()
	_ = tmp.Close()
	_ = c.remove(name)

	check.Status = StatusPass
	check.Message = fmt.Sprintf("Writable directory: %s", dir)
	return check
}

// checkTikTok never fails: rendering works without provider credentials.
func (c *Checker) checkTikTok() Check {
	check := Check{ID: "tiktok", Name: "TikTok credentials"}

	var missing []string
	if c.tiktok.ClientKey == "" {
		missing = append(missing, "TIKTOK_CLIENT_KEY")
	}
	if c.tiktok.ClientSecret == "" {
		missing = append(missing, "TIKTOK_CLIENT_SECRET")
	}
	if c.tiktok.RedirectURI == "" {
		missing = append(missing, "TIKTOK_REDIRECT_URI")
	}

	switch {
	case len(missing) > 0:
		check.Status = StatusWarn
		check.Message = "Not configured: " + strings.Join(missing, ", ")
		check.Hint = "The OAuth endpoints answer 400 until these are set."
	case c.tiktok.RefreshToken == "":
		check.Status = StatusWarn
		check.Message = "Client configured, no refresh token yet"
		check.Hint = "Visit /auth/tiktok/start to obtain one."
	default:
		check.Status = StatusPass
		check.Message = "Client and refresh token configured"
	}
	return check
}
