package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultVideoTTLSeconds is how long a rendered file stays public.
	DefaultVideoTTLSeconds = 7200
	// MinVideoTTLSeconds is the lowest positive TTL accepted.
	MinVideoTTLSeconds = 10

	DefaultAuthorizeURL = "https://www.tiktok.com/v2/auth/authorize/"
	DefaultTokenURL     = "https://open.tiktokapis.com/v2/oauth/token/"
)

// Config represents the complete application configuration.
type Config struct {
	Version  string         `yaml:"version"`
	Server   ServerConfig   `yaml:"server"`
	Render   RenderConfig   `yaml:"render"`
	TikTok   TikTokConfig   `yaml:"tiktok"`
	Telegram TelegramConfig `yaml:"telegram"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig contains server-related configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	HTTPPort        int           `yaml:"http_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	// WriteTimeout bounds the whole response, including the encoder run.
	// Zero disables it.
	WriteTimeout time.Duration `yaml:"write_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	LogLevel     string        `yaml:"log_level"`
}

// RenderConfig contains the caption renderer configuration.
type RenderConfig struct {
	// WorkDir is where relative asset paths are resolved. Empty means the
	// process working directory at request time.
	WorkDir        string `yaml:"work_dir"`
	BackgroundPath string `yaml:"background_path"`
	FontPath       string `yaml:"font_path"`
	OutputDir      string `yaml:"output_dir"`
	PublicPath     string `yaml:"public_path"`
	PublicBaseURL  string `yaml:"public_base_url"`
	FFmpegPath     string `yaml:"ffmpeg_path"`
	// VideoTTLSeconds of 0 keeps rendered files forever.
	VideoTTLSeconds int  `yaml:"video_ttl_seconds"`
	SweepOnStart    bool `yaml:"sweep_on_start"`
}

// TikTokConfig contains the OAuth client settings for the token broker.
type TikTokConfig struct {
	ClientKey      string        `yaml:"client_key"`
	ClientSecret   string        `yaml:"client_secret"`
	RedirectURI    string        `yaml:"redirect_uri"`
	RefreshToken   string        `yaml:"refresh_token"`
	AuthorizeURL   string        `yaml:"authorize_url"`
	TokenURL       string        `yaml:"token_url"`
	VerifyState    bool          `yaml:"verify_state"`
	StateTTL       time.Duration `yaml:"state_ttl"`
	UseUTLS        bool          `yaml:"use_utls"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// TelegramConfig contains operator notification settings.
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

// MetricsConfig contains Prometheus exposition settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	// Validate only fills in zero values here and cannot fail.
	_ = cfg.Validate()
	return cfg
}

// applyDefaults sets values that must be in place before YAML is decoded,
// so an explicit zero in the file can still override them.
func applyDefaults(c *Config) {
	c.Version = "1"
	c.Server.Host = "0.0.0.0"
	c.Server.HTTPPort = 3000
	c.Server.ShutdownTimeout = 30 * time.Second
	c.Server.ReadTimeout = 30 * time.Second
	c.Server.MaxBodyBytes = 1 << 20
	c.Server.LogLevel = "info"
	c.Render.VideoTTLSeconds = DefaultVideoTTLSeconds
	c.Render.SweepOnStart = true
	c.Metrics.Enabled = true
}

// VideoTTL returns the expiry for rendered files; zero means never.
func (r RenderConfig) VideoTTL() time.Duration {
	if r.VideoTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(r.VideoTTLSeconds) * time.Second
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Version == "" {
		c.Version = "1"
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	if err := c.Render.Validate(); err != nil {
		return fmt.Errorf("render: %w", err)
	}

	if err := c.TikTok.Validate(); err != nil {
		return fmt.Errorf("tiktok: %w", err)
	}

	if err := c.Telegram.Validate(); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	if c.Metrics.Enabled {
		if route, clash := routeClash(c.Render.PublicPath, c.Metrics.Path); clash {
			return fmt.Errorf("render: public_path %q clashes with %s", c.Render.PublicPath, route)
		}
	}

	return nil
}

// reservedRoutes are served regardless of configuration.
var reservedRoutes = []string{
	"/health",
	"/render",
	"/auth/tiktok/start",
	"/auth/tiktok/callback",
	"/tiktok/access-token",
}

// routeClash reports the first route sharing publicPath's leading segment.
func routeClash(publicPath string, routes ...string) (string, bool) {
	head := firstSegment(publicPath)
	for _, route := range routes {
		if firstSegment(route) == head {
			return route, true
		}
	}
	return "", false
}

func firstSegment(p string) string {
	p = strings.TrimLeft(p, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	return p
}

// Validate validates server configuration.
func (s *ServerConfig) Validate() error {
	if s.Host == "" {
		s.Host = "0.0.0.0"
	}
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 1 and 65535")
	}
	if s.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = 30 * time.Second
	}
	if s.ReadTimeout < 0 || s.WriteTimeout < 0 {
		return fmt.Errorf("read_timeout and write_timeout cannot be negative")
	}
	if s.MaxBodyBytes <= 0 {
		s.MaxBodyBytes = 1 << 20
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	switch strings.ToLower(s.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of: debug, info, warn, error")
	}
	return nil
}

// Validate validates render configuration and applies defaults.
func (r *RenderConfig) Validate() error {
	if r.BackgroundPath == "" {
		r.BackgroundPath = "background.mp4"
	}
	if r.FontPath == "" {
		r.FontPath = "font.ttf"
	}
	if r.OutputDir == "" {
		r.OutputDir = "/tmp/public"
	}
	if r.PublicPath == "" {
		r.PublicPath = "/public"
	}
	if !strings.HasPrefix(r.PublicPath, "/") {
		r.PublicPath = "/" + r.PublicPath
	}
	r.PublicPath = strings.TrimRight(r.PublicPath, "/")
	if r.PublicPath == "" {
		return fmt.Errorf("public_path cannot be the site root")
	}
	if strings.ContainsAny(r.PublicPath, ":*") {
		return fmt.Errorf("public_path %q cannot contain route wildcards", r.PublicPath)
	}
	if route, clash := routeClash(r.PublicPath, reservedRoutes...); clash {
		return fmt.Errorf("public_path %q clashes with %s", r.PublicPath, route)
	}
	if r.FFmpegPath == "" {
		r.FFmpegPath = "ffmpeg"
	}
	if r.PublicBaseURL != "" {
		u, err := url.Parse(r.PublicBaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("public_base_url must be an absolute URL")
		}
	}
	if r.VideoTTLSeconds < 0 {
		r.VideoTTLSeconds = 0
	}
	if r.VideoTTLSeconds > 0 && r.VideoTTLSeconds < MinVideoTTLSeconds {
		r.VideoTTLSeconds = MinVideoTTLSeconds
	}
	return nil
}

// Validate validates TikTok configuration and applies defaults. Missing
// credentials are not an error here: the broker reports them per request.
func (t *TikTokConfig) Validate() error {
	if t.AuthorizeURL == "" {
		t.AuthorizeURL = DefaultAuthorizeURL
	}
	if t.TokenURL == "" {
		t.TokenURL = DefaultTokenURL
	}
	if t.StateTTL <= 0 {
		t.StateTTL = 10 * time.Minute
	}
	if t.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout cannot be negative")
	}
	return nil
}

// Validate validates Telegram configuration.
func (t *TelegramConfig) Validate() error {
	if !t.Enabled {
		return nil
	}
	if t.BotToken == "" {
		return fmt.Errorf("bot_token is required when telegram is enabled")
	}
	if t.ChatID == 0 {
		return fmt.Errorf("chat_id is required when telegram is enabled")
	}
	return nil
}

// Validate validates metrics configuration and applies defaults.
func (m *MetricsConfig) Validate() error {
	if m.Path == "" {
		m.Path = "/metrics"
	}
	if m.Namespace == "" {
		m.Namespace = "captioncast"
	}
	return nil
}
