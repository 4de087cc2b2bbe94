package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/captioncast/captioncast/internal/errors"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the variable holding the config file path.
const EnvConfigPath = "CAPTIONCAST_CONFIG_PATH"

// Loader reads the configuration once at startup. The result is treated as
// immutable for the lifetime of the process.
type Loader struct {
	path     string
	required bool
	lookup   func(string) (string, bool)
}

// NewLoader creates a loader for the given file. A missing file yields the
// defaults plus environment overrides.
func NewLoader(path string) *Loader {
	return &Loader{
		path:   path,
		lookup: os.LookupEnv,
	}
}

// Require makes a missing config file an error.
func (l *Loader) Require() *Loader {
	l.required = true
	return l
}

// WithLookup replaces the environment lookup, mainly for tests.
func (l *Loader) WithLookup(fn func(string) (string, bool)) *Loader {
	l.lookup = fn
	return l
}

// Path returns the config file path.
func (l *Loader) Path() string {
	return l.path
}

// Load reads the file (if any), applies environment overrides and validates.
func (l *Loader) Load() (*Config, error) {
	var cfg *Config

	content, err := l.readFile()
	if err != nil {
		return nil, err
	}
	if content == nil {
		cfg = &Config{}
		applyDefaults(cfg)
	} else {
		cfg, err = parse(substituteEnvVars(content, l.lookup))
		if err != nil {
			return nil, err
		}
	}

	if err := ApplyEnv(cfg, l.lookup); err != nil {
		return nil, &errors.ErrConfigValidation{Err: err}
	}

	if err := cfg.Validate(); err != nil {
		return nil, &errors.ErrConfigValidation{Err: err}
	}

	return cfg, nil
}

func (l *Loader) readFile() ([]byte, error) {
	if l.path == "" {
		if l.required {
			return nil, &errors.ErrConfigNotFound{Path: l.path}
		}
		return nil, nil
	}

	if _, err := os.Stat(l.path); err != nil {
		if os.IsNotExist(err) {
			if l.required {
				return nil, &errors.ErrConfigNotFound{Path: l.path}
			}
			return nil, nil
		}
		return nil, err
	}

	content, err := os.ReadFile(l.path)
	if err != nil {
		return nil, &errors.ErrFileRead{Path: l.path, Err: err}
	}
	return content, nil
}

func parse(data []byte) (*Config, error) {
	var config Config
	applyDefaults(&config)

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, &errors.ErrConfigParse{Err: err}
	}
	return &config, nil
}

// ApplyEnv overlays the well-known environment variables on cfg.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	if v, ok := lookup("PORT"); ok && strings.TrimSpace(v) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("PORT must be an integer: %q", v)
		}
		cfg.Server.HTTPPort = port
	}
	str("LOG_LEVEL", &cfg.Server.LogLevel)

	str("TIKTOK_CLIENT_KEY", &cfg.TikTok.ClientKey)
	str("TIKTOK_CLIENT_SECRET", &cfg.TikTok.ClientSecret)
	str("TIKTOK_REDIRECT_URI", &cfg.TikTok.RedirectURI)
	str("TIKTOK_REFRESH_TOKEN", &cfg.TikTok.RefreshToken)

	str("PUBLIC_BASE_URL", &cfg.Render.PublicBaseURL)
	if v, ok := lookup("VIDEO_TTL_SECONDS"); ok && strings.TrimSpace(v) != "" {
		ttl, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("VIDEO_TTL_SECONDS must be an integer: %q", v)
		}
		cfg.Render.VideoTTLSeconds = ttl
	}

	str("TELEGRAM_BOT_TOKEN", &cfg.Telegram.BotToken)
	if v, ok := lookup("TELEGRAM_CHAT_ID"); ok && strings.TrimSpace(v) != "" {
		chatID, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("TELEGRAM_CHAT_ID must be an integer: %q", v)
		}
		cfg.Telegram.ChatID = chatID
	}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != 0 {
		cfg.Telegram.Enabled = true
	}

	return nil
}

func substituteEnvVars(content []byte, lookup func(string) (string, bool)) []byte {
	return []byte(os.Expand(string(content), func(key string) string {
		v, _ := lookup(key)
		return v
	}))
}
