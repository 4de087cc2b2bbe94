package tiktok

import (
	"context"
	"fmt"

	"github.com/captioncast/captioncast/internal/config"
	"github.com/captioncast/captioncast/internal/errors"
	"github.com/captioncast/captioncast/internal/logging"
)

// Notifier sends operator notices.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Environment variable names reported in configuration errors.
const (
	envClientKey    = "TIKTOK_CLIENT_KEY"
	envClientSecret = "TIKTOK_CLIENT_SECRET"
	envRedirectURI  = "TIKTOK_REDIRECT_URI"
	envRefreshToken = "TIKTOK_REFRESH_TOKEN"
)

// tokenClient is the subset of Client the broker needs.
type tokenClient interface {
	AuthorizeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*TokenResponse, error)
	Refresh(ctx context.Context) (*TokenResponse, error)
}

// Broker runs the authorization-code and refresh-token flows.
type Broker struct {
	cfg      config.TikTokConfig
	client   tokenClient
	states   *StateStore
	notifier Notifier
	logger   *logging.Logger
	newState func() (string, error)
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithNotifier announces newly issued refresh tokens.
func WithNotifier(n Notifier) BrokerOption {
	return func(b *Broker) {
		b.notifier = n
	}
}

// WithLogger sets the broker logger.
func WithLogger(l *logging.Logger) BrokerOption {
	return func(b *Broker) {
		b.logger = l
	}
}

// NewBroker creates a token broker. State verification is enabled by
// cfg.VerifyState.
func NewBroker(cfg config.TikTokConfig, client *Client, opts ...BrokerOption) *Broker {
	b := &Broker{
		cfg:      cfg,
		client:   client,
		logger:   logging.Nop(),
		newState: NewState,
	}
	if cfg.VerifyState {
		b.states = NewStateStore(cfg.StateTTL)
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// StartAuthorization returns the provider URL the operator is redirected to.
func (b *Broker) StartAuthorization(ctx context.Context) (string, error) {
	if missing := b.missing(needClientKey | needRedirectURI); len(missing) > 0 {
		return "", &errors.ErrConfiguration{Missing: missing}
	}

	state, err := b.newState()
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	if b.states != nil {
		b.states.Add(state)
	}

	b.logger.InfoWithContext(ctx, "authorization started", "verify_state", b.states != nil)
	return b.client.AuthorizeURL(state), nil
}

// HandleCallback completes the authorization flow and returns the text
// shown to the operator.
func (b *Broker) HandleCallback(ctx context.Context, code, state string) (string, error) {
	if code == "" {
		return "", &errors.ErrValidation{Message: "missing code"}
	}
	if missing := b.missing(needClientKey | needClientSecret | needRedirectURI); len(missing) > 0 {
		return "", &errors.ErrConfiguration{Missing: missing}
	}
	if b.states != nil && !b.states.Consume(state) {
		return "", &errors.ErrValidation{Message: "invalid or expired state"}
	}

	resp, err := b.client.ExchangeCode(ctx, code)
	if err != nil {
		return "", err
	}

	refresh := resp.RefreshToken()
	if refresh == "" {
		b.logger.WarnWithContext(ctx, "code exchange returned no refresh token", "status", resp.StatusCode)
		return string(resp.Raw), nil
	}

	b.logger.InfoWithContext(ctx, "refresh token issued")
	b.announce(ctx, refresh)
	return fmt.Sprintf("TikTok connected.\n\nCopy this refresh token into %s and restart the service:\n\n%s\n", envRefreshToken, refresh), nil
}

// AccessToken exchanges the configured refresh token. The provider reply
// is returned as-is.
func (b *Broker) AccessToken(ctx context.Context) (*TokenResponse, error) {
	if missing := b.missing(needRefreshToken | needClientKey | needClientSecret); len(missing) > 0 {
		return nil, &errors.ErrConfiguration{Missing: missing}
	}
	return b.client.Refresh(ctx)
}

type requirement int

const (
	needClientKey requirement = 1 << iota
	needClientSecret
	needRedirectURI
	needRefreshToken
)

func (b *Broker) missing(req requirement) []string {
	var out []string
	if req&needRefreshToken != 0 && b.cfg.RefreshToken == "" {
		out = append(out, envRefreshToken)
	}
	if req&needClientKey != 0 && b.cfg.ClientKey == "" {
		out = append(out, envClientKey)
	}
	if req&needClientSecret != 0 && b.cfg.ClientSecret == "" {
		out = append(out, envClientSecret)
	}
	if req&needRedirectURI != 0 && b.cfg.RedirectURI == "" {
		out = append(out, envRedirectURI)
	}
	return out
}

func (b *Broker) announce(ctx context.Context, refresh string) {
	if b.notifier == nil {
		return
	}
	text := fmt.Sprintf("captioncast: a new TikTok refresh token was issued (%s). Update %s.", MaskToken(refresh), envRefreshToken)
	if err := b.notifier.Notify(ctx, text); err != nil {
		b.logger.WarnWithContext(ctx, "failed to send refresh token notice", "error", err)
	}
}

// MaskToken keeps only the last four characters of a secret.
func MaskToken(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return "…" + s[len(s)-4:]
}
