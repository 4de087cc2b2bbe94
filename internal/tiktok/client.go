package tiktok

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/captioncast/captioncast/internal/config"
	"github.com/captioncast/captioncast/internal/errors"
	"github.com/captioncast/captioncast/internal/logging"
)

// Scopes requested during authorization.
const Scopes = "user.info.basic,video.upload,video.publish"

const (
	grantAuthorizationCode = "authorization_code"
	grantRefreshToken      = "refresh_token"

	maxResponseBytes = 1 << 20
)

// Exchange outcomes reported to metrics.
const (
	OutcomeOK              = "ok"
	OutcomeProviderError   = "provider_error"
	OutcomeTransportError  = "transport_error"
	OutcomeInvalidResponse = "invalid_response"
)

// MetricsRecorder receives token endpoint outcomes.
type MetricsRecorder interface {
	RecordTokenExchange(grant, outcome string)
}

// TokenResponse is a decoded token endpoint reply. The payload is passed
// through untouched; only refresh_token is ever read.
type TokenResponse struct {
	StatusCode int
	Raw        []byte
	Payload    map[string]interface{}
}

// RefreshToken returns the refresh_token field when it is a non-empty string.
func (t *TokenResponse) RefreshToken() string {
	if t == nil {
		return ""
	}
	s, _ := t.Payload["refresh_token"].(string)
	return s
}

// ProviderError reports whether the provider rejected the request.
func (t *TokenResponse) ProviderError() bool {
	if t.StatusCode >= http.StatusBadRequest {
		return true
	}
	s, _ := t.Payload["error"].(string)
	return s != "" && s != "ok"
}

// Client talks to the provider's OAuth endpoints.
type Client struct {
	cfg     config.TikTokConfig
	http    *http.Client
	metrics MetricsRecorder
	logger  *logging.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the outbound HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithClientMetrics records token endpoint outcomes.
func WithClientMetrics(m MetricsRecorder) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithClientLogger sets the client logger.
func WithClientLogger(l *logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a provider client.
func NewClient(cfg config.TikTokConfig, opts ...ClientOption) *Client {
	c := &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: newTransport(cfg.UseUTLS),
		},
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AuthorizeURL builds the provider consent URL. The scope list keeps its
// commas literal; the provider rejects the percent-encoded form.
func (c *Client) AuthorizeURL(state string) string {
	base := c.cfg.AuthorizeURL
	if base == "" {
		base = config.DefaultAuthorizeURL
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}

	params := []string{
		"client_key=" + url.QueryEscape(c.cfg.ClientKey),
		"scope=" + Scopes,
		"response_type=code",
		"redirect_uri=" + url.QueryEscape(c.cfg.RedirectURI),
		"state=" + url.QueryEscape(state),
	}
	return base + sep + strings.Join(params, "&")
}

// ExchangeCode trades an authorization code for tokens.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("client_key", c.cfg.ClientKey)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("code", code)
	form.Set("grant_type", grantAuthorizationCode)
	form.Set("redirect_uri", c.cfg.RedirectURI)
	return c.postForm(ctx, grantAuthorizationCode, form)
}

// Refresh trades the configured refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("client_key", c.cfg.ClientKey)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("grant_type", grantRefreshToken)
	form.Set("refresh_token", c.cfg.RefreshToken)
	return c.postForm(ctx, grantRefreshToken, form)
}

func (c *Client) postForm(ctx context.Context, grant string, form url.Values) (*TokenResponse, error) {
	tokenURL := c.cfg.TokenURL
	if tokenURL == "" {
		tokenURL = config.DefaultTokenURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &errors.ErrUpstream{Operation: grant, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		c.record(grant, OutcomeTransportError)
		return nil, &errors.ErrUpstream{Operation: grant, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.record(grant, OutcomeTransportError)
		return nil, &errors.ErrUpstream{Operation: grant, StatusCode: resp.StatusCode, Err: err}
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil || payload == nil {
		c.record(grant, OutcomeInvalidResponse)
		if grant == grantAuthorizationCode {
			// The callback shows the operator whatever came back.
			c.logger.WarnWithContext(ctx, "token endpoint returned a non-JSON body", "grant", grant, "status", resp.StatusCode)
			return &TokenResponse{StatusCode: resp.StatusCode, Raw: body}, nil
		}
		return nil, &errors.ErrUpstream{
			Operation:  grant,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("token endpoint returned a non-JSON body: %s", snippet(body)),
		}
	}

	out := &TokenResponse{StatusCode: resp.StatusCode, Raw: body, Payload: payload}
	if out.ProviderError() {
		c.record(grant, OutcomeProviderError)
		c.logger.WarnWithContext(ctx, "token endpoint returned an error", "grant", grant, "status", resp.StatusCode)
	} else {
		c.record(grant, OutcomeOK)
	}
	return out, nil
}

func (c *Client) record(grant, outcome string) {
	if c.metrics != nil {
		c.metrics.RecordTokenExchange(grant, outcome)
	}
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		return "(empty)"
	}
	return s
}
