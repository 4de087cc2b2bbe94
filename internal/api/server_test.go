package api

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/captioncast/captioncast/internal/config"
	"github.com/captioncast/captioncast/internal/encoder"
	"github.com/captioncast/captioncast/internal/errors"
	"github.com/captioncast/captioncast/internal/health"
	"github.com/captioncast/captioncast/internal/logging"
	"github.com/captioncast/captioncast/internal/metrics"
	"github.com/captioncast/captioncast/internal/render"
	"github.com/captioncast/captioncast/internal/tiktok"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRenderer struct {
	calls int
	last  render.Request
	res   *render.Result
	err   error
	panic bool
}

func (s *stubRenderer) Render(_ context.Context, req render.Request) (*render.Result, error) {
	s.calls++
	s.last = req
	if s.panic {
		panic("boom")
	}
	if s.err != nil {
		return nil, s.err
	}
	if strings.TrimSpace(req.TopText) == "" || strings.TrimSpace(req.BottomText) == "" {
		return nil, &errors.ErrValidation{Message: "top_text and bottom_text are required"}
	}
	return s.res, nil
}

type stubBroker struct {
	redirect string
	text     string
	token    *tiktok.TokenResponse
	err      error
	code     string
	state    string
}

func (b *stubBroker) StartAuthorization(context.Context) (string, error) {
	return b.redirect, b.err
}

func (b *stubBroker) HandleCallback(_ context.Context, code, state string) (string, error) {
	b.code, b.state = code, state
	return b.text, b.err
}

func (b *stubBroker) AccessToken(context.Context) (*tiktok.TokenResponse, error) {
	return b.token, b.err
}

type stubExpiry int

func (s stubExpiry) Pending() int { return int(s) }

type stubHealth struct {
	report health.Report
}

func (s stubHealth) Run() health.Report { return s.report }

func setupTestServer(t *testing.T, deps Dependencies) (*Server, *config.Config) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Render.OutputDir = t.TempDir()
	if deps.Renderer == nil {
		deps.Renderer = &stubRenderer{res: &render.Result{FileName: "out_0123456789abcdef.mp4", TTL: 2 * time.Hour}}
	}
	if deps.Broker == nil {
		deps.Broker = &stubBroker{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewMetrics("test")
	}
	return NewServer(cfg, deps), cfg
}

func doRequest(s *Server, method, target string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHandleRoot(t *testing.T) {
	server, _ := setupTestServer(t, Dependencies{})

	w := doRequest(server, "GET", "/", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(logging.HeaderCorrelationID))
}

func TestCorrelationIDEchoed(t *testing.T) {
	server, _ := setupTestServer(t, Dependencies{})

	w := doRequest(server, "GET", "/", nil, map[string]string{logging.HeaderCorrelationID: "req-42"})
	assert.Equal(t, "req-42", w.Header().Get(logging.HeaderCorrelationID))
}

func TestHandleRender_Success(t *testing.T) {
	server, _ := setupTestServer(t, Dependencies{})

	body := []byte(`{"top_text":"hello","bottom_text":"world"}`)
	w := doRequest(server, "POST", "/render", body, map[string]string{"Content-Type": "application/json"})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeBody(t, w)
	assert.Equal(t, "http://example.com/public/out_0123456789abcdef.mp4", resp["video_url"])
	assert.Equal(t, float64(7200), resp["expires_in_seconds"])
}

func TestHandleRender_NoExpiryField(t *testing.T) {
	renderer := &stubRenderer{res: &render.Result{FileName: "out_0123456789abcdef.mp4"}}
	server, _ := setupTestServer(t, Dependencies{Renderer: renderer})

	w := doRequest(server, "POST", "/render", []byte(`{"top_text":"a","bottom_text":"b"}`), nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	_, ok := resp["expires_in_seconds"]
	assert.False(t, ok)
}

func TestHandleRender_ForwardedAndConfiguredBase(t *testing.T) {
	server, cfg := setupTestServer(t, Dependencies{})

	headers := map[string]string{"X-Forwarded-Proto": "https", "X-Forwarded-Host": "videos.example.com"}
	w := doRequest(server, "POST", "/render", []byte(`{"top_text":"a","bottom_text":"b"}`), headers)
	assert.Equal(t, "https://videos.example.com/public/out_0123456789abcdef.mp4", decodeBody(t, w)["video_url"])

	cfg.Render.PublicBaseURL = "https://cdn.example.com/"
	w = doRequest(server, "POST", "/render", []byte(`{"top_text":"a","bottom_text":"b"}`), headers)
	assert.Equal(t, "https://cdn.example.com/public/out_0123456789abcdef.mp4", decodeBody(t, w)["video_url"])
}

func TestHandleRender_Validation(t *testing.T) {
	renderer := &stubRenderer{}
	server, _ := setupTestServer(t, Dependencies{Renderer: renderer})

	for _, body := range []string{`{}`, `{"top_text":"a"}`, `not json`, ``, `{"top_text":null,"bottom_text":"b"}`,
		`{"top_text":["a"],"bottom_text":"b"}`, `{"top_text":{"a":1},"bottom_text":"b"}`, `["a","b"]`} {
		w := doRequest(server, "POST", "/render", []byte(body), map[string]string{"Content-Type": "application/json"})
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.JSONEq(t, `{"error":"top_text and bottom_text are required"}`, w.Body.String(), body)
	}
}

func TestHandleRender_ScalarFieldsAsText(t *testing.T) {
	tests := []struct {
		body   string
		top    string
		bottom string
	}{
		{`{"top_text":123,"bottom_text":"b"}`, "123", "b"},
		{`{"top_text":1.5,"bottom_text":true}`, "1.5", "true"},
		{`{"top_text":"a","bottom_text":-7,"extra":"x"}`, "a", "-7"},
	}

	for _, tt := range tests {
		renderer := &stubRenderer{res: &render.Result{FileName: "out.mp4"}}
		server, _ := setupTestServer(t, Dependencies{Renderer: renderer})

		w := doRequest(server, "POST", "/render", []byte(tt.body), map[string]string{"Content-Type": "application/json"})
		assert.Equal(t, http.StatusOK, w.Code, tt.body)
		assert.Equal(t, tt.top, renderer.last.TopText, tt.body)
		assert.Equal(t, tt.bottom, renderer.last.BottomText, tt.body)
	}
}

func TestHandleRender_BodyTooLarge(t *testing.T) {
	renderer := &stubRenderer{}
	server, _ := setupTestServer(t, Dependencies{Renderer: renderer})

	big := `{"top_text":"` + strings.Repeat("x", 2<<20) + `","bottom_text":"b"}`
	w := doRequest(server, "POST", "/render", []byte(big), map[string]string{"Content-Type": "application/json"})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Zero(t, renderer.calls)
}

func TestHandleRender_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"missing asset", &errors.ErrDependencyMissing{Asset: "background.mp4", Path: "background.mp4"},
			http.StatusInternalServerError, `{"error":"background.mp4 missing"}`},
		{"generic", stderrors.New("disk full"),
			http.StatusInternalServerError, `{"error":"server error","detail":"disk full"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := setupTestServer(t, Dependencies{Renderer: &stubRenderer{err: tt.err}})
			w := doRequest(server, "POST", "/render", []byte(`{"top_text":"a","bottom_text":"b"}`), nil)
			assert.Equal(t, tt.status, w.Code)
			assert.JSONEq(t, tt.body, w.Body.String())
		})
	}

	encErr := &errors.ErrEncode{Output: "out.mp4", Stderr: "No such filter", Err: stderrors.New("exit status 1")}
	server, _ := setupTestServer(t, Dependencies{Renderer: &stubRenderer{err: encErr}})
	w := doRequest(server, "POST", "/render", []byte(`{"top_text":"a","bottom_text":"b"}`), nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, "ffmpeg failed", resp["error"])
	assert.Contains(t, resp["detail"], "No such filter")
}

func TestHandleRender_PanicRecovered(t *testing.T) {
	server, _ := setupTestServer(t, Dependencies{Renderer: &stubRenderer{panic: true}})

	w := doRequest(server, "POST", "/render", []byte(`{"top_text":"a","bottom_text":"b"}`), nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"server error","detail":"boom"}`, w.Body.String())
}

func TestTikTokStart(t *testing.T) {
	broker := &stubBroker{redirect: "https://www.tiktok.com/v2/auth/authorize/?client_key=ck&state=s"}
	server, _ := setupTestServer(t, Dependencies{Broker: broker})

	w := doRequest(server, "GET", "/auth/tiktok/start", nil, nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, broker.redirect, w.Header().Get("Location"))

	broker.err = &errors.ErrConfiguration{Missing: []string{"TIKTOK_CLIENT_KEY"}}
	w = doRequest(server, "GET", "/auth/tiktok/start", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"missing configuration: TIKTOK_CLIENT_KEY"}`, w.Body.String())
}

func TestTikTokCallback(t *testing.T) {
	broker := &stubBroker{text: "Copy this refresh token"}
	server, _ := setupTestServer(t, Dependencies{Broker: broker})

	w := doRequest(server, "GET", "/auth/tiktok/callback?code=abc&state=xyz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))
	assert.Equal(t, "Copy this refresh token", w.Body.String())
	assert.Equal(t, "abc", broker.code)
	assert.Equal(t, "xyz", broker.state)

	broker.err = &errors.ErrValidation{Message: "missing code"}
	w = doRequest(server, "GET", "/auth/tiktok/callback", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"missing code"}`, w.Body.String())

	broker.err = &errors.ErrUpstream{Operation: "authorization_code", Err: stderrors.New("connection refused")}
	w = doRequest(server, "GET", "/auth/tiktok/callback?code=abc", nil, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestAccessToken(t *testing.T) {
	raw := `{"access_token":"at","expires_in":86400,"scope":"video.upload"}`
	broker := &stubBroker{token: &tiktok.TokenResponse{StatusCode: 200, Raw: []byte(raw)}}
	server, _ := setupTestServer(t, Dependencies{Broker: broker})

	w := doRequest(server, "GET", "/tiktok/access-token", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, raw, w.Body.String())

	broker.err = &errors.ErrConfiguration{Missing: []string{"TIKTOK_REFRESH_TOKEN"}}
	w = doRequest(server, "GET", "/tiktok/access-token", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleHealth(t *testing.T) {
	server, _ := setupTestServer(t, Dependencies{Expiry: stubExpiry(3)})

	w := doRequest(server, "GET", "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, float64(3), resp["pending_expiries"])

	failing := stubHealth{report: health.Report{HasFailures: true, Checks: []health.Check{{ID: "ffmpeg", Status: health.StatusFail}}}}
	server, _ = setupTestServer(t, Dependencies{Health: failing})
	w = doRequest(server, "GET", "/health", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unhealthy", decodeBody(t, w)["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	server, _ := setupTestServer(t, Dependencies{})
	doRequest(server, "GET", "/", nil, nil)

	w := doRequest(server, "GET", "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_http_requests_total")
}

func TestPublicFiles(t *testing.T) {
	server, cfg := setupTestServer(t, Dependencies{})
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Render.OutputDir, "out_0123456789abcdef.mp4"), []byte("video-bytes"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Render.OutputDir, ".write-check-1"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(cfg.Render.OutputDir, "sub"), 0o755))

	w := doRequest(server, "GET", "/public/out_0123456789abcdef.mp4", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "video-bytes", w.Body.String())

	for _, target := range []string{
		"/public/out_ffffffffffffffff.mp4",
		"/public/.write-check-1",
		"/public/sub",
		"/public/..%2Fetc%2Fpasswd",
	} {
		w = doRequest(server, "GET", target, nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, target)
	}
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	server, _ := setupTestServer(t, Dependencies{})

	w := doRequest(server, "GET", "/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(server, "GET", "/render", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

type fileEncoder struct{}

func (fileEncoder) Encode(_ context.Context, job encoder.Job) error {
	return os.WriteFile(job.Output, []byte("rendered"), 0o644)
}

func TestRenderThenServe(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	cfg.Render.WorkDir = t.TempDir()
	cfg.Render.OutputDir = t.TempDir()
	cfg.Render.VideoTTLSeconds = 0
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Render.WorkDir, "background.mp4"), []byte("bg"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Render.WorkDir, "font.ttf"), []byte("font"), 0o644))

	svc := render.NewService(cfg.Render, fileEncoder{})
	server := NewServer(cfg, Dependencies{Renderer: svc, Broker: &stubBroker{}, Logger: logging.Nop(), Metrics: metrics.NewMetrics("e2e")})

	w := doRequest(server, "POST", "/render", []byte(`{"top_text":"hi","bottom_text":"there"}`), map[string]string{"Content-Type": "application/json"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	videoURL := decodeBody(t, w)["video_url"].(string)
	path := strings.TrimPrefix(videoURL, "http://example.com")
	w = doRequest(server, "GET", path, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "rendered", w.Body.String())
}

func newBoundServer(t *testing.T, port int) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	cfg.Render.OutputDir = t.TempDir()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.HTTPPort = port
	return NewServer(cfg, Dependencies{Renderer: &stubRenderer{}, Broker: &stubBroker{}, Logger: logging.Nop(), Metrics: metrics.NewMetrics("bind")})
}

func TestServerRunAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	server := newBoundServer(t, port)
	done := make(chan error, 1)
	go func() { done <- server.Run() }()

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", ln.Addr().String())
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 5*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Shutdown(ctx))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}
}

func TestServerRun_AddressInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	server := newBoundServer(t, ln.Addr().(*net.TCPAddr).Port)
	err = server.Run()

	var startErr *errors.ErrServerStart
	require.True(t, stderrors.As(err, &startErr), "got %v", err)
	assert.Contains(t, startErr.Addr, "127.0.0.1:")
}
