package api

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/captioncast/captioncast/internal/errors"
	"github.com/captioncast/captioncast/internal/render"
	"github.com/gin-gonic/gin"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// RenderResponse is returned by POST /render.
type RenderResponse struct {
	VideoURL         string `json:"video_url"`
	ExpiresInSeconds int    `json:"expires_in_seconds,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status          string      `json:"status"`
	Timestamp       time.Time   `json:"timestamp"`
	PendingExpiries int         `json:"pending_expiries"`
	Checks          interface{} `json:"checks,omitempty"`
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
	}
	if s.expiry != nil {
		resp.PendingExpiries = s.expiry.Pending()
	}

	status := http.StatusOK
	if s.health != nil {
		report := s.health.Run()
		resp.Checks = report.Checks
		if report.HasFailures {
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}
	c.JSON(status, resp)
}

func (s *Server) handleRender(c *gin.Context) {
	var raw map[string]interface{}
	if err := c.ShouldBindJSON(&raw); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, errorBody{Error: "request body too large"})
			return
		}
		// Unparseable bodies fall through to field validation.
		raw = nil
	}
	req := render.Request{
		TopText:    captionField(raw, "top_text"),
		BottomText: captionField(raw, "bottom_text"),
	}

	res, err := s.renderer.Render(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}

	base := publicBaseURL(c.Request, s.config.Render.PublicBaseURL)
	c.JSON(http.StatusOK, RenderResponse{
		VideoURL:         videoURL(base, s.config.Render.PublicPath, res.FileName),
		ExpiresInSeconds: int(res.TTL / time.Second),
	})
}

// captionField returns a scalar JSON value as text. Missing keys, null,
// objects and arrays read as empty.
func captionField(raw map[string]interface{}, key string) string {
	switch v := raw[key].(type) {
	case string:
		return v
	case float64, bool:
		return fmt.Sprint(v)
	default:
		return ""
	}
}

func (s *Server) handleTikTokStart(c *gin.Context) {
	target, err := s.broker.StartAuthorization(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Redirect(http.StatusFound, target)
}

func (s *Server) handleTikTokCallback(c *gin.Context) {
	text, err := s.broker.HandleCallback(c.Request.Context(), c.Query("code"), c.Query("state"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.String(http.StatusOK, text)
}

func (s *Server) handleAccessToken(c *gin.Context) {
	resp, err := s.broker.AccessToken(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", resp.Raw)
}

// handlePublicFile serves files from the output directory. Only plain
// file names are accepted; hidden files and directories are never served.
func (s *Server) handlePublicFile(c *gin.Context) {
	name := c.Param("file")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || strings.ContainsRune(name, '\\') {
		c.JSON(http.StatusNotFound, errorBody{Error: "not found"})
		return
	}

	path := filepath.Join(s.config.Render.OutputDir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		c.JSON(http.StatusNotFound, errorBody{Error: "not found"})
		return
	}
	c.File(path)
}

// writeError maps typed errors to status codes.
func (s *Server) writeError(c *gin.Context, err error) {
	var (
		validation *errors.ErrValidation
		configErr  *errors.ErrConfiguration
		missing    *errors.ErrDependencyMissing
		encode     *errors.ErrEncode
		upstream   *errors.ErrUpstream
	)

	switch {
	case stderrors.As(err, &validation):
		c.JSON(http.StatusBadRequest, errorBody{Error: validation.Message})
	case stderrors.As(err, &configErr):
		c.JSON(http.StatusBadRequest, errorBody{Error: configErr.Error()})
	case stderrors.As(err, &missing):
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, errorBody{Error: missing.Error()})
	case stderrors.As(err, &encode):
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, errorBody{Error: "ffmpeg failed", Detail: encode.Error()})
	case stderrors.As(err, &upstream):
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, errorBody{Error: "upstream request failed", Detail: upstream.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, errorBody{Error: "server error", Detail: err.Error()})
	}
}
