package mocks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// MockTransport is an http.RoundTripper that answers from canned responses
// and records every request it sees.
type MockTransport struct {
	Responses    map[string]*MockResponse
	Requests     []MockRequest
	RequestDelay time.Duration
	// Err, when set, is returned for every request instead of a response.
	Err error
	mu  sync.Mutex
}

// MockResponse represents a mocked HTTP response. Body is sent verbatim
// when it is a string or []byte and JSON-encoded otherwise.
type MockResponse struct {
	StatusCode int
	Body       interface{}
	Headers    map[string]string
}

// MockRequest represents a recorded HTTP request
type MockRequest struct {
	Method  string
	URL     string
	Body    string
	Form    url.Values
	Headers map[string]string
	Time    time.Time
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		Responses: make(map[string]*MockResponse),
		Requests:  make([]MockRequest, 0),
	}
}

// Client returns an *http.Client using the mock transport.
func (m *MockTransport) Client() *http.Client {
	return &http.Client{Transport: m}
}

// SetResponse sets a mock response for a URL. "*" matches everything.
func (m *MockTransport) SetResponse(urlPattern string, response *MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses[urlPattern] = response
}

// RoundTrip records the request and returns the matching response.
func (m *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	recorded := MockRequest{
		Method:  req.Method,
		URL:     req.URL.String(),
		Time:    time.Now(),
		Headers: make(map[string]string),
	}
	for k, v := range req.Header {
		if len(v) > 0 {
			recorded.Headers[k] = v[0]
		}
	}
	if req.Body != nil {
		body, _ := io.ReadAll(req.Body)
		_ = req.Body.Close()
		recorded.Body = string(body)
		if strings.HasPrefix(req.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
			recorded.Form, _ = url.ParseQuery(recorded.Body)
		}
	}
	m.Requests = append(m.Requests, recorded)

	if m.Err != nil {
		return nil, m.Err
	}

	target := req.URL.String()
	response, ok := m.Responses[target]
	if !ok {
		for pattern, resp := range m.Responses {
			if matchesPattern(target, pattern) {
				response = resp
				break
			}
		}
	}

	if response == nil {
		return newResponse(req, http.StatusNotFound, []byte(`{"error":"not found"}`), nil), nil
	}

	if m.RequestDelay > 0 {
		time.Sleep(m.RequestDelay)
	}

	body, err := encodeBody(response.Body)
	if err != nil {
		return nil, err
	}
	return newResponse(req, response.StatusCode, body, response.Headers), nil
}

// GetRequests returns a copy of the recorded requests
func (m *MockTransport) GetRequests() []MockRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockRequest, len(m.Requests))
	copy(out, m.Requests)
	return out
}

// ClearRequests clears the recorded requests
func (m *MockTransport) ClearRequests() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = make([]MockRequest, 0)
}

func matchesPattern(target, pattern string) bool {
	if pattern == "*" {
		return true
	}
	return target == pattern
}

func encodeBody(body interface{}) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(b), nil
	case []byte:
		return b, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode mock body: %w", err)
		}
		return data, nil
	}
}

func newResponse(req *http.Request, status int, body []byte, headers map[string]string) *http.Response {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	return &http.Response{
		StatusCode:    status,
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

// MockTokenResponse creates a successful token endpoint reply.
func MockTokenResponse(accessToken, refreshToken string) *MockResponse {
	body := map[string]interface{}{
		"access_token":       accessToken,
		"expires_in":         86400,
		"open_id":            "open-id-1",
		"refresh_expires_in": 31536000,
		"scope":              "user.info.basic,video.upload,video.publish",
		"token_type":         "Bearer",
	}
	if refreshToken != "" {
		body["refresh_token"] = refreshToken
	}
	return &MockResponse{StatusCode: http.StatusOK, Body: body}
}

// MockErrorResponse creates a provider error reply.
func MockErrorResponse(statusCode int, code, description string) *MockResponse {
	return &MockResponse{
		StatusCode: statusCode,
		Body: map[string]interface{}{
			"error":             code,
			"error_description": description,
			"log_id":            "mock-log-id",
		},
	}
}
