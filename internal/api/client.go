// Package api is the typed client of the remote polls API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/freekieb7/go-polls/internal/breaker"
	"github.com/freekieb7/go-polls/internal/config"
)

const maxBodyBytes = 1 << 20

type Client struct {
	baseURL    string
	cookieName string
	httpClient *http.Client
	breaker    *breaker.Breaker
	logger     *slog.Logger
}

func NewClient(cfg config.API, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	cookieName := cfg.CookieName
	if cookieName == "" {
		cookieName = "token"
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		cookieName: cookieName,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker: breaker.New(breaker.Config{
			Name:         "remote-api",
			MaxFailures:  cfg.BreakerFailures,
			ResetTimeout: cfg.BreakerReset,
			IsFailure:    countsAsFailure,
			Logger:       logger,
		}),
		logger: logger,
	}
}

// BreakerState exposes the circuit state for health reporting.
func (c *Client) BreakerState() breaker.State {
	return c.breaker.State()
}

// Ping reports whether the remote API answers HTTP at all. It bypasses the
// breaker so probes never trip it.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/auth/me", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("remote API responded with status %d", resp.StatusCode)
	}
	return nil
}

type request struct {
	method     string
	path       string
	credential string
	header     http.Header
	body       any
}

// do sends req and decodes a 2xx body into out. Every failure is returned as
// a *Problem. The returned response has its body consumed; headers and
// cookies remain readable.
func (c *Client) do(ctx context.Context, req request, out any) (*http.Response, error) {
	var resp *http.Response
	var body []byte

	err := c.breaker.Execute(func() error {
		var err error
		resp, body, err = c.send(ctx, req)
		if err != nil {
			return &Problem{Type: TypeNetworkError, Title: "Network error", Err: err}
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return decodeProblem(resp.StatusCode, body)
		}
		return nil
	})
	if errors.Is(err, breaker.ErrOpen) {
		return nil, &Problem{
			Status: http.StatusServiceUnavailable,
			Type:   TypeServiceUnavailable,
			Title:  "Service temporarily unavailable",
			Err:    err,
		}
	}
	if err != nil {
		c.logger.DebugContext(ctx, "Remote API call failed",
			slog.String("method", req.method),
			slog.String("path", req.path),
			slog.String("error", err.Error()))
		return resp, err
	}

	if out != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return resp, &Problem{
				Status: resp.StatusCode,
				Type:   TypeInvalidResponse,
				Title:  "The response body is invalid",
				Err:    err,
			}
		}
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, req request) (*http.Response, []byte, error) {
	var reader io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return nil, nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, reader)
	if err != nil {
		return nil, nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for key, values := range req.header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	if req.credential != "" {
		httpReq.AddCookie(&http.Cookie{Name: c.cookieName, Value: req.credential})
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("reading response body: %w", err)
	}

	c.logger.DebugContext(ctx, "Remote API call",
		slog.String("method", req.method),
		slog.String("path", req.path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	return resp, body, nil
}

// credentialFrom returns the credential cookie set by resp. cleared is true
// when the remote asked the browser to drop it.
func (c *Client) credentialFrom(resp *http.Response) (value string, found bool) {
	if resp == nil {
		return "", false
	}
	for _, cookie := range resp.Cookies() {
		if cookie.Name != c.cookieName {
			continue
		}
		if cookie.MaxAge < 0 {
			return "", true
		}
		return cookie.Value, true
	}
	return "", false
}

// countsAsFailure trips the breaker on transport failures and 5xx answers
// only. Client errors and cancelled requests leave it alone.
func countsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	var p *Problem
	if !errors.As(err, &p) {
		return true
	}
	if p.Type == TypeNetworkError {
		return !errors.Is(p.Err, context.Canceled)
	}
	return p.Status >= http.StatusInternalServerError
}
