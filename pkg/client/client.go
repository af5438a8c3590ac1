// Package client calls the marketplace API either in-process (mock mode) or
// over HTTP (remote mode).
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"xhsmarket/pkg/circuitbreaker"
	"xhsmarket/pkg/trace"
)

// APIError is returned for every non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

type Client struct {
	mode       Mode
	baseURL    *url.URL
	handler    http.Handler
	latency    time.Duration
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
	logger     *zap.Logger

	mu    sync.RWMutex
	token string
}

func New(opts Options) (*Client, error) {
	opts.withDefaults()
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	switch opts.Mode {
	case ModeMock:
		if opts.Handler == nil {
			return nil, errors.New("mock mode needs a handler")
		}
	case ModeRemote:
		if base.Scheme == "" || base.Host == "" {
			return nil, errors.Errorf("invalid base url %q", opts.BaseURL)
		}
	default:
		return nil, errors.Errorf("unknown client mode %q", opts.Mode)
	}

	return &Client{
		mode:       opts.Mode,
		baseURL:    base,
		handler:    opts.Handler,
		latency:    opts.Latency,
		httpClient: opts.HTTPClient,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
			FailureThreshold:    3,
			SuccessThreshold:    1,
			Timeout:             15 * time.Second,
			HalfOpenMaxRequests: 1,
		}),
		logger: opts.Logger,
		token:  opts.Token,
	}, nil
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Do sends method+path with body encoded as JSON and decodes the response
// into out. path is relative to the base URL ("/artworks?sort=likes").
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	target, err := c.resolve(path)
	if err != nil {
		return err
	}

	var payload []byte
	if body != nil {
		if payload, err = json.Marshal(body); err != nil {
			return errors.Wrap(err, "encode request")
		}
	}

	c.logger.Debug("Client request",
		zap.String("mode", string(c.mode)),
		zap.String("method", method),
		zap.String("path", target.Path),
	)

	var status int
	var data []byte
	switch c.mode {
	case ModeMock:
		status, data, err = c.serveLocal(ctx, method, target, payload)
	default:
		status, data, err = c.sendRemote(ctx, method, target, payload)
	}
	if err != nil {
		return err
	}

	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return &APIError{Status: status, Message: errorMessage(status, data)}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

func (c *Client) resolve(path string) (*url.URL, error) {
	rel, err := url.Parse(path)
	if err != nil {
		return nil, errors.Wrapf(err, "parse path %q", path)
	}
	u := *c.baseURL
	u.Path = strings.TrimSuffix(c.baseURL.Path, "/") + "/" + strings.TrimPrefix(rel.Path, "/")
	u.RawQuery = rel.RawQuery
	return &u, nil
}

func (c *Client) newRequest(ctx context.Context, method string, target *url.URL, payload []byte) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if traceID := trace.FromContext(ctx); traceID != "" {
		req.Header.Set(trace.HeaderName, traceID)
	}
	return req, nil
}

func (c *Client) serveLocal(ctx context.Context, method string, target *url.URL, payload []byte) (int, []byte, error) {
	if c.latency > 0 {
		timer := time.NewTimer(c.latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, nil, ctx.Err()
		case <-timer.C:
		}
	}

	req, err := c.newRequest(ctx, method, target, payload)
	if err != nil {
		return 0, nil, err
	}
	req.RemoteAddr = "127.0.0.1:0"
	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)
	return w.Code, w.Body.Bytes(), nil
}

func (c *Client) sendRemote(ctx context.Context, method string, target *url.URL, payload []byte) (int, []byte, error) {
	var status int
	var data []byte
	err := c.cb.Execute(func() error {
		req, err := c.newRequest(ctx, method, target, payload)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return errors.Wrapf(err, "%s %s", method, target.Path)
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		if data, err = io.ReadAll(resp.Body); err != nil {
			return errors.Wrap(err, "read response")
		}
		// 5xx 计入熔断
		if status >= http.StatusInternalServerError {
			return &APIError{Status: status, Message: errorMessage(status, data)}
		}
		return nil
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return apiErr.Status, data, nil
		}
		return 0, nil, err
	}
	return status, data, nil
}

func errorMessage(status int, data []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return body.Error
	}
	if msg := strings.TrimSpace(string(data)); msg != "" && len(msg) < 200 {
		return msg
	}
	return http.StatusText(status)
}
