// Package client is the member and reviewer side of trip sync: an HTTP
// caller for the action endpoint, the local trip session, the sync engine
// with its update poller, and the offline member file exchange.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/trip-expense/internal/protocol"
)

// DefaultTimeout bounds every call to the action endpoint
const DefaultTimeout = 30 * time.Second

// maxResponseBytes caps a decoded response; photos dominate the size
const maxResponseBytes = 32 << 20

// ErrUnavailable wraps transport failures: the server could not be reached
// or answered with something other than a protocol response.
var ErrUnavailable = errors.New("server unavailable")

// Caller sends one action to the server
type Caller interface {
	Call(ctx context.Context, req protocol.Request) (*protocol.Response, error)
}

// APIConfig holds the HTTP caller settings
type APIConfig struct {
	// URL is the full action endpoint, e.g. http://host:8080/api/exec
	URL     string
	Timeout time.Duration
}

// APIClient posts protocol requests to the action endpoint
type APIClient struct {
	url     string
	timeout time.Duration
	http    *http.Client
	logger  *zap.Logger
}

// NewAPIClient creates a caller. A zero timeout means DefaultTimeout.
func NewAPIClient(cfg APIConfig, logger *zap.Logger) *APIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &APIClient{
		url:     cfg.URL,
		timeout: timeout,
		http:    &http.Client{},
		logger:  logger,
	}
}

// Call posts req and decodes the reply. A response with success=false is
// returned together with its error so callers can inspect the payload.
func (c *APIClient) Call(ctx context.Context, req protocol.Request) (*protocol.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", req.Action, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	// text/plain keeps browsers from preflighting, the server accepts either
	httpReq.Header.Set("Content-Type", "text/plain;charset=utf-8")

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Warn("Action call failed",
			zap.String("action", string(req.Action)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, req.Action, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s response: %v", ErrUnavailable, req.Action, err)
	}

	var resp protocol.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %s answered HTTP %d with an undecodable body",
			ErrUnavailable, req.Action, httpResp.StatusCode)
	}

	c.logger.Debug("Action call completed",
		zap.String("action", string(req.Action)),
		zap.Int("status", httpResp.StatusCode),
		zap.Bool("success", resp.Success),
		zap.Duration("elapsed", time.Since(start)))

	return &resp, resp.Err()
}
