// Package client implements the HTTP client used against broker nodes. Every
// call is bounded by the configured timeout; an unresponsive broker can never
// wedge the caller.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/keymq/keymq/internal/model"
)

// ErrNotFound reports a 404 from a broker fetch.
var ErrNotFound = errors.New("key not found on broker")

// BrokerClient talks to broker nodes over their HTTP surface.
type BrokerClient struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewBrokerClient creates a client whose calls time out after timeout.
func NewBrokerClient(timeout time.Duration, logger *zap.Logger) *BrokerClient {
	return &BrokerClient{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Store issues the primary-path write to the broker at baseURL.
func (c *BrokerClient) Store(ctx context.Context, baseURL string, req *model.StoreRequest) (*model.StoreResponse, error) {
	var resp model.StoreResponse
	if err := c.postJSON(ctx, baseURL+"/store", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Replicate issues the replica-path write to the broker at baseURL.
func (c *BrokerClient) Replicate(ctx context.Context, baseURL string, req *model.ReplicateRequest) (*model.ReplicateResponse, error) {
	var resp model.ReplicateResponse
	if err := c.postJSON(ctx, baseURL+"/replicate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Fetch reads one key from the broker at baseURL. Returns ErrNotFound when
// the broker does not hold the key.
func (c *BrokerClient) Fetch(ctx context.Context, baseURL, key string) (*model.FetchResponse, error) {
	target := baseURL + "/fetch/" + url.PathEscape(key)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("building fetch request: %w", err)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch from %s: %w", baseURL, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, httpResp.Body)
		return nil, ErrNotFound
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch from %s: unexpected status %d", baseURL, httpResp.StatusCode)
	}

	var resp model.FetchResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decoding fetch response: %w", err)
	}
	return &resp, nil
}

// Health probes the broker's liveness endpoint.
func (c *BrokerClient) Health(ctx context.Context, baseURL string) (*model.BrokerHealthResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("building health request: %w", err)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("health probe of %s: %w", baseURL, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health probe of %s: unexpected status %d", baseURL, httpResp.StatusCode)
	}

	var resp model.BrokerHealthResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decoding health response: %w", err)
	}
	return &resp, nil
}

// Promote instructs the broker to accept primary writes.
func (c *BrokerClient) Promote(ctx context.Context, baseURL string) (*model.PromoteResponse, error) {
	var resp model.PromoteResponse
	if err := c.postJSON(ctx, baseURL+"/promote", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *BrokerClient) postJSON(ctx context.Context, target string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("post %s: %w", target, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		c.logger.Debug("broker returned error status",
			zap.String("target", target),
			zap.Int("status", httpResp.StatusCode),
			zap.ByteString("body", raw))
		return fmt.Errorf("post %s: unexpected status %d", target, httpResp.StatusCode)
	}

	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", target, err)
	}
	return nil
}
