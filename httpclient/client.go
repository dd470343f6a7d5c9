// Package httpclient provides the resty-backed HTTP transport used by api
// nodes.
package httpclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"chatflow/engine"
)

// Config tunes the underlying resty client.
type Config struct {
	Timeout    time.Duration
	MaxRetries int
	Debug      bool
}

// Client implements engine.Transport with resty.
type Client struct {
	client *resty.Client
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetDebug(cfg.Debug)
	return &Client{client: client}
}

// Do issues the request. Non-2xx responses are returned as responses, not
// errors; only transport-level failures error out.
func (c *Client) Do(ctx context.Context, method, url string, headers map[string]string, body any) (*engine.Response, error) {
	req := c.client.R().
		SetContext(ctx).
		SetHeaders(headers)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(strings.ToUpper(method), url)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	return &engine.Response{
		StatusCode: resp.StatusCode(),
		Body:       resp.Body(),
	}, nil
}
