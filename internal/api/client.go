package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// HTTPError is returned for any non-2xx response from the backend.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error: status %d", e.Status)
}

// Options configures a Client.
type Options struct {
	// BaseURL is the backend root, e.g. "https://monitor.example.org".
	BaseURL string
	// Headers are merged into every request (typically the bearer token).
	Headers map[string]string
	// Timeout bounds each HTTP request. Zero keeps resty's default (none).
	Timeout time.Duration
	Logger  *zap.Logger
}

// Client owns request/response plumbing against one backend: JSON and form
// HTTP calls plus websocket stream dialing. It is stateless beyond the
// configured base address and default headers.
type Client struct {
	baseURL string
	http    *resty.Client
	dialer  *websocket.Dialer
	headers map[string]string
	logger  *zap.Logger
}

// NewClient builds a transport client for the given backend.
func NewClient(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	httpClient := resty.New().
		SetBaseURL(opts.BaseURL).
		SetHeader("Accept", "application/json")
	if opts.Timeout > 0 {
		httpClient.SetTimeout(opts.Timeout)
	}
	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		httpClient.SetHeader(k, v)
		headers[k] = v
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    httpClient,
		dialer:  websocket.DefaultDialer,
		headers: headers,
		logger:  opts.Logger,
	}
}

// Request issues one HTTP call against the configured base address.
// A url.Values body is sent form-encoded; any other non-nil body is
// serialized as JSON with Content-Type: application/json. A non-2xx status
// fails with *HTTPError carrying the status code.
func (c *Client) Request(ctx context.Context, endpoint, method string, body any) (json.RawMessage, error) {
	req := c.http.R().SetContext(ctx)

	switch b := body.(type) {
	case nil:
	case url.Values:
		req.SetFormDataFromValues(b)
	default:
		req.SetHeader("Content-Type", "application/json").SetBody(b)
	}

	resp, err := req.Execute(strings.ToUpper(method), endpoint)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, &HTTPError{Status: resp.StatusCode(), Body: string(resp.Body())}
	}
	return json.RawMessage(append([]byte(nil), resp.Body()...)), nil
}

// StreamURL derives the websocket address for path from the base address
// (http→ws, https→wss).
func (c *Client) StreamURL(path string) string {
	base := c.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + path
}

// DialStream opens one persistent websocket connection to path. Default
// headers (minus Accept, which gorilla manages itself) ride along on the
// upgrade request.
func (c *Client) DialStream(ctx context.Context, path string) (*websocket.Conn, error) {
	h := http.Header{}
	for k, v := range c.headers {
		h.Set(k, v)
	}
	target := c.StreamURL(path)
	conn, resp, err := c.dialer.DialContext(ctx, target, h)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		c.logger.Warn("websocket dial failed",
			zap.String("url", target),
			zap.Int("status", status),
			zap.Error(err),
		)
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	c.logger.Info("websocket connected", zap.String("url", target))
	return conn, nil
}
