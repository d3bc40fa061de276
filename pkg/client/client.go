// Package client provides the HTTP transport for the panel REST backend:
// request headers, timeouts, status classification and request metrics.
//
// The client issues exactly one request per call. It never retries and never
// caches; failures are returned to the caller as *APIError or wrapped
// transport errors.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for backend requests.
var (
	backendRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "panel_backend_requests_total",
		Help: "Total backend requests by endpoint and status",
	}, []string{"endpoint", "status"})

	backendRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "panel_backend_request_duration_seconds",
		Help:    "Backend request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	backendErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "panel_backend_errors_total",
		Help: "Total backend errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of HTTP errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// Client is the panel backend HTTP client.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the backend API root, e.g. "https://api.example.com/v1".
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout bounds a whole request including reading the body.
	// Zero disables the timeout.
	Timeout time.Duration

	// Headers are added to every request (e.g. a tenant header).
	Headers http.Header

	// MaxBodyBytes limits the response body size. Zero means no limit.
	MaxBodyBytes int64
}

// DefaultConfig returns a default configuration for a backend.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:      baseURL,
		UserAgent:    userAgent,
		Timeout:      30 * time.Second,
		MaxBodyBytes: 16 << 20,
	}
}

// New creates a new backend client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", base.Scheme)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be >= 0 (got %s)", cfg.Timeout)
	}

	logger := log.With().Str("component", "panel-client").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: base,
		config:  cfg,
		logger:  logger,
	}, nil
}

// Do performs an HTTP request with the configured headers.
// Responses with status >= 400 are returned as *APIError with the body closed.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	endpoint := req.URL.Path

	startTime := time.Now()
	defer func() {
		backendRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	for key, values := range c.config.Headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Str("query", req.URL.RawQuery).
		Msg("Executing backend request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		errClass := c.classifyError(nil, err)
		backendErrorsTotal.WithLabelValues(string(errClass)).Inc()
		backendRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		return nil, &APIError{
			ErrorClass: errClass,
			Message:    "request failed",
			Err:        err,
		}
	}

	backendRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		errClass := c.classifyError(resp, nil)
		backendErrorsTotal.WithLabelValues(string(errClass)).Inc()

		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Backend request error")

		resp.Body.Close()
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    resp.Status,
		}
	}

	return resp, nil
}

// classifyError categorizes an error for observability and handling.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// URL resolves an endpoint path against the base URL.
func (c *Client) URL(endpoint string, values url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(endpoint, "/")
	u.RawQuery = values.Encode()
	return u.String()
}

// Get performs a GET request and returns the response body.
func (c *Client) Get(ctx context.Context, endpoint string, values url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(endpoint, values), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body io.Reader = resp.Body
	if c.config.MaxBodyBytes > 0 {
		body = io.LimitReader(resp.Body, c.config.MaxBodyBytes+1)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		backendErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read response body",
			Err:        err,
		}
	}
	if c.config.MaxBodyBytes > 0 && int64(len(data)) > c.config.MaxBodyBytes {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    fmt.Sprintf("response body exceeds %d bytes", c.config.MaxBodyBytes),
			Err:        ErrBodyTooLarge,
		}
	}

	return data, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
