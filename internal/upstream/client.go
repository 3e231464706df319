package upstream

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// DefaultEndpoint is the US-region NerdGraph endpoint.
	DefaultEndpoint = "https://api.newrelic.com/graphql"

	// DefaultTimeout bounds a single query round trip.
	DefaultTimeout = 10 * time.Second

	// APIKeyHeader carries the user API key on every request.
	APIKeyHeader = "API-Key"

	contentTypeGraphQL = "application/graphql"
)

// ErrTransport marks failures to obtain a decodable response body.
var ErrTransport = errors.New("upstream transport failure")

// Querier sends a GraphQL document and returns the decoded response.
type Querier interface {
	Query(ctx context.Context, document string) (*Response, error)
}

// Options configures a Client.
type Options struct {
	Endpoint           string
	APIKey             string
	Timeout            time.Duration
	InsecureSkipVerify bool
	UserAgent          string
}

// Client is a NerdGraph Querier backed by a resty client.
// It is safe for concurrent use.
type Client struct {
	endpoint string
	http     *resty.Client
}

// New builds a Client. The underlying HTTP client is created once and reused
// for every query.
func New(opts Options) *Client {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	rc := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader(APIKeyHeader, opts.APIKey).
		SetHeader("Content-Type", contentTypeGraphQL).
		SetHeader("Accept", "application/json")
	if opts.UserAgent != "" {
		rc.SetHeader("User-Agent", opts.UserAgent)
	}
	if opts.InsecureSkipVerify {
		rc.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec // user-configured
	}

	return &Client{endpoint: opts.Endpoint, http: rc}
}

// Query POSTs document to the endpoint and decodes the JSON body.
//
// A non-2xx response whose body still decodes as a GraphQL response is
// returned without error so that the caller sees the upstream errors.
func (c *Client) Query(ctx context.Context, document string) (*Response, error) {
	start := time.Now()

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(document).
		Post(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("upstream: post %s: %w: %w", c.endpoint, ErrTransport, err)
	}

	slog.DebugContext(ctx, "upstream: query finished",
		"status", resp.StatusCode(),
		"bytes", len(resp.Body()),
		"duration", time.Since(start),
	)

	out, err := decode(resp.Body())
	if err != nil {
		if !resp.IsSuccess() {
			return nil, fmt.Errorf("upstream: unexpected status %d: %w", resp.StatusCode(), ErrTransport)
		}
		return nil, fmt.Errorf("upstream: %w: %w", ErrTransport, err)
	}
	if !resp.IsSuccess() && len(out.Errors) == 0 {
		// A JSON body without errors does not explain the failure.
		return nil, fmt.Errorf("upstream: unexpected status %d: %w", resp.StatusCode(), ErrTransport)
	}
	return out, nil
}

// decode parses a GraphQL response body. Bodies that are not a JSON object
// are rejected.
func decode(body []byte) (*Response, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, errors.New("empty response body")
	}
	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}
