// Package shopify is the transport to the commerce platform's Admin GraphQL API.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	accessTokenHeader = "X-Shopify-Access-Token"
	maxResponseBytes  = 4 << 20
)

var (
	shopDomainPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9\-]*\.myshopify\.com$`)
	operationPattern  = regexp.MustCompile(`^\s*(query|mutation)\s+([A-Za-z_][A-Za-z0-9_]*)`)
)

// AdminAPI is the single capability repositories need from the remote store.
type AdminAPI interface {
	GraphQL(ctx context.Context, query string, variables map[string]any) (*Response, error)
}

// HTTPClient matches the subset of http.Client used by Client.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Response is a raw GraphQL response. Non-2xx statuses are returned, not treated as errors.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports a 2xx transport status.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if r == nil || len(r.Body) == 0 {
		return errors.New("shopify: empty response body")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("shopify: decode response: %w", err)
	}
	return nil
}

// CallObserver receives the outcome and latency of each GraphQL round trip.
type CallObserver func(operation, outcome string, duration time.Duration)

// Client calls the Admin GraphQL endpoint of one shop.
type Client struct {
	endpoint *url.URL
	token    string
	client   HTTPClient
	tracer   trace.Tracer
	observe  CallObserver
	now      func() time.Time
}

// ClientOption customises Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client, e.g. to apply a request timeout.
func WithHTTPClient(client HTTPClient) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// WithCallObserver records latency and outcome of every call.
func WithCallObserver(observe CallObserver) ClientOption {
	return func(c *Client) {
		c.observe = observe
	}
}

// WithBaseURL replaces the https://{shop} origin, used against local fakes.
func WithBaseURL(raw string) ClientOption {
	return func(c *Client) {
		base, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || base.Host == "" {
			return
		}
		c.endpoint.Scheme = base.Scheme
		c.endpoint.Host = base.Host
	}
}

// WithClientClock injects a clock for latency measurements.
func WithClientClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient builds a client for shop using the given API version and access token.
func NewClient(shop, version, token string, opts ...ClientOption) (*Client, error) {
	domain, ok := NormalizeShopDomain(shop)
	if !ok {
		return nil, fmt.Errorf("shopify: invalid shop domain %q", shop)
	}
	version = strings.TrimSpace(version)
	if version == "" {
		return nil, errors.New("shopify: api version is required")
	}
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("shopify: access token is required")
	}
	c := &Client{
		endpoint: &url.URL{
			Scheme: "https",
			Host:   domain,
			Path:   fmt.Sprintf("/admin/api/%s/graphql.json", version),
		},
		token:  token,
		client: http.DefaultClient,
		tracer: otel.Tracer("github.com/hcp-portal/api/internal/platform/shopify"),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Endpoint returns the resolved GraphQL URL.
func (c *Client) Endpoint() string {
	return c.endpoint.String()
}

// GraphQL posts one operation and returns the raw response.
func (c *Client) GraphQL(ctx context.Context, query string, variables map[string]any) (*Response, error) {
	operation := OperationName(query)
	ctx, span := c.tracer.Start(ctx, "shopify.graphql "+operation, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("graphql.operation.name", operation),
		attribute.String("server.address", c.endpoint.Host),
	)

	start := c.now()
	resp, err := c.post(ctx, query, variables)
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "transport_error"
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
	case !resp.OK():
		outcome = "http_error"
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}
	if resp != nil {
		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	}
	if c.observe != nil {
		c.observe(operation, outcome, c.now().Sub(start))
	}
	return resp, err
}

func (c *Client) post(ctx context.Context, query string, variables map[string]any) (*Response, error) {
	req, err := c.newJSONRequest(ctx, map[string]any{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return nil, err
	}
	httpResp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("shopify: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("shopify: read response: %w", err)
	}
	return &Response{StatusCode: httpResp.StatusCode, Body: body}, nil
}

func (c *Client) newJSONRequest(ctx context.Context, payload any) (*http.Request, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("shopify: encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), &buf)
	if err != nil {
		return nil, fmt.Errorf("shopify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(accessTokenHeader, c.token)
	return req, nil
}

// NormalizeShopDomain lower-cases and validates a *.myshopify.com domain.
func NormalizeShopDomain(raw string) (string, bool) {
	shop := strings.ToLower(strings.TrimSpace(raw))
	shop = strings.TrimPrefix(shop, "https://")
	shop = strings.TrimSuffix(shop, "/")
	if !shopDomainPattern.MatchString(shop) {
		return "", false
	}
	return shop, true
}

// OperationName extracts the named operation from a GraphQL document, or "anonymous".
func OperationName(query string) string {
	if m := operationPattern.FindStringSubmatch(query); len(m) == 3 {
		return m[2]
	}
	return "anonymous"
}
