// Package feeds reads the backend's read-only endpoints: news, market news,
// weather and the provider list.
package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"Chatdesk/internal/backend"
	"Chatdesk/internal/cache"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// NewsQuery narrows the combined headlines; empty fields are omitted.
type NewsQuery struct {
	Country  string
	Category string
	Query    string
}

// StatusError is a non-2xx feed reply
type StatusError struct {
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Path, e.Status, e.Body)
	}
	return fmt.Sprintf("%s: HTTP %d", e.Path, e.Status)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *cache.Cache
	logger     *slog.Logger
	tracer     trace.Tracer
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option { return func(cl *Client) { cl.httpClient = c } }
func WithCache(c *cache.Cache) Option      { return func(cl *Client) { cl.cache = c } }
func WithLogger(l *slog.Logger) Option     { return func(cl *Client) { cl.logger = l } }
func WithTracer(t trace.Tracer) Option     { return func(cl *Client) { cl.tracer = t } }

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
		tracer:     tracenoop.NewTracerProvider().Tracer("chatdesk"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// News fetches combined headlines and sources
func (c *Client) News(ctx context.Context, q NewsQuery) (*backend.NewsResponse, error) {
	params := url.Values{}
	if q.Country != "" {
		params.Set("country", q.Country)
	}
	if q.Category != "" {
		params.Set("category", q.Category)
	}
	if q.Query != "" {
		params.Set("q", q.Query)
	}

	var out backend.NewsResponse
	if err := c.getJSON(ctx, "/news/combined", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stocks fetches market news items
func (c *Client) Stocks(ctx context.Context, limit int) (*backend.StocksResponse, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var out backend.StocksResponse
	if err := c.getJSON(ctx, "/news/stocks", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Weather fetches current conditions and the forecast for city
func (c *Client) Weather(ctx context.Context, city, units string) (*backend.WeatherResponse, error) {
	if strings.TrimSpace(city) == "" {
		return nil, fmt.Errorf("city is required")
	}
	params := url.Values{}
	params.Set("city", city)
	if units != "" {
		params.Set("units", units)
	}

	var out backend.WeatherResponse
	if err := c.getJSON(ctx, "/weather/combined", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Providers lists the provider keys the backend currently serves
func (c *Client) Providers(ctx context.Context) ([]string, error) {
	var out backend.ProvidersResponse
	if err := c.getJSON(ctx, "/providers", nil, &out); err != nil {
		return nil, err
	}
	return out.Providers, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) (err error) {
	query := params.Encode()
	ctx, span := c.tracer.Start(ctx, "feeds_fetch", trace.WithAttributes(
		attribute.String("feed.path", path),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	key := cache.GenerateCacheKey(path, query)
	if body, ok := c.cache.Get(key); ok {
		span.SetAttributes(attribute.Bool("feed.cache_hit", true))
		c.logger.Debug("feed cache hit", "path", path)
		return decode(path, body, out)
	}

	endpoint := c.baseURL + path
	if query != "" {
		endpoint += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := decode(path, body, out); err != nil {
		return err
	}
	c.cache.Put(key, body)
	c.logger.Debug("feed fetched", "path", path, "bytes", len(body))
	return nil
}

func decode(path string, body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s response: %w", path, err)
	}
	return nil
}
