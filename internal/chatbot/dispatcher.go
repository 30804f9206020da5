package chatbot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"Chatdesk/internal/backend"
	"Chatdesk/internal/session"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// ImagePlaceholder is the user message text for sends that carry only images.
const ImagePlaceholder = "image sent"

// Failure classes of a chat exchange. They all surface as one assistant
// message with provider "error"; errors.Is tells them apart.
var (
	ErrTransport   = errors.New("network error")
	ErrStatus      = errors.New("unexpected HTTP status")
	ErrApplication = errors.New("backend error")
)

// StatusError reports a non-2xx reply from the backend.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("HTTP error! status: %d", e.Code)
}

// Is makes StatusError match ErrStatus
func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}

// DispatcherConfig is the explicit configuration of a Dispatcher
type DispatcherConfig struct {
	BaseURL   string
	APIKey    string
	SessionID string
}

// Dispatcher turns pending input into chat requests and reconciles the
// outcome into the message store.
type Dispatcher struct {
	cfg        DispatcherConfig
	store      *session.Store
	selector   *Selector
	compose    *Compose
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer

	duration metric.Float64Histogram
	failures metric.Int64Counter
	inflight atomic.Int32
}

// DispatcherOption customizes a Dispatcher
type DispatcherOption func(*dispatcherOptions)

type dispatcherOptions struct {
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	meter      metric.Meter
}

// WithHTTPClient sets the client used for chat requests
func WithHTTPClient(c *http.Client) DispatcherOption {
	return func(o *dispatcherOptions) { o.httpClient = c }
}

// WithLogger sets the dispatcher logger
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(o *dispatcherOptions) { o.logger = l }
}

// WithTelemetry sets the tracer and meter
func WithTelemetry(tracer trace.Tracer, meter metric.Meter) DispatcherOption {
	return func(o *dispatcherOptions) {
		o.tracer = tracer
		o.meter = meter
	}
}

// NewDispatcher creates a Dispatcher writing into store. The selector
// supplies the provider of each request and compose is cleared after every
// attempt.
func NewDispatcher(cfg DispatcherConfig, store *session.Store, selector *Selector, compose *Compose, opts ...DispatcherOption) (*Dispatcher, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if cfg.SessionID == "" {
		return nil, fmt.Errorf("session ID cannot be empty")
	}
	if store == nil || selector == nil || compose == nil {
		return nil, fmt.Errorf("store, selector and compose are required")
	}

	o := dispatcherOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.tracer == nil {
		o.tracer = tracenoop.NewTracerProvider().Tracer("chatdesk")
	}
	if o.meter == nil {
		o.meter = metricnoop.NewMeterProvider().Meter("chatdesk")
	}

	duration, err := o.meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}
	failures, err := o.meter.Int64Counter(
		"chat.dispatch.failures",
		metric.WithDescription("Chat exchanges that ended in an error message"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create failure counter: %w", err)
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Dispatcher{
		cfg:        cfg,
		store:      store,
		selector:   selector,
		compose:    compose,
		httpClient: o.httpClient,
		logger:     o.logger,
		tracer:     o.tracer,
		duration:   duration,
		failures:   failures,
	}, nil
}

// Busy reports whether any exchange is in flight
func (d *Dispatcher) Busy() bool {
	return d.inflight.Load() > 0
}

// Send appends the user message and blocks until the exchange resolves.
// Empty text with no images is ignored.
func (d *Dispatcher) Send(ctx context.Context, text string, images []string) {
	<-d.SendAsync(ctx, text, images)
}

// SendAsync appends the user message before returning and completes the
// exchange in the background. The returned channel is closed once the
// assistant (or error) message has been appended and the busy flag and
// compose text have been cleared. Overlapping calls are all accepted; their
// replies land in completion order.
func (d *Dispatcher) SendAsync(ctx context.Context, text string, images []string) <-chan struct{} {
	done := make(chan struct{})

	req, ok := d.begin(text, images)
	if !ok {
		close(done)
		return done
	}

	go func() {
		defer close(done)
		d.complete(ctx, req)
	}()
	return done
}

func (d *Dispatcher) begin(text string, images []string) (backend.ChatRequest, bool) {
	if strings.TrimSpace(text) == "" && len(images) == 0 {
		return backend.ChatRequest{}, false
	}

	if strings.TrimSpace(text) == "" {
		text = ImagePlaceholder
	}
	provider := d.selector.Active()
	if images == nil {
		images = []string{}
	}

	d.inflight.Add(1)
	d.store.Append(session.Message{
		Text:     text,
		Sender:   session.SenderUser,
		Provider: provider,
		Images:   images,
	})

	return backend.ChatRequest{
		Provider: provider,
		Message:  text,
		Images:   append([]string{}, images...),
	}, true
}

func (d *Dispatcher) complete(ctx context.Context, req backend.ChatRequest) {
	defer func() {
		d.inflight.Add(-1)
		d.compose.Clear()
	}()

	resp, err := d.exchange(ctx, req)
	if err != nil {
		d.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("chat.provider", req.Provider)))
		d.logger.Error("chat exchange failed",
			"session_id", d.cfg.SessionID,
			"provider", req.Provider,
			"error", err)
		d.store.Append(session.Message{
			Text:     "Error: " + err.Error(),
			Sender:   session.SenderAssistant,
			Provider: session.ProviderError,
		})
		return
	}

	d.logger.Info("chat exchange completed",
		"session_id", d.cfg.SessionID,
		"provider", resp.Provider,
		"response_length", len(resp.Response))
	d.store.Append(session.Message{
		Text:     resp.Response,
		Sender:   session.SenderAssistant,
		Provider: resp.Provider,
	})
}

// exchange performs the single HTTP round trip of one send
func (d *Dispatcher) exchange(ctx context.Context, req backend.ChatRequest) (resp backend.ChatResponse, err error) {
	ctx, span := d.tracer.Start(ctx, "chat_dispatch", trace.WithAttributes(
		attribute.String("chat.provider", req.Provider),
		attribute.Int("chat.images", len(req.Images)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := time.Now()

	jsonData, err := json.Marshal(req)
	if err != nil {
		return resp, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := d.cfg.BaseURL + "/chat?session_id=" + url.QueryEscape(d.cfg.SessionID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return resp, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", d.cfg.APIKey)

	httpResp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return resp, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return resp, fmt.Errorf("%w: failed to read response: %v", ErrTransport, err)
	}

	d.duration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(attribute.Int("http.response.status_code", httpResp.StatusCode)))
	span.SetAttributes(attribute.Int("http.response.status_code", httpResp.StatusCode))

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return resp, statusError(httpResp.StatusCode, body)
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return resp, fmt.Errorf("%w: invalid response body: %v", ErrApplication, err)
	}
	if resp.Error != "" {
		return resp, fmt.Errorf("%w: %s", ErrApplication, resp.Error)
	}

	return resp, nil
}

func statusError(code int, body []byte) error {
	var errResp backend.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		if detail, ok := errResp.DetailString(); ok {
			return &StatusError{Code: code, Detail: detail}
		}
	}
	return &StatusError{Code: code}
}
