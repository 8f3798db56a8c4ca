// Package httpclient is the HTTP transport behind the dispatcher. It performs
// a single downstream request per call and classifies every failure as a
// DownstreamError so the retry and circuit breaker layers can act on the
// failure kind rather than on error strings.
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/agrimesh-platform/edge-gateway/pkg/dispatch"
	errs "github.com/agrimesh-platform/edge-gateway/pkg/errors"
	"github.com/agrimesh-platform/edge-gateway/pkg/logging"
	"github.com/agrimesh-platform/edge-gateway/pkg/tracing"
)

// Config holds HTTP transport settings
type Config struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration

	// MaxResponseBytes caps how much of a downstream body is read. Anything
	// beyond the cap is dropped.
	MaxResponseBytes int64
}

// DefaultConfig returns transport settings suitable for a gateway that keeps
// warm connections to a handful of internal services.
func DefaultConfig() *Config {
	return &Config{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		MaxResponseBytes:    10 << 20,
	}
}

// Client calls downstream services over HTTP. It implements
// dispatch.Transport; retries and circuit breaking happen above it.
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates a new downstream HTTP client
func NewClient(config *Config, logger *logging.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			// Deadlines come from the per-target timeout on the request
			// context, not from a client-wide setting.
			Transport: &http.Transport{
				MaxIdleConns:        config.MaxIdleConns,
				MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
				IdleConnTimeout:     config.IdleConnTimeout,
			},
		},
		logger: logger,
	}
}

// Do performs one request against the target and returns the downstream
// response. Non-2xx replies and transport failures are returned as
// classified errors; the response body is never returned alongside an error.
func (c *Client) Do(ctx context.Context, target *dispatch.Target, req *dispatch.Request) (*dispatch.Response, error) {
	if target.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, target.Timeout)
		defer cancel()
	}

	tracer := otel.Tracer("gateway.httpclient")
	ctx, span := tracer.Start(ctx, "downstream.call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(tracing.DownstreamSpanAttributes(target.Name, req.Method, req.Path)...),
	)
	defer span.End()

	url := buildURL(target, req)

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, values := range req.Headers {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		classified := classifyTransportError(target.Name, err)
		span.RecordError(classified)
		span.SetStatus(codes.Error, classified.Error())
		return nil, classified
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, c.config.MaxResponseBytes))
	if err != nil {
		classified := classifyTransportError(target.Name, err)
		span.RecordError(classified)
		span.SetStatus(codes.Error, classified.Error())
		return nil, classified
	}

	span.SetAttributes(semconv.HTTPStatusCodeKey.Int(httpResp.StatusCode))
	c.logger.WithContext(ctx).Debug("Downstream request completed",
		"target", target.Name,
		"method", req.Method,
		"path", req.Path,
		"status", httpResp.StatusCode,
		"durationMs", time.Since(start).Milliseconds(),
	)

	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		return &dispatch.Response{
			StatusCode: httpResp.StatusCode,
			Body:       respBody,
		}, nil
	}

	var classified error
	if httpResp.StatusCode >= 500 {
		classified = errs.ErrDownstreamServer(target.Name, httpResp.StatusCode)
	} else {
		classified = errs.ErrDownstreamClient(target.Name, httpResp.StatusCode)
	}
	span.RecordError(classified)
	span.SetStatus(codes.Error, classified.Error())
	return nil, classified
}

func buildURL(target *dispatch.Target, req *dispatch.Request) string {
	url := strings.TrimSuffix(target.BaseURL, "/") + req.Path
	if len(req.Query) > 0 {
		url += "?" + req.Query.Encode()
	}
	return url
}

// classifyTransportError maps a transport-level failure onto a failure kind.
// Caller-driven cancellation stays unclassified so the retry layer gives up
// without counting it as a downstream fault kind.
func classifyTransportError(target string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("downstream %s: request cancelled: %w", target, err)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return errs.ErrDownstreamTimeout(target, err)
	}
	return errs.ErrDownstreamConnect(target, err)
}
