// Package gateway calls the campaign, donation, and escrow REST services.
//
// Responses may arrive bare or wrapped in {"data": ...}; both decode. Non-2xx
// statuses map to NOT_FOUND or UNAVAILABLE domain errors carrying the
// server's message.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/kindfund/campaignsync/internal/platform/errors"
	"github.com/kindfund/campaignsync/internal/platform/requestctx"
	"github.com/kindfund/campaignsync/internal/platform/timeouts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "github.com/kindfund/campaignsync/internal/services/campaignsync/gateway"

	// RequestIDHeader carries the per-call correlation id.
	RequestIDHeader = "X-Request-ID"

	maxErrorBody = 4 << 10
)

// Config configures a Client.
type Config struct {
	// BaseURL is the API root, e.g. https://api.example.org/api.
	BaseURL string
	// AccessToken is sent as a bearer token when set.
	AccessToken string
	// HTTPClient defaults to a client with the shared request timeout.
	HTTPClient *http.Client
}

// Client is a REST client for one viewer.
type Client struct {
	baseURL     *url.URL
	accessToken string
	httpClient  *http.Client
	tracer      trace.Tracer
}

// New validates cfg and creates a Client.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("base url is required")
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url scheme %q is not http or https", base.Scheme)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeouts.HTTPRequest}
	}
	return &Client{
		baseURL:     base,
		accessToken: strings.TrimSpace(cfg.AccessToken),
		httpClient:  httpClient,
		tracer:      otel.Tracer(tracerName),
	}, nil
}

// endpoint joins escaped segments below the base URL.
func (c *Client) endpoint(segments ...string) string {
	escaped := make([]string, 0, len(segments))
	for _, segment := range segments {
		escaped = append(escaped, url.PathEscape(segment))
	}
	return c.baseURL.String() + "/" + strings.Join(escaped, "/")
}

// do sends one request and decodes a successful response body into out.
func (c *Client) do(ctx context.Context, operation, method, endpoint string, body, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, requestID := requestctx.EnsureRequestID(ctx)
	ctx, span := c.tracer.Start(ctx, "gateway."+operation, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.full", endpoint),
		attribute.String("campaignsync.request_id", requestID),
	)

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return c.fail(span, fmt.Errorf("encode %s request: %w", operation, err))
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return c.fail(span, fmt.Errorf("build %s request: %w", operation, err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}
	req.Header.Set(RequestIDHeader, requestID)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.fail(span, apperrors.WrapWithMetadata(apperrors.CodeUnavailable, operation+" request", map[string]string{
			"request_id": requestID,
		}, err))
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.fail(span, statusError(operation, requestID, resp))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.fail(span, apperrors.Wrap(apperrors.CodeUnavailable, "read "+operation+" response", err))
	}
	if err := json.Unmarshal(unwrapData(raw), out); err != nil {
		return c.fail(span, apperrors.Wrap(apperrors.CodeUnavailable, "decode "+operation+" response", err))
	}
	return nil
}

func (c *Client) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// unwrapData returns the value under a top-level "data" key, or raw itself.
func unwrapData(raw []byte) []byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return trimmed
	}
	data, ok := envelope["data"]
	if !ok {
		return trimmed
	}
	if _, hasID := envelope["id"]; hasID {
		return trimmed
	}
	if _, hasID := envelope["_id"]; hasID {
		return trimmed
	}
	return data
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func statusError(operation, requestID string, resp *http.Response) error {
	code := apperrors.CodeUnavailable
	if resp.StatusCode == http.StatusNotFound {
		code = apperrors.CodeNotFound
	}
	message := fmt.Sprintf("%s returned %s", operation, resp.Status)

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		switch {
		case strings.TrimSpace(body.Message) != "":
			message = strings.TrimSpace(body.Message)
		case strings.TrimSpace(body.Error) != "":
			message = strings.TrimSpace(body.Error)
		}
	}
	return apperrors.WithMetadata(code, message, map[string]string{
		"operation":   operation,
		"status_code": fmt.Sprintf("%d", resp.StatusCode),
		"request_id":  requestID,
	})
}
