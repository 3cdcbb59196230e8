// Package supabase provides adapters for Supabase: PostgREST tables for the
// profile and scheduling stores, and GoTrue for credentials.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/boddenberg/timely-go/internal/domain"
	"github.com/boddenberg/timely-go/internal/infra/resilience"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("supabase")

// Client wraps HTTP calls to the Supabase PostgREST API. Every call runs
// through the resilience guard (bulkhead, circuit breaker, bounded retry).
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	serviceRoleKey string
	guard          *resilience.Guard
	logger         *zap.Logger
}

// NewClient creates a Supabase client.
func NewClient(httpClient *http.Client, baseURL, apiKey, serviceRoleKey string, guard *resilience.Guard, logger *zap.Logger) *Client {
	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		apiKey:         apiKey,
		serviceRoleKey: serviceRoleKey,
		guard:          guard,
		logger:         logger,
	}
}

// request describes one PostgREST call.
type request struct {
	op     string // logical operation, used in StoreError
	method string
	path   string // relative to /rest/v1/
	body   any
	prefer string
}

// do executes req under the guard and returns the response body. A 204
// yields a nil body. PostgREST answers 404 only for a missing relation or
// route, so it is an error like any other non-2xx status.
func (c *Client) do(ctx context.Context, req request) ([]byte, error) {
	var out []byte
	err := c.guard.Do(ctx, func(ctx context.Context) error {
		body, err := c.doRequest(ctx, req)
		if err != nil {
			return err
		}
		out = body
		return nil
	})
	if err != nil {
		return nil, toStoreError(req.op, err)
	}
	return out, nil
}

// doRequest executes an authenticated request to Supabase PostgREST.
func (c *Client) doRequest(ctx context.Context, r request) ([]byte, error) {
	url := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, r.path)

	var reader io.Reader
	if r.body != nil {
		jsonBody, err := json.Marshal(r.body)
		if err != nil {
			return nil, domain.NewStoreError(domain.StoreUnknown, r.op, err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, url, reader)
	if err != nil {
		c.logger.Error("supabase: failed to create request",
			zap.String("method", r.method),
			zap.String("path", r.path),
			zap.Error(err),
		)
		return nil, domain.NewStoreError(domain.StoreUnknown, r.op, err)
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.serviceRoleKey))
	req.Header.Set("Content-Type", "application/json")
	prefer := r.prefer
	if prefer == "" {
		prefer = "return=representation"
	}
	req.Header.Set("Prefer", prefer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: request failed",
			zap.String("method", r.method),
			zap.String("path", r.path),
			zap.Error(err),
		)
		return nil, domain.NewStoreError(domain.StoreNetwork, r.op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("supabase: failed to read response body",
			zap.String("method", r.method),
			zap.String("path", r.path),
			zap.Error(err),
		)
		return nil, domain.NewStoreError(domain.StoreNetwork, r.op, err)
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("supabase: non-2xx response",
			zap.String("method", r.method),
			zap.String("path", r.path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return nil, domain.NewStoreError(kindForStatus(resp.StatusCode), r.op,
			fmt.Errorf("supabase returned status %d: %s", resp.StatusCode, string(body)))
	}

	c.logger.Debug("supabase: request OK",
		zap.String("method", r.method),
		zap.String("path", r.path),
		zap.Int("status", resp.StatusCode),
	)

	return body, nil
}

// Ping checks that PostgREST answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.doRequest(ctx, request{op: "ping", method: http.MethodGet, path: "profiles?select=id&limit=1"})
	return err
}

// kindForStatus maps an HTTP status onto a store error kind.
func kindForStatus(status int) domain.StoreErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.StorePermissionDenied
	case status == http.StatusTooManyRequests || status >= 500:
		return domain.StoreNetwork
	default:
		return domain.StoreUnknown
	}
}

// toStoreError keeps StoreErrors as they are and classifies the rest
// (open breaker, cancelled context).
func toStoreError(op string, err error) error {
	var se *domain.StoreError
	if errors.As(err, &se) {
		return err
	}
	return domain.NewStoreError(domain.StoreNetwork, op, err)
}
