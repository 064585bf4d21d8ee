// Package feed is the HTTP client for the alert backend: per-project alert
// fetches, the progress hierarchy and remote acknowledgment.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/watchtower/internal/alert"
	"github.com/linnemanlabs/watchtower/internal/scope"
)

var tracer = otel.Tracer("github.com/linnemanlabs/watchtower/internal/feed")

const (
	maxBody      = 10 << 20 // 10 MB
	errBodyLimit = 512
)

// Client talks to the alert backend.
type Client struct {
	endpoint   string
	tenantID   string
	httpClient *http.Client
}

// New creates a client for endpoint. tenantID, when set, is sent as X-Scope-OrgID.
func New(endpoint, tenantID string) *Client {
	return &Client{
		endpoint: endpoint,
		tenantID: tenantID,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// FetchAlerts returns the raw alerts of one project. An empty projectID asks
// the backend for every project the tenant can see.
func (c *Client) FetchAlerts(ctx context.Context, projectID string) ([]alert.Alert, error) {
	ctx, span := tracer.Start(ctx, "feed.FetchAlerts", trace.WithAttributes(
		attribute.String("project.id", projectID),
	))
	defer span.End()

	q := url.Values{}
	if projectID != "" {
		q.Set("project_id", projectID)
	}
	body, err := c.do(ctx, http.MethodGet, "api/alerts", q, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch alerts")
		return nil, err
	}

	alerts, err := decodeAlerts(body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode alerts")
		return nil, err
	}
	span.SetAttributes(attribute.Int("alerts.count", len(alerts)))
	return alerts, nil
}

// decodeAlerts accepts a bare array or an {"alerts": [...]} envelope.
func decodeAlerts(body []byte) ([]alert.Alert, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var alerts []alert.Alert
		if err := json.Unmarshal(body, &alerts); err != nil {
			return nil, fmt.Errorf("decode alerts: %w", err)
		}
		return alerts, nil
	}
	var env struct {
		Alerts []alert.Alert `json:"alerts"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode alerts: %w", err)
	}
	return env.Alerts, nil
}

// FetchHierarchy returns the project, contract, SOW and process tree.
func (c *Client) FetchHierarchy(ctx context.Context) (scope.Hierarchy, error) {
	ctx, span := tracer.Start(ctx, "feed.FetchHierarchy")
	defer span.End()

	body, err := c.do(ctx, http.MethodGet, "api/progress/hierarchy", nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch hierarchy")
		return scope.Hierarchy{}, err
	}
	var h scope.Hierarchy
	if err := json.Unmarshal(body, &h); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode hierarchy")
		return scope.Hierarchy{}, fmt.Errorf("decode hierarchy: %w", err)
	}
	span.SetAttributes(attribute.Int("projects.count", len(h.Projects)))
	return h, nil
}

// AcknowledgeAlert acknowledges one alert on the backend.
func (c *Client) AcknowledgeAlert(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "feed.AcknowledgeAlert", trace.WithAttributes(
		attribute.String("alert.id", id),
	))
	defer span.End()

	if id == "" || id == "." || id == ".." {
		err := fmt.Errorf("invalid alert id %q", id)
		span.RecordError(err)
		span.SetStatus(codes.Error, "acknowledge")
		return err
	}

	rel := "api/alerts/" + url.PathEscape(id) + "/acknowledge"
	if _, err := c.do(ctx, http.MethodPost, rel, nil, []byte("{}")); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "acknowledge")
		return err
	}
	return nil
}

// do sends one request. rel is an already escaped path relative to the
// endpoint.
func (c *Client) do(ctx context.Context, method, rel string, q url.Values, payload []byte) ([]byte, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	u.RawPath = strings.TrimSuffix(u.EscapedPath(), "/") + "/" + rel
	if u.Path, err = url.PathUnescape(u.RawPath); err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", rel, err)
	}
	if q != nil {
		u.RawQuery = q.Encode()
	}

	var reqBody io.Reader = http.NoBody
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tenantID != "" {
		req.Header.Set("X-Scope-OrgID", c.tenantID)
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // endpoint is set at construction from config
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, rel, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > errBodyLimit {
			body = body[:errBodyLimit]
		}
		return nil, fmt.Errorf("%s %s returned %d: %s", method, rel, resp.StatusCode, string(body))
	}
	return body, nil
}
