package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/sma-core-api/internal/observability"
)

// Record is one external directory document. Field names follow the external
// system's snake_case schema; the adapter translates them per role.
type Record map[string]interface{}

// Name returns the record's opaque identifier.
func (r Record) Name() string {
	if v, ok := r["name"].(string); ok {
		return v
	}
	return ""
}

// StringField returns a string field or empty when absent.
func (r Record) StringField(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

// ListQuery narrows and pages a resource listing.
type ListQuery struct {
	Fields   []string
	Filters  [][]string
	PageSize int
	Start    int
}

// ClientConfig carries the external system's endpoint and token-pair credential.
type ClientConfig struct {
	BaseURL   string
	APIKey    string
	APISecret string
	Timeout   time.Duration
	Logger    zerolog.Logger
}

// Client speaks the external directory's resource-oriented REST API. Every
// call is fire-and-await with a timeout; calls that exceed it are abandoned
// without retry and surface ErrTimeout to the caller.
type Client struct {
	baseURL    string
	authHeader string
	http       *http.Client
	logger     zerolog.Logger
	tracer     trace.Tracer
}

// NewClient constructs a directory client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("directory base url must be provided")
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("directory api credentials must be provided")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		authHeader: fmt.Sprintf("token %s:%s", cfg.APIKey, cfg.APISecret),
		http:       &http.Client{Timeout: cfg.Timeout},
		logger:     cfg.Logger.With().Str("component", "directory_client").Logger(),
		tracer:     otel.Tracer("github.com/noah-isme/sma-core-api/internal/directory"),
	}, nil
}

// List fetches one page of records for a doctype.
func (c *Client) List(ctx context.Context, doctype string, query ListQuery) ([]Record, error) {
	values := url.Values{}
	if len(query.Fields) > 0 {
		fields, err := json.Marshal(query.Fields)
		if err != nil {
			return nil, err
		}
		values.Set("fields", string(fields))
	}
	if len(query.Filters) > 0 {
		filters, err := json.Marshal(query.Filters)
		if err != nil {
			return nil, err
		}
		values.Set("filters", string(filters))
	}
	if query.PageSize > 0 {
		values.Set("limit_page_length", strconv.Itoa(query.PageSize))
	}
	if query.Start > 0 {
		values.Set("limit_start", strconv.Itoa(query.Start))
	}

	endpoint := fmt.Sprintf("%s/api/resource/%s", c.baseURL, url.PathEscape(doctype))
	if encoded := values.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	var payload struct {
		Data []Record `json:"data"`
	}
	if err := c.do(ctx, doctype, "list", http.MethodGet, endpoint, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Data, nil
}

// Get fetches a single record by its identifier.
func (c *Client) Get(ctx context.Context, doctype, name string) (Record, error) {
	endpoint := fmt.Sprintf("%s/api/resource/%s/%s", c.baseURL, url.PathEscape(doctype), url.PathEscape(name))

	var payload struct {
		Data Record `json:"data"`
	}
	if err := c.do(ctx, doctype, "get", http.MethodGet, endpoint, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Data, nil
}

// Create inserts a new record.
func (c *Client) Create(ctx context.Context, doctype string, fields Record) (Record, error) {
	endpoint := fmt.Sprintf("%s/api/resource/%s", c.baseURL, url.PathEscape(doctype))

	var payload struct {
		Data Record `json:"data"`
	}
	if err := c.do(ctx, doctype, "create", http.MethodPost, endpoint, fields, &payload); err != nil {
		return nil, err
	}
	return payload.Data, nil
}

// Update patches an existing record.
func (c *Client) Update(ctx context.Context, doctype, name string, fields Record) (Record, error) {
	endpoint := fmt.Sprintf("%s/api/resource/%s/%s", c.baseURL, url.PathEscape(doctype), url.PathEscape(name))

	var payload struct {
		Data Record `json:"data"`
	}
	if err := c.do(ctx, doctype, "update", http.MethodPut, endpoint, fields, &payload); err != nil {
		return nil, err
	}
	return payload.Data, nil
}

// Delete removes a record. The external system answers with a conflict status
// when the record is referentially linked; callers fall back to SoftDelete.
func (c *Client) Delete(ctx context.Context, doctype, name string) error {
	endpoint := fmt.Sprintf("%s/api/resource/%s/%s", c.baseURL, url.PathEscape(doctype), url.PathEscape(name))
	return c.do(ctx, doctype, "delete", http.MethodDelete, endpoint, nil, nil)
}

func (c *Client) do(ctx context.Context, doctype, operation, method, endpoint string, body interface{}, out interface{}) error {
	ctx, span := c.tracer.Start(ctx, "directory."+operation, trace.WithAttributes(
		attribute.String("directory.doctype", doctype),
		attribute.String("http.method", method),
	))
	defer span.End()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	observability.DirectoryLatency().WithLabelValues(doctype, operation).Observe(time.Since(start).Seconds())
	if err != nil {
		outcome := "error"
		mapped := ErrUpstream
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			outcome = "timeout"
			mapped = ErrTimeout
		}
		observability.DirectoryRequests().WithLabelValues(doctype, operation, outcome).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: %s %s: %v", mapped, method, doctype, err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp.StatusCode, doctype, operation); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	observability.DirectoryRequests().WithLabelValues(doctype, operation, "ok").Inc()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrUpstream, doctype, err)
	}
	return nil
}

func (c *Client) checkStatus(status int, doctype, operation string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		observability.DirectoryRequests().WithLabelValues(doctype, operation, "not_found").Inc()
		return ErrNotFound
	// 409 for duplicates, 417 for link constraints on delete.
	case status == http.StatusConflict || status == http.StatusExpectationFailed:
		observability.DirectoryRequests().WithLabelValues(doctype, operation, "conflict").Inc()
		return ErrConflict
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		observability.DirectoryRequests().WithLabelValues(doctype, operation, "denied").Inc()
		return ErrPermission
	default:
		observability.DirectoryRequests().WithLabelValues(doctype, operation, "error").Inc()
		return fmt.Errorf("%w: %s %s returned status %d", ErrUpstream, operation, doctype, status)
	}
}
