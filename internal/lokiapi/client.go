package lokiapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"loki-watch/internal/models"

	"golang.org/x/time/rate"
)

// HTTP headers sent with every Loki API request
const (
	headerAccept        = "Accept"
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	headerScopeOrgID    = "X-Scope-OrgID"

	contentTypeJSON = "application/json"

	queryPath      = "/loki/api/v1/query"
	queryRangePath = "/loki/api/v1/query_range"
)

// APIError is returned when Loki answers with a non-2xx status code.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("loki API request failed with status %d: %s", e.StatusCode, e.Body)
}

// QueryParams holds the recognized query string parameters for the Loki
// query endpoints. Zero values are omitted from the request.
type QueryParams struct {
	Query     string
	Start     string
	End       string
	Since     string
	Limit     int
	Direction string // "forward" or "backward"
	Step      string
	Interval  string
	Time      string
}

func (p QueryParams) values() url.Values {
	v := url.Values{}
	v.Set("query", p.Query)
	if p.Start != "" {
		v.Set("start", p.Start)
	}
	if p.End != "" {
		v.Set("end", p.End)
	}
	if p.Since != "" {
		v.Set("since", p.Since)
	}
	if p.Limit > 0 {
		v.Set("limit", fmt.Sprintf("%d", p.Limit))
	}
	if p.Direction != "" {
		v.Set("direction", p.Direction)
	}
	if p.Step != "" {
		v.Set("step", p.Step)
	}
	if p.Interval != "" {
		v.Set("interval", p.Interval)
	}
	if p.Time != "" {
		v.Set("time", p.Time)
	}
	return v
}

// Client issues authenticated queries against a single Loki instance.
// Outgoing requests are rate limited.
type Client struct {
	httpClient *http.Client
	baseURL    string
	authToken  string
	tenantID   string
	limiter    *rate.Limiter
}

// NewClient creates a Client from the resolved configuration.
func NewClient(httpClient *http.Client, cfg models.Config) (*Client, error) {
	if httpClient == nil {
		return nil, errors.New("http client cannot be nil")
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("loki base URL cannot be empty")
	}

	rateLimit := cfg.RequestRateLimit
	if rateLimit <= 0 {
		rateLimit = 1
	}
	burst := cfg.RequestRateBurst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		httpClient: WrapClientWithDebug(httpClient, cfg.Debug),
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		authToken:  cfg.AuthToken,
		tenantID:   cfg.TenantID,
		limiter:    rate.NewLimiter(rate.Limit(rateLimit), burst),
	}, nil
}

// Query executes an instant query against /loki/api/v1/query.
func (c *Client) Query(ctx context.Context, params QueryParams) (*QueryResponse, error) {
	return c.get(ctx, queryPath, params)
}

// QueryRange executes a range query against /loki/api/v1/query_range.
func (c *Client) QueryRange(ctx context.Context, params QueryParams) (*QueryResponse, error) {
	return c.get(ctx, queryRangePath, params)
}

func (c *Client) get(ctx context.Context, path string, params QueryParams) (*QueryResponse, error) {
	if strings.TrimSpace(params.Query) == "" {
		return nil, errors.New("query cannot be empty")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	fullURL := c.baseURL + path + "?" + params.values().Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("loki request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return ParseQueryResponse(body)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set(headerAccept, contentTypeJSON)
	req.Header.Set(headerContentType, contentTypeJSON)
	if c.authToken != "" {
		req.Header.Set(headerAuthorization, "Bearer "+c.authToken)
	}
	if c.tenantID != "" {
		req.Header.Set(headerScopeOrgID, c.tenantID)
	}
}
