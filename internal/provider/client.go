package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseBytes = 4 << 20

// RawResponse is an unparsed provider reply. The client never decodes bodies
// itself: the provider is known to return HTML error pages with a 200 status,
// so interpretation belongs to Classify alone.
type RawResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	inFlight   chan struct{}
}

// NewClient builds a provider client with a hard request timeout and a
// process-wide cap on concurrent provider calls. The provider enforces
// organization-wide rate limits, so the cap is global, not per account.
func NewClient(baseURL, apiKey string, timeout time.Duration, maxInFlight int) *Client {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		inFlight:   make(chan struct{}, maxInFlight),
	}
}

func (c *Client) CreateAuthSession(ctx context.Context, ownerRef string) (RawResponse, error) {
	body := fmt.Sprintf(`{"owner_ref":%q}`, ownerRef)
	return c.do(ctx, http.MethodPost, "/v1/auth/sessions", body)
}

func (c *Client) ListAccounts(ctx context.Context, connectionID string) (RawResponse, error) {
	path := "/v1/connections/" + url.PathEscape(connectionID) + "/accounts"
	return c.do(ctx, http.MethodGet, path, "")
}

func (c *Client) ListTransactions(ctx context.Context, connectionID, providerAccountID string, since *time.Time) (RawResponse, error) {
	path := "/v1/connections/" + url.PathEscape(connectionID) + "/accounts/" + url.PathEscape(providerAccountID) + "/transactions"
	if since != nil {
		path += "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339))
	}
	return c.do(ctx, http.MethodGet, path, "")
}

func (c *Client) GetConnectionStatus(ctx context.Context, connectionID string) (RawResponse, error) {
	path := "/v1/connections/" + url.PathEscape(connectionID)
	return c.do(ctx, http.MethodGet, path, "")
}

func (c *Client) do(ctx context.Context, method, path, body string) (RawResponse, error) {
	select {
	case c.inFlight <- struct{}{}:
		defer func() { <-c.inFlight }()
	case <-ctx.Done():
		return RawResponse{}, ctx.Err()
	}

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return RawResponse{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return RawResponse{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return RawResponse{}, err
	}
	return RawResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       payload,
	}, nil
}
