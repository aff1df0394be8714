package twitch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the production Helix API endpoint.
const DefaultBaseURL = "https://api.twitch.tv/helix"

// ErrRateLimited is wrapped into errors returned for HTTP 429 responses.
// The client never retries; callers decide whether a run is abandoned.
var ErrRateLimited = errors.New("rate limited")

// Client is an explicit handle to the upstream API. Construct one and pass it
// to the components that fetch; there is no package-level client state.
type Client struct {
	baseURL  string
	clientID string
	token    string
	http     *http.Client
	limiter  *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint (used by tests and mirrors).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRateLimit bounds outgoing requests to rps requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// NewClient creates an API client authenticated with an app access token.
func NewClient(clientID, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:  DefaultBaseURL,
		clientID: clientID,
		token:    token,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type pagination struct {
	Cursor string `json:"cursor"`
}

type streamsResponse struct {
	Data       []Stream   `json:"data"`
	Pagination pagination `json:"pagination"`
}

type tagsResponse struct {
	Data       []Tag      `json:"data"`
	Pagination pagination `json:"pagination"`
}

// GetStreams fetches one page of live streams ordered (approximately) by
// viewer count. The ordering mutates between calls as viewers come and go.
func (c *Client) GetStreams(ctx context.Context, p StreamsParams) (*StreamsPage, error) {
	q := url.Values{"type": {"live"}}
	if p.First > 0 {
		q.Set("first", fmt.Sprintf("%d", p.First))
	}
	if p.After != "" {
		q.Set("after", p.After)
	}

	var resp streamsResponse
	if err := c.get(ctx, "/streams", q, c.token, &resp); err != nil {
		return nil, fmt.Errorf("get streams: %w", err)
	}
	return &StreamsPage{Data: resp.Data, Cursor: resp.Pagination.Cursor}, nil
}

// GetStreamTags fetches one page of the tag taxonomy, optionally filtered to
// a batch of tag IDs (at most 100 per request).
func (c *Client) GetStreamTags(ctx context.Context, p TagsParams) (*TagsPage, error) {
	q := url.Values{}
	if p.First > 0 {
		q.Set("first", fmt.Sprintf("%d", p.First))
	}
	if p.After != "" {
		q.Set("after", p.After)
	}
	for _, id := range p.TagIDs {
		q.Add("tag_id", id)
	}

	var resp tagsResponse
	if err := c.get(ctx, "/tags/streams", q, c.token, &resp); err != nil {
		return nil, fmt.Errorf("get stream tags: %w", err)
	}
	return &TagsPage{Data: resp.Data, Cursor: resp.Pagination.Cursor}, nil
}

// GetFollowedStreams fetches one page of the live streams a user follows.
// It authenticates with the user's own access token, not the app token.
func (c *Client) GetFollowedStreams(ctx context.Context, userID, userToken string, p StreamsParams) (*StreamsPage, error) {
	q := url.Values{"user_id": {userID}}
	if p.First > 0 {
		q.Set("first", fmt.Sprintf("%d", p.First))
	}
	if p.After != "" {
		q.Set("after", p.After)
	}

	var resp streamsResponse
	if err := c.get(ctx, "/streams/followed", q, userToken, &resp); err != nil {
		return nil, fmt.Errorf("get followed streams: %w", err)
	}
	return &StreamsPage{Data: resp.Data, Cursor: resp.Pagination.Cursor}, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, token string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Client-Id", c.clientID)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%s: %w", path, ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
