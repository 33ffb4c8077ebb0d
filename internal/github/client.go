package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the public GitHub REST API
const DefaultBaseURL = "https://api.github.com"

const (
	requestTimeout = 30 * time.Second
	userAgent      = "Commit-Warrior"
	mediaType      = "application/vnd.github.v3+json"
)

// Credential identifies the user being checked. The token is never logged
// or used as a cache key.
type Credential struct {
	Username string
	Token    string
}

// Empty reports whether either half of the credential is missing
func (c Credential) Empty() bool {
	return strings.TrimSpace(c.Username) == "" || strings.TrimSpace(c.Token) == ""
}

// APIError is a non-2xx response from the GitHub API
type APIError struct {
	Endpoint   string
	StatusCode int
	Header     http.Header
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("github API error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("github API error %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) Status() int          { return e.StatusCode }
func (e *APIError) Headers() http.Header { return e.Header }
func (e *APIError) APIMessage() string   { return e.Message }

// Client is the rate-aware HTTP gateway to the GitHub API. Each client owns
// its rate-limit state.
type Client struct {
	baseURL    string
	httpClient *http.Client
	rateLimit  *RateLimitState
	logger     *slog.Logger
}

// NewClient creates a gateway. An empty baseURL uses DefaultBaseURL; a nil
// state gets a fresh RateLimitState.
func NewClient(baseURL string, state *RateLimitState, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if state == nil {
		state = NewRateLimitState()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		rateLimit: state,
		logger:    logger,
	}
}

// RateLimitStatus returns the counters recorded from the last response
func (c *Client) RateLimitStatus() RateLimitStatus {
	return c.rateLimit.Status()
}

// Request performs an authenticated GET against endpoint with params and
// decodes the JSON body into target. Non-2xx responses become *APIError.
func (c *Client) Request(ctx context.Context, endpoint string, params url.Values, token string, target interface{}) (http.Header, error) {
	u := c.baseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return c.get(ctx, u, token, target)
}

// get fetches an absolute URL; used directly when following Link headers
func (c *Client) get(ctx context.Context, rawURL, token string, target interface{}) (http.Header, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, rawURL, token)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.Header, readErrorAndClose(resp, rawURL)
	}

	if target == nil {
		resp.Body.Close()
		return resp.Header, nil
	}

	if err := readAndClose(resp, target); err != nil {
		return resp.Header, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.Header, nil
}

// doRequest makes an authenticated request and records rate-limit headroom
func (c *Client) doRequest(ctx context.Context, method, rawURL, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	}
	req.Header.Set("Accept", mediaType)
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("API request failed",
			"url", redactURL(rawURL),
			"duration", time.Since(start),
			"error", err,
		)
		return nil, fmt.Errorf("request failed: %w", err)
	}

	c.rateLimit.Update(resp.Header, time.Now())
	c.logger.Debug("API request completed",
		"url", redactURL(rawURL),
		"status", resp.StatusCode,
		"duration", time.Since(start),
		"rate_limit_remaining", resp.Header.Get("X-RateLimit-Remaining"),
	)

	return resp, nil
}

// readAndClose decodes the body and closes it
func readAndClose(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// readErrorAndClose turns an error response into *APIError and closes it
func readErrorAndClose(resp *http.Response, rawURL string) error {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var payload struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &payload)

	return &APIError{
		Endpoint:   redactURL(rawURL),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Message:    payload.Message,
		Body:       string(body),
	}
}

// redactURL drops the query string, which may contain usernames and dates
// but is noisy in logs
func redactURL(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

// parseLinkNext extracts the "next" URL from a GitHub Link header.
// Format: <https://api.github.com/...?page=2>; rel="next", <...>; rel="last"
func parseLinkNext(header string) string {
	if header == "" {
		return ""
	}
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if strings.Contains(part, `rel="next"`) {
			start := strings.Index(part, "<")
			end := strings.Index(part, ">")
			if start >= 0 && end > start {
				return part[start+1 : end]
			}
		}
	}
	return ""
}
