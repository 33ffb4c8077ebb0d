package github

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const perPage = 100

// SearchResult is the summary of a commit search
type SearchResult struct {
	TotalCount        int  `json:"totalCount"`
	IncompleteResults bool `json:"incompleteResults"`
}

// SearchCommits counts commits authored by the user with a committer date
// inside [since, until]. GitHub may flag the result as incomplete.
func (c *Client) SearchCommits(ctx context.Context, cred Credential, since, until time.Time) (*SearchResult, error) {
	params := url.Values{}
	params.Set("q", fmt.Sprintf("author:%s committer-date:%s", cred.Username, committerDateQualifier(since, until)))
	params.Set("per_page", "1")

	var result struct {
		TotalCount        int  `json:"total_count"`
		IncompleteResults bool `json:"incomplete_results"`
	}
	if _, err := c.Request(ctx, "/search/commits", params, cred.Token, &result); err != nil {
		return nil, err
	}

	return &SearchResult{
		TotalCount:        result.TotalCount,
		IncompleteResults: result.IncompleteResults,
	}, nil
}

// committerDateQualifier uses the plain date form for UTC days and an
// explicit offset range otherwise, so the search day matches the local day.
func committerDateQualifier(since, until time.Time) string {
	if _, offset := since.Zone(); offset == 0 {
		return since.Format("2006-01-02")
	}
	return since.Format(time.RFC3339) + ".." + until.Format(time.RFC3339)
}

// ListUserEvents fetches the user's recent activity, following Link
// rel="next" for up to pages pages of 100. Later page failures return what
// was already fetched.
func (c *Client) ListUserEvents(ctx context.Context, cred Credential, pages int) ([]ActivityEvent, error) {
	if pages < 1 {
		pages = 1
	}

	params := url.Values{}
	params.Set("per_page", strconv.Itoa(perPage))
	firstURL := fmt.Sprintf("%s/users/%s/events?%s", c.baseURL, url.PathEscape(cred.Username), params.Encode())

	var raw []RawGitHubEvent
	headers, err := c.get(ctx, firstURL, cred.Token, &raw)
	if err != nil {
		return nil, err
	}

	linkHeader := headers.Get("Link")
	for page := 2; page <= pages; page++ {
		nextURL := parseLinkNext(linkHeader)
		if nextURL == "" {
			break
		}

		var pageEvents []RawGitHubEvent
		h, err := c.get(ctx, nextURL, cred.Token, &pageEvents)
		if err != nil {
			c.logger.Warn("Stopping event pagination", "page", page, "error", err)
			break // Partial results are fine
		}
		if len(pageEvents) == 0 {
			break
		}

		raw = append(raw, pageEvents...)
		linkHeader = h.Get("Link")
	}

	events := make([]ActivityEvent, 0, len(raw))
	for i := range raw {
		events = append(events, raw[i].ToActivity())
	}
	return events, nil
}

// Repository is a repository owned by the user
type Repository struct {
	Name      string    `json:"name"`
	FullName  string    `json:"fullName"`
	Owner     string    `json:"owner"`
	UpdatedAt time.Time `json:"updatedAt"`
	PushedAt  time.Time `json:"pushedAt"`
}

// ListUserRepositories returns the user's repositories, most recently updated first
func (c *Client) ListUserRepositories(ctx context.Context, cred Credential) ([]Repository, error) {
	params := url.Values{}
	params.Set("per_page", strconv.Itoa(perPage))
	params.Set("sort", "updated")
	params.Set("direction", "desc")

	var raw []struct {
		Name     string `json:"name"`
		FullName string `json:"full_name"`
		Owner    struct {
			Login string `json:"login"`
		} `json:"owner"`
		UpdatedAt time.Time `json:"updated_at"`
		PushedAt  time.Time `json:"pushed_at"`
	}
	endpoint := fmt.Sprintf("/users/%s/repos", url.PathEscape(cred.Username))
	if _, err := c.Request(ctx, endpoint, params, cred.Token, &raw); err != nil {
		return nil, err
	}

	repos := make([]Repository, 0, len(raw))
	for _, r := range raw {
		owner := r.Owner.Login
		if owner == "" {
			owner = cred.Username
		}
		repos = append(repos, Repository{
			Name:      r.Name,
			FullName:  r.FullName,
			Owner:     owner,
			UpdatedAt: r.UpdatedAt,
			PushedAt:  r.PushedAt,
		})
	}
	return repos, nil
}

// CommitSummary is one entry of a repository commit listing
type CommitSummary struct {
	SHA     string    `json:"sha"`
	Message string    `json:"message"`
	Date    time.Time `json:"date"`
}

// ListRepositoryCommits lists commits by the user in repo between since and until
func (c *Client) ListRepositoryCommits(ctx context.Context, cred Credential, repo Repository, since, until time.Time) ([]CommitSummary, error) {
	params := url.Values{}
	params.Set("author", cred.Username)
	params.Set("since", since.UTC().Format(time.RFC3339))
	params.Set("until", until.UTC().Format(time.RFC3339))
	params.Set("per_page", strconv.Itoa(perPage))

	var raw []struct {
		SHA    string `json:"sha"`
		Commit struct {
			Message   string `json:"message"`
			Committer struct {
				Date time.Time `json:"date"`
			} `json:"committer"`
		} `json:"commit"`
	}
	endpoint := fmt.Sprintf("/repos/%s/%s/commits", url.PathEscape(repo.Owner), url.PathEscape(repo.Name))
	if _, err := c.Request(ctx, endpoint, params, cred.Token, &raw); err != nil {
		return nil, err
	}

	commits := make([]CommitSummary, 0, len(raw))
	for _, r := range raw {
		commits = append(commits, CommitSummary{
			SHA:     r.SHA,
			Message: r.Commit.Message,
			Date:    r.Commit.Committer.Date,
		})
	}
	return commits, nil
}

// User is the authenticated account behind a token
type User struct {
	Login     string `json:"login"`
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
	Type      string `json:"type"`
}

// TokenValidation is the outcome of checking a token against a username
type TokenValidation struct {
	Valid         bool     `json:"valid"`
	User          *User    `json:"user,omitempty"`
	Scopes        []string `json:"scopes,omitempty"`
	Error         string   `json:"error,omitempty"`
	TokenUsername string   `json:"tokenUsername,omitempty"`
}

// ValidateToken fetches the authenticated user and checks the login matches
// cred.Username. Transport and HTTP failures are returned as errors.
func (c *Client) ValidateToken(ctx context.Context, cred Credential) (*TokenValidation, error) {
	var raw struct {
		Login     string `json:"login"`
		ID        int64  `json:"id"`
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
		Type      string `json:"type"`
	}
	headers, err := c.Request(ctx, "/user", nil, cred.Token, &raw)
	if err != nil {
		return nil, err
	}

	user := &User{
		Login:     raw.Login,
		ID:        raw.ID,
		Name:      raw.Name,
		AvatarURL: raw.AvatarURL,
		Type:      raw.Type,
	}

	if !strings.EqualFold(user.Login, cred.Username) {
		c.logger.Warn("Username mismatch", "provided", cred.Username, "token_user", user.Login)
		return &TokenValidation{
			Valid:         false,
			Error:         "Token belongs to a different user",
			TokenUsername: user.Login,
		}, nil
	}

	return &TokenValidation{
		Valid:  true,
		User:   user,
		Scopes: parseScopes(headers.Get("X-OAuth-Scopes")),
	}, nil
}

func parseScopes(header string) []string {
	var scopes []string
	for _, s := range strings.Split(header, ",") {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	return scopes
}

// GetRateLimit fetches current rate limit status
func (c *Client) GetRateLimit(ctx context.Context, token string) (*RateLimit, error) {
	var result struct {
		Rate struct {
			Limit     int   `json:"limit"`
			Remaining int   `json:"remaining"`
			Reset     int64 `json:"reset"`
		} `json:"rate"`
	}

	if _, err := c.Request(ctx, "/rate_limit", nil, token, &result); err != nil {
		return nil, err
	}

	return &RateLimit{
		Limit:     result.Rate.Limit,
		Remaining: result.Rate.Remaining,
		Reset:     time.Unix(result.Rate.Reset, 0),
	}, nil
}
