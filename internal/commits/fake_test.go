package commits

import (
	"context"
	"sync"
	"time"

	"github.com/developer-az/commit-warrior/internal/cache"
	"github.com/developer-az/commit-warrior/internal/github"
)

var alice = github.Credential{Username: "alice", Token: "ghp_testtoken123"}

// fakeBackend is an in-memory Backend. Nil error fields mean success.
type fakeBackend struct {
	mu sync.Mutex

	search    *github.SearchResult
	searchErr error

	events    []github.ActivityEvent
	eventsErr error

	repos    []github.Repository
	reposErr error
	// commits per repository name
	repoCommits map[string][]github.CommitSummary
	repoErrs    map[string]error

	validation    *github.TokenValidation
	validationErr error

	cached    bool
	remaining *int
	cleared   bool

	eventCalls   int
	repoRequests []string
	inFlight     int
	maxInFlight  int
	repoDelay    time.Duration
}

func (f *fakeBackend) SearchCommits(ctx context.Context, cred github.Credential, since, until time.Time) (*github.SearchResult, bool, error) {
	if f.searchErr != nil {
		return nil, false, f.searchErr
	}
	if f.search == nil {
		return &github.SearchResult{}, f.cached, nil
	}
	return f.search, f.cached, nil
}

func (f *fakeBackend) Events(ctx context.Context, cred github.Credential) ([]github.ActivityEvent, bool, error) {
	f.mu.Lock()
	f.eventCalls++
	f.mu.Unlock()
	if f.eventsErr != nil {
		return nil, false, f.eventsErr
	}
	return f.events, f.cached, nil
}

func (f *fakeBackend) Repositories(ctx context.Context, cred github.Credential) ([]github.Repository, bool, error) {
	if f.reposErr != nil {
		return nil, false, f.reposErr
	}
	return f.repos, f.cached, nil
}

func (f *fakeBackend) RepositoryCommits(ctx context.Context, cred github.Credential, repo github.Repository, since, until time.Time) ([]github.CommitSummary, bool, error) {
	f.mu.Lock()
	f.repoRequests = append(f.repoRequests, repo.Name)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	if f.repoDelay > 0 {
		time.Sleep(f.repoDelay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if err := f.repoErrs[repo.Name]; err != nil {
		return nil, false, err
	}
	return f.repoCommits[repo.Name], f.cached, nil
}

func (f *fakeBackend) ValidateToken(ctx context.Context, cred github.Credential) (*github.TokenValidation, bool, error) {
	if f.validationErr != nil {
		return nil, false, f.validationErr
	}
	if f.validation == nil {
		return &github.TokenValidation{Valid: true}, false, nil
	}
	return f.validation, false, nil
}

func (f *fakeBackend) RemoteRateLimit(ctx context.Context, token string) (*github.RateLimit, error) {
	return &github.RateLimit{Limit: 5000, Remaining: 4999}, nil
}

func (f *fakeBackend) RateLimitStatus() github.RateLimitStatus {
	return github.RateLimitStatus{Remaining: f.remaining}
}

func (f *fakeBackend) CacheStats() cache.Stats {
	return cache.Stats{MaxSize: 100}
}

func (f *fakeBackend) ClearCache() {
	f.cleared = true
}

func push(at time.Time, commits ...github.PushedCommit) github.ActivityEvent {
	return github.ActivityEvent{
		Type:          github.EventPush,
		CreatedAt:     at,
		Repository:    "alice/repo",
		PushedCommits: commits,
	}
}

func commit(msg string) github.PushedCommit {
	return github.PushedCommit{SHA: "abc", Message: msg, AuthorName: "Alice", AuthorEmail: "alice@example.com"}
}

func event(t github.EventType, at time.Time) github.ActivityEvent {
	return github.ActivityEvent{Type: t, CreatedAt: at, Repository: "alice/repo"}
}

func utcDay(y int, m time.Month, d, hour int) time.Time {
	return time.Date(y, m, d, hour, 0, 0, 0, time.UTC)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
