package github

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/developer-az/commit-warrior/internal/cache"
	"github.com/developer-az/commit-warrior/internal/errmsg"
	"github.com/developer-az/commit-warrior/internal/retry"
)

var alice = Credential{Username: "alice", Token: "ghp_testtoken123"}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, nil, nil)
}

func setRateHeaders(w http.ResponseWriter, remaining int) {
	w.Header().Set("X-RateLimit-Limit", "5000")
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprint(remaining))
	w.Header().Set("X-RateLimit-Reset", "1704880800")
}

func fastRetry() *retry.Executor {
	opts := retry.DefaultOptions()
	opts.BaseDelay = time.Millisecond
	opts.MaxDelay = 5 * time.Millisecond
	return retry.New(opts, nil)
}

func TestClient_SendsAuthAndRecordsRateLimit(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ghp_testtoken123", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.github.v3+json", r.Header.Get("Accept"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		setRateHeaders(w, 4321)
		fmt.Fprint(w, `{"rate":{"limit":5000,"remaining":4321,"reset":1704880800}}`)
	}))

	before := client.RateLimitStatus()
	assert.Nil(t, before.Remaining)
	assert.Nil(t, before.LastRequest)

	rl, err := client.GetRateLimit(context.Background(), alice.Token)
	require.NoError(t, err)
	assert.Equal(t, 4321, rl.Remaining)
	assert.Equal(t, int64(1704880800), rl.Reset.Unix())

	status := client.RateLimitStatus()
	require.NotNil(t, status.Remaining)
	assert.Equal(t, 4321, *status.Remaining)
	require.NotNil(t, status.Reset)
	assert.Equal(t, int64(1704880800), status.Reset.Unix())
	assert.NotNil(t, status.LastRequest)
}

func TestClient_RateLimitStateIsPerInstance(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setRateHeaders(w, 10)
		fmt.Fprint(w, `{"rate":{}}`)
	})
	a := newTestClient(t, handler)
	b := newTestClient(t, handler)

	_, err := a.GetRateLimit(context.Background(), "")
	require.NoError(t, err)

	assert.NotNil(t, a.RateLimitStatus().Remaining)
	assert.Nil(t, b.RateLimitStatus().Remaining)
}

func TestClient_NonSuccessBecomesAPIError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setRateHeaders(w, 0)
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message":"API rate limit exceeded for user ID 1."}`)
	}))

	_, err := client.ListUserRepositories(context.Background(), alice)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "API rate limit exceeded for user ID 1.", apiErr.Message)
	assert.Equal(t, errmsg.KindRateLimit, errmsg.Classify(err))

	// Rate limit recorded even on failure
	require.NotNil(t, client.RateLimitStatus().Remaining)
	assert.Equal(t, 0, *client.RateLimitStatus().Remaining)
}

func TestClient_TransportFailureIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClient(url, nil, nil)
	_, err := client.ListUserRepositories(context.Background(), alice)
	require.Error(t, err)
	assert.Equal(t, errmsg.KindNetwork, errmsg.Classify(err))
}

func TestClient_SearchCommitsQuery(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/commits", r.URL.Path)
		assert.Equal(t, "author:alice committer-date:2024-01-10", r.URL.Query().Get("q"))
		fmt.Fprint(w, `{"total_count":4,"incomplete_results":true,"items":[]}`)
	}))

	since := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	until := time.Date(2024, 1, 10, 23, 59, 59, 0, time.UTC)
	res, err := client.SearchCommits(context.Background(), alice, since, until)
	require.NoError(t, err)
	assert.Equal(t, 4, res.TotalCount)
	assert.True(t, res.IncompleteResults)
}

func TestCommitterDateQualifier_LocalZone(t *testing.T) {
	zone := time.FixedZone("UTC+2", 2*60*60)
	since := time.Date(2024, 1, 10, 0, 0, 0, 0, zone)
	until := time.Date(2024, 1, 10, 23, 59, 59, 0, zone)

	assert.Equal(t, "2024-01-10T00:00:00+02:00..2024-01-10T23:59:59+02:00", committerDateQualifier(since, until))
}

func TestClient_ListUserEventsFollowsPages(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/users/alice/events", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `[{"id":"3","type":"IssuesEvent","repo":{"name":"alice/b"},"created_at":"2024-01-08T10:00:00Z"}]`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/users/alice/events?per_page=100&page=2>; rel="next", <%s/users/alice/events?per_page=100&page=2>; rel="last"`, srvURL, srvURL))
		fmt.Fprint(w, `[
			{"id":"1","type":"PushEvent","repo":{"name":"alice/a"},"created_at":"2024-01-10T09:00:00Z",
			 "payload":{"size":2,"commits":[
				{"sha":"a1","message":"feat: one","author":{"name":"Alice","email":"alice@example.com"}},
				{"sha":"a2","message":"Merge branch 'main'","author":{"name":"Alice","email":"alice@example.com"}}]}},
			{"id":"2","type":"WatchEvent","repo":{"name":"bob/c"},"created_at":"2024-01-09T09:00:00Z","payload":{}}
		]`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	srvURL = srv.URL

	client := NewClient(srv.URL, nil, nil)
	events, err := client.ListUserEvents(context.Background(), alice, 3)
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, EventPush, events[0].Type)
	assert.Equal(t, "alice/a", events[0].Repository)
	assert.Equal(t, 2, events[0].CommitCount())
	assert.True(t, events[0].PushedCommits[1].IsMerge())
	assert.Equal(t, EventOther, events[1].Type)
	assert.Equal(t, EventIssues, events[2].Type)
}

func TestClient_ListUserEventsSinglePage(t *testing.T) {
	calls := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Link", `<http://example.invalid/next>; rel="next"`)
		fmt.Fprint(w, `[]`)
	}))

	events, err := client.ListUserEvents(context.Background(), alice, 1)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, 1, calls)
}

func TestPushEventWithoutCommitList(t *testing.T) {
	raw := RawGitHubEvent{
		Type:    "PushEvent",
		Payload: []byte(`{"ref":"refs/heads/main","size":3}`),
	}
	ev := raw.ToActivity()
	assert.Empty(t, ev.PushedCommits)
	assert.Equal(t, 3, ev.CommitCount())
}

func TestClient_RepositoryCommitsParams(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/tool/commits", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "alice", q.Get("author"))
		assert.Equal(t, "2024-01-10T00:00:00Z", q.Get("since"))
		assert.Equal(t, "2024-01-10T23:59:59Z", q.Get("until"))
		fmt.Fprint(w, `[{"sha":"abc","commit":{"message":"fix","committer":{"date":"2024-01-10T08:00:00Z"}}}]`)
	}))

	repo := Repository{Name: "tool", Owner: "acme"}
	commits, err := client.ListRepositoryCommits(context.Background(), alice, repo,
		time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 10, 23, 59, 59, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, "abc", commits[0].SHA)
}

func TestClient_ListUserRepositories(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/alice/repos", r.URL.Path)
		assert.Equal(t, "updated", r.URL.Query().Get("sort"))
		assert.Equal(t, "desc", r.URL.Query().Get("direction"))
		fmt.Fprint(w, `[{"name":"one","full_name":"alice/one","owner":{"login":"alice"},"updated_at":"2024-01-10T08:00:00Z"},
			{"name":"two","full_name":"alice/two","owner":{},"updated_at":"2023-12-01T08:00:00Z"}]`)
	}))

	repos, err := client.ListUserRepositories(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, repos, 2)
	assert.Equal(t, "alice", repos[1].Owner)
	assert.Equal(t, time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC), repos[0].UpdatedAt)
}

func TestClient_ValidateToken(t *testing.T) {
	login := "Alice"
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user", r.URL.Path)
		w.Header().Set("X-OAuth-Scopes", "repo, read:user")
		fmt.Fprintf(w, `{"login":%q,"id":7,"type":"User"}`, login)
	}))

	v, err := client.ValidateToken(context.Background(), alice)
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, []string{"repo", "read:user"}, v.Scopes)

	login = "mallory"
	v, err = client.ValidateToken(context.Background(), alice)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, "mallory", v.TokenUsername)
}

func TestSource_CachesResponses(t *testing.T) {
	var hits int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		fmt.Fprint(w, `[]`)
	}))
	src := NewSource(client, cache.New(0), fastRetry(), 1, nil)

	_, cached, err := src.Repositories(context.Background(), alice)
	require.NoError(t, err)
	assert.False(t, cached)

	_, cached, err = src.Repositories(context.Background(), alice)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	// A different token is a different cache partition
	other := Credential{Username: "alice", Token: "ghp_othertoken"}
	_, cached, err = src.Repositories(context.Background(), other)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))

	assert.Equal(t, 2, src.CacheStats().ActiveEntries)
	src.ClearCache()
	assert.Equal(t, 0, src.CacheStats().TotalEntries)
}

func TestSource_SharesConcurrentFetches(t *testing.T) {
	var hits int32
	release := make(chan struct{})
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		<-release
		fmt.Fprint(w, `[]`)
	}))
	src := NewSource(client, cache.New(0), fastRetry(), 1, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := src.Events(context.Background(), alice)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestSource_CancelledCallerDoesNotFailSharedFetch(t *testing.T) {
	var hits int32
	started := make(chan struct{})
	release := make(chan struct{})
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			close(started)
		}
		<-release
		fmt.Fprint(w, `[{"id":"1","type":"PushEvent","created_at":"2024-01-10T09:00:00Z","payload":{"size":2}}]`)
	}))
	src := NewSource(client, cache.New(0), fastRetry(), 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, _, err := src.Events(ctx, alice)
		firstErr <- err
	}()
	<-started

	type outcome struct {
		events []ActivityEvent
		err    error
	}
	second := make(chan outcome, 1)
	go func() {
		events, _, err := src.Events(context.Background(), alice)
		second <- outcome{events, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	got := <-second
	require.NoError(t, got.err)
	require.Len(t, got.events, 1)
	assert.Equal(t, 2, got.events[0].PushSize)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	_, cached, err := src.Events(context.Background(), alice)
	require.NoError(t, err)
	assert.True(t, cached, "the detached fetch still fills the cache")
}

func TestSource_RetriesServerErrors(t *testing.T) {
	var hits int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"total_count":1}`)
	}))
	src := NewSource(client, cache.New(0), fastRetry(), 1, nil)

	day := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	res, _, err := src.SearchCommits(context.Background(), alice, day, day.Add(24*time.Hour-time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalCount)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestSource_DoesNotRetryAuthFailures(t *testing.T) {
	var hits int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message":"Bad credentials"}`)
	}))
	src := NewSource(client, cache.New(0), fastRetry(), 1, nil)

	_, _, err := src.ValidateToken(context.Background(), alice)
	require.Error(t, err)
	assert.Equal(t, errmsg.KindAuth, errmsg.Classify(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Equal(t, 0, src.CacheStats().TotalEntries, "failures are not cached")
}
