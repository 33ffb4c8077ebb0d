package history

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/developer-az/commit-warrior/internal/commits"
	"github.com/developer-az/commit-warrior/internal/db"
	"github.com/developer-az/commit-warrior/internal/errmsg"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	pg, err := db.NewPostgres(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(pg.Close)
	require.NoError(t, db.RunMigrations(ctx, pg.Pool(), nil))
	return NewStore(pg.Pool())
}

func TestFromResult(t *testing.T) {
	checked := time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC)
	rec := FromResult("alice", commits.CheckResult{
		Success:      true,
		HasCommitted: true,
		CommitCount:  1,
		Streak:       4,
		Method:       commits.MethodStreak,
		Inferred:     true,
		Date:         "2024-01-10",
		CheckedAt:    checked,
	})

	assert.Equal(t, "alice", rec.Username)
	assert.Equal(t, "2024-01-10", rec.Day)
	assert.Equal(t, checked, rec.CheckedAt)
	assert.Equal(t, commits.MethodStreak, rec.Method)
	assert.True(t, rec.Inferred)
	assert.Empty(t, rec.ErrorKind)

	failed := FromResult("alice", commits.CheckResult{
		Date:  "2024-01-10",
		Error: &errmsg.Error{Kind: errmsg.KindRateLimit, Message: "slow down"},
	})
	assert.Equal(t, "RATE_LIMIT", failed.ErrorKind)

	missing := FromResult("", commits.CheckResult{Date: "2024-01-10", ErrorCode: commits.ErrorCodeMissingCredentials})
	assert.Equal(t, commits.ErrorCodeMissingCredentials, missing.ErrorKind)
}

func TestStore_InsertRequiresDay(t *testing.T) {
	s := NewStore(nil)
	err := s.Insert(context.Background(), &Record{Username: "alice"})
	assert.ErrorContains(t, err, "no day")
}

func TestStore_InsertLatestList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := fmt.Sprintf("test-%d", time.Now().UnixNano())

	latest, err := s.Latest(ctx, user)
	require.NoError(t, err)
	assert.Nil(t, latest)

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		rec := &Record{
			Username:    user,
			CheckedAt:   base.Add(time.Duration(i) * time.Minute),
			Day:         "2024-01-10",
			Success:     true,
			CommitCount: i,
			Method:      commits.MethodEvents,
		}
		require.NoError(t, s.Insert(ctx, rec))
		assert.NotZero(t, rec.ID)
	}

	latest, err = s.Latest(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 2, latest.CommitCount)
	assert.Equal(t, "2024-01-10", latest.Day)
	assert.Equal(t, commits.MethodEvents, latest.Method)

	list, err := s.List(ctx, user, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 2, list[0].CommitCount)
	assert.Equal(t, 1, list[1].CommitCount)
}
