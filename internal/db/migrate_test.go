package db

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_EmbeddedInOrder(t *testing.T) {
	versions, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, versions)
	assert.Equal(t, "001_check_results", versions[0])
	assert.IsIncreasing(t, versions)
}

func TestRunMigrations_Idempotent(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	pg, err := NewPostgres(ctx, url, nil)
	require.NoError(t, err)
	defer pg.Close()

	require.NoError(t, RunMigrations(ctx, pg.Pool(), nil))
	require.NoError(t, RunMigrations(ctx, pg.Pool(), nil))
	require.NoError(t, pg.Health(ctx))
}
