package database

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMemory(t *testing.T) {
	db, err := NewMemory()
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.Ping(ctx))

	var one int
	err = db.SQL.QueryRowContext(ctx, "SELECT 1").Scan(&one)
	require.NoError(t, err)
	assert.Equal(t, 1, one)
}

func TestReplaceTable(t *testing.T) {
	db, err := NewMemory()
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	_, err = db.SQL.ExecContext(ctx, "CREATE TABLE metrics (v INTEGER)")
	require.NoError(t, err)
	_, err = db.SQL.ExecContext(ctx, "INSERT INTO metrics VALUES (1)")
	require.NoError(t, err)

	// Build a replacement under the tmp name and swap it in.
	_, err = db.SQL.ExecContext(ctx, "CREATE TABLE "+TmpName("metrics")+" (v INTEGER)")
	require.NoError(t, err)
	_, err = db.SQL.ExecContext(ctx, "INSERT INTO "+TmpName("metrics")+" VALUES (2), (3)")
	require.NoError(t, err)

	require.NoError(t, ReplaceTable(ctx, db.SQL, "metrics"))

	var count int
	err = db.SQL.QueryRowContext(ctx, "SELECT count(*) FROM metrics").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	exists, err := TableExists(ctx, db.SQL, TmpName("metrics"))
	require.NoError(t, err)
	assert.False(t, exists, "tmp table should no longer exist after swap")
}

func TestReplaceTableFirstBuild(t *testing.T) {
	// First-ever build: no previous table to drop.
	db, err := NewMemory()
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	_, err = db.SQL.ExecContext(ctx, "CREATE TABLE "+TmpName("fresh")+" (v INTEGER)")
	require.NoError(t, err)
	require.NoError(t, ReplaceTable(ctx, db.SQL, "fresh"))

	exists, err := TableExists(ctx, db.SQL, "fresh")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestTableExists(t *testing.T) {
	db, err := NewMemory()
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	exists, err := TableExists(ctx, db.SQL, "nope")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = db.SQL.ExecContext(ctx, "CREATE TABLE yep (v INTEGER)")
	require.NoError(t, err)

	exists, err = TableExists(ctx, db.SQL, "yep")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestIsLockError(t *testing.T) {
	assert.False(t, isLockError(nil))
	assert.False(t, isLockError(errors.New("syntax error")))
	assert.True(t, isLockError(errors.New(`IO Error: Could not set lock on file "commerce.duckdb"`)))
	assert.True(t, isLockError(errors.New("conflicting lock is held")))
}
