package sqlite_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/roach88/caminte/internal/adapter"
	"github.com/roach88/caminte/internal/adapter/sqlite"
	"github.com/roach88/caminte/internal/testutil"
)

type sqliteSuite struct {
	testutil.AdapterSuite
}

func TestSQLiteContract(t *testing.T) {
	dir := t.TempDir()
	n := 0
	suite.Run(t, &sqliteSuite{AdapterSuite: testutil.AdapterSuite{
		Open: func() adapter.Adapter {
			n++
			path := filepath.Join(dir, fmt.Sprintf("contract%d.db", n))
			return sqlite.New(adapter.Settings{Database: path})
		},
	}})
}

func TestAliasResolves(t *testing.T) {
	a, err := adapter.Open("SQLite3", adapter.Settings{})
	require.NoError(t, err)
	assert.Equal(t, sqlite.Name, a.Name())
}

func TestInMemoryByDefault(t *testing.T) {
	ctx := context.Background()
	a := sqlite.New(adapter.Settings{})
	require.NoError(t, a.Define(testutil.PersonModel()))
	require.NoError(t, a.Connect(ctx))
	defer a.Close(ctx)

	_, err := a.Create(ctx, "Person", adapter.Record{"name": "Alice"})
	require.NoError(t, err)
	n, err := a.Count(ctx, "Person", testutil.All())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, a.Close(ctx))
	require.NoError(t, a.Close(ctx), "close is idempotent")
}

func TestNotConnected(t *testing.T) {
	a := sqlite.New(adapter.Settings{})
	require.NoError(t, a.Define(testutil.PersonModel()))
	_, err := a.Find(context.Background(), "Person", testutil.All())
	assert.True(t, adapter.IsNotConnected(err), "got %v", err)
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	first := sqlite.New(adapter.Settings{Database: path})
	require.NoError(t, first.Define(testutil.PersonModel()))
	require.NoError(t, first.Connect(ctx))
	_, err := first.Create(ctx, "Person", adapter.Record{"name": "Alice", "tags": map[string]any{"k": "v"}})
	require.NoError(t, err)
	require.NoError(t, first.Close(ctx))

	second := sqlite.New(adapter.Settings{URL: "sqlite://" + path})
	require.NoError(t, second.Define(testutil.PersonModel()))
	require.NoError(t, second.Connect(ctx))
	defer second.Close(ctx)

	recs, err := second.Find(ctx, "Person", testutil.All())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, map[string]any{"k": "v"}, recs[0]["tags"])
}
