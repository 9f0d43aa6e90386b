package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/livelist/livelist/pkg/types"
)

func openTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.db")
	b, err := OpenSQLite(path)
	require.NoError(t, err)
	return b, path
}

func TestOpenSQLite_CreatesFile(t *testing.T) {
	b, path := openTestSQLite(t)
	defer b.Close()

	_, err := os.Stat(path)
	require.NoError(t, err)

	recs, err := b.Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestSQLite_ApplyKeepsPositions(t *testing.T) {
	b, _ := openTestSQLite(t)
	defer b.Close()
	ctx := context.Background()

	require.NoError(t, b.Apply(ctx, Mutation{Records: []types.Record{rec("1", "a"), rec("2", "b")}}))
	require.NoError(t, b.Apply(ctx, Mutation{Records: []types.Record{rec("1", "A"), rec("3", "c")}}))

	recs, err := b.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []types.Record{rec("1", "A"), rec("2", "b"), rec("3", "c")}, recs)
}

func TestSQLite_Reset(t *testing.T) {
	b, _ := openTestSQLite(t)
	defer b.Close()
	ctx := context.Background()

	require.NoError(t, b.Apply(ctx, Mutation{Records: []types.Record{rec("1", "a"), rec("2", "b")}}))
	require.NoError(t, b.Apply(ctx, Mutation{Reset: true, Records: []types.Record{rec("9", "z")}}))

	recs, err := b.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []types.Record{rec("9", "z")}, recs)
}

func TestStore_SQLiteRoundTrip(t *testing.T) {
	b, path := openTestSQLite(t)
	ctx := context.Background()

	st, err := Open(ctx, b)
	require.NoError(t, err)
	require.NoError(t, st.Upsert(ctx, []types.Record{rec("1", "a"), rec("2", "b")}))
	require.NoError(t, st.Upsert(ctx, []types.Record{rec("1", "c")}))
	require.NoError(t, st.Close())

	b2, err := OpenSQLite(path)
	require.NoError(t, err)
	reopened, err := Open(ctx, b2)
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, []string{"1", "2"}, reopened.Snapshot().IDs())
	r, ok := reopened.Get("1")
	require.True(t, ok)
	require.Equal(t, "c", r.Name)
}
