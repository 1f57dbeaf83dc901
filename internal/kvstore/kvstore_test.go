package kvstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "rain1h", []byte("first")))
	got, err := s.Get(ctx, "rain1h")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got)

	require.NoError(t, s.Set(ctx, "rain1h", []byte("second")))
	got, err = s.Get(ctx, "rain1h")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)

	require.NoError(t, s.Delete(ctx, "rain1h"))
	_, err = s.Get(ctx, "rain1h")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestMemoryCopiesValues(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	v := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", v))
	v[0] = 'x'

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestNamespaced(t *testing.T) {
	ctx := context.Background()
	backing := NewMemory()

	a := WithNamespace(backing, "station-a")
	b := WithNamespace(backing, "station-b")
	exerciseStore(t, a)

	require.NoError(t, a.Set(ctx, "rainToday", []byte("a")))
	require.NoError(t, b.Set(ctx, "rainToday", []byte("b")))

	got, err := a.Get(ctx, "rainToday")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), got)

	raw, err := backing.Get(ctx, "station-b/rainToday")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), raw)
}

func TestSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := NewSQLite(path)
	require.NoError(t, err)
	exerciseStore(t, s)

	require.NoError(t, s.Set(context.Background(), "rain24h", []byte{0x01, 0x02}))
	require.NoError(t, s.Close())

	// values survive a reopen
	s, err = NewSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(context.Background(), "rain24h")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, got)
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("WXRELAY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("WXRELAY_TEST_POSTGRES_DSN not set")
	}

	p, err := NewPostgres(dsn)
	require.NoError(t, err)
	defer p.Close()

	exerciseStore(t, WithNamespace(p, t.Name()))
}
