package segment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPoolOpenCachesHandle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "segment.E01")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	pool, err := NewPool(4)
	require.NoError(t, err)
	defer pool.Close()

	f1, err := pool.Open(path)
	require.NoError(t, err)
	f2, err := pool.Open(path)
	require.NoError(t, err)
	require.Same(t, f1, f2)
}

func TestPoolEvictionClosesHandle(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 3; i++ {
		p := filepath.Join(dir, string(rune('a'+i))+".E01")
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
		paths = append(paths, p)
	}

	pool, err := NewPool(2)
	require.NoError(t, err)
	defer pool.Close()

	first, err := pool.Open(paths[0])
	require.NoError(t, err)
	_, err = pool.Open(paths[1])
	require.NoError(t, err)
	_, err = pool.Open(paths[2]) // evicts paths[0]
	require.NoError(t, err)

	var buf [1]byte
	_, err = first.Read(buf[:])
	require.Error(t, err) // closed handle
}

func TestPoolCloseClosesAll(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.E01")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	pool, err := NewPool(4)
	require.NoError(t, err)

	f, err := pool.Open(path)
	require.NoError(t, err)
	require.NoError(t, pool.Close())

	var buf [1]byte
	_, err = f.Read(buf[:])
	require.Error(t, err)
}
