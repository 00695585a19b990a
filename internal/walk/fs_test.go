package walk_test

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/bytesleuth/sleuth/internal/walk"

	"github.com/stretchr/testify/require"
)

func TestFS(t *testing.T) {
	t.Parallel()
	root := fstest.MapFS{
		"a.png":         {Data: []byte("png")},
		"dir/b.zip":     {Data: []byte("zip")},
		"dir/sub/c.jpg": {Data: []byte("jpg")},
		"dir/empty":     {Mode: fs.ModeDir},
	}

	got := map[string]string{}
	for entry, err := range walk.FS(t.Context(), root, "base") {
		require.NoError(t, err)
		got[entry.Path()] = read(t, entry)
	}
	require.Equal(t, map[string]string{
		filepath.Join("base", "a.png"):         "png",
		filepath.Join("base", "dir/b.zip"):     "zip",
		filepath.Join("base", "dir/sub/c.jpg"): "jpg",
	}, got)
}

func TestPaths(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "x.bin"), []byte("x"), 0o644))
	single := filepath.Join(t.TempDir(), "single.txt")
	require.NoError(t, os.WriteFile(single, []byte("single"), 0o644))
	missing := filepath.Join(dir, "missing")

	var paths []string
	var errs []error
	for entry, err := range walk.Paths(t.Context(), single, dir, missing) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		paths = append(paths, entry.Path())
		info, err := entry.Stat()
		require.NoError(t, err)
		require.True(t, info.Mode().IsRegular())
	}

	require.Equal(t, []string{single, filepath.Join(dir, "sub", "x.bin")}, paths)
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], fs.ErrNotExist)
}

func TestPathsStop(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644))
	}
	var n int
	for range walk.Paths(t.Context(), dir) {
		n++
		break
	}
	require.Equal(t, 1, n)
}

func read(t *testing.T, e walk.Entry) string {
	t.Helper()
	f, err := e.Open()
	require.NoError(t, err)
	defer func() {
		require.NoError(t, f.Close())
	}()
	b, err := io.ReadAll(f)
	require.NoError(t, err)
	return string(b)
}
