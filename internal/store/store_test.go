package store_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/bytesleuth/sleuth/internal/model"
	"github.com/bytesleuth/sleuth/internal/store"

	"github.com/stretchr/testify/require"
)

// testStore creates a temporary store for testing.
func testStore(t *testing.T, path string) *store.Store {
	t.Helper()
	st, err := store.Open(t.Context(), path)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, st.Close())
	})
	return st
}

func report(name, sha string, kinds ...model.Kind) model.Report {
	r := model.Report{
		Filename:     name,
		Filesize:     3,
		Digest:       model.Digest{MD5: "m-" + sha, SHA256: sha},
		TypeAnalysis: model.TypeAnalysis{MagicType: "image/png"},
	}
	for _, k := range kinds {
		r.Findings = append(r.Findings, model.NewFinding(k, string(k)))
	}
	return r
}

func TestSaveAndLookup(t *testing.T) {
	t.Parallel()
	st := testStore(t, filepath.Join(t.TempDir(), "sleuth.db"))

	_, err := st.Save(t.Context(), "/a/photo.jpg", report("photo.jpg", "aaa", model.KindLSBAnalysis, model.KindTypeMismatch))
	require.NoError(t, err)
	id, err := st.Save(t.Context(), "/b/photo.jpg", report("photo.jpg", "aaa"))
	require.NoError(t, err)
	_, err = st.Save(t.Context(), "/c/other.png", report("other.png", "bbb"))
	require.NoError(t, err)

	recs, err := st.Lookup(t.Context(), "aaa")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, id, recs[0].ID)
	require.Equal(t, "/b/photo.jpg", recs[0].Path)
	require.Empty(t, recs[0].Worst)
	require.Equal(t, "CRITICAL", recs[1].Worst)
	require.Equal(t, 2, recs[1].Findings)
	require.False(t, recs[1].AnalyzedAt.IsZero())

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(recs[1].Report, &decoded))
	require.Equal(t, "photo.jpg", decoded["filename"])

	recs, err = st.Lookup(t.Context(), "missing")
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestList(t *testing.T) {
	t.Parallel()
	st := testStore(t, filepath.Join(t.TempDir(), "sleuth.db"))
	for _, sha := range []string{"1", "2", "3"} {
		_, err := st.Save(t.Context(), "/x/"+sha, report(sha, sha))
		require.NoError(t, err)
	}

	recs, err := st.List(t.Context(), 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "3", recs[0].SHA256)
	require.Equal(t, "2", recs[1].SHA256)
	require.Nil(t, recs[0].Report)

	_, err = st.List(t.Context(), 0)
	require.Error(t, err)
}

func TestReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "sleuth.db")
	st, err := store.Open(t.Context(), path)
	require.NoError(t, err)
	_, err = st.Save(t.Context(), "/x", report("x", "abc"))
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st = testStore(t, path)
	recs, err := st.Lookup(t.Context(), "abc")
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestOpenEmptyPath(t *testing.T) {
	t.Parallel()
	_, err := store.Open(t.Context(), "")
	require.Error(t, err)
}

func TestOpenRelativePath(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	st := testStore(t, "reports.db")
	_, err := st.Save(t.Context(), "/x", report("x", "abc"))
	require.NoError(t, err)

	require.FileExists(t, filepath.Join(dir, "reports.db"))
	// journal_mode(WAL) applies to the connection
	require.FileExists(t, filepath.Join(dir, "reports.db-wal"))

	recs, err := st.Lookup(t.Context(), "abc")
	require.NoError(t, err)
	require.Len(t, recs, 1)
}
