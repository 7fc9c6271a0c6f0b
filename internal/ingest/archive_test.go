package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFileSystemArchiveSavesPages(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archive, err := NewFileSystemArchive(dir, zap.NewNop())
	require.NoError(t, err)

	path, err := archive.SavePage(1, []byte("<html>page one</html>"))
	require.NoError(t, err)
	require.Equal(t, "page-001.html", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "<html>page one</html>", string(data))
}

func TestFileSystemArchiveRejectsEmptyBody(t *testing.T) {
	t.Parallel()

	archive, err := NewFileSystemArchive(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	_, err = archive.SavePage(1, nil)
	require.Error(t, err)
}

func TestTerminationPolicies(t *testing.T) {
	t.Parallel()

	require.False(t, StopOnKnown().ContinuePastKnown())
	require.Equal(t, "stop-on-known", StopOnKnown().Name())
	require.True(t, ScanAll().ContinuePastKnown())
	require.Equal(t, "scan-all", ScanAll().Name())
}
