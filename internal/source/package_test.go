package source

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"opentune/internal/agenterr"
	"opentune/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeZip creates an archive with the given name -> content entries.
// Names ending in "/" become directories.
func writeZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "package.zip")
	f, err := os.Create(path)
	require.NoError(t, err)

	w := zip.NewWriter(f)
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(entries[name]))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	return path
}

// listFiles returns the slash separated relative paths of all files in dir.
func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	require.NoError(t, err)
	sort.Strings(files)
	return files
}

func TestPackageSource_ReplacesDestination(t *testing.T) {
	archive := writeZip(t, map[string]string{
		"nodes/":        "",
		"nodes/web.ps1": "Configuration Web {}",
		MetadataFile:    "commit=ABCDEF0123456789abcdef0123456789abcdef01\npackaged_at=2026-05-01T10:00:00\nconfig_path=nodes/web.ps1\n",
	})

	dest := filepath.Join(t.TempDir(), "package")
	require.NoError(t, os.MkdirAll(filepath.Join(dest, "old"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "old", "stale.mof"), []byte("stale"), 0o644))

	snap, err := NewPackageSource(logging.Nop()).Sync(context.Background(), archive, dest)
	require.NoError(t, err)

	assert.False(t, snap.FirstSync)
	assert.Equal(t, KindPackage, snap.Kind)
	assert.Equal(t, "abcdef0123456789abcdef0123456789abcdef01", snap.Revision)
	assert.Equal(t, []string{MetadataFile, "nodes/web.ps1"}, listFiles(t, dest))
}

func TestPackageSource_FirstSync(t *testing.T) {
	archive := writeZip(t, map[string]string{"a.mof": "x"})
	dest := filepath.Join(t.TempDir(), "package")

	snap, err := NewPackageSource(logging.Nop()).Sync(context.Background(), archive, dest)
	require.NoError(t, err)
	assert.True(t, snap.FirstSync)
	assert.Equal(t, UnknownRevision, snap.Revision)
}

func TestPackageSource_MalformedMetadataIsUnknown(t *testing.T) {
	tests := []struct {
		name string
		meta string
	}{
		{"no commit line", "packaged_at=2026-05-01\n"},
		{"not hex", "commit=not-a-hash\n"},
		{"too short", "commit=abc\n"},
		{"too long", "commit=" + headRevision + "00\n"},
		{"garbage", "\x00\x01\x02"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			archive := writeZip(t, map[string]string{MetadataFile: tt.meta, "a.mof": "x"})

			snap, err := NewPackageSource(logging.Nop()).Sync(context.Background(), archive, filepath.Join(t.TempDir(), "p"))
			require.NoError(t, err)
			assert.Equal(t, UnknownRevision, snap.Revision)
		})
	}
}

func TestPackageSource_Errors(t *testing.T) {
	notZip := filepath.Join(t.TempDir(), "broken.zip")
	require.NoError(t, os.WriteFile(notZip, []byte("this is not a zip"), 0o644))

	tests := []struct {
		name    string
		archive string
	}{
		{"missing archive", filepath.Join(t.TempDir(), "missing.zip")},
		{"unreadable archive", notZip},
		{"directory", t.TempDir()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := filepath.Join(t.TempDir(), "package")
			require.NoError(t, os.MkdirAll(dest, 0o755))
			require.NoError(t, os.WriteFile(filepath.Join(dest, "keep"), []byte("x"), 0o644))

			_, err := NewPackageSource(logging.Nop()).Sync(context.Background(), tt.archive, dest)
			var syncErr *agenterr.SourceSyncError
			require.True(t, errors.As(err, &syncErr))
			assert.FileExists(t, filepath.Join(dest, "keep"), "destination untouched when the archive cannot be opened")
		})
	}
}

func TestPackageSource_RejectsZipSlip(t *testing.T) {
	archive := writeZip(t, map[string]string{"../evil.txt": "x"})
	parent := t.TempDir()

	_, err := NewPackageSource(logging.Nop()).Sync(context.Background(), archive, filepath.Join(parent, "package"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes the extraction directory")
	assert.NoFileExists(t, filepath.Join(parent, "evil.txt"))
}

func TestPackageSource_UseDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, MetadataFile), []byte("commit="+headRevision+"\n"), 0o644))

	snap, err := NewPackageSource(logging.Nop()).UseDirectory(dir)
	require.NoError(t, err)
	assert.Equal(t, KindDirectory, snap.Kind)
	assert.Equal(t, headRevision, snap.Revision)
	assert.False(t, snap.FirstSync)

	_, err = NewPackageSource(logging.Nop()).UseDirectory(filepath.Join(dir, "nope"))
	assert.Error(t, err)
}

func TestReadMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), MetadataFile)
	require.NoError(t, os.WriteFile(path, []byte("commit = abc1234 \nnoise\npackaged_at=2026-05-01T10:00:00\nconfig_path=nodes/web.ps1\n"), 0o644))

	meta, err := ReadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, Metadata{Commit: "abc1234", PackagedAt: "2026-05-01T10:00:00", ConfigPath: "nodes/web.ps1"}, meta)
}
