package source

import (
	"archive/zip"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"opentune/internal/agenterr"
	"opentune/pkg/logging"
)

// MetadataFile is the sidecar the control plane writes into every package.
// It holds key=value lines; "commit" carries the revision.
const MetadataFile = "_opentune_meta.txt"

// Metadata is the parsed content of MetadataFile.
type Metadata struct {
	Commit     string
	PackagedAt string
	ConfigPath string
}

// PackageSource extracts package archives.
type PackageSource struct {
	logger *logging.Logger
}

// NewPackageSource creates a PackageSource.
func NewPackageSource(logger *logging.Logger) *PackageSource {
	return &PackageSource{logger: logger}
}

// Sync clears dest and extracts the zip archive at archivePath into it. The
// revision comes from the package metadata; absent or malformed metadata
// yields UnknownRevision.
func (p *PackageSource) Sync(ctx context.Context, archivePath, dest string) (*Snapshot, error) {
	dest, err := filepath.Abs(dest)
	if err != nil {
		return nil, &agenterr.SourceSyncError{Op: "extract", Source: archivePath, Err: err}
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, &agenterr.SourceSyncError{Op: "open", Source: archivePath, Err: err}
	}
	if info.IsDir() {
		return nil, &agenterr.SourceSyncError{Op: "open", Source: archivePath, Err: errors.New("is a directory, not an archive")}
	}

	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, &agenterr.SourceSyncError{Op: "open", Source: archivePath, Err: err}
	}
	defer reader.Close()

	_, statErr := os.Stat(dest)
	first := os.IsNotExist(statErr)

	if err := os.RemoveAll(dest); err != nil {
		return nil, &agenterr.SourceSyncError{Op: "clear", Source: dest, Err: err}
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, &agenterr.SourceSyncError{Op: "clear", Source: dest, Err: err}
	}

	p.logger.Debug(subsystem, "Extracting %s (%d entries) into %s", archivePath, len(reader.File), dest)
	for _, f := range reader.File {
		if err := ctx.Err(); err != nil {
			return nil, &agenterr.SourceSyncError{Op: "extract", Source: archivePath, Err: err}
		}
		if err := extractFile(f, dest); err != nil {
			return nil, &agenterr.SourceSyncError{Op: "extract", Source: archivePath, Err: err}
		}
	}

	snap := &Snapshot{
		Path:      dest,
		Revision:  p.revision(dest),
		FirstSync: first,
		Kind:      KindPackage,
	}
	p.logger.Info(subsystem, "Package %s extracted at revision %s", filepath.Base(archivePath), snap.ShortRevision())
	return snap, nil
}

// UseDirectory wraps an already expanded package directory without copying
// it.
func (p *PackageSource) UseDirectory(dir string) (*Snapshot, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, &agenterr.SourceSyncError{Op: "open", Source: dir, Err: err}
	}
	if !isDir(dir) {
		return nil, &agenterr.SourceSyncError{Op: "open", Source: dir, Err: errors.New("not a directory")}
	}
	return &Snapshot{Path: dir, Revision: p.revision(dir), Kind: KindDirectory}, nil
}

func (p *PackageSource) revision(root string) string {
	meta, err := ReadMetadata(filepath.Join(root, MetadataFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
		p.logger.Debug(subsystem, "No %s in package, revision unknown", MetadataFile)
		return UnknownRevision
	case err != nil:
		p.logger.Warn(subsystem, "Ignoring unreadable %s: %v", MetadataFile, err)
		return UnknownRevision
	case !isCommitHash(meta.Commit) || len(meta.Commit) > 40:
		if meta.Commit != "" {
			p.logger.Warn(subsystem, "Ignoring malformed commit %q in %s", meta.Commit, MetadataFile)
		}
		return UnknownRevision
	default:
		return strings.ToLower(meta.Commit)
	}
}

// ReadMetadata parses a package metadata file. Unknown keys and lines
// without "=" are ignored.
func ReadMetadata(path string) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, err
	}
	defer f.Close()

	var meta Metadata
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "commit":
			meta.Commit = value
		case "packaged_at":
			meta.PackagedAt = value
		case "config_path":
			meta.ConfigPath = value
		}
	}
	return meta, scanner.Err()
}

// extractFile writes one archive entry below dest, refusing entries that
// would land outside of it.
func extractFile(f *zip.File, dest string) error {
	name := strings.ReplaceAll(f.Name, `\`, "/")
	target := filepath.Join(dest, filepath.FromSlash(name))
	if target != dest && !strings.HasPrefix(target, dest+string(os.PathSeparator)) {
		return fmt.Errorf("entry %q escapes the extraction directory", f.Name)
	}

	mode := f.Mode()
	switch {
	case mode.IsDir():
		return os.MkdirAll(target, 0o755)
	case mode&os.ModeSymlink != 0:
		return fmt.Errorf("entry %q is a symbolic link", f.Name)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("entry %q: %w", f.Name, err)
	}
	defer src.Close()

	perm := mode.Perm() | 0o600
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("entry %q: %w", f.Name, err)
	}
	return out.Close()
}
