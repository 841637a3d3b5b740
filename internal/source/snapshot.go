// Package source materializes the configuration source of a run: a git
// checkout or an extracted package. Both variants hand back the same
// Snapshot so that applying and reporting do not care where the content
// came from.
//
// Synchronization is destructive. Local changes in a checkout are reset and
// an extraction target is cleared first, which is also how a run recovers
// from a previous run that was killed half way.
package source

import "strings"

// UnknownRevision is reported when a source carries no usable revision.
const UnknownRevision = "unknown"

// shortRevisionLength is the display length of a revision.
const shortRevisionLength = 8

// Kind names where a snapshot came from.
type Kind string

const (
	KindGit       Kind = "git"
	KindPackage   Kind = "package"
	KindDirectory Kind = "directory"
)

// Snapshot is the result of synchronizing a source.
type Snapshot struct {
	// Path is the absolute root of the materialized content.
	Path string

	// Revision is the full commit hash, or UnknownRevision.
	Revision string

	// FirstSync is true when the content did not exist before this sync.
	FirstSync bool

	Kind Kind
}

// ShortRevision returns the first eight characters of the revision.
func (s Snapshot) ShortRevision() string {
	if len(s.Revision) <= shortRevisionLength || s.Revision == UnknownRevision {
		return s.Revision
	}
	return s.Revision[:shortRevisionLength]
}

// KnownRevision returns the revision, or "" when it is unknown.
func (s Snapshot) KnownRevision() string {
	if s.Revision == UnknownRevision {
		return ""
	}
	return s.Revision
}

// UseRevisionHint sets the revision from a hint delivered next to the
// content, such as a download header, when the snapshot has none of its
// own. It reports whether the hint was taken.
func (s *Snapshot) UseRevisionHint(hint string) bool {
	hint = strings.TrimSpace(hint)
	if s.Revision != UnknownRevision || !isCommitHash(hint) || len(hint) > 40 {
		return false
	}
	s.Revision = strings.ToLower(hint)
	return true
}
