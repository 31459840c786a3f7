// Package versionstore keeps committed ontology versions. Each version is
// an OBO file and its canonical JSON; the store answers which version is
// current, accepts new ones, and prunes old ones.
package versionstore

import (
	"context"
	"time"

	"github.com/FocuswithJustin/obosync/core/cas"
	"github.com/FocuswithJustin/obosync/core/obo"
)

// Version sources.
const (
	SourceGitHub = "github"
	SourceUpload = "upload"
)

// Version describes one committed version.
type Version struct {
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	Source    string     `json:"source"`
	CommitSHA string     `json:"commit_sha,omitempty"`
	OBO       cas.Digest `json:"obo"`
	JSON      cas.Digest `json:"json"`
	TermCount int        `json:"term_count"`
}

// Metadata accompanies a commit.
type Metadata struct {
	Source    string
	CommitSHA string
	CreatedAt time.Time
}

// Store is the version store used by the updater.
type Store interface {
	// Latest returns the newest version and its document. It returns a
	// NotFoundError when nothing has been committed.
	Latest(ctx context.Context) (*Version, *obo.Document, error)
	// Commit records a new version. oboText is stored verbatim and doc is
	// stored as canonical JSON.
	Commit(ctx context.Context, oboText []byte, doc *obo.Document, meta Metadata) (*Version, error)
	// Prune removes all but the newest keep versions and returns what was
	// removed, newest first.
	Prune(ctx context.Context, keep int) ([]Version, error)
	// List returns every version, newest first.
	List(ctx context.Context) ([]Version, error)
}
