package versionstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/FocuswithJustin/obosync/core/cas"
	apperrors "github.com/FocuswithJustin/obosync/core/errors"
	"github.com/FocuswithJustin/obosync/core/obo"
)

// MemoryStore is an in-process Store. It keeps documents, not files, and
// is meant for dry runs and tests.
type MemoryStore struct {
	mu       sync.Mutex
	versions []memoryVersion
	now      func() time.Time
}

type memoryVersion struct {
	v   Version
	doc *obo.Document
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// Latest returns the newest version.
func (m *MemoryStore) Latest(_ context.Context) (*Version, *obo.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.versions) == 0 {
		return nil, nil, apperrors.NewNotFound("version", "latest")
	}
	last := m.versions[len(m.versions)-1]
	v := last.v
	return &v, last.doc.Clone(), nil
}

// Commit records a version.
func (m *MemoryStore) Commit(_ context.Context, oboText []byte, doc *obo.Document, meta Metadata) (*Version, error) {
	jsonData, err := obo.EncodeJSON(doc)
	if err != nil {
		return nil, err
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = m.now()
	}
	if meta.Source == "" {
		meta.Source = SourceGitHub
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	v := Version{
		ID:        fmt.Sprintf("%s_%d", meta.CreatedAt.UTC().Format(defaultTimestampLayout), len(m.versions)+1),
		CreatedAt: meta.CreatedAt.UTC(),
		Source:    meta.Source,
		CommitSHA: meta.CommitSHA,
		OBO:       digest(oboText),
		JSON:      digest(jsonData),
		TermCount: len(doc.Terms),
	}
	m.versions = append(m.versions, memoryVersion{v: v, doc: doc.Clone()})
	return &v, nil
}

// Prune keeps the newest keep versions.
func (m *MemoryStore) Prune(_ context.Context, keep int) ([]Version, error) {
	if keep < 1 {
		return nil, apperrors.NewValidation("keep", "must be at least 1")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.versions) <= keep {
		return nil, nil
	}
	cut := len(m.versions) - keep
	var removed []Version
	for i := cut - 1; i >= 0; i-- {
		removed = append(removed, m.versions[i].v)
	}
	m.versions = append([]memoryVersion(nil), m.versions[cut:]...)
	return removed, nil
}

// List returns every version, newest first.
func (m *MemoryStore) List(_ context.Context) ([]Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Version, 0, len(m.versions))
	for i := len(m.versions) - 1; i >= 0; i-- {
		out = append(out, m.versions[i].v)
	}
	return out, nil
}

func digest(data []byte) cas.Digest {
	return cas.Digest{SHA256: cas.Hash(data), BLAKE3: cas.Blake3Hash(data), Size: int64(len(data))}
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
