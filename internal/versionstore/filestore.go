package versionstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/FocuswithJustin/obosync/core/cas"
	apperrors "github.com/FocuswithJustin/obosync/core/errors"
	"github.com/FocuswithJustin/obosync/core/obo"
	"github.com/FocuswithJustin/obosync/core/sqlite"
	"github.com/FocuswithJustin/obosync/internal/logging"
)

const (
	lockTimeout    = 3 * time.Second
	lockMaxRetries = 3
	lockRetryDelay = 100 * time.Millisecond

	defaultTimestampLayout = "20060102_150405"
	// createdLayout keeps nanoseconds so CreatedAt survives the index.
	createdLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

const schema = `
CREATE TABLE IF NOT EXISTS versions (
	id          TEXT PRIMARY KEY,
	created_at  TEXT NOT NULL,
	source      TEXT NOT NULL,
	commit_sha  TEXT NOT NULL DEFAULT '',
	obo_sha256  TEXT NOT NULL,
	obo_blake3  TEXT NOT NULL,
	obo_size    INTEGER NOT NULL,
	json_sha256 TEXT NOT NULL,
	json_blake3 TEXT NOT NULL,
	json_size   INTEGER NOT NULL,
	term_count  INTEGER NOT NULL
);
`

const selectColumns = `id, created_at, source, commit_sha,
	obo_sha256, obo_blake3, obo_size,
	json_sha256, json_blake3, json_size, term_count`

// FileStore keeps blobs in a content-addressed store, an index in SQLite,
// and the active files of every retained version in a plain directory
// named <base>_<id>.obo and <base>_<id>.json.
type FileStore struct {
	root      string
	activeDir string
	baseName  string
	timestamp func(time.Time) string
	now       func() time.Time

	db    *sql.DB
	blobs *cas.Store
	lock  *flock.Flock
}

// Option configures a FileStore.
type Option func(*FileStore)

// WithTimestamp sets how version ids are derived from commit times.
func WithTimestamp(f func(time.Time) string) Option {
	return func(s *FileStore) {
		s.timestamp = f
	}
}

// WithClock replaces time.Now for commits without an explicit time.
func WithClock(now func() time.Time) Option {
	return func(s *FileStore) {
		s.now = now
	}
}

// Open opens or creates a store. root holds the index, blobs and lock
// file; activeDir receives the active files.
func Open(root, activeDir, baseName string, opts ...Option) (*FileStore, error) {
	for _, dir := range []string{root, activeDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, apperrors.NewIO("create directory", dir, err)
		}
	}

	blobs, err := cas.NewStore(root)
	if err != nil {
		return nil, err
	}

	db, err := sqlite.Open(filepath.Join(root, "index.db"))
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create version index: %w", err)
	}

	s := &FileStore{
		root:      root,
		activeDir: activeDir,
		baseName:  baseName,
		timestamp: func(t time.Time) string { return t.Format(defaultTimestampLayout) },
		now:       time.Now,
		db:        db,
		blobs:     blobs,
		lock:      flock.New(filepath.Join(root, ".lock")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the index database.
func (s *FileStore) Close() error {
	return s.db.Close()
}

// Root returns the store directory.
func (s *FileStore) Root() string {
	return s.root
}

// ActivePaths returns the active file paths of a version.
func (s *FileStore) ActivePaths(id string) (oboPath, jsonPath string) {
	stem := filepath.Join(s.activeDir, s.baseName+"_"+id)
	return stem + ".obo", stem + ".json"
}

func (s *FileStore) acquireLock(ctx context.Context) error {
	for i := 0; i < lockMaxRetries; i++ {
		locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
		if err != nil {
			return fmt.Errorf("failed to acquire store lock: %w", err)
		}
		if locked {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
	return fmt.Errorf("failed to acquire store lock after %d attempts", lockMaxRetries)
}

func (s *FileStore) withLock(ctx context.Context, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	if err := s.acquireLock(ctx); err != nil {
		return err
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}

// Commit stores a new version and writes its active files.
func (s *FileStore) Commit(ctx context.Context, oboText []byte, doc *obo.Document, meta Metadata) (*Version, error) {
	jsonData, err := obo.EncodeJSON(doc)
	if err != nil {
		return nil, err
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = s.now()
	}
	if meta.Source == "" {
		meta.Source = SourceGitHub
	}

	var v *Version
	err = s.withLock(ctx, func() error {
		oboDigest, err := s.blobs.Put(oboText)
		if err != nil {
			return err
		}
		jsonDigest, err := s.blobs.Put(jsonData)
		if err != nil {
			return err
		}

		id, err := s.nextID(ctx, meta.CreatedAt)
		if err != nil {
			return err
		}
		v = &Version{
			ID:        id,
			CreatedAt: meta.CreatedAt.UTC(),
			Source:    meta.Source,
			CommitSHA: meta.CommitSHA,
			OBO:       *oboDigest,
			JSON:      *jsonDigest,
			TermCount: len(doc.Terms),
		}

		oboPath, jsonPath := s.ActivePaths(id)
		if err := os.WriteFile(oboPath, oboText, 0644); err != nil {
			return apperrors.NewIO("write", oboPath, err)
		}
		if err := os.WriteFile(jsonPath, jsonData, 0644); err != nil {
			os.Remove(oboPath)
			return apperrors.NewIO("write", jsonPath, err)
		}

		_, err = s.db.ExecContext(ctx, `INSERT INTO versions (`+selectColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			v.ID, v.CreatedAt.Format(createdLayout), v.Source, v.CommitSHA,
			v.OBO.SHA256, v.OBO.BLAKE3, v.OBO.Size,
			v.JSON.SHA256, v.JSON.BLAKE3, v.JSON.Size, v.TermCount)
		if err != nil {
			os.Remove(oboPath)
			os.Remove(jsonPath)
			for _, d := range []*cas.Digest{oboDigest, jsonDigest} {
				if rerr := s.releaseBlob(ctx, *d); rerr != nil {
					logging.Warn("failed to release blob", "sha256", d.SHA256, "error", rerr)
				}
			}
			return fmt.Errorf("failed to index version %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.StoreEvent("commit", v.ID, "source", v.Source, "terms", v.TermCount)
	return v, nil
}

// nextID derives a version id from t, suffixing a counter when a version
// with the same timestamp already exists.
func (s *FileStore) nextID(ctx context.Context, t time.Time) (string, error) {
	base := s.timestamp(t)
	id := base
	for n := 2; ; n++ {
		var count int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM versions WHERE id = ?`, id).Scan(&count); err != nil {
			return "", fmt.Errorf("failed to query version index: %w", err)
		}
		if count == 0 {
			return id, nil
		}
		id = fmt.Sprintf("%s_%d", base, n)
	}
}

// List returns every version, newest first.
func (s *FileStore) List(ctx context.Context) ([]Version, error) {
	return listVersions(ctx, s.db)
}

// ListIndex lists the versions recorded under root without taking the
// store lock or creating anything. A missing index means no versions.
func ListIndex(ctx context.Context, root string) ([]Version, error) {
	path := filepath.Join(root, "index.db")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	db, err := sqlite.OpenReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return listVersions(ctx, db)
}

func listVersions(ctx context.Context, db *sql.DB) ([]Version, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+selectColumns+` FROM versions ORDER BY rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var out []Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVersion(row scanner) (*Version, error) {
	var v Version
	var created string
	err := row.Scan(&v.ID, &created, &v.Source, &v.CommitSHA,
		&v.OBO.SHA256, &v.OBO.BLAKE3, &v.OBO.Size,
		&v.JSON.SHA256, &v.JSON.BLAKE3, &v.JSON.Size, &v.TermCount)
	if err != nil {
		return nil, err
	}
	v.CreatedAt, err = time.Parse(createdLayout, created)
	if err != nil {
		return nil, fmt.Errorf("version %s: bad created_at %q: %w", v.ID, created, err)
	}
	return &v, nil
}

// Get returns one version by id.
func (s *FileStore) Get(ctx context.Context, id string) (*Version, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM versions WHERE id = ?`, id)
	v, err := scanVersion(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound("version", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read version %s: %w", id, err)
	}
	return v, nil
}

// Read returns the stored OBO text and document of a version.
func (s *FileStore) Read(ctx context.Context, v *Version) ([]byte, *obo.Document, error) {
	oboText, err := s.blobs.Get(v.OBO.SHA256)
	if err != nil {
		return nil, nil, fmt.Errorf("version %s: %w", v.ID, err)
	}
	jsonData, err := s.blobs.Get(v.JSON.SHA256)
	if err != nil {
		return nil, nil, fmt.Errorf("version %s: %w", v.ID, err)
	}
	doc, err := obo.DecodeJSON(jsonData)
	if err != nil {
		return nil, nil, fmt.Errorf("version %s: %w", v.ID, err)
	}
	return oboText, doc, nil
}

// Latest returns the most recently committed version and its document.
// CreatedAt does not take part; an upload committed after a sync is newer
// even when the upstream commit time is later.
func (s *FileStore) Latest(ctx context.Context) (*Version, *obo.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM versions ORDER BY rowid DESC LIMIT 1`)
	v, err := scanVersion(row)
	if err == sql.ErrNoRows {
		return nil, nil, apperrors.NewNotFound("version", "latest")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read latest version: %w", err)
	}
	_, doc, err := s.Read(ctx, v)
	if err != nil {
		return nil, nil, err
	}
	return v, doc, nil
}

// Prune removes all but the newest keep versions. Blobs shared with a
// retained version are kept.
func (s *FileStore) Prune(ctx context.Context, keep int) ([]Version, error) {
	if keep < 1 {
		return nil, apperrors.NewValidation("keep", "must be at least 1")
	}

	var removed []Version
	err := s.withLock(ctx, func() error {
		versions, err := s.List(ctx)
		if err != nil {
			return err
		}
		if len(versions) <= keep {
			return nil
		}

		for _, v := range versions[keep:] {
			if _, err := s.db.ExecContext(ctx, `DELETE FROM versions WHERE id = ?`, v.ID); err != nil {
				return fmt.Errorf("failed to remove version %s: %w", v.ID, err)
			}
			oboPath, jsonPath := s.ActivePaths(v.ID)
			for _, p := range []string{oboPath, jsonPath} {
				if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
					return apperrors.NewIO("remove", p, err)
				}
			}
			for _, d := range []cas.Digest{v.OBO, v.JSON} {
				if err := s.releaseBlob(ctx, d); err != nil {
					return err
				}
			}
			removed = append(removed, v)
			logging.StoreEvent("prune", v.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (s *FileStore) releaseBlob(ctx context.Context, d cas.Digest) error {
	var refs int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM versions WHERE obo_sha256 = ? OR json_sha256 = ?`,
		d.SHA256, d.SHA256).Scan(&refs)
	if err != nil {
		return fmt.Errorf("failed to count blob references: %w", err)
	}
	if refs > 0 {
		return nil
	}
	return s.blobs.Delete(d)
}
