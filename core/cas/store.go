// Package cas provides content-addressed storage for version artifacts.
// Blobs are stored by SHA-256; a BLAKE3 pointer file maps the secondary
// digest back to the primary one.
//
// Layout under the root directory:
//
//	blobs/sha256/<first2>/<sha256>
//	blobs/blake3/<first2>/<blake3>.json
package cas

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/zeebo/blake3"
)

// osRename is a variable to allow testing of rename errors.
var osRename = os.Rename

// tempFileWrite is a function variable for writing to temp files (for testing).
var tempFileWrite = func(f *os.File, data []byte) (int, error) {
	return f.Write(data)
}

// tempFileClose is a function variable for closing temp files (for testing).
var tempFileClose = func(f io.Closer) error {
	return f.Close()
}

// ErrBlobNotFound is returned when a blob with the given hash does not exist.
var ErrBlobNotFound = errors.New("blob not found")

// ErrInvalidHash is returned when a hash string is not 64 lowercase hex characters.
var ErrInvalidHash = errors.New("invalid hash format")

// ErrCorrupt is returned by Verify when stored bytes no longer match their hash.
var ErrCorrupt = errors.New("blob content does not match hash")

var hexPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Digest holds both hashes of a stored blob.
type Digest struct {
	SHA256 string `json:"sha256"`
	BLAKE3 string `json:"blake3"`
	Size   int64  `json:"size"`
}

type blake3Pointer struct {
	SHA256 string `json:"sha256"`
}

// Store is a content-addressed blob store rooted at a directory.
type Store struct {
	root string
}

// NewStore opens or creates a store at root.
func NewStore(root string) (*Store, error) {
	for _, algo := range []string{"sha256", "blake3"} {
		if err := os.MkdirAll(filepath.Join(root, "blobs", algo), 0755); err != nil {
			return nil, fmt.Errorf("failed to create blob directory: %w", err)
		}
	}
	return &Store{root: root}, nil
}

// Root returns the store directory.
func (s *Store) Root() string {
	return s.root
}

// Put stores data and returns its digests. Storing the same bytes twice is
// a no-op.
func (s *Store) Put(data []byte) (*Digest, error) {
	d := &Digest{SHA256: Hash(data), BLAKE3: Blake3Hash(data), Size: int64(len(data))}

	blobPath := s.blobPath(d.SHA256)
	if _, err := os.Stat(blobPath); err != nil {
		if err := writeAtomic(blobPath, ".blob-*", data); err != nil {
			return nil, fmt.Errorf("failed to write blob: %w", err)
		}
	}

	pointerPath := s.pointerPath(d.BLAKE3)
	if _, err := os.Stat(pointerPath); err != nil {
		ptr, err := json.Marshal(blake3Pointer{SHA256: d.SHA256})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal pointer: %w", err)
		}
		if err := writeAtomic(pointerPath, ".pointer-*", ptr); err != nil {
			return nil, fmt.Errorf("failed to create BLAKE3 pointer: %w", err)
		}
	}
	return d, nil
}

// Get returns the blob with the given SHA-256 hash.
func (s *Store) Get(hash string) ([]byte, error) {
	if !isValidHash(hash) {
		return nil, ErrInvalidHash
	}
	data, err := os.ReadFile(s.blobPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

// Has reports whether a blob with the given SHA-256 hash exists.
func (s *Store) Has(hash string) bool {
	if !isValidHash(hash) {
		return false
	}
	_, err := os.Stat(s.blobPath(hash))
	return err == nil
}

// LookupBlake3 resolves a BLAKE3 hash to the blob's SHA-256 hash.
func (s *Store) LookupBlake3(hash string) (string, error) {
	if !isValidHash(hash) {
		return "", ErrInvalidHash
	}
	data, err := os.ReadFile(s.pointerPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrBlobNotFound
		}
		return "", fmt.Errorf("failed to read pointer: %w", err)
	}
	var ptr blake3Pointer
	if err := json.Unmarshal(data, &ptr); err != nil {
		return "", fmt.Errorf("failed to parse pointer: %w", err)
	}
	return ptr.SHA256, nil
}

// GetByBlake3 returns a blob by its BLAKE3 hash.
func (s *Store) GetByBlake3(hash string) ([]byte, error) {
	sha, err := s.LookupBlake3(hash)
	if err != nil {
		return nil, err
	}
	return s.Get(sha)
}

// Verify re-hashes a stored blob with both algorithms.
func (s *Store) Verify(d Digest) error {
	data, err := s.Get(d.SHA256)
	if err != nil {
		return err
	}
	if Hash(data) != d.SHA256 {
		return fmt.Errorf("%w: sha256 %s", ErrCorrupt, d.SHA256)
	}
	if d.BLAKE3 != "" && Blake3Hash(data) != d.BLAKE3 {
		return fmt.Errorf("%w: blake3 %s", ErrCorrupt, d.BLAKE3)
	}
	return nil
}

// Delete removes a blob and its BLAKE3 pointer. Deleting a missing blob is
// not an error.
func (s *Store) Delete(d Digest) error {
	if !isValidHash(d.SHA256) {
		return ErrInvalidHash
	}
	if err := os.Remove(s.blobPath(d.SHA256)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove blob: %w", err)
	}
	if isValidHash(d.BLAKE3) {
		if err := os.Remove(s.pointerPath(d.BLAKE3)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove pointer: %w", err)
		}
	}
	return nil
}

func (s *Store) blobPath(hash string) string {
	return filepath.Join(s.root, "blobs", "sha256", hash[:2], hash)
}

func (s *Store) pointerPath(hash string) string {
	return filepath.Join(s.root, "blobs", "blake3", hash[:2], hash+".json")
}

// writeAtomic writes data through a temp file renamed into place.
func writeAtomic(path, pattern string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create prefix directory: %w", err)
	}
	tempFile, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	if _, err := tempFileWrite(tempFile, data); err != nil {
		tempFileClose(tempFile)
		os.Remove(tempPath)
		return err
	}
	if err := tempFileClose(tempFile); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := osRename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename: %w", err)
	}
	return nil
}

func isValidHash(hash string) bool {
	return hexPattern.MatchString(hash)
}

// Hash computes the SHA-256 hash of data without storing it.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Blake3Hash computes the BLAKE3 hash of data without storing it.
func Blake3Hash(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}
