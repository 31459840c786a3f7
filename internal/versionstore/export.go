package versionstore

import (
	"archive/tar"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ulikunitz/xz"
)

// ManifestVersion is the bundle manifest format version.
const ManifestVersion = "1.0.0"

var (
	xzNewWriter    = xz.NewWriter
	writeToTarFunc = writeToTarImpl
)

// Manifest is written as manifest.json, the first entry of a bundle.
type Manifest struct {
	ManifestVersion string            `json:"manifest_version"`
	BaseName        string            `json:"base_name"`
	Version         Version           `json:"version"`
	Files           map[string]string `json:"files"`
}

// Export writes one version as a tar.xz bundle holding the manifest, the
// OBO file and the canonical JSON. Blobs are verified before packing.
func (s *FileStore) Export(ctx context.Context, id string, archivePath string) error {
	v, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.blobs.Verify(v.OBO); err != nil {
		return fmt.Errorf("version %s: %w", id, err)
	}
	if err := s.blobs.Verify(v.JSON); err != nil {
		return fmt.Errorf("version %s: %w", id, err)
	}
	oboText, err := s.blobs.Get(v.OBO.SHA256)
	if err != nil {
		return err
	}
	jsonData, err := s.blobs.Get(v.JSON.SHA256)
	if err != nil {
		return err
	}

	oboPath, jsonPath := s.ActivePaths(id)
	oboName, jsonName := filepath.Base(oboPath), filepath.Base(jsonPath)
	manifest := Manifest{
		ManifestVersion: ManifestVersion,
		BaseName:        s.baseName,
		Version:         *v,
		Files: map[string]string{
			"obo":  oboName,
			"json": jsonName,
		},
	}
	manifestData, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize manifest: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(archivePath), 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}
	file, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer file.Close()

	if err := writeBundle(file, []tarEntry{
		{"manifest.json", manifestData},
		{oboName, oboText},
		{jsonName, jsonData},
	}); err != nil {
		os.Remove(archivePath)
		return err
	}
	return nil
}

type tarEntry struct {
	name string
	data []byte
}

func writeBundle(w io.Writer, entries []tarEntry) error {
	compressWriter, err := xzNewWriter(w)
	if err != nil {
		return fmt.Errorf("failed to create xz writer: %w", err)
	}
	tarWriter := tar.NewWriter(compressWriter)
	for _, e := range entries {
		if err := writeToTarFunc(tarWriter, e.name, e.data); err != nil {
			return fmt.Errorf("failed to write %s: %w", e.name, err)
		}
	}
	if err := tarWriter.Close(); err != nil {
		return fmt.Errorf("failed to finish tar: %w", err)
	}
	if err := compressWriter.Close(); err != nil {
		return fmt.Errorf("failed to finish xz stream: %w", err)
	}
	return nil
}

// writeToTarImpl writes a file to the tar archive.
func writeToTarImpl(tw *tar.Writer, name string, data []byte) error {
	header := &tar.Header{
		Name: name,
		Mode: 0644,
		Size: int64(len(data)),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}

// ReadManifest reads the manifest of a bundle written by Export.
func ReadManifest(archivePath string) (*Manifest, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	xzReader, err := xz.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create xz reader: %w", err)
	}
	tr := tar.NewReader(xzReader)
	header, err := tr.Next()
	if err != nil {
		return nil, fmt.Errorf("failed to read tar header: %w", err)
	}
	if header.Name != "manifest.json" {
		return nil, fmt.Errorf("archive does not start with manifest.json")
	}
	data, err := io.ReadAll(tr)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}
