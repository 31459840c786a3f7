// Package userfile accepts ontology files supplied by an operator. JSON
// uploads are checked structurally; OBO uploads are converted to JSON and
// must survive a round trip. Only the JSON is kept.
package userfile

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/FocuswithJustin/obosync/core/errors"
	"github.com/FocuswithJustin/obosync/core/obo"
	"github.com/FocuswithJustin/obosync/core/roundtrip"
	"github.com/FocuswithJustin/obosync/internal/fileutil"
	"github.com/FocuswithJustin/obosync/internal/logging"
	"github.com/FocuswithJustin/obosync/internal/validation"
)

// uploadSuffix names the JSON produced from an OBO upload.
const uploadSuffix = "_user_upload.json"

// Result describes an accepted upload.
type Result struct {
	Source    string              `json:"source"`
	Type      validation.FileType `json:"type"`
	JSONPath  string              `json:"json_path"`
	Stats     *obo.StructureStats `json:"stats"`
	Roundtrip *roundtrip.Report   `json:"roundtrip,omitempty"`
	Document  *obo.Document       `json:"-"`
	OBOText   []byte              `json:"-"`
}

// Processor validates uploads into a customer directory.
type Processor struct {
	Dir        string
	parser     *obo.Parser
	serializer *obo.Serializer
	validator  *roundtrip.Validator
}

// NewProcessor returns a Processor writing into dir.
func NewProcessor(dir string, parser *obo.Parser, serializer *obo.Serializer, validator *roundtrip.Validator) *Processor {
	return &Processor{
		Dir:        dir,
		parser:     parser,
		serializer: serializer,
		validator:  validator,
	}
}

// Process copies path into the customer directory and validates it. On
// failure every file it created is removed.
func (p *Processor) Process(ctx context.Context, path string) (*Result, error) {
	if err := validation.ValidatePath(path); err != nil {
		return nil, apperrors.NewValidation("path", err.Error())
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, apperrors.NewNotFound("file", path)
	}
	if err != nil {
		return nil, apperrors.NewIO("stat", path, err)
	}
	if info.IsDir() {
		return nil, apperrors.NewValidation("path", "is a directory")
	}
	if info.Size() > validation.MaxFileSize {
		return nil, apperrors.NewValidation("size", "file exceeds the upload limit")
	}

	name, err := validation.SanitizeFilename(filepath.Base(path))
	if err != nil {
		return nil, apperrors.NewValidation("filename", err.Error())
	}
	if _, err := validation.SanitizePath(p.Dir, name); err != nil {
		return nil, apperrors.NewValidation("filename", err.Error())
	}

	ft, err := sniff(path, name)
	if err != nil {
		return nil, err
	}

	dst := filepath.Join(p.Dir, name)
	if err := fileutil.CopyFile(path, dst); err != nil {
		return nil, apperrors.NewIO("copy", path, err)
	}
	logging.FileEvent("upload", dst, "type", string(ft))

	var res *Result
	switch ft {
	case validation.FileTypeJSON:
		res, err = p.processJSON(dst)
	default:
		res, err = p.processOBO(ctx, dst)
	}
	if err != nil {
		return nil, err
	}
	res.Source = path
	return res, nil
}

func sniff(path, name string) (validation.FileType, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", apperrors.NewIO("open", path, err)
	}
	defer f.Close()

	ft, err := validation.ValidateFileType(f, name)
	switch {
	case err == nil:
		return ft, nil
	case apperrors.Is(err, validation.ErrUnsupportedType):
		return "", apperrors.NewUnsupported("file type", strings.TrimPrefix(filepath.Ext(name), ".")+", only .json and .obo files are supported")
	default:
		return "", apperrors.NewValidation("content", err.Error())
	}
}

func (p *Processor) processJSON(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewIO("read", path, err)
	}
	check := obo.ValidateStructure(data)
	if !check.Valid {
		os.Remove(path)
		return nil, apperrors.NewValidation("structure", check.Message)
	}
	doc, err := obo.DecodeJSON(data)
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	return &Result{
		Type:     validation.FileTypeJSON,
		JSONPath: path,
		Stats:    check.Stats,
		Document: doc,
		OBOText:  []byte(p.serializer.Serialize(doc)),
	}, nil
}

func (p *Processor) processOBO(ctx context.Context, path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewIO("read", path, err)
	}
	text := string(data)
	jsonPath := strings.TrimSuffix(path, filepath.Ext(path)) + uploadSuffix
	cleanup := func() {
		os.Remove(path)
		os.Remove(jsonPath)
	}

	doc := p.parser.Parse(text)
	encoded, err := obo.EncodeJSON(doc)
	if err != nil {
		cleanup()
		return nil, err
	}
	if err := os.WriteFile(jsonPath, encoded, 0644); err != nil {
		cleanup()
		return nil, apperrors.NewIO("write", jsonPath, err)
	}

	check := obo.ValidateDocument(doc)
	if !check.Valid {
		cleanup()
		return nil, apperrors.NewValidation("structure", check.Message)
	}

	report := p.validator.Validate(ctx, text, p.serializer.Serialize(doc))
	if !report.Passed() {
		cleanup()
		return nil, report.Err(path)
	}

	// only the JSON survives
	os.Remove(path)
	logging.FileEvent("convert", jsonPath, "strategy", report.Strategy, "terms", len(doc.Terms))

	return &Result{
		Type:      validation.FileTypeOBO,
		JSONPath:  jsonPath,
		Stats:     check.Stats,
		Roundtrip: report,
		Document:  doc,
		OBOText:   data,
	}, nil
}

// Reset removes every file from the customer directory.
func (p *Processor) Reset() (int, error) {
	n, err := fileutil.ClearDir(p.Dir)
	if err != nil {
		return n, err
	}
	if n > 0 {
		logging.FileEvent("reset", p.Dir, "removed", n)
	}
	return n, nil
}
