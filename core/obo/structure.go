package obo

import (
	"encoding/json"
	"fmt"
)

// StructureStats summarizes a structurally valid document.
type StructureStats struct {
	HeaderFields int  `json:"header_fields"`
	TotalTerms   int  `json:"total_terms"`
	HasTypedefs  bool `json:"has_typedefs"`
	TypedefCount int  `json:"typedef_count"`
}

// StructureResult is the outcome of a structural check. Stats is set only
// when Valid is true.
type StructureResult struct {
	Valid   bool            `json:"valid"`
	Message string          `json:"message"`
	Stats   *StructureStats `json:"stats,omitempty"`
}

const structureOK = "JSON structure validation passed"

func structureFail(format string, args ...any) *StructureResult {
	return &StructureResult{Message: fmt.Sprintf(format, args...)}
}

// ValidateStructure checks untrusted JSON for the shape of a document:
// header must be an object, terms an array of objects each carrying id and
// name, and typedefs, when present, an array. It never panics.
func ValidateStructure(data []byte) *StructureResult {
	var top any
	if err := json.Unmarshal(data, &top); err != nil {
		return structureFail("JSON format error: %v", err)
	}
	obj, ok := top.(map[string]any)
	if !ok {
		return structureFail("JSON format error: top-level value must be an object")
	}

	for _, field := range []string{"header", "terms"} {
		if _, ok := obj[field]; !ok {
			return structureFail("Missing required field: %s", field)
		}
	}

	header, ok := obj["header"].(map[string]any)
	if !ok {
		return structureFail("Header field must be an object")
	}
	terms, ok := obj["terms"].([]any)
	if !ok {
		return structureFail("Terms field must be an array")
	}
	for i, t := range terms {
		term, ok := t.(map[string]any)
		if !ok {
			return structureFail("Term %d is not an object", i+1)
		}
		if _, ok := term["id"]; !ok {
			return structureFail("Term %d missing id field", i+1)
		}
		if _, ok := term["name"]; !ok {
			return structureFail("Term %d missing name field", i+1)
		}
	}

	stats := &StructureStats{HeaderFields: len(header), TotalTerms: len(terms)}
	if raw, ok := obj["typedefs"]; ok && raw != nil {
		typedefs, ok := raw.([]any)
		if !ok {
			return structureFail("Typedefs field must be an array")
		}
		stats.HasTypedefs = true
		stats.TypedefCount = len(typedefs)
	}
	return &StructureResult{Valid: true, Message: structureOK, Stats: stats}
}

// ValidateDocument applies the same rules to an already parsed document.
func ValidateDocument(doc *Document) *StructureResult {
	if doc == nil {
		return structureFail("Missing required field: header")
	}
	if doc.Header == nil {
		return structureFail("Missing required field: header")
	}
	if doc.Terms == nil {
		return structureFail("Missing required field: terms")
	}
	for i, t := range doc.Terms {
		if t == nil {
			return structureFail("Term %d is not an object", i+1)
		}
		if !t.Has("id") {
			return structureFail("Term %d missing id field", i+1)
		}
		if !t.Has("name") {
			return structureFail("Term %d missing name field", i+1)
		}
	}
	stats := &StructureStats{
		HeaderFields: doc.Header.Len(),
		TotalTerms:   len(doc.Terms),
		HasTypedefs:  doc.HasTypedefs,
	}
	if doc.HasTypedefs {
		stats.TypedefCount = len(doc.Typedefs)
	}
	return &StructureResult{Valid: true, Message: structureOK, Stats: stats}
}
