package obo

import (
	"strings"
	"testing"
)

func TestValidateStructure(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		valid   bool
		message string
	}{
		{"missing terms", `{"header":{}}`, false, "Missing required field: terms"},
		{"missing header", `{"terms":[]}`, false, "Missing required field: header"},
		{"header not object", `{"header":[],"terms":[]}`, false, "Header field must be an object"},
		{"terms not array", `{"header":{},"terms":{}}`, false, "Terms field must be an array"},
		{"term not object", `{"header":{},"terms":["x"]}`, false, "Term 1 is not an object"},
		{"term missing id", `{"header":{},"terms":[{"id":"a","name":"b"},{"name":"c"}]}`, false, "Term 2 missing id field"},
		{"term missing name", `{"header":{},"terms":[{"id":"a"}]}`, false, "Term 1 missing name field"},
		{"typedefs not array", `{"header":{},"terms":[],"typedefs":"x"}`, false, "Typedefs field must be an array"},
		{"valid", `{"header":{"a":"b"},"terms":[{"id":"a","name":"b"}],"typedefs":[]}`, true, "JSON structure validation passed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateStructure([]byte(tt.input))
			if got.Valid != tt.valid {
				t.Errorf("Valid = %v, want %v", got.Valid, tt.valid)
			}
			if got.Message != tt.message {
				t.Errorf("Message = %q, want %q", got.Message, tt.message)
			}
		})
	}
}

func TestValidateStructureStats(t *testing.T) {
	got := ValidateStructure([]byte(`{"header":{"a":"1","b":"2"},"terms":[{"id":"x","name":"y"}],"typedefs":[{"id":"t"}]}`))
	if !got.Valid || got.Stats == nil {
		t.Fatalf("result = %+v, want valid with stats", got)
	}
	want := StructureStats{HeaderFields: 2, TotalTerms: 1, HasTypedefs: true, TypedefCount: 1}
	if *got.Stats != want {
		t.Errorf("Stats = %+v, want %+v", *got.Stats, want)
	}
}

func TestValidateStructureMalformed(t *testing.T) {
	for _, in := range []string{"", "{", "[1,2]", "null"} {
		got := ValidateStructure([]byte(in))
		if got.Valid {
			t.Errorf("ValidateStructure(%q) valid", in)
		}
		if !strings.HasPrefix(got.Message, "JSON format error") && !strings.HasPrefix(got.Message, "Missing") {
			t.Errorf("ValidateStructure(%q) message = %q", in, got.Message)
		}
	}
}

func TestValidateDocument(t *testing.T) {
	doc := Parse("a: b\n\n[Term]\nid: SBO:1\nname: x\n\n[Term]\nid: SBO:2\n")
	got := ValidateDocument(doc)
	if got.Valid || got.Message != "Term 2 missing name field" {
		t.Errorf("ValidateDocument() = %+v", got)
	}

	doc = Parse("a: b\n\n[Term]\nid: SBO:1\nname: x\n")
	got = ValidateDocument(doc)
	if !got.Valid || got.Stats.TotalTerms != 1 || got.Stats.HasTypedefs {
		t.Errorf("ValidateDocument() = %+v", got)
	}
}
