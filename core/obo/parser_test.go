package obo

import (
	"testing"
)

func TestParseHeaderAndTerm(t *testing.T) {
	text := "format-version: 1.2\n\n[Term]\nid: SBO:0000001\nname: rate law\n"
	doc := Parse(text)

	if got, _ := doc.Header.Get("format-version"); got != "1.2" {
		t.Errorf("header format-version = %q, want %q", got, "1.2")
	}
	if doc.Header.Len() != 1 {
		t.Errorf("header len = %d, want 1", doc.Header.Len())
	}
	if len(doc.Terms) != 1 {
		t.Fatalf("terms = %d, want 1", len(doc.Terms))
	}
	if id, ok := doc.Terms[0].ID(); !ok || id != "SBO:0000001" {
		t.Errorf("term id = %q (%v), want SBO:0000001", id, ok)
	}
	if got := doc.Terms[0].Field("name"); got != "rate law" {
		t.Errorf("term name = %q, want %q", got, "rate law")
	}
	if doc.HasTypedefs {
		t.Error("HasTypedefs = true, want false")
	}
}

func TestParseLineRules(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantKey string
		wantVal string
		wantOK  bool
	}{
		{"simple", "name: foo", "name", "foo", true},
		{"blank", "   ", "", "", false},
		{"no colon", "just text", "", "", false},
		{"key padding", "  name  :bar", "name", "bar", true},
		{"leading value space", "def:    x", "def", "x", true},
		{"trailing value space kept", "comment: x  ", "comment", "x  ", true},
		{"first colon splits", "xref: http://example.org", "xref", "http://example.org", true},
		{"empty value", "is_obsolete:", "is_obsolete", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, val, ok := splitLine(tt.line)
			if ok != tt.wantOK || key != tt.wantKey || val != tt.wantVal {
				t.Errorf("splitLine(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.line, key, val, ok, tt.wantKey, tt.wantVal, tt.wantOK)
			}
		})
	}
}

func TestParseIsA(t *testing.T) {
	text := "[Term]\nid: SBO:0000002\nname: x\nis_a: SBO:0000001 ! rate law\nis_a: something else\n"
	doc := Parse(text)
	v, ok := doc.Terms[0].Get("is_a")
	if !ok {
		t.Fatal("is_a missing")
	}
	if v.Kind() != KindRefList {
		t.Fatalf("is_a kind = %v, want reflist", v.Kind())
	}
	refs := v.Refs()
	if len(refs) != 2 {
		t.Fatalf("is_a refs = %d, want 2", len(refs))
	}
	if refs[0].Ref == nil || refs[0].Ref.ID != "SBO:0000001" || refs[0].Ref.Name != "rate law" {
		t.Errorf("refs[0] = %+v, want SBO:0000001 / rate law", refs[0])
	}
	if refs[1].Ref != nil || refs[1].Text != "something else" {
		t.Errorf("refs[1] = %+v, want raw text", refs[1])
	}
}

func TestParseSingleIsAIsStillAList(t *testing.T) {
	doc := Parse("[Term]\nid: SBO:1\nis_a: SBO:0000001 ! a\n")
	v, _ := doc.Terms[0].Get("is_a")
	if v.Kind() != KindRefList || v.Len() != 1 {
		t.Errorf("is_a = %v/%d, want reflist of 1", v.Kind(), v.Len())
	}
}

func TestParseRepeatedFieldPromotion(t *testing.T) {
	doc := Parse("[Term]\nid: SBO:1\nsynonym: a\nsynonym: b\nsynonym: c\n")
	v, _ := doc.Terms[0].Get("synonym")
	if v.Kind() != KindList {
		t.Fatalf("synonym kind = %v, want list", v.Kind())
	}
	got := v.Items()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("synonym = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("synonym[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseEmptyRecordsDiscarded(t *testing.T) {
	doc := Parse("[Term]\n\n[Term]\nid: SBO:1\n[Typedef]\n\n")
	if len(doc.Terms) != 1 {
		t.Errorf("terms = %d, want 1", len(doc.Terms))
	}
	if doc.HasTypedefs {
		t.Error("HasTypedefs = true for empty typedef section")
	}
}

func TestParseTypedefs(t *testing.T) {
	doc := Parse("[Typedef]\nid: part_of\nname: part of\nis_transitive: true\n")
	if !doc.HasTypedefs || len(doc.Typedefs) != 1 {
		t.Fatalf("typedefs = %v/%d, want present with 1", doc.HasTypedefs, len(doc.Typedefs))
	}
	if doc.Typedefs[0].Field("is_transitive") != "true" {
		t.Error("is_transitive not parsed")
	}
	if doc.Header.Len() != 0 {
		t.Errorf("header len = %d, want 0", doc.Header.Len())
	}
}

func TestParseHeaderLastValueWins(t *testing.T) {
	doc := Parse("a: 1\nb: 2\na: 3\n")
	if got := doc.Header.Keys(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("keys = %v, want [a b]", got)
	}
	if v, _ := doc.Header.Get("a"); v != "3" {
		t.Errorf("a = %q, want %q", v, "3")
	}
}

func TestParseRefPrefix(t *testing.T) {
	text := "[Term]\nid: GO:1\nis_a: GO:0000002 ! parent\n"

	v, _ := Parse(text).Terms[0].Get("is_a")
	if v.Refs()[0].Ref != nil {
		t.Error("default parser matched a GO reference")
	}

	v, _ = NewParser(WithRefPrefix("GO")).Parse(text).Terms[0].Get("is_a")
	if r := v.Refs()[0]; r.Ref == nil || r.Ref.ID != "GO:0000002" {
		t.Errorf("GO parser ref = %+v", r)
	}

	v, _ = NewParser(WithRefPrefix("")).Parse(text).Terms[0].Get("is_a")
	if r := v.Refs()[0]; r.Ref == nil || r.Ref.Name != "parent" {
		t.Errorf("any-prefix parser ref = %+v", r)
	}
}

func TestParseEmptyInput(t *testing.T) {
	doc := Parse("")
	if doc.Header.Len() != 0 || len(doc.Terms) != 0 || doc.HasTypedefs {
		t.Errorf("Parse(\"\") = %+v, want empty document", doc)
	}
}
