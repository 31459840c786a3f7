package obo

import (
	"slices"
	"strings"
)

// DefaultTermOrder is the field order used for [Term] stanzas.
var DefaultTermOrder = []string{
	"id", "name", "def", "comment", "subset", "synonym", "xref", "is_a",
	"relationship", "is_obsolete", "replaced_by", "consider",
	"created_by", "creation_date",
}

// DefaultTypedefOrder is the field order used for [Typedef] stanzas.
var DefaultTypedefOrder = []string{
	"id", "name", "def", "comment", "is_transitive", "is_symmetric",
	"is_cyclic", "is_a",
}

// Serializer renders a Document as OBO text. Fields named in the order
// lists come first; any other fields follow in record order.
type Serializer struct {
	TermOrder    []string
	TypedefOrder []string
}

// NewSerializer returns a serializer with the given field orders. Nil
// orders fall back to the defaults.
func NewSerializer(termOrder, typedefOrder []string) *Serializer {
	if termOrder == nil {
		termOrder = DefaultTermOrder
	}
	if typedefOrder == nil {
		typedefOrder = DefaultTypedefOrder
	}
	return &Serializer{TermOrder: termOrder, TypedefOrder: typedefOrder}
}

// Serialize renders doc with explicit field orders.
func Serialize(doc *Document, termOrder, typedefOrder []string) string {
	return NewSerializer(termOrder, typedefOrder).Serialize(doc)
}

// Serialize renders doc. Output always ends with a newline and an empty
// document renders as a single newline.
func (s *Serializer) Serialize(doc *Document) string {
	var lines []string

	for _, k := range doc.Header.Keys() {
		v, _ := doc.Header.Get(k)
		lines = append(lines, k+": "+v)
	}
	if doc.Header.Len() > 0 {
		lines = append(lines, "")
	}

	for _, t := range doc.Terms {
		lines = append(lines, "[Term]")
		lines = appendRecord(lines, t, s.TermOrder)
		lines = append(lines, "")
	}
	if doc.HasTypedefs {
		for _, t := range doc.Typedefs {
			lines = append(lines, "[Typedef]")
			lines = appendRecord(lines, t, s.TypedefOrder)
			lines = append(lines, "")
		}
	}

	out := strings.Join(lines, "\n")
	if len(lines) == 0 || lines[len(lines)-1] != "" {
		out += "\n"
	}
	return out
}

func appendRecord(lines []string, rec *Record, order []string) []string {
	for _, k := range order {
		if v, ok := rec.Get(k); ok {
			lines = appendField(lines, k, v)
		}
	}
	for _, k := range rec.Keys() {
		if slices.Contains(order, k) {
			continue
		}
		v, _ := rec.Get(k)
		lines = appendField(lines, k, v)
	}
	return lines
}

func appendField(lines []string, key string, v Value) []string {
	for _, line := range v.Lines() {
		lines = append(lines, key+": "+line)
	}
	return lines
}
