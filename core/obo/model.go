// Package obo implements the record model, parser and serializer for the
// OBO flat-file ontology format, plus the canonical JSON form of a parsed
// document and its structural validation.
//
// A parsed document is a value: the parser builds it, and nothing else in
// this module mutates it. Use Clone before editing a document in place.
package obo

import (
	"slices"
)

// ValueKind identifies which variant a Value holds.
type ValueKind int

const (
	// KindScalar is a single string value.
	KindScalar ValueKind = iota
	// KindList is an ordered list of strings, produced when a field repeats.
	KindList
	// KindRefList is an ordered list of references, produced for is_a.
	KindRefList
)

// String returns the kind name.
func (k ValueKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindList:
		return "list"
	case KindRefList:
		return "reflist"
	default:
		return "unknown"
	}
}

// Ref is a parsed "<ID> ! <label>" reference.
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RefItem is one entry of a reference list. Values that did not match the
// reference convention keep their raw text and have a nil Ref.
type RefItem struct {
	Ref  *Ref
	Text string
}

// NewRef returns a matched reference item.
func NewRef(id, name string) RefItem {
	return RefItem{Ref: &Ref{ID: id, Name: name}}
}

// NewRawRef returns an unmatched reference item holding text verbatim.
func NewRawRef(text string) RefItem {
	return RefItem{Text: text}
}

// String renders the item the way it appears after "is_a: " in OBO text.
func (r RefItem) String() string {
	if r.Ref != nil {
		return r.Ref.ID + " ! " + r.Ref.Name
	}
	return r.Text
}

// Equal reports whether both items hold the same reference or raw text.
func (r RefItem) Equal(o RefItem) bool {
	if (r.Ref == nil) != (o.Ref == nil) {
		return false
	}
	if r.Ref != nil {
		return *r.Ref == *o.Ref
	}
	return r.Text == o.Text
}

// Value is a field value: a scalar, a string list, or a reference list.
// The zero Value is the empty scalar.
type Value struct {
	kind  ValueKind
	text  string
	items []string
	refs  []RefItem
}

// Scalar returns a single-string value.
func Scalar(s string) Value {
	return Value{kind: KindScalar, text: s}
}

// List returns a string-list value.
func List(items ...string) Value {
	return Value{kind: KindList, items: slices.Clone(items)}
}

// RefList returns a reference-list value.
func RefList(refs ...RefItem) Value {
	return Value{kind: KindRefList, refs: cloneRefs(refs)}
}

// Kind returns the variant held by v.
func (v Value) Kind() ValueKind {
	return v.kind
}

// Text returns the scalar string. It is empty for list variants.
func (v Value) Text() string {
	return v.text
}

// Items returns a copy of the string list. It is nil for other variants.
func (v Value) Items() []string {
	return slices.Clone(v.items)
}

// Refs returns a copy of the reference list. It is nil for other variants.
func (v Value) Refs() []RefItem {
	return cloneRefs(v.refs)
}

// Len returns the number of OBO lines v serializes to.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.items)
	case KindRefList:
		return len(v.refs)
	default:
		return 1
	}
}

// Lines returns the rendered value of each OBO line v serializes to.
func (v Value) Lines() []string {
	switch v.kind {
	case KindList:
		return slices.Clone(v.items)
	case KindRefList:
		out := make([]string, len(v.refs))
		for i, r := range v.refs {
			out[i] = r.String()
		}
		return out
	default:
		return []string{v.text}
	}
}

// First returns the first rendered line, or "" for an empty list.
func (v Value) First() string {
	lines := v.Lines()
	if len(lines) == 0 {
		return ""
	}
	return lines[0]
}

// Append returns v with s added. A scalar is promoted to a two-element list.
func (v Value) Append(s string) Value {
	switch v.kind {
	case KindScalar:
		return Value{kind: KindList, items: []string{v.text, s}}
	case KindList:
		items := make([]string, len(v.items), len(v.items)+1)
		copy(items, v.items)
		return Value{kind: KindList, items: append(items, s)}
	default:
		refs := make([]RefItem, len(v.refs), len(v.refs)+1)
		copy(refs, v.refs)
		return Value{kind: KindRefList, refs: append(refs, NewRawRef(s))}
	}
}

// AppendRef returns v with r added. Non-reference variants are converted,
// keeping their existing entries as raw text.
func (v Value) AppendRef(r RefItem) Value {
	var refs []RefItem
	switch v.kind {
	case KindRefList:
		refs = make([]RefItem, len(v.refs), len(v.refs)+1)
		copy(refs, v.refs)
	default:
		for _, line := range v.Lines() {
			refs = append(refs, NewRawRef(line))
		}
	}
	return Value{kind: KindRefList, refs: append(refs, cloneRef(r))}
}

// Equal reports deep equality. List order is significant and a scalar never
// equals a one-element list.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindList:
		return slices.Equal(v.items, o.items)
	case KindRefList:
		return slices.EqualFunc(v.refs, o.refs, RefItem.Equal)
	default:
		return v.text == o.text
	}
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	return Value{kind: v.kind, text: v.text, items: slices.Clone(v.items), refs: cloneRefs(v.refs)}
}

func cloneRef(r RefItem) RefItem {
	if r.Ref != nil {
		ref := *r.Ref
		r.Ref = &ref
	}
	return r
}

func cloneRefs(refs []RefItem) []RefItem {
	if refs == nil {
		return nil
	}
	out := make([]RefItem, len(refs))
	for i, r := range refs {
		out[i] = cloneRef(r)
	}
	return out
}

// Record is an ordered mapping from field name to Value. Field order
// reflects first appearance; it matters for serialization only.
type Record struct {
	keys   []string
	fields map[string]Value
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{fields: make(map[string]Value)}
}

// Set stores v under key. An existing key keeps its position.
func (r *Record) Set(key string, v Value) {
	if r.fields == nil {
		r.fields = make(map[string]Value)
	}
	if _, ok := r.fields[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.fields[key] = v
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (Value, bool) {
	if r == nil {
		return Value{}, false
	}
	v, ok := r.fields[key]
	return v, ok
}

// Has reports whether key is present.
func (r *Record) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// Delete removes key.
func (r *Record) Delete(key string) {
	if _, ok := r.fields[key]; !ok {
		return
	}
	delete(r.fields, key)
	r.keys = slices.DeleteFunc(r.keys, func(k string) bool { return k == key })
}

// Keys returns field names in insertion order.
func (r *Record) Keys() []string {
	if r == nil {
		return nil
	}
	return slices.Clone(r.keys)
}

// Len returns the number of fields.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// ID returns the record's scalar id. Records whose id is missing or repeated
// have no usable identity.
func (r *Record) ID() (string, bool) {
	v, ok := r.Get("id")
	if !ok || v.Kind() != KindScalar {
		return "", false
	}
	return v.Text(), true
}

// Field returns the first rendered line of key, or "".
func (r *Record) Field(key string) string {
	v, ok := r.Get(key)
	if !ok {
		return ""
	}
	return v.First()
}

// Equal reports whether both records hold the same fields with equal
// values. Field order is ignored.
func (r *Record) Equal(o *Record) bool {
	if r.Len() != o.Len() {
		return false
	}
	for _, k := range r.Keys() {
		a, _ := r.Get(k)
		b, ok := o.Get(k)
		if !ok || !a.Equal(b) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	out := NewRecord()
	for _, k := range r.Keys() {
		v, _ := r.Get(k)
		out.Set(k, v.Clone())
	}
	return out
}

// Header is the ordered key/value preamble of a document. Reassigning a key
// keeps its original position and takes the new value.
type Header struct {
	keys   []string
	values map[string]string
}

// NewHeader returns an empty header.
func NewHeader() *Header {
	return &Header{values: make(map[string]string)}
}

// Set stores value under key.
func (h *Header) Set(key, value string) {
	if h.values == nil {
		h.values = make(map[string]string)
	}
	if _, ok := h.values[key]; !ok {
		h.keys = append(h.keys, key)
	}
	h.values[key] = value
}

// Get returns the value stored under key.
func (h *Header) Get(key string) (string, bool) {
	if h == nil {
		return "", false
	}
	v, ok := h.values[key]
	return v, ok
}

// Keys returns header keys in insertion order.
func (h *Header) Keys() []string {
	if h == nil {
		return nil
	}
	return slices.Clone(h.keys)
}

// Len returns the number of header entries.
func (h *Header) Len() int {
	if h == nil {
		return 0
	}
	return len(h.keys)
}

// Equal reports whether both headers hold the same entries, ignoring order.
func (h *Header) Equal(o *Header) bool {
	if h.Len() != o.Len() {
		return false
	}
	for _, k := range h.Keys() {
		a, _ := h.Get(k)
		b, ok := o.Get(k)
		if !ok || a != b {
			return false
		}
	}
	return true
}

// Clone returns a copy of h.
func (h *Header) Clone() *Header {
	out := NewHeader()
	for _, k := range h.Keys() {
		v, _ := h.Get(k)
		out.Set(k, v)
	}
	return out
}

// Document is a parsed ontology file.
type Document struct {
	Header *Header
	Terms  []*Record

	// Typedefs is meaningful only when HasTypedefs is set. A document with
	// HasTypedefs false had no typedef section at all.
	Typedefs    []*Record
	HasTypedefs bool
}

// NewDocument returns an empty document with no typedef section.
func NewDocument() *Document {
	return &Document{Header: NewHeader(), Terms: []*Record{}}
}

// SetTypedefs marks the typedef section present and stores recs.
func (d *Document) SetTypedefs(recs []*Record) {
	if recs == nil {
		recs = []*Record{}
	}
	d.Typedefs = recs
	d.HasTypedefs = true
}

// ClearTypedefs marks the typedef section absent.
func (d *Document) ClearTypedefs() {
	d.Typedefs = nil
	d.HasTypedefs = false
}

// Equal reports structural equality, including typedef presence.
func (d *Document) Equal(o *Document) bool {
	if !d.Header.Equal(o.Header) {
		return false
	}
	if d.HasTypedefs != o.HasTypedefs {
		return false
	}
	if !slices.EqualFunc(d.Terms, o.Terms, (*Record).Equal) {
		return false
	}
	return !d.HasTypedefs || slices.EqualFunc(d.Typedefs, o.Typedefs, (*Record).Equal)
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	out := &Document{Header: d.Header.Clone(), HasTypedefs: d.HasTypedefs}
	out.Terms = make([]*Record, len(d.Terms))
	for i, t := range d.Terms {
		out.Terms[i] = t.Clone()
	}
	if d.Typedefs != nil {
		out.Typedefs = make([]*Record, len(d.Typedefs))
		for i, t := range d.Typedefs {
			out.Typedefs[i] = t.Clone()
		}
	}
	return out
}
