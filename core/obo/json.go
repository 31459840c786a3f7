package obo

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/FocuswithJustin/obosync/core/errors"
)

// EncodeJSON renders doc in its canonical JSON form: two-space indented,
// header and field order preserved, HTML characters left unescaped, and a
// trailing newline.
func EncodeJSON(doc *Document) ([]byte, error) {
	raw, err := doc.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return nil, fmt.Errorf("failed to indent JSON: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// DecodeJSON parses canonical JSON into a Document.
func DecodeJSON(data []byte) (*Document, error) {
	doc := NewDocument()
	if err := doc.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return doc, nil
}

// MarshalJSON implements json.Marshaler.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"header":`)
	writeHeader(&buf, d.Header)
	buf.WriteString(`,"terms":`)
	writeRecords(&buf, d.Terms)
	if d.HasTypedefs {
		buf.WriteString(`,"typedefs":`)
		writeRecords(&buf, d.Typedefs)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler.
func (h *Header) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	writeHeader(&buf, h)
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	writeRecord(&buf, r)
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	writeValue(&buf, v)
	return buf.Bytes(), nil
}

func writeString(buf *bytes.Buffer, s string) {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
}

func writeHeader(buf *bytes.Buffer, h *Header) {
	buf.WriteByte('{')
	for i, k := range h.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		v, _ := h.Get(k)
		writeString(buf, k)
		buf.WriteByte(':')
		writeString(buf, v)
	}
	buf.WriteByte('}')
}

func writeRecords(buf *bytes.Buffer, recs []*Record) {
	buf.WriteByte('[')
	for i, r := range recs {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeRecord(buf, r)
	}
	buf.WriteByte(']')
}

func writeRecord(buf *bytes.Buffer, r *Record) {
	buf.WriteByte('{')
	for i, k := range r.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		v, _ := r.Get(k)
		writeString(buf, k)
		buf.WriteByte(':')
		writeValue(buf, v)
	}
	buf.WriteByte('}')
}

func writeValue(buf *bytes.Buffer, v Value) {
	switch v.Kind() {
	case KindList:
		buf.WriteByte('[')
		for i, s := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, s)
		}
		buf.WriteByte(']')
	case KindRefList:
		buf.WriteByte('[')
		for i, r := range v.refs {
			if i > 0 {
				buf.WriteByte(',')
			}
			if r.Ref == nil {
				writeString(buf, r.Text)
				continue
			}
			buf.WriteString(`{"id":`)
			writeString(buf, r.Ref.ID)
			buf.WriteString(`,"name":`)
			writeString(buf, r.Ref.Name)
			buf.WriteByte('}')
		}
		buf.WriteByte(']')
	default:
		writeString(buf, v.text)
	}
}

// UnmarshalJSON implements json.Unmarshaler. Object key order is kept.
// Unknown top-level keys are ignored.
func (d *Document) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	d.Header = NewHeader()
	d.Terms = []*Record{}
	d.ClearTypedefs()

	err := readObject(dec, func(key string) error {
		switch key {
		case "header":
			return readHeader(dec, d.Header)
		case "terms":
			recs, present, err := readRecords(dec, "terms")
			if err != nil {
				return err
			}
			if present {
				d.Terms = recs
			}
			return nil
		case "typedefs":
			recs, present, err := readRecords(dec, "typedefs")
			if err != nil {
				return err
			}
			if present {
				d.SetTypedefs(recs)
			}
			return nil
		default:
			var skip json.RawMessage
			return dec.Decode(&skip)
		}
	})
	if err != nil {
		return jsonError(err)
	}
	return nil
}

// UnmarshalJSON decodes a standalone value. Without a field name an array
// of plain strings always decodes as a list.
func (v *Value) UnmarshalJSON(data []byte) error {
	val, err := readValue(json.NewDecoder(bytes.NewReader(data)), "")
	if err != nil {
		return jsonError(err)
	}
	*v = val
	return nil
}

func jsonError(err error) error {
	var pe *errors.ParseError
	if errors.As(err, &pe) {
		return err
	}
	return errors.NewParse("JSON", "", err.Error())
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return errors.NewParse("JSON", "", fmt.Sprintf("expected %q, got %v", want, tok))
	}
	return nil
}

func readObject(dec *json.Decoder, field func(key string) error) error {
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return errors.NewParse("JSON", "", fmt.Sprintf("expected object key, got %v", tok))
		}
		if err := field(key); err != nil {
			return err
		}
	}
	return expectDelim(dec, '}')
}

func readHeader(dec *json.Decoder, h *Header) error {
	return readObject(dec, func(key string) error {
		var s string
		if err := dec.Decode(&s); err != nil {
			return errors.NewParse("JSON", "", fmt.Sprintf("header value for %q must be a string", key))
		}
		h.Set(key, s)
		return nil
	})
}

// readRecords reads an array of records. A JSON null reports not present.
func readRecords(dec *json.Decoder, name string) ([]*Record, bool, error) {
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, false, err
	}
	raw = bytes.TrimSpace(raw)
	if bytes.Equal(raw, []byte("null")) {
		return nil, false, nil
	}
	sub := json.NewDecoder(bytes.NewReader(raw))
	if err := expectDelim(sub, '['); err != nil {
		return nil, false, errors.NewParse("JSON", "", name+" must be an array")
	}
	recs := []*Record{}
	for sub.More() {
		rec := NewRecord()
		err := readObject(sub, func(key string) error {
			v, err := readValue(sub, key)
			if err != nil {
				return err
			}
			rec.Set(key, v)
			return nil
		})
		if err != nil {
			return nil, false, err
		}
		recs = append(recs, rec)
	}
	if err := expectDelim(sub, ']'); err != nil {
		return nil, false, err
	}
	return recs, true, nil
}

// readValue decodes a field value. Strings become scalars; arrays become
// string lists, or reference lists for is_a and for arrays holding objects.
func readValue(dec *json.Decoder, key string) (Value, error) {
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return Value{}, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Value{}, errors.NewParse("JSON", "", fmt.Sprintf("field %q has no value", key))
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, err
		}
		return Scalar(s), nil
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return Value{}, err
		}
		return listValue(key, elems)
	default:
		return Value{}, errors.NewParse("JSON", "", fmt.Sprintf("field %q must be a string or an array", key))
	}
}

func listValue(key string, elems []json.RawMessage) (Value, error) {
	refs := key == RefField
	for _, e := range elems {
		if b := bytes.TrimSpace(e); len(b) > 0 && b[0] == '{' {
			refs = true
		}
	}

	if !refs {
		items := make([]string, 0, len(elems))
		for _, e := range elems {
			var s string
			if err := json.Unmarshal(e, &s); err != nil {
				return Value{}, errors.NewParse("JSON", "", fmt.Sprintf("field %q must hold strings", key))
			}
			items = append(items, s)
		}
		return List(items...), nil
	}

	items := make([]RefItem, 0, len(elems))
	for _, e := range elems {
		b := bytes.TrimSpace(e)
		if len(b) > 0 && b[0] == '{' {
			var ref Ref
			if err := json.Unmarshal(b, &ref); err != nil {
				return Value{}, errors.NewParse("JSON", "", fmt.Sprintf("field %q holds a malformed reference", key))
			}
			items = append(items, NewRef(ref.ID, ref.Name))
			continue
		}
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return Value{}, errors.NewParse("JSON", "", fmt.Sprintf("field %q must hold strings or references", key))
		}
		items = append(items, NewRawRef(s))
	}
	return RefList(items...), nil
}
