package obo

import (
	"regexp"
	"strings"
	"unicode"
)

// DefaultRefPrefix is the ontology code recognized in is_a references when
// no other prefix is configured.
const DefaultRefPrefix = "SBO"

// RefField is the field whose values are parsed as references.
const RefField = "is_a"

var sectionMarker = regexp.MustCompile(`\[(Term|Typedef)\]`)

// RefPattern returns the reference pattern for an ontology code. An empty
// prefix accepts any alphabetic code.
func RefPattern(prefix string) *regexp.Regexp {
	code := `[A-Za-z_]+`
	if prefix != "" {
		code = regexp.QuoteMeta(prefix)
	}
	return regexp.MustCompile(`^(` + code + `:\d+)\s*!\s*(.*)`)
}

// Parser converts OBO text into a Document. Parsing is total: malformed
// lines are skipped rather than reported.
type Parser struct {
	refPattern *regexp.Regexp
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithRefPrefix sets the ontology code matched in is_a values.
func WithRefPrefix(prefix string) ParserOption {
	return func(p *Parser) {
		p.refPattern = RefPattern(prefix)
	}
}

// WithRefPattern sets the full is_a pattern. It must have two groups: id
// and name.
func WithRefPattern(re *regexp.Regexp) ParserOption {
	return func(p *Parser) {
		p.refPattern = re
	}
}

// NewParser returns a parser using the default SBO reference pattern unless
// overridden.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{refPattern: RefPattern(DefaultRefPrefix)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var defaultParser = NewParser()

// Parse parses text with the default parser.
func Parse(text string) *Document {
	return defaultParser.Parse(text)
}

// Parse splits text on [Term] and [Typedef] markers and builds a document.
// Text before the first marker is the header.
func (p *Parser) Parse(text string) *Document {
	doc := NewDocument()

	bounds := sectionMarker.FindAllStringSubmatchIndex(text, -1)
	headerEnd := len(text)
	if len(bounds) > 0 {
		headerEnd = bounds[0][0]
	}
	p.parseHeader(doc.Header, text[:headerEnd])

	var typedefs []*Record
	for i, b := range bounds {
		kind := text[b[2]:b[3]]
		end := len(text)
		if i+1 < len(bounds) {
			end = bounds[i+1][0]
		}
		rec := p.parseRecord(text[b[1]:end])
		if rec.Len() == 0 {
			continue
		}
		if kind == "Term" {
			doc.Terms = append(doc.Terms, rec)
		} else {
			typedefs = append(typedefs, rec)
		}
	}
	if len(typedefs) > 0 {
		doc.SetTypedefs(typedefs)
	}
	return doc
}

func (p *Parser) parseHeader(h *Header, segment string) {
	for _, line := range strings.Split(segment, "\n") {
		key, value, ok := splitLine(line)
		if !ok {
			continue
		}
		h.Set(key, value)
	}
}

func (p *Parser) parseRecord(segment string) *Record {
	rec := NewRecord()
	for _, line := range strings.Split(segment, "\n") {
		key, value, ok := splitLine(line)
		if !ok {
			continue
		}
		if key == RefField {
			item := p.parseRef(value)
			existing, _ := rec.Get(key)
			if !rec.Has(key) {
				rec.Set(key, RefList(item))
			} else {
				rec.Set(key, existing.AppendRef(item))
			}
			continue
		}
		if existing, ok := rec.Get(key); ok {
			rec.Set(key, existing.Append(value))
		} else {
			rec.Set(key, Scalar(value))
		}
	}
	return rec
}

func (p *Parser) parseRef(value string) RefItem {
	m := p.refPattern.FindStringSubmatch(value)
	if len(m) < 3 {
		return NewRawRef(value)
	}
	return NewRef(m[1], m[2])
}

// splitLine applies the line rule shared by header and sections: blank
// lines and lines without a colon are skipped, the key is trimmed and the
// value loses only its leading whitespace.
func splitLine(line string) (key, value string, ok bool) {
	if strings.TrimSpace(line) == "" {
		return "", "", false
	}
	before, after, found := strings.Cut(line, ":")
	if !found {
		return "", "", false
	}
	return strings.TrimSpace(before), strings.TrimLeftFunc(after, unicode.IsSpace), true
}
