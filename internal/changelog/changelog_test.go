package changelog

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FocuswithJustin/obosync/core/diff"
	"github.com/FocuswithJustin/obosync/core/obo"
)

const oldText = `format-version: 1.2

[Term]
id: SBO:0000001
name: rate law
is_a: SBO:0000000 ! root

[Term]
id: SBO:0000002
name: gone
`

const newText = `format-version: 1.4

[Term]
id: SBO:0000001
name: kinetic law
comment: renamed
is_a: SBO:0000000 ! root

[Term]
id: SBO:0000003
name: fresh
is_a: SBO:0000001 ! kinetic law
is_a: something else
`

func sampleReport() *diff.Report {
	return diff.Compare(obo.Parse(oldText), obo.Parse(newText))
}

func TestBuild(t *testing.T) {
	l := Build(sampleReport(), &VersionInfo{ID: "a"}, &VersionInfo{ID: "b"}, time.Unix(0, 0))

	tc := l.Changes.TermChanges
	require.Len(t, tc.Added, 1)
	assert.Equal(t, "SBO:0000003", tc.Added[0].OBOID)
	assert.Equal(t, ChangeAdd, tc.Added[0].ChangeType)
	assert.Equal(t, noDescription, tc.Added[0].Description)
	assert.Equal(t, []Parent{
		{ID: "SBO:0000001", Label: "kinetic law"},
		{ID: "something else", Label: unknown},
	}, tc.Added[0].Parents)

	require.Len(t, tc.Deleted, 1)
	assert.Equal(t, "gone", tc.Deleted[0].Label)

	require.Len(t, tc.Updated, 1)
	u := tc.Updated[0]
	assert.Equal(t, "kinetic law", u.Label)
	assert.Equal(t, "renamed", u.Description)
	assert.Equal(t, "rate law", u.OldValues.Label)
	assert.Contains(t, u.FieldChanges, "name")
	assert.Contains(t, u.FieldChanges, "comment")

	assert.True(t, l.Summary.HeaderUpdated)
	assert.Contains(t, l.Changes.HeaderChanges, "format-version")
}

func TestWriterRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	w := NewWriter(dir, func(time.Time) string { return "sbo_changes_test.json" })

	path, err := w.Write(sampleReport(), nil, &VersionInfo{ID: "new", CommitSHA: "abc"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sbo_changes_test.json"), path)

	l, err := Load(path)
	require.NoError(t, err)
	assert.Nil(t, l.OldVersion)
	assert.Equal(t, "abc", l.NewVersion.CommitSHA)
	assert.Equal(t, 1, l.Summary.TermsAdded)
	assert.Len(t, l.Changes.TermChanges.Updated, 1)
}

func TestWriterSkipsEmptyReport(t *testing.T) {
	doc := obo.Parse(oldText)
	w := NewWriter(t.TempDir(), func(time.Time) string { return "x.json" })
	path, err := w.Write(diff.Compare(doc, doc), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	WriteSummary(&buf, sampleReport())
	out := buf.String()
	assert.Contains(t, out, "Change Summary")
	assert.Contains(t, out, "+ Added:   1")
	assert.Contains(t, out, "- Deleted: 1")
	assert.Contains(t, out, "~ Updated: 1")
	assert.Contains(t, out, "Header: 1 updated (format-version)")
	assert.Contains(t, out, "Total changes: 3 items")

	buf.Reset()
	doc := obo.Parse(oldText)
	WriteSummary(&buf, diff.Compare(doc, doc))
	assert.Equal(t, "No changes found\n", buf.String())
}

func TestWriteDetailsLimit(t *testing.T) {
	var buf bytes.Buffer
	WriteDetails(&buf, sampleReport(), 5)
	out := buf.String()
	assert.Contains(t, out, "Added Terms (showing 1 of 1)")
	assert.Contains(t, out, "1. SBO:0000003 - fresh")
	assert.Contains(t, out, "1. SBO:0000001 - kinetic law")
	assert.Contains(t, out, "~ name: updated")
	assert.Contains(t, out, "+ comment: added")

	var many strings.Builder
	many.WriteString("format-version: 1.2\n")
	for i := 0; i < 8; i++ {
		many.WriteString("\n[Term]\nid: SBO:10" + string(rune('0'+i)) + "\nname: n\n")
	}
	report := diff.Compare(obo.Parse(""), obo.Parse(many.String()))
	buf.Reset()
	WriteDetails(&buf, report, 3)
	assert.Contains(t, buf.String(), "Added Terms (showing 3 of 8)")
	assert.NotContains(t, buf.String(), "4. ")
}
