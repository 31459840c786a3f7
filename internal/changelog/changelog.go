// Package changelog records and renders the changes between two ontology
// versions.
package changelog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/FocuswithJustin/obosync/core/diff"
	apperrors "github.com/FocuswithJustin/obosync/core/errors"
	"github.com/FocuswithJustin/obosync/core/obo"
	"github.com/FocuswithJustin/obosync/internal/logging"
)

const (
	unknown       = "Unknown"
	noDescription = "No description"
)

// Change types recorded on each entry.
const (
	ChangeAdd    = "add"
	ChangeDelete = "delete"
	ChangeUpdate = "update"
)

// VersionInfo identifies one side of a change log.
type VersionInfo struct {
	ID        string    `json:"id,omitempty"`
	Source    string    `json:"source,omitempty"`
	CommitSHA string    `json:"commit_sha,omitempty"`
	Date      time.Time `json:"date,omitempty"`
}

// Parent is one is_a reference of a term.
type Parent struct {
	ID    string `json:"parent_id"`
	Label string `json:"parent_label"`
}

// OldValues holds what an updated record looked like before.
type OldValues struct {
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Parents     []Parent `json:"parents,omitempty"`
}

// Entry is one changed term or typedef.
type Entry struct {
	OBOID        string                      `json:"obo_id"`
	Label        string                      `json:"label"`
	Description  string                      `json:"description"`
	Parents      []Parent                    `json:"parents,omitempty"`
	ChangeType   string                      `json:"change_type"`
	FieldChanges map[string]diff.FieldChange `json:"field_changes,omitempty"`
	OldValues    *OldValues                  `json:"old_values,omitempty"`
}

// Changes groups entries by kind of change.
type Changes struct {
	Added   []Entry `json:"added"`
	Deleted []Entry `json:"deleted"`
	Updated []Entry `json:"updated"`
}

// Log is the content of one change log file.
type Log struct {
	Timestamp  time.Time    `json:"timestamp"`
	OldVersion *VersionInfo `json:"old_version"`
	NewVersion *VersionInfo `json:"new_version"`
	Summary    diff.Stats   `json:"summary"`
	Changes    struct {
		HeaderChanges  map[string]diff.HeaderChange `json:"header_changes"`
		TermChanges    Changes                      `json:"term_changes"`
		TypedefChanges Changes                      `json:"typedef_changes"`
	} `json:"changes"`
}

// Build formats a diff report as a change log.
func Build(report *diff.Report, oldVersion, newVersion *VersionInfo, now time.Time) *Log {
	l := &Log{
		Timestamp:  now,
		OldVersion: oldVersion,
		NewVersion: newVersion,
		Summary:    report.Stats,
	}
	l.Changes.HeaderChanges = report.HeaderChanges
	l.Changes.TermChanges = formatChanges(report.TermChanges, true)
	l.Changes.TypedefChanges = formatChanges(report.TypedefChanges, false)
	return l
}

func formatChanges(c diff.CollectionChanges, withParents bool) Changes {
	out := Changes{
		Added:   make([]Entry, 0, len(c.Added)),
		Deleted: make([]Entry, 0, len(c.Deleted)),
		Updated: make([]Entry, 0, len(c.Updated)),
	}
	for _, rec := range c.Added {
		out.Added = append(out.Added, entry(rec, ChangeAdd, withParents))
	}
	for _, rec := range c.Deleted {
		out.Deleted = append(out.Deleted, entry(rec, ChangeDelete, withParents))
	}
	for _, u := range c.Updated {
		e := Entry{
			OBOID:        u.ID,
			Label:        fieldOr(u.New, "name", fieldOr(u.Old, "name", unknown)),
			Description:  fieldOr(u.New, "comment", fieldOr(u.Old, "comment", noDescription)),
			ChangeType:   ChangeUpdate,
			FieldChanges: u.FieldChanges,
			OldValues: &OldValues{
				Label:       fieldOr(u.Old, "name", unknown),
				Description: fieldOr(u.Old, "comment", noDescription),
			},
		}
		if withParents {
			e.Parents = Parents(u.New)
			e.OldValues.Parents = Parents(u.Old)
		}
		out.Updated = append(out.Updated, e)
	}
	return out
}

func entry(rec *obo.Record, changeType string, withParents bool) Entry {
	e := Entry{
		OBOID:       fieldOr(rec, "id", unknown),
		Label:       fieldOr(rec, "name", unknown),
		Description: fieldOr(rec, "comment", noDescription),
		ChangeType:  changeType,
	}
	if withParents {
		e.Parents = Parents(rec)
	}
	return e
}

func fieldOr(rec *obo.Record, key, fallback string) string {
	if rec == nil || !rec.Has(key) {
		return fallback
	}
	return rec.Field(key)
}

// Parents lists a record's is_a references. Unmatched references keep
// their raw text as the id.
func Parents(rec *obo.Record) []Parent {
	if rec == nil {
		return nil
	}
	v, ok := rec.Get(obo.RefField)
	if !ok {
		return nil
	}
	var parents []Parent
	switch v.Kind() {
	case obo.KindRefList:
		for _, r := range v.Refs() {
			if r.Ref != nil {
				parents = append(parents, Parent{ID: r.Ref.ID, Label: r.Ref.Name})
			} else {
				parents = append(parents, Parent{ID: r.Text, Label: unknown})
			}
		}
	default:
		for _, line := range v.Lines() {
			parents = append(parents, Parent{ID: line, Label: unknown})
		}
	}
	return parents
}

// Writer saves change logs into a directory.
type Writer struct {
	Dir  string
	Name func(time.Time) string
	now  func() time.Time
}

// NewWriter returns a Writer; name maps the write time to a file name.
func NewWriter(dir string, name func(time.Time) string) *Writer {
	return &Writer{Dir: dir, Name: name, now: time.Now}
}

// Write saves a change log for report and returns its path. A report
// without changes writes nothing and returns "".
func (w *Writer) Write(report *diff.Report, oldVersion, newVersion *VersionInfo) (string, error) {
	if report == nil || !report.HasChanges {
		return "", nil
	}
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return "", apperrors.NewIO("create directory", w.Dir, err)
	}

	now := w.now()
	l := Build(report, oldVersion, newVersion, now)
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal change log: %w", err)
	}

	path := filepath.Join(w.Dir, w.Name(now))
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return "", apperrors.NewIO("write", path, err)
	}
	logging.FileEvent("changelog", path, "changes", report.Stats.Total())
	return path, nil
}

// Load reads a change log file.
func Load(path string) (*Log, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewIO("read", path, err)
	}
	var l Log
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, &apperrors.ParseError{Format: "change log", Path: path, Message: err.Error()}
	}
	return &l, nil
}

const rule = "============================================================"

// WriteSummary renders the change counts.
func WriteSummary(w io.Writer, report *diff.Report) {
	if report == nil || !report.HasChanges {
		fmt.Fprintln(w, "No changes found")
		return
	}
	s := report.Stats

	fmt.Fprintf(w, "\n%s\nChange Summary\n%s\n", rule, rule)
	if s.TermsAdded+s.TermsDeleted+s.TermsUpdated > 0 {
		fmt.Fprintln(w, "Terms:")
		writeCounts(w, s.TermsAdded, s.TermsDeleted, s.TermsUpdated)
	}
	if s.TypedefsAdded+s.TypedefsDeleted+s.TypedefsUpdated > 0 {
		fmt.Fprintln(w, "Typedefs:")
		writeCounts(w, s.TypedefsAdded, s.TypedefsDeleted, s.TypedefsUpdated)
	}
	if s.HeaderUpdated {
		fmt.Fprintf(w, "Header: %s updated (%s)\n", humanize.Comma(int64(len(report.HeaderChanges))), strings.Join(report.HeaderKeys(), ", "))
	}
	records := report.TermChanges.Len() + report.TypedefChanges.Len()
	fmt.Fprintf(w, "\nTotal changes: %s items\n%s\n", humanize.Comma(int64(records)), rule)
}

func writeCounts(w io.Writer, added, deleted, updated int) {
	if added > 0 {
		fmt.Fprintf(w, "  + Added:   %s\n", humanize.Comma(int64(added)))
	}
	if deleted > 0 {
		fmt.Fprintf(w, "  - Deleted: %s\n", humanize.Comma(int64(deleted)))
	}
	if updated > 0 {
		fmt.Fprintf(w, "  ~ Updated: %s\n", humanize.Comma(int64(updated)))
	}
}

// WriteDetails lists up to limit changed terms of each kind along with the
// fields that changed. A limit below 1 lists everything.
func WriteDetails(w io.Writer, report *diff.Report, limit int) {
	if report == nil || !report.HasChanges {
		return
	}
	tc := report.TermChanges

	writeRecords(w, "Added Terms", tc.Added, limit)
	writeRecords(w, "Deleted Terms", tc.Deleted, limit)

	if len(tc.Updated) > 0 {
		n := shown(len(tc.Updated), limit)
		fmt.Fprintf(w, "\nUpdated Terms (showing %d of %s):\n", n, humanize.Comma(int64(len(tc.Updated))))
		for i, u := range tc.Updated[:n] {
			fmt.Fprintf(w, "  %d. %s - %s\n", i+1, u.ID, fieldOr(u.New, "name", unknown))
			for _, field := range u.FieldNames() {
				fmt.Fprintf(w, "      %s %s: %s\n", actionMark(u.FieldChanges[field].Action), field, u.FieldChanges[field].Action)
			}
		}
	}
}

func writeRecords(w io.Writer, title string, recs []*obo.Record, limit int) {
	if len(recs) == 0 {
		return
	}
	n := shown(len(recs), limit)
	fmt.Fprintf(w, "\n%s (showing %d of %s):\n", title, n, humanize.Comma(int64(len(recs))))
	for i, rec := range recs[:n] {
		fmt.Fprintf(w, "  %d. %s - %s\n", i+1, fieldOr(rec, "id", unknown), fieldOr(rec, "name", unknown))
	}
}

func shown(total, limit int) int {
	if limit < 1 || limit > total {
		return total
	}
	return limit
}

func actionMark(a diff.Action) string {
	switch a {
	case diff.Added:
		return "+"
	case diff.Deleted:
		return "-"
	default:
		return "~"
	}
}
