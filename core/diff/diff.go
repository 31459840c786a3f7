// Package diff computes structural differences between two OBO documents.
//
// Records are joined by their id; records without a scalar id take no part
// in the comparison. Value equality is deep: field order inside a record is
// ignored, list order is not.
package diff

import (
	"encoding/json"
	"slices"

	"github.com/FocuswithJustin/obosync/core/obo"
)

// Action classifies a single change.
type Action string

const (
	Added   Action = "added"
	Deleted Action = "deleted"
	Updated Action = "updated"
)

// HeaderChange is a change to one header key.
type HeaderChange struct {
	Action   Action  `json:"action"`
	OldValue *string `json:"old_value,omitempty"`
	NewValue *string `json:"new_value,omitempty"`
}

// FieldChange is a change to one record field.
type FieldChange struct {
	Action   Action     `json:"action"`
	OldValue *obo.Value `json:"old_value,omitempty"`
	NewValue *obo.Value `json:"new_value,omitempty"`
}

// RecordUpdate describes a record present on both sides with different
// content.
type RecordUpdate struct {
	ID           string                 `json:"id"`
	Old          *obo.Record            `json:"old_term"`
	New          *obo.Record            `json:"new_term"`
	FieldChanges map[string]FieldChange `json:"field_changes"`
}

// typedefUpdate is the JSON form of a typedef RecordUpdate.
type typedefUpdate struct {
	ID           string                 `json:"id"`
	Old          *obo.Record            `json:"old_typedef"`
	New          *obo.Record            `json:"new_typedef"`
	FieldChanges map[string]FieldChange `json:"field_changes"`
}

// FieldNames returns the changed field names, sorted.
func (u RecordUpdate) FieldNames() []string {
	return sortedKeys(u.FieldChanges)
}

// CollectionChanges groups the changes to terms or typedefs.
type CollectionChanges struct {
	Added   []*obo.Record  `json:"added"`
	Deleted []*obo.Record  `json:"deleted"`
	Updated []RecordUpdate `json:"updated"`
}

// Len returns the total number of changed records.
func (c CollectionChanges) Len() int {
	return len(c.Added) + len(c.Deleted) + len(c.Updated)
}

// Stats counts changes per category.
type Stats struct {
	TermsAdded      int  `json:"terms_added"`
	TermsDeleted    int  `json:"terms_deleted"`
	TermsUpdated    int  `json:"terms_updated"`
	TypedefsAdded   int  `json:"typedefs_added"`
	TypedefsDeleted int  `json:"typedefs_deleted"`
	TypedefsUpdated int  `json:"typedefs_updated"`
	HeaderUpdated   bool `json:"header_updated"`
}

// Total returns the number of changed records plus one if the header
// changed.
func (s Stats) Total() int {
	n := s.TermsAdded + s.TermsDeleted + s.TermsUpdated +
		s.TypedefsAdded + s.TypedefsDeleted + s.TypedefsUpdated
	if s.HeaderUpdated {
		n++
	}
	return n
}

// Report is the full change report between two documents.
type Report struct {
	HeaderChanges  map[string]HeaderChange `json:"header_changes"`
	TermChanges    CollectionChanges       `json:"term_changes"`
	TypedefChanges CollectionChanges       `json:"typedef_changes"`
	Stats          Stats                   `json:"stats"`
	HasChanges     bool                    `json:"has_changes"`
}

// MarshalJSON names the sides of a typedef update old_typedef and
// new_typedef, and those of a term update old_term and new_term.
func (r *Report) MarshalJSON() ([]byte, error) {
	type typedefChanges struct {
		Added   []*obo.Record   `json:"added"`
		Deleted []*obo.Record   `json:"deleted"`
		Updated []typedefUpdate `json:"updated"`
	}
	type report struct {
		HeaderChanges  map[string]HeaderChange `json:"header_changes"`
		TermChanges    CollectionChanges       `json:"term_changes"`
		TypedefChanges typedefChanges          `json:"typedef_changes"`
		Stats          Stats                   `json:"stats"`
		HasChanges     bool                    `json:"has_changes"`
	}
	out := report{
		HeaderChanges: r.HeaderChanges,
		TermChanges:   r.TermChanges,
		TypedefChanges: typedefChanges{
			Added:   r.TypedefChanges.Added,
			Deleted: r.TypedefChanges.Deleted,
			Updated: make([]typedefUpdate, len(r.TypedefChanges.Updated)),
		},
		Stats:      r.Stats,
		HasChanges: r.HasChanges,
	}
	for i, u := range r.TypedefChanges.Updated {
		out.TypedefChanges.Updated[i] = typedefUpdate(u)
	}
	return json.Marshal(out)
}

// HeaderKeys returns the changed header keys, sorted.
func (r *Report) HeaderKeys() []string {
	return sortedKeys(r.HeaderChanges)
}

// Compare returns the changes that turn old into new. Both documents are
// left untouched. A missing typedef section compares as an empty one.
func Compare(old, new *obo.Document) *Report {
	r := &Report{
		HeaderChanges:  CompareHeaders(old.Header, new.Header),
		TermChanges:    CompareRecords(old.Terms, new.Terms),
		TypedefChanges: CompareRecords(typedefs(old), typedefs(new)),
	}
	r.Stats = Stats{
		TermsAdded:      len(r.TermChanges.Added),
		TermsDeleted:    len(r.TermChanges.Deleted),
		TermsUpdated:    len(r.TermChanges.Updated),
		TypedefsAdded:   len(r.TypedefChanges.Added),
		TypedefsDeleted: len(r.TypedefChanges.Deleted),
		TypedefsUpdated: len(r.TypedefChanges.Updated),
		HeaderUpdated:   len(r.HeaderChanges) > 0,
	}
	r.HasChanges = r.Stats.Total() > 0
	return r
}

func typedefs(d *obo.Document) []*obo.Record {
	if !d.HasTypedefs {
		return nil
	}
	return d.Typedefs
}

// CompareHeaders diffs two headers key by key.
func CompareHeaders(old, new *obo.Header) map[string]HeaderChange {
	changes := make(map[string]HeaderChange)
	for _, k := range new.Keys() {
		nv, _ := new.Get(k)
		ov, ok := old.Get(k)
		switch {
		case !ok:
			changes[k] = HeaderChange{Action: Added, NewValue: &nv}
		case ov != nv:
			changes[k] = HeaderChange{Action: Updated, OldValue: &ov, NewValue: &nv}
		}
	}
	for _, k := range old.Keys() {
		if _, ok := new.Get(k); ok {
			continue
		}
		ov, _ := old.Get(k)
		changes[k] = HeaderChange{Action: Deleted, OldValue: &ov}
	}
	return changes
}

// CompareFields diffs two records field by field.
func CompareFields(old, new *obo.Record) map[string]FieldChange {
	changes := make(map[string]FieldChange)
	for _, k := range new.Keys() {
		nv, _ := new.Get(k)
		ov, ok := old.Get(k)
		switch {
		case !ok:
			changes[k] = FieldChange{Action: Added, NewValue: &nv}
		case !ov.Equal(nv):
			changes[k] = FieldChange{Action: Updated, OldValue: &ov, NewValue: &nv}
		}
	}
	for _, k := range old.Keys() {
		if new.Has(k) {
			continue
		}
		ov, _ := old.Get(k)
		changes[k] = FieldChange{Action: Deleted, OldValue: &ov}
	}
	return changes
}

// index maps ids to records. Later duplicates replace earlier ones but the
// id keeps its first position.
type index struct {
	order []string
	byID  map[string]*obo.Record
}

func newIndex(recs []*obo.Record) index {
	idx := index{byID: make(map[string]*obo.Record)}
	for _, r := range recs {
		id, ok := r.ID()
		if !ok {
			continue
		}
		if _, seen := idx.byID[id]; !seen {
			idx.order = append(idx.order, id)
		}
		idx.byID[id] = r
	}
	return idx
}

// CompareRecords diffs two id-indexed collections. Added and updated
// records follow the new order; deleted records follow the old order.
func CompareRecords(old, new []*obo.Record) CollectionChanges {
	oi, ni := newIndex(old), newIndex(new)
	c := CollectionChanges{
		Added:   []*obo.Record{},
		Deleted: []*obo.Record{},
		Updated: []RecordUpdate{},
	}
	for _, id := range ni.order {
		nr := ni.byID[id]
		or, ok := oi.byID[id]
		if !ok {
			c.Added = append(c.Added, nr)
			continue
		}
		if or.Equal(nr) {
			continue
		}
		c.Updated = append(c.Updated, RecordUpdate{
			ID:           id,
			Old:          or,
			New:          nr,
			FieldChanges: CompareFields(or, nr),
		})
	}
	for _, id := range oi.order {
		if _, ok := ni.byID[id]; !ok {
			c.Deleted = append(c.Deleted, oi.byID[id])
		}
	}
	return c
}

func sortedKeys[V any](m map[string]V) []string {
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	slices.Sort(ks)
	return ks
}
