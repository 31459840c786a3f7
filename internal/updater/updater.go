// Package updater keeps the local ontology in step with its upstream
// source. A sync is one transaction: download, parse, serialize,
// round-trip check and diff all happen in memory, and nothing reaches the
// version store unless the candidate is accepted.
package updater

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/obosync/core/diff"
	apperrors "github.com/FocuswithJustin/obosync/core/errors"
	"github.com/FocuswithJustin/obosync/core/obo"
	"github.com/FocuswithJustin/obosync/core/roundtrip"
	"github.com/FocuswithJustin/obosync/internal/changelog"
	"github.com/FocuswithJustin/obosync/internal/logging"
	"github.com/FocuswithJustin/obosync/internal/upstream"
	"github.com/FocuswithJustin/obosync/internal/versionstore"
)

// Source is the upstream the updater polls.
type Source interface {
	LatestCommit(ctx context.Context) (*upstream.CommitInfo, error)
	Download(ctx context.Context, commit *upstream.CommitInfo) ([]byte, error)
}

// Verdict is the outcome of Decide.
type Verdict int

const (
	Accept Verdict = iota
	Reject
	NeedsConfirmation
)

func (v Verdict) String() string {
	switch v {
	case Accept:
		return "accept"
	case Reject:
		return "reject"
	case NeedsConfirmation:
		return "needs_confirmation"
	default:
		return fmt.Sprintf("Verdict(%d)", int(v))
	}
}

// Decision is what to do with a candidate. Changes is set whenever a
// previous version existed to compare against.
type Decision struct {
	Verdict Verdict
	Reason  string
	Changes *diff.Report
}

// Status compares the local version with upstream.
type Status struct {
	Local       *versionstore.Version `json:"local,omitempty"`
	Synced      *versionstore.Version `json:"synced,omitempty"`
	Remote      *upstream.CommitInfo  `json:"remote"`
	NeedsUpdate bool                  `json:"needs_update"`
}

// Candidate is a downloaded upstream file held in memory until it is
// applied or discarded.
type Candidate struct {
	Commit    *upstream.CommitInfo
	OBOText   []byte
	Document  *obo.Document
	Roundtrip *roundtrip.Report
	Base      *versionstore.Version
	Changes   *diff.Report
}

// Result describes a committed version.
type Result struct {
	Version       *versionstore.Version  `json:"version"`
	ChangeLogPath string                 `json:"change_log,omitempty"`
	Pruned        []versionstore.Version `json:"pruned,omitempty"`
}

// ConfirmFunc is asked whether to apply a candidate with changes.
type ConfirmFunc func(ctx context.Context, changes *diff.Report) (bool, error)

// Updater drives a sync.
type Updater struct {
	source     Source
	store      versionstore.Store
	parser     *obo.Parser
	serializer *obo.Serializer
	validator  *roundtrip.Validator
	changes    *changelog.Writer
	keep       int
	autoAccept bool
	dryRun     bool
}

// Option configures an Updater.
type Option func(*Updater)

// WithParser replaces the default parser.
func WithParser(p *obo.Parser) Option {
	return func(u *Updater) { u.parser = p }
}

// WithSerializer replaces the default serializer.
func WithSerializer(s *obo.Serializer) Option {
	return func(u *Updater) { u.serializer = s }
}

// WithValidator replaces the default round-trip validator.
func WithValidator(v *roundtrip.Validator) Option {
	return func(u *Updater) { u.validator = v }
}

// WithChangeLog writes a change log for every applied version with
// changes.
func WithChangeLog(w *changelog.Writer) Option {
	return func(u *Updater) { u.changes = w }
}

// WithRetention sets how many versions survive an apply. Zero disables
// pruning.
func WithRetention(keep int) Option {
	return func(u *Updater) { u.keep = keep }
}

// WithAutoAccept turns NeedsConfirmation into Accept.
func WithAutoAccept(auto bool) Option {
	return func(u *Updater) { u.autoAccept = auto }
}

// WithDryRun makes Run stop after deciding.
func WithDryRun(dry bool) Option {
	return func(u *Updater) { u.dryRun = dry }
}

// New returns an Updater.
func New(source Source, store versionstore.Store, opts ...Option) *Updater {
	u := &Updater{
		source:     source,
		store:      store,
		parser:     obo.NewParser(),
		serializer: obo.NewSerializer(nil, nil),
		validator:  roundtrip.NewValidator(),
		keep:       2,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// latest returns the newest local version, or nils when there is none.
func (u *Updater) latest(ctx context.Context) (*versionstore.Version, *obo.Document, error) {
	v, doc, err := u.store.Latest(ctx)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, nil, nil
	}
	return v, doc, err
}

// synced returns the newest version that came from upstream. Uploads
// carry no commit sha and are skipped.
func (u *Updater) synced(ctx context.Context) (*versionstore.Version, error) {
	versions, err := u.store.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range versions {
		if versions[i].Source == versionstore.SourceGitHub && versions[i].CommitSHA != "" {
			return &versions[i], nil
		}
	}
	return nil, nil
}

// Status reports whether upstream has a commit the store has not seen.
// Local is the active version; Synced is the last one taken from upstream.
func (u *Updater) Status(ctx context.Context) (*Status, error) {
	remote, err := u.source.LatestCommit(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to query upstream")
	}
	local, _, err := u.latest(ctx)
	if err != nil {
		return nil, err
	}
	synced, err := u.synced(ctx)
	if err != nil {
		return nil, err
	}
	s := &Status{Local: local, Synced: synced, Remote: remote, NeedsUpdate: true}
	if synced != nil && synced.CommitSHA == remote.SHA {
		s.NeedsUpdate = false
	}
	logging.SyncEvent(ctx, "status", "remote_sha", remote.SHA, "needs_update", s.NeedsUpdate)
	return s, nil
}

// Prepare downloads commit and runs it through the conversion gate. A
// failed round trip is not an error; it is recorded on the candidate and
// Decide rejects it.
func (u *Updater) Prepare(ctx context.Context, commit *upstream.CommitInfo) (*Candidate, error) {
	data, err := u.source.Download(ctx, commit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to download candidate")
	}
	logging.SyncEvent(ctx, "download", "sha", commit.SHA, "bytes", len(data))

	text := string(data)
	doc := u.parser.Parse(text)
	c := &Candidate{
		Commit:    commit,
		OBOText:   data,
		Document:  doc,
		Roundtrip: u.validator.Validate(ctx, text, u.serializer.Serialize(doc)),
	}
	logging.SyncEvent(ctx, "roundtrip", "status", c.Roundtrip.Status, "strategy", c.Roundtrip.Strategy)
	if !c.Roundtrip.Passed() {
		return c, nil
	}

	base, baseDoc, err := u.latest(ctx)
	if err != nil {
		return nil, err
	}
	if base != nil {
		c.Base = base
		c.Changes = diff.Compare(baseDoc, doc)
		logging.SyncEvent(ctx, "diff", "base", base.ID, "changes", c.Changes.Stats.Total())
	}
	return c, nil
}

// Decide classifies a candidate.
func (u *Updater) Decide(c *Candidate) Decision {
	if !c.Roundtrip.Passed() {
		return Decision{Verdict: Reject, Reason: c.Roundtrip.Err(c.Commit.SHA).Error()}
	}
	if check := obo.ValidateDocument(c.Document); !check.Valid {
		return Decision{Verdict: Reject, Reason: check.Message}
	}
	switch {
	case c.Base == nil:
		return Decision{Verdict: Accept, Reason: "no local version"}
	case !c.Changes.HasChanges:
		return Decision{Verdict: Accept, Reason: "no content changes", Changes: c.Changes}
	case u.autoAccept:
		return Decision{Verdict: Accept, Reason: "auto-accept", Changes: c.Changes}
	default:
		return Decision{Verdict: NeedsConfirmation, Reason: "content changed", Changes: c.Changes}
	}
}

// Apply commits a candidate. It refuses candidates that Decide would
// reject.
func (u *Updater) Apply(ctx context.Context, c *Candidate) (*Result, error) {
	if d := u.Decide(c); d.Verdict == Reject {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrRejected, d.Reason)
	}
	meta := versionstore.Metadata{
		Source:    versionstore.SourceGitHub,
		CommitSHA: c.Commit.SHA,
		CreatedAt: c.Commit.LastModified,
	}
	return u.commit(ctx, c.OBOText, c.Document, meta, c.Base, c.Changes)
}

// CommitDocument records a document that passed validation elsewhere,
// such as an operator upload, with the same change log and retention as
// Apply.
func (u *Updater) CommitDocument(ctx context.Context, oboText []byte, doc *obo.Document, meta versionstore.Metadata) (*Result, error) {
	if check := obo.ValidateDocument(doc); !check.Valid {
		return nil, apperrors.NewValidation("structure", check.Message)
	}
	base, baseDoc, err := u.latest(ctx)
	if err != nil {
		return nil, err
	}
	var changes *diff.Report
	if base != nil {
		changes = diff.Compare(baseDoc, doc)
	}
	return u.commit(ctx, oboText, doc, meta, base, changes)
}

func (u *Updater) commit(ctx context.Context, oboText []byte, doc *obo.Document, meta versionstore.Metadata, base *versionstore.Version, changes *diff.Report) (*Result, error) {
	v, err := u.store.Commit(ctx, oboText, doc, meta)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to commit version")
	}
	res := &Result{Version: v}
	logging.SyncEvent(ctx, "commit", "version", v.ID, "source", v.Source)

	if u.changes != nil && changes != nil {
		path, err := u.changes.Write(changes, versionInfo(base), versionInfo(v))
		if err != nil {
			// the version is committed; a missing log is not fatal
			logging.WarnContext(ctx, "failed to write change log", "error", err)
		}
		res.ChangeLogPath = path
	}

	if u.keep > 0 {
		pruned, err := u.store.Prune(ctx, u.keep)
		if err != nil {
			return res, apperrors.Wrapf(err, "version %s committed but pruning failed", v.ID)
		}
		res.Pruned = pruned
	}
	return res, nil
}

func versionInfo(v *versionstore.Version) *changelog.VersionInfo {
	if v == nil {
		return nil
	}
	return &changelog.VersionInfo{ID: v.ID, Source: v.Source, CommitSHA: v.CommitSHA, Date: v.CreatedAt}
}

// Discard drops a candidate. Candidates live only in memory, so nothing
// on disk changes.
func (u *Updater) Discard(ctx context.Context, c *Candidate) {
	if c == nil {
		return
	}
	sha := ""
	if c.Commit != nil {
		sha = c.Commit.SHA
	}
	logging.SyncEvent(ctx, "discard", "sha", sha)
	c.OBOText = nil
	c.Document = nil
}

// Outcome summarizes a Run.
type Outcome struct {
	Status   *Status
	Decision *Decision
	Applied  bool
	Result   *Result
}

// Run performs a full sync. With NeedsConfirmation, confirm decides; a nil
// confirm or a dry run leaves the store untouched.
func (u *Updater) Run(ctx context.Context, confirm ConfirmFunc) (*Outcome, error) {
	if logging.GetRunID(ctx) == "" {
		ctx = logging.WithRunID(ctx, uuid.NewString())
	}

	status, err := u.Status(ctx)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Status: status}
	if !status.NeedsUpdate {
		return out, nil
	}

	c, err := u.Prepare(ctx, status.Remote)
	if err != nil {
		return out, err
	}
	d := u.Decide(c)
	out.Decision = &d
	logging.SyncEvent(ctx, "decide", "verdict", d.Verdict.String(), "reason", d.Reason)

	apply := d.Verdict == Accept
	if d.Verdict == NeedsConfirmation && confirm != nil && !u.dryRun {
		apply, err = confirm(ctx, d.Changes)
		if err != nil {
			u.Discard(ctx, c)
			return out, err
		}
	}
	if !apply || u.dryRun {
		u.Discard(ctx, c)
		return out, nil
	}

	res, err := u.Apply(ctx, c)
	if err != nil {
		return out, err
	}
	out.Applied = true
	out.Result = res
	return out, nil
}
