package updater

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FocuswithJustin/obosync/core/diff"
	apperrors "github.com/FocuswithJustin/obosync/core/errors"
	"github.com/FocuswithJustin/obosync/core/obo"
	"github.com/FocuswithJustin/obosync/internal/changelog"
	"github.com/FocuswithJustin/obosync/internal/upstream"
	"github.com/FocuswithJustin/obosync/internal/versionstore"
)

const v1 = `format-version: 1.2
ontology: sbo

[Term]
id: SBO:0000001
name: rate law
is_a: SBO:0000000 ! root

[Term]
id: SBO:0000002
name: quantitative parameter
`

const v2 = `format-version: 1.2
ontology: sbo

[Term]
id: SBO:0000001
name: kinetic rate law
is_a: SBO:0000000 ! root

[Term]
id: SBO:0000003
name: participant role
`

// a line without a colon does not survive parsing
const lossy = `format-version: 1.2

[Term]
id: SBO:0000001
name: rate law
stray line
`

type fakeSource struct {
	commit      *upstream.CommitInfo
	content     string
	commitErr   error
	downloadErr error
	downloads   int
}

func (f *fakeSource) LatestCommit(context.Context) (*upstream.CommitInfo, error) {
	if f.commitErr != nil {
		return nil, f.commitErr
	}
	c := *f.commit
	return &c, nil
}

func (f *fakeSource) Download(context.Context, *upstream.CommitInfo) ([]byte, error) {
	f.downloads++
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return []byte(f.content), nil
}

func source(sha, content string) *fakeSource {
	return &fakeSource{
		commit: &upstream.CommitInfo{
			SHA:          sha,
			LastModified: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		content: content,
	}
}

func seed(t *testing.T, store versionstore.Store, text, sha string) {
	t.Helper()
	_, err := store.Commit(context.Background(), []byte(text), obo.Parse(text), versionstore.Metadata{
		Source:    versionstore.SourceGitHub,
		CommitSHA: sha,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	store := versionstore.NewMemoryStore()
	src := source("abc", v1)
	u := New(src, store)

	s, err := u.Status(ctx)
	require.NoError(t, err)
	assert.Nil(t, s.Local)
	assert.True(t, s.NeedsUpdate)

	seed(t, store, v1, "abc")
	s, err = u.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, s.Local)
	assert.False(t, s.NeedsUpdate)

	src.commit.SHA = "def"
	s, err = u.Status(ctx)
	require.NoError(t, err)
	assert.True(t, s.NeedsUpdate)
}

func TestStatusUpstreamError(t *testing.T) {
	src := source("abc", v1)
	src.commitErr = upstream.ErrRateLimited
	_, err := New(src, versionstore.NewMemoryStore()).Run(context.Background(), nil)
	assert.ErrorIs(t, err, upstream.ErrRateLimited)
}

func TestRunUpToDate(t *testing.T) {
	store := versionstore.NewMemoryStore()
	seed(t, store, v1, "abc")
	src := source("abc", v1)

	out, err := New(src, store).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, out.Status.NeedsUpdate)
	assert.Nil(t, out.Decision)
	assert.False(t, out.Applied)
	assert.Zero(t, src.downloads)
}

func TestRunFirstSyncAccepts(t *testing.T) {
	ctx := context.Background()
	store := versionstore.NewMemoryStore()
	out, err := New(source("abc", v1), store).Run(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, out.Decision)
	assert.Equal(t, Accept, out.Decision.Verdict)
	assert.Nil(t, out.Decision.Changes)
	require.True(t, out.Applied)

	v, doc, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", v.CommitSHA)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), v.CreatedAt)
	assert.Len(t, doc.Terms, 2)
}

func TestRunChangesNeedConfirmation(t *testing.T) {
	ctx := context.Background()

	t.Run("no confirm leaves store untouched", func(t *testing.T) {
		store := versionstore.NewMemoryStore()
		seed(t, store, v1, "abc")
		out, err := New(source("def", v2), store).Run(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, NeedsConfirmation, out.Decision.Verdict)
		require.NotNil(t, out.Decision.Changes)
		assert.Equal(t, 1, out.Decision.Changes.Stats.TermsAdded)
		assert.Equal(t, 1, out.Decision.Changes.Stats.TermsDeleted)
		assert.Equal(t, 1, out.Decision.Changes.Stats.TermsUpdated)
		assert.False(t, out.Applied)

		versions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Len(t, versions, 1)
	})

	t.Run("declined", func(t *testing.T) {
		store := versionstore.NewMemoryStore()
		seed(t, store, v1, "abc")
		var asked *diff.Report
		out, err := New(source("def", v2), store).Run(ctx, func(_ context.Context, r *diff.Report) (bool, error) {
			asked = r
			return false, nil
		})
		require.NoError(t, err)
		assert.NotNil(t, asked)
		assert.False(t, out.Applied)
	})

	t.Run("confirmed", func(t *testing.T) {
		store := versionstore.NewMemoryStore()
		seed(t, store, v1, "abc")
		out, err := New(source("def", v2), store).Run(ctx, func(context.Context, *diff.Report) (bool, error) {
			return true, nil
		})
		require.NoError(t, err)
		require.True(t, out.Applied)
		assert.Equal(t, "def", out.Result.Version.CommitSHA)
	})

	t.Run("confirm error", func(t *testing.T) {
		store := versionstore.NewMemoryStore()
		seed(t, store, v1, "abc")
		boom := errors.New("stdin closed")
		_, err := New(source("def", v2), store).Run(ctx, func(context.Context, *diff.Report) (bool, error) {
			return false, boom
		})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("auto accept", func(t *testing.T) {
		store := versionstore.NewMemoryStore()
		seed(t, store, v1, "abc")
		out, err := New(source("def", v2), store, WithAutoAccept(true)).Run(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, Accept, out.Decision.Verdict)
		assert.True(t, out.Applied)
	})

	t.Run("dry run", func(t *testing.T) {
		store := versionstore.NewMemoryStore()
		seed(t, store, v1, "abc")
		out, err := New(source("def", v2), store, WithAutoAccept(true), WithDryRun(true)).Run(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, Accept, out.Decision.Verdict)
		assert.False(t, out.Applied)
	})
}

func TestRunSameContentNewCommit(t *testing.T) {
	ctx := context.Background()
	store := versionstore.NewMemoryStore()
	seed(t, store, v1, "abc")

	out, err := New(source("def", v1), store).Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, Accept, out.Decision.Verdict)
	assert.False(t, out.Decision.Changes.HasChanges)
	require.True(t, out.Applied)

	v, _, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "def", v.CommitSHA)
}

func TestRunRejectsLossyCandidate(t *testing.T) {
	ctx := context.Background()
	store := versionstore.NewMemoryStore()
	u := New(source("abc", lossy), store, WithAutoAccept(true))

	out, err := u.Run(ctx, func(context.Context, *diff.Report) (bool, error) {
		t.Fatal("confirm must not be called for a rejected candidate")
		return false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, Reject, out.Decision.Verdict)
	assert.Contains(t, out.Decision.Reason, "abc")
	assert.False(t, out.Applied)

	_, _, err = store.Latest(ctx)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestApplyRefusesRejected(t *testing.T) {
	ctx := context.Background()
	u := New(source("abc", lossy), versionstore.NewMemoryStore())
	c, err := u.Prepare(ctx, &upstream.CommitInfo{SHA: "abc"})
	require.NoError(t, err)
	assert.False(t, c.Roundtrip.Passed())
	assert.Nil(t, c.Changes)

	_, err = u.Apply(ctx, c)
	assert.ErrorIs(t, err, apperrors.ErrRejected)
}

func TestRunRejectsTermWithoutName(t *testing.T) {
	out, err := New(source("abc", "[Term]\nid: SBO:0000001\n"), versionstore.NewMemoryStore()).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Reject, out.Decision.Verdict)
	assert.Equal(t, "Term 1 missing name field", out.Decision.Reason)
}

func TestRunDownloadError(t *testing.T) {
	store := versionstore.NewMemoryStore()
	src := source("abc", v1)
	src.downloadErr = apperrors.NewIO("GET", "raw", errors.New("connection reset"))

	out, err := New(src, store).Run(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to download candidate")
	assert.True(t, out.Status.NeedsUpdate)
	assert.Nil(t, out.Decision)
}

func TestApplyWritesChangeLogAndPrunes(t *testing.T) {
	ctx := context.Background()
	store := versionstore.NewMemoryStore()
	seed(t, store, v1, "aaa")
	seed(t, store, v1, "bbb")

	dir := t.TempDir()
	writer := changelog.NewWriter(dir, func(time.Time) string { return "changes.json" })
	u := New(source("ccc", v2), store, WithChangeLog(writer), WithRetention(2), WithAutoAccept(true))

	out, err := u.Run(ctx, nil)
	require.NoError(t, err)
	require.True(t, out.Applied)

	res := out.Result
	assert.Equal(t, filepath.Join(dir, "changes.json"), res.ChangeLogPath)
	require.Len(t, res.Pruned, 1)
	assert.Equal(t, "aaa", res.Pruned[0].CommitSHA)

	versions, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "ccc", versions[0].CommitSHA)

	log, err := changelog.Load(res.ChangeLogPath)
	require.NoError(t, err)
	assert.Equal(t, "bbb", log.OldVersion.CommitSHA)
	assert.Equal(t, "ccc", log.NewVersion.CommitSHA)
	assert.Equal(t, 1, log.Summary.TermsAdded)
}

func TestApplyWithoutChangesWritesNoLog(t *testing.T) {
	ctx := context.Background()
	store := versionstore.NewMemoryStore()
	seed(t, store, v1, "aaa")

	dir := t.TempDir()
	writer := changelog.NewWriter(dir, func(time.Time) string { return "changes.json" })
	out, err := New(source("bbb", v1), store, WithChangeLog(writer)).Run(ctx, nil)
	require.NoError(t, err)
	require.True(t, out.Applied)
	assert.Empty(t, out.Result.ChangeLogPath)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCommitDocument(t *testing.T) {
	ctx := context.Background()
	store := versionstore.NewMemoryStore()
	seed(t, store, v1, "aaa")
	u := New(nil, store, WithRetention(0))

	res, err := u.CommitDocument(ctx, []byte(v2), obo.Parse(v2), versionstore.Metadata{Source: versionstore.SourceUpload})
	require.NoError(t, err)
	assert.Equal(t, versionstore.SourceUpload, res.Version.Source)
	assert.Empty(t, res.Pruned)

	_, err = u.CommitDocument(ctx, nil, obo.Parse("[Term]\nname: x\n"), versionstore.Metadata{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestDiscard(t *testing.T) {
	ctx := context.Background()
	u := New(source("abc", v1), versionstore.NewMemoryStore())
	c, err := u.Prepare(ctx, &upstream.CommitInfo{SHA: "abc"})
	require.NoError(t, err)
	u.Discard(ctx, c)
	assert.Nil(t, c.Document)
	assert.Nil(t, c.OBOText)
	u.Discard(ctx, nil)
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "accept", Accept.String())
	assert.Equal(t, "reject", Reject.String())
	assert.Equal(t, "needs_confirmation", NeedsConfirmation.String())
	assert.Equal(t, "Verdict(9)", Verdict(9).String())
}

func TestRunSettlesAfterUpload(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := versionstore.Open(filepath.Join(root, "store"), filepath.Join(root, "localfiles"), "SBO_OBO")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	src := source("abc", v1)
	u := New(src, store, WithAutoAccept(true))

	out, err := u.Run(ctx, nil)
	require.NoError(t, err)
	require.True(t, out.Applied)

	// The upload is stamped with a local time later than the upstream commit.
	_, err = u.CommitDocument(ctx, []byte(v2), obo.Parse(v2), versionstore.Metadata{
		Source:    versionstore.SourceUpload,
		CreatedAt: time.Date(2026, 10, 16, 17, 49, 53, 0, time.UTC),
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		out, err := u.Run(ctx, nil)
		require.NoError(t, err)
		assert.False(t, out.Status.NeedsUpdate, "run %d", i)
		assert.False(t, out.Applied, "run %d", i)
		require.NotNil(t, out.Status.Synced)
		assert.Equal(t, "abc", out.Status.Synced.CommitSHA)
		assert.Equal(t, versionstore.SourceUpload, out.Status.Local.Source)
	}
	assert.Equal(t, 1, src.downloads)

	versions, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, versionstore.SourceUpload, versions[0].Source)

	// A new upstream commit is taken and diffed against the upload.
	src.commit.SHA = "def"
	src.content = v1
	out, err = u.Run(ctx, nil)
	require.NoError(t, err)
	assert.True(t, out.Status.NeedsUpdate)
	require.True(t, out.Applied)
	assert.Equal(t, "def", out.Result.Version.CommitSHA)
	require.NotNil(t, out.Decision.Changes)
	assert.True(t, out.Decision.Changes.HasChanges)
}
