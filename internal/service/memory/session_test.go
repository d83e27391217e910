package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sandevgo/mnemo/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePatch = `diff --git a/internal/api/handler.go b/internal/api/handler.go
index 1111111..2222222 100644
--- a/internal/api/handler.go
+++ b/internal/api/handler.go
@@ -1,2 +1,2 @@
 package api
-var timeout = 5
+var timeout = 30
diff --git a/old.go b/old.go
deleted file mode 100644
index 3333333..0000000
--- a/old.go
+++ /dev/null
@@ -1 +0,0 @@
-package old
`

func TestSession_Flush(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	sess := env.svc.BeginSession()
	assert.NotEmpty(t, sess.ID)
	sess.Feed(NoteTopic, "Investigating **webhook** retries and webhook signatures")
	sess.Feed(NoteDecision, "Sign webhook payloads with HMAC SHA256")
	sess.Feed(NoteFile, "internal/webhook/sign.go")
	sess.Feed(NoteFile, "internal/webhook/sign.go")
	sess.Feed(NoteGotcha, "Clock skew breaks signature expiry checks")

	res, err := env.svc.EndSession(ctx, sess)
	require.NoError(t, err)
	require.Nil(t, res.Rejection)
	require.True(t, res.Created)

	u := res.Unit
	assert.Equal(t, core.TypeConversation, u.Type)
	assert.Contains(t, u.Intent, "webhook")
	assert.Contains(t, u.Intent, "1 decisions, 1 files touched")
	assert.Equal(t, "Sign webhook payloads with HMAC SHA256", u.Action)
	assert.Contains(t, u.Reason, "Clock skew")
	assert.Equal(t, []string{"internal/webhook/sign.go"}, u.RelatedFiles)
	assert.True(t, u.HasTag(sessionTag))

	// Ended sessions are discarded.
	sess.Feed(NoteDecision, "ignored after end")
	_, err = env.svc.EndSession(ctx, sess)
	var ve *core.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestSession_EmptyStoresNothing(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	res, err := env.svc.EndSession(context.Background(), env.svc.BeginSession())
	require.NoError(t, err)
	assert.Nil(t, res.Unit)

	n, err := env.store.CountAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDiffFiles(t *testing.T) {
	files, err := DiffFiles(samplePatch)
	require.NoError(t, err)
	assert.Equal(t, []string{"internal/api/handler.go", "old.go"}, files)
}

func TestObserve(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	sess := env.svc.BeginSession()

	ev, err := env.svc.Observe(ctx, sess, core.Event{
		Kind:    core.EventCommit,
		Source:  "git",
		Content: "fix(api): raise handler timeout to thirty seconds\n\nUpstream is slow.",
		Diff:    samplePatch,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "internal/api/handler.go,old.go", ev.Metadata[metaFiles])

	stored, err := env.store.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.False(t, stored.Processed)

	assert.Equal(t, []string{"internal/api/handler.go", "old.go"}, sess.files)
	assert.Equal(t, []string{"fix(api): raise handler timeout to thirty seconds"}, sess.decisions)

	var ve *core.ValidationError
	_, err = env.svc.Observe(ctx, nil, core.Event{Kind: "telepathy", Content: "x"})
	assert.ErrorAs(t, err, &ve)
	_, err = env.svc.Observe(ctx, nil, core.Event{Kind: core.EventChat})
	assert.ErrorAs(t, err, &ve)
}

func TestExtractor_ProcessBatch(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	commit, err := env.svc.Observe(ctx, nil, core.Event{
		Kind:    core.EventCommit,
		Content: "fix(api): raise handler timeout to thirty seconds",
		Diff:    samplePatch,
	})
	require.NoError(t, err)
	_, err = env.svc.Observe(ctx, nil, core.Event{Kind: core.EventChat, Content: "thanks, looks good to me"})
	require.NoError(t, err)
	_, err = env.svc.Observe(ctx, nil, core.Event{Kind: core.EventChat, Content: "We decided to keep Redis for rate limit counters"})
	require.NoError(t, err)
	_, err = env.svc.Observe(ctx, nil, core.Event{Kind: core.EventFileSave, File: "internal/api/handler.go"})
	require.NoError(t, err)

	created, err := NewExtractor(env.svc).ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	pending, err := env.store.ListUnprocessedEvents(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	fixes, err := env.store.GetByType(ctx, core.TypeBugFix, 0)
	require.NoError(t, err)
	require.Len(t, fixes, 1)
	assert.Equal(t, "raise handler timeout to thirty seconds", fixes[0].Intent)
	assert.Equal(t, commit.ID, fixes[0].SourceEventID)
	assert.Equal(t, []string{"internal/api/handler.go", "old.go"}, fixes[0].RelatedFiles)

	decisions, err := env.store.GetByType(ctx, core.TypeDecision, 0)
	require.NoError(t, err)
	require.Len(t, decisions, 1)

	created, err = NewExtractor(env.svc).ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, created)
}

// brokenAddRepo fails every Add whose intent contains marker.
type brokenAddRepo struct {
	core.Repository
	marker string
}

func (r *brokenAddRepo) Add(ctx context.Context, c core.MemoryUnit) (*core.MemoryUnit, bool, error) {
	if strings.Contains(c.Intent, r.marker) {
		return nil, false, &core.StorageIOError{Op: "insert unit", Err: errors.New("disk I/O error")}
	}
	return r.Repository.Add(ctx, c)
}

func (r *brokenAddRepo) Atomic(ctx context.Context, fn func(core.Repository) error) error {
	return r.Repository.Atomic(ctx, func(repo core.Repository) error {
		return fn(&brokenAddRepo{Repository: repo, marker: r.marker})
	})
}

func TestExtractor_FailingEventDoesNotBlockBatch(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	opts := DefaultOptions()
	opts.Now = env.clock.Now
	svc := NewService(&brokenAddRepo{Repository: env.store, marker: "connection pool"}, nil, opts)
	ex := NewExtractor(svc)

	bad, err := env.svc.Observe(ctx, nil, core.Event{Kind: core.EventCommit, Content: "fix(db): release the connection pool lock before retrying"})
	require.NoError(t, err)
	_, err = env.svc.Observe(ctx, nil, core.Event{Kind: core.EventChat, Content: "We decided to keep Redis for rate limit counters"})
	require.NoError(t, err)

	pendingIDs := func() []string {
		t.Helper()
		pending, err := env.store.ListUnprocessedEvents(ctx, 0)
		require.NoError(t, err)
		ids := make([]string, 0, len(pending))
		for _, ev := range pending {
			ids = append(ids, ev.ID)
		}
		return ids
	}

	created, err := ex.ProcessBatch(ctx)
	var se *core.StorageIOError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 1, created)
	assert.Equal(t, []string{bad.ID}, pendingIDs())

	decisions, err := env.store.GetByType(ctx, core.TypeDecision, 0)
	require.NoError(t, err)
	assert.Len(t, decisions, 1)

	// Retried on the next batch, then given up after MaxAttempts.
	for attempt := 2; attempt <= ex.MaxAttempts; attempt++ {
		created, err = ex.ProcessBatch(ctx)
		require.Error(t, err)
		assert.Zero(t, created)
	}
	assert.Empty(t, pendingIDs())

	created, err = ex.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, created)

	fixes, err := env.store.GetByType(ctx, core.TypeBugFix, 0)
	require.NoError(t, err)
	assert.Empty(t, fixes)
}

func TestClassifyCommit(t *testing.T) {
	tests := []struct {
		subject string
		typ     core.MemoryType
		intent  string
	}{
		{"fix: close rows before next query", core.TypeBugFix, "close rows before next query"},
		{"feat(cli)!: add export command", core.TypeDecision, "add export command"},
		{"Bump zerolog to v1.34", core.TypeDependency, "Bump zerolog to v1.34"},
		{"revert: drop connection pooling", core.TypeFailedSuggestion, "drop connection pooling"},
		{"style: gofumpt the tree", core.TypeConvention, "gofumpt the tree"},
	}
	for _, tt := range tests {
		typ, intent := classifyCommit(tt.subject)
		assert.Equal(t, tt.typ, typ, tt.subject)
		assert.Equal(t, tt.intent, intent, tt.subject)
	}
}
