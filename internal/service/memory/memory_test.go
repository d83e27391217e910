package memory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sandevgo/mnemo/internal/core"
	"github.com/sandevgo/mnemo/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type testEnv struct {
	svc   *Service
	store *sqlite.Store
	clock *fakeClock
}

func newTestEnv(t *testing.T, embedder core.Embedder, mutate func(*Options)) *testEnv {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "mnemo.db"), sqlite.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	opts := DefaultOptions()
	opts.Now = clock.Now
	if mutate != nil {
		mutate(&opts)
	}
	return &testEnv{svc: NewService(store, embedder, opts), store: store, clock: clock}
}

func (e *testEnv) mustStore(t *testing.T, typ core.MemoryType, intent string, files ...string) *core.MemoryUnit {
	t.Helper()
	res, err := e.svc.Store(context.Background(), StoreParams{Type: typ.String(), Intent: intent, RelatedFiles: files})
	require.NoError(t, err)
	require.Nil(t, res.Rejection, "unexpected rejection for %q", intent)
	require.True(t, res.Created, "expected %q to be new", intent)
	return res.Unit
}

func TestStore_Validation(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	tooHigh := 1.5

	tests := []struct {
		name   string
		params StoreParams
	}{
		{"missing type", StoreParams{Intent: "Use structured logging everywhere"}},
		{"unknown type", StoreParams{Type: "opinion", Intent: "Use structured logging everywhere"}},
		{"missing intent", StoreParams{Type: "decision"}},
		{"importance out of range", StoreParams{Type: "decision", Intent: "Use structured logging everywhere", Importance: &tooHigh}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Store(ctx, tt.params)
			var ve *core.ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
}

func TestStore_RejectionIsNotAnError(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	res, err := env.svc.Store(context.Background(), StoreParams{Type: "insight", Intent: "fixed some bugs and updated code"})
	require.NoError(t, err)
	require.True(t, res.Rejected())
	assert.Equal(t, RuleTooGeneric, res.Rejection.Rule)
	assert.Nil(t, res.Unit)

	n, err := env.store.CountAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_DuplicateTouchesExisting(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	first := env.mustStore(t, core.TypeConvention, "Wrap repository errors with the operation name")
	res, err := env.svc.Store(ctx, StoreParams{Type: "convention", Intent: "wrap repository errors with operation name"})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, first.ID, res.Unit.ID)
	assert.Equal(t, 1, res.Unit.AccessCount)

	n, err := env.store.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_ContradictionDemotesOlder(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	old := env.mustStore(t, core.TypeConvention, "Always use tabs for indentation in Go files")
	res, err := env.svc.Store(ctx, StoreParams{Type: "convention", Intent: "Never use tabs for indentation in Go files"})
	require.NoError(t, err)
	require.True(t, res.Created)
	assert.Equal(t, []string{old.ID}, res.Contradicted)

	demoted, err := env.svc.Get(ctx, old.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, demoted.Importance, 1e-9)
	assert.True(t, demoted.HasTag(core.TagContradicted))
	assert.True(t, demoted.IsActive)

	fresh, err := env.svc.Get(ctx, res.Unit.ID)
	require.NoError(t, err)
	assert.Equal(t, core.DefaultImportance, fresh.Importance)

	edges, err := env.store.GetEdgesFrom(ctx, res.Unit.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, core.RelContradicts, edges[0].Relation)
	assert.Equal(t, old.ID, edges[0].TargetID)
}

func TestStore_TopicalContradictionBetweenDecisions(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	old := env.mustStore(t, core.TypeDecision, "Store session tokens in Redis with hourly expiry")
	res, err := env.svc.Store(ctx, StoreParams{Type: "decision", Intent: "Keep session tokens inside Postgres table"})
	require.NoError(t, err)
	require.Equal(t, []string{old.ID}, res.Contradicted)

	got, err := env.svc.Get(ctx, old.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, got.Importance, 1e-9)
}

func TestDemote_Floor(t *testing.T) {
	assert.InDelta(t, 0.1, demote(0.15, 0.5), 1e-9)
	assert.InDelta(t, 0.05, demote(0.05, 0.5), 1e-9)
	assert.InDelta(t, 0.4, demote(0.8, 0.5), 1e-9)
}

func TestUpdateAndDeactivate(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	a := env.mustStore(t, core.TypeDecision, "Adopt goose for schema migrations")
	b := env.mustStore(t, core.TypeInsight, "Pagination cursors must be opaque to clients")

	outcome := "worked"
	u, res, err := env.svc.Update(ctx, a.ID, core.UnitPatch{Outcome: &outcome})
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Nil(t, res.Rejection)
	assert.Equal(t, "worked", u.Outcome)
	assert.Equal(t, a.Intent, u.Intent)

	junk := "ok"
	u, res, err = env.svc.Update(ctx, a.ID, core.UnitPatch{Intent: &junk})
	require.NoError(t, err)
	assert.Nil(t, u)
	require.NotNil(t, res.Rejection)
	assert.Equal(t, RuleTooShort, res.Rejection.Rule)

	u, _, err = env.svc.Update(ctx, "missing", core.UnitPatch{Outcome: &outcome})
	require.NoError(t, err)
	assert.Nil(t, u)

	require.NoError(t, env.svc.Deactivate(ctx, b.ID, a.ID))
	got, err := env.svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, a.ID, got.SupersededBy)

	var ve *core.ValidationError
	assert.ErrorAs(t, env.svc.Deactivate(ctx, a.ID, a.ID), &ve)
	assert.ErrorIs(t, env.svc.Deactivate(ctx, "missing", ""), core.ErrUnitNotFound)

	total, err := env.store.CountAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestDeactivate_UnknownReplacement(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	u := env.mustStore(t, core.TypeDecision, "Serve static assets from the embedded filesystem")

	err := env.svc.Deactivate(ctx, u.ID, "does-not-exist")
	require.ErrorIs(t, err, core.ErrUnitNotFound)

	got, err := env.svc.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
	assert.Empty(t, got.SupersededBy)

	edges, err := env.store.GetEdgesFrom(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestStore_SameIntentDifferentActionIsDuplicate(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	first, err := env.svc.Store(ctx, StoreParams{
		Type:   "convention",
		Intent: "Never use global mutable singletons in the service layer",
		Action: "Pass dependencies through constructors",
	})
	require.NoError(t, err)
	require.True(t, first.Created)

	second, err := env.svc.Store(ctx, StoreParams{
		Type:   "convention",
		Intent: "Never use global mutable singletons in the service layer",
		Action: "Wire every collaborator explicitly in main and hand it down as an interface",
		Reason: "Hidden state made the handler tests order dependent",
	})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Unit.ID, second.Unit.ID)
	assert.Equal(t, 1, second.Unit.AccessCount)

	n, err := env.store.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_ContradictionSurvivesMaintenance(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	old := env.mustStore(t, core.TypeConvention, "Always wrap repository errors with the operation name")
	res, err := env.svc.Store(ctx, StoreParams{Type: "convention", Intent: "Never wrap repository errors with the operation name"})
	require.NoError(t, err)
	require.Equal(t, []string{old.ID}, res.Contradicted)

	for range 3 {
		_, err := env.svc.RunMaintenance(ctx)
		require.NoError(t, err)

		got, err := env.svc.Get(ctx, old.ID)
		require.NoError(t, err)
		assert.InDelta(t, 0.25, got.Importance, 1e-9)
		assert.True(t, got.IsActive)
	}

	fresh, err := env.svc.Get(ctx, res.Unit.ID)
	require.NoError(t, err)
	assert.Equal(t, core.DefaultImportance, fresh.Importance)
}

func TestRelate(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	a := env.mustStore(t, core.TypeBugFix, "Connection leak fixed by closing rows in scanner loop")
	b := env.mustStore(t, core.TypeInsight, "Single writer SQLite pools deadlock on nested queries")

	require.NoError(t, env.svc.Relate(ctx, core.Edge{SourceID: a.ID, TargetID: b.ID, Relation: core.RelCausedBy}))
	assert.ErrorIs(t, env.svc.Relate(ctx, core.Edge{SourceID: a.ID, TargetID: "nope", Relation: core.RelCausedBy}), core.ErrUnitNotFound)

	var ve *core.ValidationError
	assert.ErrorAs(t, env.svc.Relate(ctx, core.Edge{SourceID: a.ID, TargetID: b.ID, Relation: "likes"}), &ve)

	related, err := env.svc.Related(ctx, b.ID, 1, 0)
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, a.ID, related[0].ID)
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	env.mustStore(t, core.TypeDecision, "Adopt goose for schema migrations")
	b := env.mustStore(t, core.TypeInsight, "Pagination cursors must be opaque to clients")
	require.NoError(t, env.svc.Deactivate(ctx, b.ID, ""))

	st, err := env.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 1, st.Active)
	assert.Equal(t, 1, st.Inactive)
	assert.Equal(t, map[string]int{"decision": 1}, st.ByType)
	assert.Zero(t, st.Embedded)
}
