package memory

import (
	"context"
	"testing"
	"time"

	"github.com/sandevgo/mnemo/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecall_SingletonCorrection(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	u := env.mustStore(t, core.TypeCorrection, "Never use global mutable singletons in the service layer")
	env.mustStore(t, core.TypeDecision, "Adopt goose for schema migrations")
	env.mustStore(t, core.TypeInsight, "Pagination cursors must be opaque to clients")

	results, err := env.svc.Recall(ctx, RecallQuery{Query: "singleton"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, u.ID, results[0].Unit.ID)
	assert.Contains(t, results[0].MatchMethod, MethodKeyword)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestRecall_RequiresQueryOrFile(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	_, err := env.svc.Recall(context.Background(), RecallQuery{Query: "  "})
	var ve *core.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestRecall_Deterministic(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	env.mustStore(t, core.TypeCorrection, "Close database rows before issuing the next query", "internal/storage/db.go")
	env.mustStore(t, core.TypeConvention, "Database migrations live in embedded goose files", "internal/storage/migrations/*.sql")
	env.mustStore(t, core.TypeBugFix, "Database deadlock fixed by reusing the transaction handle")
	env.mustStore(t, core.TypeInsight, "Query latency doubles when the database cache is cold")
	env.mustStore(t, core.TypeDependency, "Pure Go sqlite driver avoids cgo for database access")

	q := RecallQuery{Query: "database query", CurrentFile: "internal/storage/db.go"}
	first, err := env.svc.Recall(ctx, q)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	for range 3 {
		again, err := env.svc.Recall(ctx, q)
		require.NoError(t, err)
		require.Len(t, again, len(first))
		for i := range first {
			assert.Equal(t, first[i].Unit.ID, again[i].Unit.ID)
			assert.Equal(t, first[i].Score, again[i].Score)
			assert.Equal(t, first[i].MatchMethod, again[i].MatchMethod)
		}
	}

	for i := 1; i < len(first); i++ {
		assert.GreaterOrEqual(t, first[i-1].Score, first[i].Score)
	}
	assert.Equal(t, "keyword+file", first[0].MatchMethod)
}

func TestRecall_Filters(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	old := env.mustStore(t, core.TypeDecision, "Retry webhook deliveries with exponential backoff", "internal/webhook/send.go")
	env.clock.Advance(48 * time.Hour)
	fresh := env.mustStore(t, core.TypeBugFix, "Webhook retries duplicated events without idempotency keys")

	res, err := env.svc.Recall(ctx, RecallQuery{Query: "webhook", Types: []core.MemoryType{core.TypeBugFix}})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, fresh.ID, res[0].Unit.ID)

	res, err = env.svc.Recall(ctx, RecallQuery{Query: "webhook", File: "internal/webhook/send.go"})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, old.ID, res[0].Unit.ID)

	res, err = env.svc.Recall(ctx, RecallQuery{Query: "webhook", Since: env.clock.Now().Add(-time.Hour)})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, fresh.ID, res[0].Unit.ID)

	res, err = env.svc.Recall(ctx, RecallQuery{Query: "webhook", MinImportance: 0.9})
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestRecall_GraphEnrichment(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	fix := env.mustStore(t, core.TypeBugFix, "Checkout timeout fixed by raising the gateway deadline")
	cause := env.mustStore(t, core.TypeInsight, "Payment provider responds slowly during batch settlement")
	require.NoError(t, env.svc.Relate(ctx, core.Edge{SourceID: fix.ID, TargetID: cause.ID, Relation: core.RelCausedBy}))

	res, err := env.svc.Recall(ctx, RecallQuery{Query: "checkout timeout"})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, fix.ID, res[0].Unit.ID)
	assert.Equal(t, cause.ID, res[1].Unit.ID)
	assert.Equal(t, MethodGraph, res[1].MatchMethod)
	assert.InDelta(t, res[0].Score*0.6, res[1].Score, 1e-9)

	// Inactive neighbors are never surfaced.
	require.NoError(t, env.svc.Deactivate(ctx, cause.ID, ""))
	res, err = env.svc.Recall(ctx, RecallQuery{Query: "checkout timeout"})
	require.NoError(t, err)
	require.Len(t, res, 1)
}

func TestRecall_PrefixFallback(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	u := env.mustStore(t, core.TypeConvention, "Schema migrations run before the HTTP server starts")

	res, err := env.svc.Recall(context.Background(), RecallQuery{Query: "migra"})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, u.ID, res[0].Unit.ID)
}

func TestRecall_InlineMaintenanceIsRateLimited(t *testing.T) {
	env := newTestEnv(t, nil, func(o *Options) {
		o.InlineMaintenance = true
		o.InlineInterval = time.Hour
	})
	ctx := context.Background()
	env.mustStore(t, core.TypeInsight, "Pagination cursors must be opaque to clients")

	_, err := env.svc.Recall(ctx, RecallQuery{Query: "pagination"})
	require.NoError(t, err)
	env.svc.WaitMaintenance()
	first := env.svc.lastInline

	_, err = env.svc.Recall(ctx, RecallQuery{Query: "pagination"})
	require.NoError(t, err)
	env.svc.WaitMaintenance()
	assert.Equal(t, first, env.svc.lastInline)

	env.clock.Advance(2 * time.Hour)
	_, err = env.svc.Recall(ctx, RecallQuery{Query: "pagination"})
	require.NoError(t, err)
	env.svc.WaitMaintenance()
	assert.True(t, env.svc.lastInline.After(first))
}

func TestKeywordTerms(t *testing.T) {
	assert.Equal(t, []string{"auth", "token", "refresh"}, keywordTerms("Auth: token-refresh, a TOKEN!"))
	assert.Empty(t, keywordTerms("a b c"))
}

func TestExpandSynonyms_Bounded(t *testing.T) {
	terms := []string{"database", "auth", "config", "error"}
	out := expandSynonyms(terms)
	assert.Equal(t, terms, out[:len(terms)])
	assert.LessOrEqual(t, len(out)-len(terms), maxSynonymsTotal)

	one := expandSynonyms([]string{"cache"})
	assert.LessOrEqual(t, len(one)-1, maxSynonymsPerTok)
}

func TestFTSQuery(t *testing.T) {
	assert.Equal(t, `"auth" OR "token"`, ftsQuery([]string{"auth", "token"}, false))
	assert.Equal(t, `"auth"*`, ftsQuery([]string{"auth"}, true))
}

func TestTypeWeights_CoverEveryType(t *testing.T) {
	for _, typ := range core.AllMemoryTypes() {
		require.Less(t, int(typ), len(typeWeights), "missing weight for %s", typ)
		assert.Greater(t, typeWeights[typ], 0.0, "zero weight for %s", typ)
	}
	assert.Greater(t, typeWeight(core.TypeCorrection), typeWeight(core.TypeConversation))
}

func TestInferTaskContext(t *testing.T) {
	tests := map[string]TaskContext{
		"why does the build crash on startup": TaskDebugging,
		"implement the export command":        TaskCoding,
		"review this diff please":             TaskReviewing,
		"explain the storage architecture":    TaskExploring,
		"hello there":                         TaskChatting,
	}
	for query, want := range tests {
		assert.Equal(t, want, InferTaskContext(query), query)
	}
}

func TestRank_BoostsFileLocalityAndRecency(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	now := env.clock.Now()

	near := &core.MemoryUnit{ID: "a", Type: core.TypeInsight, Importance: 0.5, CreatedAt: now, LastAccessed: now, RelatedFiles: []string{"api/handler.go"}}
	far := &core.MemoryUnit{ID: "b", Type: core.TypeInsight, Importance: 0.5, CreatedAt: now.Add(-30 * day), LastAccessed: now.Add(-30 * day)}
	results := []RecallResult{{Unit: far, Score: 1}, {Unit: near, Score: 1}}

	env.svc.rank(results, RecallQuery{Query: "hello", CurrentFile: "api/handler.go"})
	assert.Equal(t, "a", results[0].Unit.ID)
	assert.Greater(t, results[0].Score, results[1].Score*2)
}
