package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datagate-io/datagate/internal/gatewaysrv/catalog"
	"github.com/datagate-io/datagate/internal/gatewaysrv/engine"
	"github.com/datagate-io/datagate/internal/gatewaysrv/gwcommon"
	"github.com/datagate-io/datagate/internal/gatewaysrv/registry"
	"github.com/datagate-io/datagate/pkg/api"
)

var (
	analyst = gwcommon.Identity{AgentID: "agent-1", Role: "analyst"}
	admin   = gwcommon.Identity{AgentID: "agent-2", Role: "admin"}
)

type stubSuggester struct {
	suggestions []api.Suggestion
	calls       int
}

func (s *stubSuggester) Suggest(set *registry.GenerationSet, query string, limit int) []api.Suggestion {
	s.calls++
	return s.suggestions
}

type fixture struct {
	eng     *engine.Memory
	reg     *registry.Registry
	audit   *MemoryAuditStore
	sugg    *stubSuggester
	gateway *Gateway
}

type fixtureOpts struct {
	maxCalls    int
	maxErrors   int
	stmtTimeout time.Duration
}

func newFixture(t *testing.T, opts fixtureOpts) *fixture {
	t.Helper()
	ctx := context.Background()

	eng := engine.NewMemory()
	eng.AddView("analytics.daily_sales", `{
		"contract_version": "2.0.0",
		"subject": "sales",
		"title": "Daily Sales",
		"default_view": true
	}`, []engine.RawColumn{
		{Name: "sale_date", Ordinal: 1, DataType: "date"},
		{Name: "revenue", Ordinal: 2, DataType: "numeric"},
	})
	eng.AddView("analytics.customer_contacts", `{
		"contract_version": "2.0.0",
		"subject": "customers",
		"pii_columns": ["email"]
	}`, []engine.RawColumn{
		{Name: "email", Ordinal: 1, DataType: "text"},
	})
	eng.SetDefaultResult(&engine.ResultSet{
		Columns: []string{"sale_date", "revenue"},
		Rows: []map[string]any{
			{"sale_date": "2026-08-01", "revenue": 100.0},
			{"sale_date": "2026-08-02", "revenue": 250.0},
		},
	})
	eng.Grant(analyst.AgentID, "analytics.daily_sales")
	eng.Grant(admin.AgentID, "analytics.daily_sales")
	eng.Grant(admin.AgentID, "analytics.customer_contacts")

	scanner := catalog.NewScanner(eng, catalog.NewPiiClassifier(nil))
	snap, serr := scanner.Scan(ctx)
	require.Nil(t, serr)

	reg, rerr := registry.NewRegistry(ctx, registry.NewMemoryStore())
	require.Nil(t, rerr)
	_, rerr = reg.Rebuild(ctx, snap)
	require.Nil(t, rerr)
	_, _, _, perr := reg.Promote(ctx, nil, false)
	require.Nil(t, perr)

	if opts.maxCalls == 0 {
		opts.maxCalls = 60
	}
	if opts.maxErrors == 0 {
		opts.maxErrors = 5
	}
	if opts.stmtTimeout == 0 {
		opts.stmtTimeout = 30 * time.Second
	}

	audit := NewMemoryAuditStore()
	limiter := NewRateLimiter(audit, time.Minute, opts.maxCalls, opts.maxErrors)
	sugg := &stubSuggester{suggestions: []api.Suggestion{
		{Kind: "workflow", Name: "get top rankings", Score: 4},
	}}
	gw := New(eng, reg, audit, limiter, sugg, 1000, opts.stmtTimeout, []string{"admin", "analyst_elevated"})
	return &fixture{eng: eng, reg: reg, audit: audit, sugg: sugg, gateway: gw}
}

func TestReadHappyPath(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	res := f.gateway.Read(context.Background(), analyst, "daily revenue", "SELECT * FROM analytics.daily_sales")

	require.True(t, res.Ok, res.Error)
	assert.Equal(t, 2, res.RowCount)
	assert.Equal(t, "SELECT * FROM analytics.daily_sales LIMIT 1000", res.ExecutedSQL)

	records := f.audit.All()
	require.Len(t, records, 1)
	assert.Equal(t, KindRead, records[0].Kind)
	assert.Equal(t, OutcomeOK, records[0].Outcome)
	assert.Equal(t, 2, records[0].RowsReturned)
}

func TestReadClampsExistingLimit(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	res := f.gateway.Read(context.Background(), analyst, "", "SELECT * FROM analytics.daily_sales LIMIT 5000")
	require.True(t, res.Ok, res.Error)
	assert.Equal(t, "SELECT * FROM analytics.daily_sales LIMIT 1000", res.ExecutedSQL)

	res = f.gateway.Read(context.Background(), analyst, "", "SELECT * FROM analytics.daily_sales LIMIT 10")
	require.True(t, res.Ok, res.Error)
	assert.Equal(t, "SELECT * FROM analytics.daily_sales LIMIT 10", res.ExecutedSQL)
}

func TestReadRejectsNonSelect(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	res := f.gateway.Read(context.Background(), analyst, "", "DELETE FROM analytics.daily_sales")
	require.False(t, res.Ok)
	assert.Contains(t, res.Error, "only SELECT")

	res = f.gateway.Read(context.Background(), analyst, "", "SELECT 1; DROP TABLE analytics.daily_sales")
	require.False(t, res.Ok)
	assert.Contains(t, res.Error, "multiple statements")

	res = f.gateway.Read(context.Background(), analyst, "", "SELECT * FROM analytics.daily_sales WHERE id IN (SELECT 1) AND 1=(SELECT count(*) FROM analytics.daily_sales) CROSS JOIN x")
	require.False(t, res.Ok)

	for _, r := range f.audit.All() {
		assert.Equal(t, OutcomeError, r.Outcome)
	}
}

func TestReadRejectsForbiddenKeywordInSelect(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	res := f.gateway.Read(context.Background(), analyst, "", "SELECT * FROM analytics.daily_sales WHERE note = drop_col")
	// Whole-word matching: "drop_col" is not the keyword DROP.
	require.True(t, res.Ok, res.Error)

	res = f.gateway.Read(context.Background(), analyst, "", "WITH x AS (SELECT 1) SELECT * FROM analytics.daily_sales UNION ALL SELECT * FROM analytics.daily_sales ORDER BY 1")
	require.True(t, res.Ok, res.Error)
}

func TestReadBlocksUnregisteredObjects(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	res := f.gateway.Read(context.Background(), analyst, "", "SELECT * FROM analytics.raw_orders")

	require.False(t, res.Ok)
	assert.Equal(t, "access denied", res.Error)
	assert.Equal(t, []string{"analytics.raw_orders"}, res.BlockedObjects)
}

func TestReadBlocksUngrantedView(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.eng.Revoke(analyst.AgentID, "analytics.daily_sales")

	res := f.gateway.Read(context.Background(), analyst, "", "SELECT * FROM analytics.daily_sales")
	require.False(t, res.Ok)
	assert.Equal(t, []string{"analytics.daily_sales"}, res.BlockedObjects)
}

func TestReadPIIGate(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.eng.Grant(analyst.AgentID, "analytics.customer_contacts")

	res := f.gateway.Read(context.Background(), analyst, "", "SELECT email FROM analytics.customer_contacts")
	require.False(t, res.Ok)
	assert.Equal(t, "PII-protected objects require workflow access", res.Error)
	assert.Equal(t, []string{"analytics.customer_contacts"}, res.PIIObjects)
	assert.True(t, res.UseWorkflow)

	// Elevated roles pass the gate.
	res = f.gateway.Read(context.Background(), admin, "", "SELECT email FROM analytics.customer_contacts")
	require.True(t, res.Ok, res.Error)
}

func TestReadRateLimit(t *testing.T) {
	f := newFixture(t, fixtureOpts{maxCalls: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res := f.gateway.Read(ctx, analyst, "", "SELECT * FROM analytics.daily_sales")
		require.True(t, res.Ok, res.Error)
	}

	res := f.gateway.Read(ctx, analyst, "", "SELECT * FROM analytics.daily_sales")
	require.False(t, res.Ok)
	assert.Equal(t, "rate limit exceeded", res.Error)
	assert.Equal(t, 60, res.RetryAfterSeconds)

	// Blocked calls are recorded but never counted, so the block does not
	// extend itself: countable records stay at the limit.
	res = f.gateway.Read(ctx, analyst, "", "SELECT * FROM analytics.daily_sales")
	require.False(t, res.Ok)

	countable := 0
	blocked := 0
	for _, r := range f.audit.All() {
		if r.Outcome == OutcomeBlocked {
			blocked++
		} else {
			countable++
		}
	}
	assert.Equal(t, 3, countable)
	assert.Equal(t, 2, blocked)

	// Other agents are unaffected.
	res = f.gateway.Read(ctx, admin, "", "SELECT * FROM analytics.daily_sales")
	require.True(t, res.Ok, res.Error)
}

func TestReadErrorStreakSuggestsInsteadOfExecuting(t *testing.T) {
	f := newFixture(t, fixtureOpts{maxErrors: 2})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res := f.gateway.Read(ctx, analyst, "top actions", "DROP TABLE x")
		require.False(t, res.Ok)
		assert.Empty(t, res.Suggestions)
	}

	// Once the streak threshold is reached, even a valid statement is not
	// executed: the caller gets suggestions back.
	res := f.gateway.Read(ctx, analyst, "top actions", "SELECT * FROM analytics.daily_sales")
	require.False(t, res.Ok)
	assert.Equal(t, 0, res.RowCount)
	assert.Empty(t, res.Data)
	require.Len(t, res.Suggestions, 1)
	assert.Equal(t, "get top rankings", res.Suggestions[0].Name)
	assert.Equal(t, 1, f.sugg.calls)

	// The detour is a discovery record, never a read: the streak it answers
	// cannot grow because of it.
	var reads, discoveries int
	for _, r := range f.audit.All() {
		switch r.Kind {
		case KindRead:
			reads++
		case KindDiscovery:
			discoveries++
		}
	}
	assert.Equal(t, 2, reads)
	assert.Equal(t, 1, discoveries)
}

func TestReadErrorStreakWithoutIntentStillSkipsExecution(t *testing.T) {
	f := newFixture(t, fixtureOpts{maxErrors: 2})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res := f.gateway.Read(ctx, analyst, "", "DROP TABLE x")
		require.False(t, res.Ok)
	}

	res := f.gateway.Read(ctx, analyst, "", "SELECT * FROM analytics.daily_sales")
	require.False(t, res.Ok)
	assert.Empty(t, res.Suggestions)
	assert.Equal(t, 0, f.sugg.calls)

	var reads int
	for _, r := range f.audit.All() {
		if r.Kind == KindRead {
			reads++
		}
	}
	assert.Equal(t, 2, reads)
}

func TestReadStatementTimeout(t *testing.T) {
	f := newFixture(t, fixtureOpts{stmtTimeout: 20 * time.Millisecond})
	f.eng.SetExecDelay(200 * time.Millisecond)

	res := f.gateway.Read(context.Background(), analyst, "", "SELECT * FROM analytics.daily_sales")
	require.False(t, res.Ok)
	assert.Equal(t, "query timed out", res.Error)
}

func TestAuditAppendIsIdempotent(t *testing.T) {
	store := NewMemoryAuditStore()
	ctx := context.Background()
	ts := time.Now().UTC()

	rec := AuditRecord{AgentID: "a", TS: ts, Kind: KindRead, Outcome: OutcomeOK}
	require.Nil(t, store.Append(ctx, rec))
	require.Nil(t, store.Append(ctx, rec))
	assert.Len(t, store.All(), 1)

	// Same timestamp, different kind is a distinct entry.
	require.Nil(t, store.Append(ctx, AuditRecord{AgentID: "a", TS: ts, Kind: KindDiscovery, Outcome: OutcomeOK}))
	assert.Len(t, store.All(), 2)
}
