package gatewaysrv

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datagate-io/datagate/internal/gatewaysrv/config"
	"github.com/datagate-io/datagate/internal/gatewaysrv/engine"
	"github.com/datagate-io/datagate/internal/gatewaysrv/gwcommon"
)

func newTestService(t *testing.T) (*Service, *engine.Memory) {
	t.Helper()
	config.TestInit()

	svc, err := NewService(context.Background())
	require.Nil(t, err)
	t.Cleanup(svc.Close)

	eng, ok := svc.Engine.(*engine.Memory)
	require.True(t, ok)

	eng.AddView("analytics.daily_sales", `{
		"contract_version": "2.0.0",
		"subject": "sales",
		"title": "Daily Sales",
		"default_view": true,
		"measures": ["revenue"],
		"tags": ["sales"]
	}`, []engine.RawColumn{
		{Name: "sale_date", Ordinal: 1, DataType: "date"},
		{Name: "revenue", Ordinal: 2, DataType: "numeric"},
	})
	eng.AddProcedure("analytics.get_top_rankings", `{
		"contract_version": "2.0.0",
		"intent": "get top rankings",
		"tags": ["ranking", "topn"]
	}`)
	eng.SetDefaultResult(&engine.ResultSet{
		Columns: []string{"revenue"},
		Rows:    []map[string]any{{"revenue": 42.0}},
	})
	eng.Grant("agent-1", "analytics.daily_sales")
	// Primer visibility is checked against the role.
	eng.Grant("analyst", "analytics.daily_sales")
	return svc, eng
}

func promoteAll(t *testing.T, svc *Service) {
	t.Helper()
	ctx := context.Background()
	require.True(t, svc.RefreshCatalog(ctx).Ok)
	require.True(t, svc.RebuildRegistry(ctx).Ok)
	require.True(t, svc.PromoteRegistry(ctx, false).Ok)
}

func TestServiceLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	refresh := svc.RefreshCatalog(ctx)
	require.True(t, refresh.Ok, refresh.Error)
	assert.Equal(t, 2, refresh.ObjectCount)
	assert.Equal(t, 0, refresh.DescriptorErrors)
	assert.Len(t, refresh.Deltas, 2)

	rebuild := svc.RebuildRegistry(ctx)
	require.True(t, rebuild.Ok, rebuild.Error)
	assert.Equal(t, "green", rebuild.Target)
	assert.Equal(t, 1, rebuild.Subjects)

	diff := svc.DiffRegistry(ctx)
	require.True(t, diff.Ok)
	assert.Equal(t, "blue", diff.Active)
	assert.NotEmpty(t, diff.Entries)

	promote := svc.PromoteRegistry(ctx, false)
	require.True(t, promote.Ok, promote.Error)
	assert.Equal(t, "green", promote.Active)
	assert.Equal(t, "blue", promote.Previous)
}

func TestServiceReadAndPrimer(t *testing.T) {
	svc, _ := newTestService(t)
	promoteAll(t, svc)
	ctx := context.Background()

	primer := svc.GetPrimer(ctx, "analyst", "")
	require.True(t, primer.Ok)
	assert.Len(t, primer.Subjects, 1)
	assert.Equal(t, "analytics.daily_sales", primer.Subjects[0].DefaultView)

	res := svc.Read(ctx, gwcommon.Identity{AgentID: "agent-1", Role: "analyst"},
		"daily revenue", "SELECT revenue FROM analytics.daily_sales")
	require.True(t, res.Ok, res.Error)
	assert.Equal(t, 1, res.RowCount)
}

func TestServiceSuggestIntent(t *testing.T) {
	svc, _ := newTestService(t)
	promoteAll(t, svc)
	ctx := context.Background()
	analyst := gwcommon.Identity{AgentID: "agent-1", Role: "analyst"}

	res := svc.SuggestIntent(ctx, analyst, "show top 10 actions")
	require.True(t, res.Ok)
	require.NotEmpty(t, res.Suggestions)
	assert.Equal(t, "get top rankings", res.Suggestions[0].Name)

	res = svc.SuggestIntent(ctx, analyst, "")
	assert.False(t, res.Ok)
}

func TestServiceSuggestIntentFiltersCandidates(t *testing.T) {
	svc, eng := newTestService(t)
	hash, herr := gwcommon.HashSecret("provisioning-secret")
	require.NoError(t, herr)
	eng.AddProcedure("analytics.provision_export", fmt.Sprintf(`{
		"contract_version": "2.0.0",
		"intent": "provision export",
		"requires_secret": true,
		"secret_hash": %q
	}`, hash))
	promoteAll(t, svc)
	ctx := context.Background()

	// agent-2 holds no view grants, so the sales view never surfaces.
	stranger := gwcommon.Identity{AgentID: "agent-2", Role: "analyst"}
	res := svc.SuggestIntent(ctx, stranger, "daily revenue")
	require.True(t, res.Ok)
	assert.Empty(t, res.Suggestions)

	// Secret-bearing workflows are hidden from non-elevated roles.
	analyst := gwcommon.Identity{AgentID: "agent-1", Role: "analyst"}
	res = svc.SuggestIntent(ctx, analyst, "provision export")
	require.True(t, res.Ok)
	assert.Empty(t, res.Suggestions)

	admin := gwcommon.Identity{AgentID: "agent-9", Role: "admin"}
	res = svc.SuggestIntent(ctx, admin, "provision export")
	require.True(t, res.Ok)
	require.NotEmpty(t, res.Suggestions)
	assert.Equal(t, "provision export", res.Suggestions[0].Name)
}

func TestServicePromoteEmptyStaging(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	promote := svc.PromoteRegistry(ctx, false)
	require.False(t, promote.Ok)
	assert.Contains(t, promote.Error, "target registry empty")
}

func TestServiceRollback(t *testing.T) {
	svc, eng := newTestService(t)
	promoteAll(t, svc)
	ctx := context.Background()

	eng.AddView("analytics.refunds", `{
		"contract_version": "2.0.0",
		"subject": "refunds",
		"title": "Refunds"
	}`, nil)
	promoteAll(t, svc)

	rollback := svc.RollbackRegistry(ctx)
	require.True(t, rollback.Ok, rollback.Error)
	assert.Equal(t, "green", rollback.Active)
	assert.Equal(t, "blue", rollback.Previous)
}

func TestServiceCompliance(t *testing.T) {
	svc, eng := newTestService(t)
	ctx := context.Background()

	// Before any scan or promotion two checks fail.
	res := svc.RunComplianceChecks(ctx)
	assert.False(t, res.Ok)

	promoteAll(t, svc)
	res = svc.RunComplianceChecks(ctx)
	require.True(t, res.Ok, res.Checks)

	// A quarantined descriptor flips the compliance verdict.
	eng.AddView("analytics.broken", `{"subject":`, nil)
	require.True(t, svc.RefreshCatalog(ctx).Ok)
	res = svc.RunComplianceChecks(ctx)
	assert.False(t, res.Ok)
}

func TestServiceComplianceSecretHashes(t *testing.T) {
	svc, eng := newTestService(t)
	ctx := context.Background()

	hash, herr := gwcommon.HashSecret("provisioning-secret")
	require.NoError(t, herr)
	eng.AddProcedure("analytics.provision_export", fmt.Sprintf(`{
		"contract_version": "2.0.0",
		"intent": "provision export",
		"requires_secret": true,
		"secret_hash": %q
	}`, hash))
	promoteAll(t, svc)
	res := svc.RunComplianceChecks(ctx)
	require.True(t, res.Ok, res.Checks)

	eng.AddProcedure("analytics.provision_export", `{
		"contract_version": "2.0.0",
		"intent": "provision export",
		"requires_secret": true,
		"secret_hash": "plaintext-oops"
	}`)
	promoteAll(t, svc)
	res = svc.RunComplianceChecks(ctx)
	assert.False(t, res.Ok)
	for _, c := range res.Checks {
		if c.Name == "workflow_secret_hashes_wellformed" {
			assert.False(t, c.Passed)
		}
	}
}
