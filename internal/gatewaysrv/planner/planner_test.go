package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datagate-io/datagate/internal/gatewaysrv/gwcommon"
	"github.com/datagate-io/datagate/internal/gatewaysrv/intent"
	"github.com/datagate-io/datagate/internal/gatewaysrv/registry"
)

func plannerSet() *registry.GenerationSet {
	set := registry.NewGenerationSet(gwcommon.GenerationBlue)
	set.Subjects["sales"] = registry.Subject{Name: "sales", DefaultViewFqName: "analytics.daily_sales"}
	set.Views["analytics.daily_sales"] = registry.SubjectView{
		Subject: "sales", ViewFqName: "analytics.daily_sales",
		Title: "Daily Sales", Measures: []string{"revenue"},
	}
	set.Workflows["get top rankings"] = registry.Workflow{
		Intent: "get top rankings", Title: "Top Rankings", Tags: []string{"ranking"},
	}
	return set
}

func TestSuggestFallsBackWithoutAPIKey(t *testing.T) {
	p := New("", "gpt-4o-mini", intent.NewMatcher(intent.DefaultSynonyms()))
	require.Nil(t, p.client)

	got := p.Suggest(context.Background(), plannerSet(), "top rankings", 5)
	require.NotEmpty(t, got)
	assert.Equal(t, "get top rankings", got[0].Name)
}

func TestCatalogListingIsDeterministic(t *testing.T) {
	set := plannerSet()
	first := catalogListing(set)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, catalogListing(set))
	}
	assert.Contains(t, first, "get top rankings")
	assert.Contains(t, first, "analytics.daily_sales")
}
