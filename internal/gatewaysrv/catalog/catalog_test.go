package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datagate-io/datagate/internal/gatewaysrv/engine"
)

const salesViewDescriptor = `{
	"contract_version": "2.0.0",
	"subject": "sales",
	"title": "Daily Sales",
	"default_view": true,
	"grain": "day",
	"time_column": "sale_date",
	"dimensions": ["region", "product"],
	"measures": ["revenue", "units"],
	"tags": ["sales", "revenue"],
	"sensitivity": "public"
}`

func newTestEngine() *engine.Memory {
	eng := engine.NewMemory()
	eng.AddView("analytics.daily_sales", salesViewDescriptor, []engine.RawColumn{
		{Name: "sale_date", Ordinal: 1, DataType: "date"},
		{Name: "region", Ordinal: 2, DataType: "text"},
		{Name: "revenue", Ordinal: 3, DataType: "numeric"},
	})
	eng.AddProcedure("analytics.refresh_rollups", `{
		"contract_version": "2.1.0",
		"intent": "refresh sales rollups",
		"title": "Refresh Rollups",
		"tags": ["maintenance"],
		"idempotent": true
	}`)
	return eng
}

func TestScanParsesDescriptors(t *testing.T) {
	s := NewScanner(newTestEngine(), NewPiiClassifier(nil))
	snap, err := s.Scan(context.Background())
	require.Nil(t, err)
	require.Len(t, snap.Objects, 2)

	view := snap.Objects["analytics.daily_sales"]
	require.NotNil(t, view.Descriptor)
	assert.Equal(t, "sales", view.Descriptor.Subject)
	assert.True(t, view.Descriptor.DefaultView)
	assert.Equal(t, []string{"revenue", "units"}, view.Descriptor.Measures)

	proc := snap.Objects["analytics.refresh_rollups"]
	require.NotNil(t, proc.Descriptor)
	assert.Equal(t, "refresh sales rollups", proc.Descriptor.Intent)
	assert.True(t, proc.Descriptor.Idempotent)
	assert.Empty(t, snap.Errors)
}

func TestScanQuarantinesInvalidDescriptors(t *testing.T) {
	eng := newTestEngine()
	eng.AddView("analytics.broken", `{"subject": "sales", "measures": "not-an-array"`, nil)
	eng.AddProcedure("analytics.future", `{"contract_version": "3.0.0", "intent": "x"}`)

	s := NewScanner(eng, NewPiiClassifier(nil))
	snap, err := s.Scan(context.Background())
	require.Nil(t, err)

	require.Len(t, snap.Errors, 2)
	reasons := map[string]string{}
	for _, e := range snap.Errors {
		reasons[e.ObjectName] = e.Reason
	}
	assert.Contains(t, reasons["analytics.broken"], "not valid JSON")
	assert.Contains(t, reasons["analytics.future"], "unsupported contract_version")

	// Quarantined objects stay in the snapshot descriptor-less so the
	// builder can exclude them without losing the audit trail.
	obj, ok := snap.Objects["analytics.broken"]
	require.True(t, ok)
	assert.Nil(t, obj.Descriptor)
}

func TestScanPlainCommentIsNotDescriptor(t *testing.T) {
	eng := engine.NewMemory()
	eng.AddView("analytics.notes", "just a human comment", nil)

	s := NewScanner(eng, NewPiiClassifier(nil))
	snap, err := s.Scan(context.Background())
	require.Nil(t, err)
	assert.Empty(t, snap.Errors)
	assert.Nil(t, snap.Objects["analytics.notes"].Descriptor)
}

func TestScanRetriesTransientIntrospection(t *testing.T) {
	eng := newTestEngine()
	eng.FailIntrospections(2)

	s := NewScanner(eng, NewPiiClassifier(nil))
	snap, err := s.Scan(context.Background())
	require.Nil(t, err)
	assert.Len(t, snap.Objects, 2)
}

func TestDiffIdempotentRescan(t *testing.T) {
	s := NewScanner(newTestEngine(), NewPiiClassifier(nil))
	first, err := s.Scan(context.Background())
	require.Nil(t, err)
	second, err := s.Scan(context.Background())
	require.Nil(t, err)

	assert.Empty(t, Diff(first, second))
}

func TestDiffDetectsChanges(t *testing.T) {
	eng := newTestEngine()
	s := NewScanner(eng, NewPiiClassifier(nil))
	old, err := s.Scan(context.Background())
	require.Nil(t, err)

	eng.AddView("analytics.daily_sales", `{"contract_version": "2.0.0", "subject": "sales", "title": "Daily Sales v2"}`, nil)
	eng.Remove("analytics.refresh_rollups")
	eng.AddView("analytics.new_view", "", nil)

	cur, err := s.Scan(context.Background())
	require.Nil(t, err)

	deltas := Diff(old, cur)
	require.Len(t, deltas, 3)

	byName := map[string]Delta{}
	for _, d := range deltas {
		byName[d.ObjectName] = d
	}
	assert.Equal(t, ChangeModified, byName["analytics.daily_sales"].ChangeType)
	assert.Equal(t, ChangeRemoved, byName["analytics.refresh_rollups"].ChangeType)
	assert.Equal(t, ChangeAdded, byName["analytics.new_view"].ChangeType)
}

func TestDiffFromNilBaselineIsAllAdds(t *testing.T) {
	s := NewScanner(newTestEngine(), NewPiiClassifier(nil))
	snap, err := s.Scan(context.Background())
	require.Nil(t, err)

	deltas := Diff(nil, snap)
	require.Len(t, deltas, 2)
	for _, d := range deltas {
		assert.Equal(t, ChangeAdded, d.ChangeType)
	}
}

func TestPiiClassifier(t *testing.T) {
	c := NewPiiClassifier(nil)

	assert.Equal(t, SensitivityPII, c.Classify("customer_email", ""))
	assert.Equal(t, SensitivityPII, c.Classify("SSN", ""))
	assert.Equal(t, SensitivityPII, c.Classify("date_of_birth", ""))
	assert.Equal(t, SensitivityPublic, c.Classify("region", ""))

	// Explicit comment tags win over name heuristics, both directions.
	assert.Equal(t, SensitivityPublic, c.Classify("email_domain", "public"))
	assert.Equal(t, SensitivityPII, c.Classify("region", `{"sensitivity": "pii"}`))
}

func TestViewPIIColumnsUnionsDeclaredAndClassified(t *testing.T) {
	desc := &Descriptor{PIIColumns: []string{"loyalty_code", "Email"}}
	cols := []ColumnMeta{
		{Name: "email", Sensitivity: SensitivityPII},
		{Name: "region", Sensitivity: SensitivityPublic},
		{Name: "phone", Sensitivity: SensitivityPII},
	}
	got := ViewPIIColumns(desc, cols)
	assert.ElementsMatch(t, []string{"loyalty_code", "email", "phone"}, got)
}

func TestSnapshotStoreCommit(t *testing.T) {
	st := NewSnapshotStore()
	assert.Nil(t, st.Committed())

	s := NewScanner(newTestEngine(), NewPiiClassifier(nil))
	snap, err := s.Scan(context.Background())
	require.Nil(t, err)

	st.Commit(snap)
	assert.Same(t, snap, st.Committed())
}
