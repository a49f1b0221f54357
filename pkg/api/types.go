// Package api defines the wire types returned by datagate's HTTP and MCP
// surfaces. Every result carries an explicit ok/error flag; clients must
// check Ok rather than rely on transport status.
package api

import "time"

// Suggestion is a ranked registry candidate returned by intent matching.
type Suggestion struct {
	Kind        string  `json:"kind"` // "workflow" or "view"
	Name        string  `json:"name"`
	Title       string  `json:"title,omitempty"`
	Subject     string  `json:"subject,omitempty"`
	DefaultView string  `json:"default_view,omitempty"`
	Score       float64 `json:"score"`
}

// ReadResult is the outcome of a guarded read. Exactly one of the failure
// detail fields is populated on error.
type ReadResult struct {
	Ok                bool             `json:"ok"`
	Error             string           `json:"error,omitempty"`
	Data              []map[string]any `json:"data,omitempty"`
	RowCount          int              `json:"row_count"`
	ExecutedSQL       string           `json:"executed_sql,omitempty"`
	DurationMs        int64            `json:"duration_ms,omitempty"`
	BlockedObjects    []string         `json:"blocked_objects,omitempty"`
	PIIObjects        []string         `json:"pii_objects,omitempty"`
	UseWorkflow       bool             `json:"use_workflow,omitempty"`
	RetryAfterSeconds int              `json:"retry_after_seconds,omitempty"`
	Suggestions       []Suggestion     `json:"suggestions,omitempty"`
}

// SuggestResult is the outcome of intent suggestion.
type SuggestResult struct {
	Ok          bool         `json:"ok"`
	Error       string       `json:"error,omitempty"`
	Suggestions []Suggestion `json:"suggestions"`
}

// PrimerSubject is a subject entry in the primer payload.
type PrimerSubject struct {
	Name        string   `json:"name"`
	Title       string   `json:"title"`
	DefaultView string   `json:"default_view"`
	Tags        []string `json:"tags,omitempty"`
	Sensitivity string   `json:"sensitivity"`
}

// PrimerView is a subject-view entry in the primer payload.
type PrimerView struct {
	Subject    string   `json:"subject"`
	ViewName   string   `json:"view_name"`
	Grain      string   `json:"grain,omitempty"`
	TimeColumn string   `json:"time_column,omitempty"`
	Dimensions []string `json:"dimensions,omitempty"`
	Measures   []string `json:"measures,omitempty"`
	HasPII     bool     `json:"has_pii"`
}

// PrimerWorkflow is a workflow entry in the primer payload.
type PrimerWorkflow struct {
	Intent         string   `json:"intent"`
	Title          string   `json:"title"`
	Inputs         []string `json:"inputs,omitempty"`
	Outputs        []string `json:"outputs,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	RequiresSecret bool     `json:"requires_secret"`
	MinRole        string   `json:"min_role,omitempty"`
	Idempotent     bool     `json:"idempotent"`
}

// BuildMetadata describes the registry generation backing a primer.
type BuildMetadata struct {
	Generation string    `json:"generation"`
	BuiltAt    time.Time `json:"built_at"`
	Version    int64     `json:"version"`
}

// Primer is the per-role capability snapshot agents fetch once per session.
type Primer struct {
	Ok           bool             `json:"ok"`
	Error        string           `json:"error,omitempty"`
	Role         string           `json:"role"`
	Subjects     []PrimerSubject  `json:"subjects"`
	SubjectViews []PrimerView     `json:"subject_views"`
	Workflows    []PrimerWorkflow `json:"workflows"`
	UsageRules   []string         `json:"usage_rules"`
	Build        BuildMetadata    `json:"build"`
}

// DeltaSummary is one catalog change reported by RefreshCatalog.
type DeltaSummary struct {
	Kind       string `json:"kind"`
	ObjectName string `json:"object_name"`
	ChangeType string `json:"change_type"`
}

// RefreshResult is the outcome of a catalog refresh.
type RefreshResult struct {
	Ok               bool           `json:"ok"`
	Error            string         `json:"error,omitempty"`
	ObjectCount      int            `json:"object_count"`
	DescriptorErrors int            `json:"descriptor_errors"`
	Deltas           []DeltaSummary `json:"deltas,omitempty"`
}

// RebuildResult is the outcome of a registry rebuild into the staging
// generation.
type RebuildResult struct {
	Ok        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	Target    string `json:"target"`
	Subjects  int    `json:"subjects"`
	Views     int    `json:"views"`
	Workflows int    `json:"workflows"`
}

// Finding is a safety-gate finding blocking or annotating a promotion.
type Finding struct {
	Kind     string `json:"kind"`
	Key      string `json:"key"`
	Reason   string `json:"reason"`
	Blocking bool   `json:"blocking"`
}

// PromoteResult is the outcome of a registry promotion.
type PromoteResult struct {
	Ok       bool      `json:"ok"`
	Error    string    `json:"error,omitempty"`
	Active   string    `json:"active,omitempty"`
	Previous string    `json:"previous,omitempty"`
	Findings []Finding `json:"findings,omitempty"`
}

// RegistryDiffEntry is one added/removed/modified registry object.
type RegistryDiffEntry struct {
	Kind       string `json:"kind"` // "subject" or "workflow"
	Key        string `json:"key"`
	ChangeType string `json:"change_type"`
}

// DiffResult is the staging-vs-active registry diff.
type DiffResult struct {
	Ok      bool                `json:"ok"`
	Error   string              `json:"error,omitempty"`
	Active  string              `json:"active"`
	Staging string              `json:"staging"`
	Entries []RegistryDiffEntry `json:"entries"`
}

// ComplianceCheck is one verification performed by RunComplianceChecks.
type ComplianceCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// ComplianceResult is the outcome of the compliance check run.
type ComplianceResult struct {
	Ok     bool              `json:"ok"`
	Error  string            `json:"error,omitempty"`
	Checks []ComplianceCheck `json:"checks"`
}
