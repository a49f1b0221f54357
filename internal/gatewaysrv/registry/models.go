// Package registry materializes the semantic registry from catalog
// snapshots. Two generations (blue/green) exist at any time; builds write
// only the inactive generation, and promotion flips a single active pointer
// after safety checks pass.
package registry

import (
	"time"

	"github.com/datagate-io/datagate/internal/gatewaysrv/gwcommon"
)

// Subject is a business domain grouping one or more views.
type Subject struct {
	Name              string   `json:"name"`
	Title             string   `json:"title"`
	DefaultViewFqName string   `json:"default_view"`
	Tags              []string `json:"tags"`
	SensitivityLevel  string   `json:"sensitivity_level"`
}

// SubjectView is a queryable view bound to a subject.
type SubjectView struct {
	Subject          string   `json:"subject"`
	ViewFqName       string   `json:"view"`
	Title            string   `json:"title"`
	Grain            string   `json:"grain"`
	TimeColumn       string   `json:"time_column"`
	Dimensions       []string `json:"dimensions"`
	Measures         []string `json:"measures"`
	Tags             []string `json:"tags"`
	PIIColumns       []string `json:"pii_columns"`
	SensitivityLevel string   `json:"sensitivity_level"`
}

// Workflow is a vetted callable operation backed by a procedure.
type Workflow struct {
	Intent         string   `json:"intent"`
	Title          string   `json:"title"`
	ProcFqName     string   `json:"procedure"`
	Inputs         []string `json:"inputs"`
	Outputs        []string `json:"outputs"`
	Tags           []string `json:"tags"`
	RequiresSecret bool     `json:"requires_secret"`
	SecretHash     string   `json:"secret_hash,omitempty"`
	MinRole        string   `json:"min_role,omitempty"`
	Idempotent     bool     `json:"idempotent"`
}

// GenerationSet is the full registry content of one generation. Maps are
// keyed by subject name, view fq-name, and workflow intent respectively.
type GenerationSet struct {
	Generation gwcommon.Generation
	Subjects   map[string]Subject
	Views      map[string]SubjectView
	Workflows  map[string]Workflow
	BuiltAt    time.Time
}

// NewGenerationSet creates an empty set for the given generation.
func NewGenerationSet(gen gwcommon.Generation) *GenerationSet {
	return &GenerationSet{
		Generation: gen,
		Subjects:   make(map[string]Subject),
		Views:      make(map[string]SubjectView),
		Workflows:  make(map[string]Workflow),
	}
}

// Empty reports whether the set carries no subjects at all.
func (g *GenerationSet) Empty() bool {
	return g == nil || len(g.Subjects) == 0
}

// ViewBySubjectDefault returns the subject's default view, if resolvable.
func (g *GenerationSet) ViewBySubjectDefault(subject string) (SubjectView, bool) {
	s, ok := g.Subjects[subject]
	if !ok {
		return SubjectView{}, false
	}
	v, ok := g.Views[s.DefaultViewFqName]
	return v, ok
}

// ActivePointer records which generation serves traffic. Version increases
// monotonically on every flip so cache keys can tie content to a promotion.
type ActivePointer struct {
	Generation gwcommon.Generation `json:"generation"`
	Version    int64               `json:"version"`
	PromotedAt time.Time           `json:"promoted_at"`
}

// Finding is one safety-gate observation about a pending promotion.
type Finding struct {
	Kind     string `json:"kind"`
	Key      string `json:"key"`
	Reason   string `json:"reason"`
	Blocking bool   `json:"blocking"`
}

// DiffEntry is one difference between the active and staging generations.
type DiffEntry struct {
	Kind       string `json:"kind"`
	Key        string `json:"key"`
	ChangeType string `json:"change_type"`
}
