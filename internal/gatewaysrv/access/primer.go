package access

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/datagate-io/datagate/internal/common/apperrors"
	"github.com/datagate-io/datagate/internal/gatewaysrv/engine"
	"github.com/datagate-io/datagate/internal/gatewaysrv/registry"
	"github.com/datagate-io/datagate/pkg/api"
)

const primerKeyPrefix = "primer:"

// PrimerService assembles the per-role capability snapshot agents fetch at
// session start. Primers are cached per (role, subject filter) with a TTL
// and invalidated on every registry promotion. Failures are never cached.
//
// The payload is filtered by the role's read privileges. Because the cache
// is role-keyed, the privilege check uses the role as principal; each
// read still recomputes the caller's own allowlist uncached.
type PrimerService struct {
	reg           *registry.Registry
	eng           engine.Engine
	cache         Cache
	ttl           time.Duration
	elevatedRoles []string
	rowCap        int
	maxCalls      int
	rateWindow    time.Duration
}

// NewPrimerService creates the service and hooks cache invalidation into
// registry promotions.
func NewPrimerService(reg *registry.Registry, eng engine.Engine, cache Cache, ttl time.Duration, elevatedRoles []string, rowCap, maxCalls int, rateWindow time.Duration) *PrimerService {
	p := &PrimerService{
		reg:           reg,
		eng:           eng,
		cache:         cache,
		ttl:           ttl,
		elevatedRoles: elevatedRoles,
		rowCap:        rowCap,
		maxCalls:      maxCalls,
		rateWindow:    rateWindow,
	}
	reg.OnPromote(func(registry.ActivePointer) {
		p.cache.DeletePrefix(context.Background(), primerKeyPrefix)
	})
	return p
}

// GetPrimer returns the primer for a role, optionally narrowed to subjects
// matching the filter.
func (p *PrimerService) GetPrimer(ctx context.Context, role, subjectFilter string) (*api.Primer, apperrors.Error) {
	key := primerKeyPrefix + role + "|" + subjectFilter
	if cached, ok := p.cache.Get(ctx, key); ok {
		var primer api.Primer
		if err := json.Unmarshal(cached, &primer); err == nil {
			return &primer, nil
		}
		log.Ctx(ctx).Warn().Str("key", key).Msg("discarding corrupt primer cache entry")
	}

	primer, err := p.build(ctx, role, subjectFilter)
	if err != nil {
		return nil, err
	}

	if payload, merr := json.Marshal(primer); merr == nil {
		p.cache.Set(ctx, key, payload, p.ttl)
	}
	return primer, nil
}

func (p *PrimerService) build(ctx context.Context, role, subjectFilter string) (*api.Primer, apperrors.Error) {
	set, ptr := p.reg.Active()
	elevated := roleElevated(role, p.elevatedRoles)

	allowlist, aerr := ComputeAllowlist(ctx, p.eng, set, role)
	if aerr != nil {
		return nil, aerr
	}

	primer := &api.Primer{
		Ok:   true,
		Role: role,
		Build: api.BuildMetadata{
			Generation: string(ptr.Generation),
			BuiltAt:    set.BuiltAt,
			Version:    ptr.Version,
		},
		UsageRules: p.usageRules(),
	}

	included := make(map[string]bool)
	subjectNames := sortedKeys(set.Subjects)
	for _, name := range subjectNames {
		subj := set.Subjects[name]
		if !matchesFilter(subj, subjectFilter) {
			continue
		}
		// Subjects whose default view the role cannot read are not
		// advertised at all.
		if !allowlist.Allowed(subj.DefaultViewFqName) {
			continue
		}
		included[name] = true
		primer.Subjects = append(primer.Subjects, api.PrimerSubject{
			Name:        subj.Name,
			Title:       subj.Title,
			DefaultView: subj.DefaultViewFqName,
			Tags:        subj.Tags,
			Sensitivity: subj.SensitivityLevel,
		})
	}

	for _, name := range sortedKeys(set.Views) {
		view := set.Views[name]
		if !included[view.Subject] || !allowlist.Allowed(view.ViewFqName) {
			continue
		}
		primer.SubjectViews = append(primer.SubjectViews, api.PrimerView{
			Subject:    view.Subject,
			ViewName:   view.ViewFqName,
			Grain:      view.Grain,
			TimeColumn: view.TimeColumn,
			Dimensions: view.Dimensions,
			Measures:   view.Measures,
			HasPII:     len(view.PIIColumns) > 0,
		})
	}

	for _, intent := range sortedKeys(set.Workflows) {
		wf := set.Workflows[intent]
		// Secret-gated workflows are invisible to non-elevated roles rather
		// than advertised and then denied.
		if wf.RequiresSecret && !elevated {
			continue
		}
		primer.Workflows = append(primer.Workflows, api.PrimerWorkflow{
			Intent:         wf.Intent,
			Title:          wf.Title,
			Inputs:         wf.Inputs,
			Outputs:        wf.Outputs,
			Tags:           wf.Tags,
			RequiresSecret: wf.RequiresSecret,
			MinRole:        wf.MinRole,
			Idempotent:     wf.Idempotent,
		})
	}

	return primer, nil
}

func (p *PrimerService) usageRules() []string {
	return []string{
		"Reads are SELECT-only against registered subject views; DML and DDL are rejected.",
		"Subjects marked pii require their workflow; direct reads of PII views are denied.",
		fmt.Sprintf("Unbounded queries are capped at %d rows.", p.rowCap),
		fmt.Sprintf("At most %d calls per agent per %s; blocked calls return a retry delay.", p.maxCalls, p.rateWindow),
		"Fetch this primer once per session; it reflects the active registry generation.",
	}
}

func matchesFilter(subj registry.Subject, filter string) bool {
	if filter == "" {
		return true
	}
	filter = strings.ToLower(filter)
	if strings.Contains(strings.ToLower(subj.Name), filter) {
		return true
	}
	for _, tag := range subj.Tags {
		if strings.Contains(strings.ToLower(tag), filter) {
			return true
		}
	}
	return false
}

func roleElevated(role string, elevated []string) bool {
	for _, r := range elevated {
		if role == r {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
