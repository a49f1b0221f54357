// Package gateway implements the guarded read path: rate limiting from the
// audit log, SQL shape checks, allowlist and PII enforcement, and tagged
// execution with a hard timeout.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/datagate-io/datagate/internal/common/logtrace"
	"github.com/datagate-io/datagate/internal/gatewaysrv/access"
	"github.com/datagate-io/datagate/internal/gatewaysrv/engine"
	"github.com/datagate-io/datagate/internal/gatewaysrv/gwcommon"
	"github.com/datagate-io/datagate/internal/gatewaysrv/registry"
	"github.com/datagate-io/datagate/pkg/api"
)

// Suggester ranks registry entries against a free-text query. The gateway
// answers with it instead of executing once an agent's error streak
// crosses the threshold.
type Suggester interface {
	Suggest(set *registry.GenerationSet, query string, limit int) []api.Suggestion
}

// Gateway is the guarded read path.
type Gateway struct {
	eng           engine.Engine
	reg           *registry.Registry
	audit         AuditStore
	limiter       *RateLimiter
	suggester     Suggester
	rowCap        int
	stmtTimeout   time.Duration
	elevatedRoles []string
}

// New creates a Gateway. suggester may be nil, disabling failure hints.
func New(eng engine.Engine, reg *registry.Registry, audit AuditStore, limiter *RateLimiter, suggester Suggester, rowCap int, stmtTimeout time.Duration, elevatedRoles []string) *Gateway {
	return &Gateway{
		eng:           eng,
		reg:           reg,
		audit:         audit,
		limiter:       limiter,
		suggester:     suggester,
		rowCap:        rowCap,
		stmtTimeout:   stmtTimeout,
		elevatedRoles: elevatedRoles,
	}
}

// Read runs one guarded read end to end. Each executed or rejected call
// appends exactly one read record to the audit log; an error-streak detour
// appends a single discovery record instead. The result always reports its
// outcome in the body.
func (g *Gateway) Read(ctx context.Context, id gwcommon.Identity, intent, sqlText string) *api.ReadResult {
	start := time.Now()
	ts := start.UTC()
	set, _ := g.reg.Active()

	resv, dec, aerr := g.limiter.Reserve(ctx, id.AgentID)
	if aerr != nil {
		log.Ctx(ctx).Error().Err(aerr).Str("agent", id.AgentID).Msg("rate limit check failed")
		return &api.ReadResult{Ok: false, Error: "service temporarily unavailable"}
	}
	if !dec.Allowed {
		g.append(ctx, AuditRecord{
			AgentID: id.AgentID, TS: ts, Intent: intent,
			Kind: KindRead, Outcome: OutcomeBlocked, SQLText: sqlText,
			ErrorText: "rate limit exceeded",
		})
		return &api.ReadResult{
			Ok:                false,
			Error:             "rate limit exceeded",
			RetryAfterSeconds: dec.RetryAfterSeconds,
		}
	}
	defer resv.Release()

	if dec.ErrorStreak {
		return g.suggestInstead(ctx, id, intent, ts)
	}

	fail := func(errText string, mutate func(*api.ReadResult)) *api.ReadResult {
		g.append(ctx, AuditRecord{
			AgentID: id.AgentID, TS: ts, Intent: intent,
			Kind: KindRead, Outcome: OutcomeError, SQLText: sqlText,
			ErrorText:  errText,
			DurationMs: time.Since(start).Milliseconds(),
		})
		res := &api.ReadResult{Ok: false, Error: errText}
		if mutate != nil {
			mutate(res)
		}
		return res
	}

	if reason := CheckShape(sqlText); reason != "" {
		return fail(reason, nil)
	}

	normalized := NormalizeLimit(sqlText, g.rowCap)

	objects := ExtractObjects(normalized)
	if len(objects) == 0 {
		return fail("statement references no readable objects", nil)
	}

	allowlist, aerr := access.ComputeAllowlist(ctx, g.eng, set, id.AgentID)
	if aerr != nil {
		log.Ctx(ctx).Error().Err(aerr).Str("agent", id.AgentID).Msg("allowlist computation failed")
		return fail("service temporarily unavailable", nil)
	}
	if _, blocked := allowlist.Filter(objects); len(blocked) > 0 {
		return fail("access denied", func(r *api.ReadResult) {
			r.BlockedObjects = blocked
		})
	}

	if piiObjects := g.piiViolations(set, objects, id); len(piiObjects) > 0 {
		return fail("PII-protected objects require workflow access", func(r *api.ReadResult) {
			r.PIIObjects = piiObjects
			r.UseWorkflow = true
		})
	}

	execCtx, cancel := context.WithTimeout(ctx, g.stmtTimeout)
	defer cancel()
	tag := engine.QueryTag{
		Agent:   id.AgentID,
		Intent:  intent,
		Request: logtrace.RequestIdFromContext(ctx),
	}
	rs, xerr := g.eng.ExecuteRead(execCtx, normalized, tag, g.rowCap)
	if xerr != nil {
		errText := "query execution failed"
		if errors.Is(xerr, engine.ErrExecutionTimeout) {
			errText = "query timed out"
		}
		log.Ctx(ctx).Warn().Err(xerr).Str("agent", id.AgentID).Msg("guarded read failed")
		return fail(errText, nil)
	}

	duration := time.Since(start).Milliseconds()
	g.append(ctx, AuditRecord{
		AgentID: id.AgentID, TS: ts, Intent: intent,
		Kind: KindRead, Outcome: OutcomeOK, SQLText: normalized,
		RowsReturned: len(rs.Rows), DurationMs: duration,
	})
	return &api.ReadResult{
		Ok:          true,
		Data:        rs.Rows,
		RowCount:    len(rs.Rows),
		ExecutedSQL: normalized,
		DurationMs:  duration,
	}
}

// piiViolations returns the referenced objects whose views carry PII
// columns when the caller's role is not elevated.
func (g *Gateway) piiViolations(set *registry.GenerationSet, objects []string, id gwcommon.Identity) []string {
	if id.Elevated(g.elevatedRoles) {
		return nil
	}
	var out []string
	for _, obj := range objects {
		if view, ok := set.Views[obj]; ok && len(view.PIIColumns) > 0 {
			out = append(out, obj)
		}
	}
	return out
}

// suggestInstead answers an error-streaking agent with intent suggestions
// instead of executing its statement. The call is logged as a discovery
// record, which the limiter never counts as a read, so the detour cannot
// feed the streak that triggered it.
func (g *Gateway) suggestInstead(ctx context.Context, id gwcommon.Identity, intent string, ts time.Time) *api.ReadResult {
	res := &api.ReadResult{
		Ok:    false,
		Error: "too many failed reads in this window; use a suggested intent",
	}
	if g.suggester != nil && intent != "" {
		set, _ := g.reg.Active()
		res.Suggestions = g.suggester.Suggest(set, intent, 5)
	}
	g.append(ctx, AuditRecord{
		AgentID: id.AgentID, TS: ts, Intent: intent,
		Kind: KindDiscovery, Outcome: OutcomeOK,
		ErrorText: "error streak suggestion issued",
	})
	return res
}

func (g *Gateway) append(ctx context.Context, rec AuditRecord) {
	if err := g.audit.Append(ctx, rec); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("agent", rec.AgentID).Msg("failed to append audit record")
	}
}
