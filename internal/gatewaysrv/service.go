// Package gatewaysrv wires the gateway service: engine, catalog scanner,
// registry, primer cache, guarded read path, and intent matching behind one
// facade shared by the HTTP and MCP surfaces.
package gatewaysrv

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/datagate-io/datagate/internal/common/apperrors"
	"github.com/datagate-io/datagate/internal/gatewaysrv/access"
	"github.com/datagate-io/datagate/internal/gatewaysrv/catalog"
	"github.com/datagate-io/datagate/internal/gatewaysrv/config"
	"github.com/datagate-io/datagate/internal/gatewaysrv/engine"
	"github.com/datagate-io/datagate/internal/gatewaysrv/gateway"
	"github.com/datagate-io/datagate/internal/gatewaysrv/gwcommon"
	"github.com/datagate-io/datagate/internal/gatewaysrv/intent"
	"github.com/datagate-io/datagate/internal/gatewaysrv/planner"
	"github.com/datagate-io/datagate/internal/gatewaysrv/registry"
	"github.com/datagate-io/datagate/internal/gatewaysrv/telemetry"
	"github.com/datagate-io/datagate/pkg/api"
)

// Service owns every gateway component. Both surfaces call through it.
type Service struct {
	Engine    engine.Engine
	Registry  *registry.Registry
	Audit     gateway.AuditStore
	Gateway   *gateway.Gateway
	Primer    *access.PrimerService
	Matcher   *intent.Matcher
	Planner   *planner.Planner
	Scanner   *catalog.Scanner
	Snapshots *catalog.SnapshotStore

	db *sql.DB
}

// NewService builds the service from the loaded configuration.
func NewService(ctx context.Context) (*Service, apperrors.Error) {
	cfg := config.Config()
	s := &Service{Snapshots: catalog.NewSnapshotStore()}

	var regStore registry.Store
	var auditStore gateway.AuditStore
	switch cfg.Engine.Type {
	case "postgres":
		db, err := engine.OpenDB(cfg.Engine.DSN())
		if err != nil {
			return nil, err
		}
		s.db = db
		s.Engine = engine.NewPostgres(db)
		pgReg, err := registry.NewPostgresStore(ctx, db)
		if err != nil {
			return nil, err
		}
		regStore = pgReg
		pgAudit, err := gateway.NewPostgresAuditStore(ctx, db)
		if err != nil {
			return nil, err
		}
		auditStore = pgAudit
	default:
		s.Engine = engine.NewMemory()
		regStore = registry.NewMemoryStore()
		auditStore = gateway.NewMemoryAuditStore()
	}
	s.Audit = auditStore

	reg, err := registry.NewRegistry(ctx, regStore)
	if err != nil {
		return nil, err
	}
	s.Registry = reg
	reg.OnPromote(func(ptr registry.ActivePointer) {
		telemetry.RecordPromotion(string(ptr.Generation))
	})

	s.Scanner = catalog.NewScanner(s.Engine, catalog.NewPiiClassifier(cfg.Security.PIIDenylist))

	var cache access.Cache
	if cfg.Cache.RedisAddr != "" {
		rc, cerr := access.NewRedisCache(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisDB)
		if cerr != nil {
			return nil, apperrors.New("failed to connect to redis").Err(cerr)
		}
		cache = rc
	} else {
		cache = access.NewMemoryCache()
	}
	s.Primer = access.NewPrimerService(
		reg, s.Engine, cache, cfg.Primer.GetTTLOrDefault(),
		cfg.Security.ElevatedRoles,
		cfg.Gateway.RowCap, cfg.Gateway.MaxCallsPerWindow,
		cfg.Gateway.GetRateWindowOrDefault(),
	)

	synonyms, serr := intent.LoadSynonyms(cfg.Intent.SynonymsFile)
	if serr != nil {
		return nil, apperrors.New("failed to load synonym table").Err(serr)
	}
	s.Matcher = intent.NewMatcher(synonyms)

	plannerKey := ""
	if cfg.Planner.Enabled {
		plannerKey = cfg.Planner.APIKey
	}
	s.Planner = planner.New(plannerKey, cfg.Planner.Model, s.Matcher)

	limiter := gateway.NewRateLimiter(
		auditStore, cfg.Gateway.GetRateWindowOrDefault(),
		cfg.Gateway.MaxCallsPerWindow, cfg.Gateway.MaxErrorsPerWindow,
	)
	s.Gateway = gateway.New(
		s.Engine, reg, auditStore, limiter, s.Matcher,
		cfg.Gateway.RowCap, cfg.Gateway.GetStatementTimeoutOrDefault(),
		cfg.Security.ElevatedRoles,
	)
	return s, nil
}

// Close releases the shared database pool.
func (s *Service) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// Ready reports whether the backing engine is reachable.
func (s *Service) Ready(ctx context.Context) apperrors.Error {
	return s.Engine.Ping(ctx)
}

// GetPrimer returns the capability primer for the caller's role.
func (s *Service) GetPrimer(ctx context.Context, role, subjectFilter string) *api.Primer {
	primer, err := s.Primer.GetPrimer(ctx, role, subjectFilter)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("primer assembly failed")
		return &api.Primer{Ok: false, Error: "unable to assemble primer", Role: role}
	}
	return primer
}

// SuggestIntent ranks registry entries for a free-text query. Candidates
// are limited to what the caller could act on next: views on the caller's
// allowlist and workflows the caller may invoke.
func (s *Service) SuggestIntent(ctx context.Context, id gwcommon.Identity, query string) *api.SuggestResult {
	if query == "" {
		return &api.SuggestResult{Ok: false, Error: "query must not be empty"}
	}
	set, _ := s.Registry.Active()
	al, err := access.ComputeAllowlist(ctx, s.Engine, set, id.AgentID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("allowlist computation failed")
		return &api.SuggestResult{Ok: false, Error: "service temporarily unavailable"}
	}
	return &api.SuggestResult{
		Ok:          true,
		Suggestions: s.Planner.Suggest(ctx, suggestableSet(set, al, id), query, 5),
	}
}

// suggestableSet narrows a generation to the caller's view: allowlisted
// views, and workflows minus the secret-bearing ones for non-elevated
// roles. Subjects pass through for default-view resolution.
func suggestableSet(set *registry.GenerationSet, al *access.Allowlist, id gwcommon.Identity) *registry.GenerationSet {
	out := registry.NewGenerationSet(set.Generation)
	out.Subjects = set.Subjects
	out.BuiltAt = set.BuiltAt
	for name, view := range set.Views {
		if al.Allowed(view.ViewFqName) {
			out.Views[name] = view
		}
	}
	elevated := id.Elevated(config.Config().Security.ElevatedRoles)
	for name, wf := range set.Workflows {
		if wf.RequiresSecret && !elevated {
			continue
		}
		out.Workflows[name] = wf
	}
	return out
}

// Read runs one guarded read for the caller.
func (s *Service) Read(ctx context.Context, id gwcommon.Identity, intentText, sqlText string) *api.ReadResult {
	start := time.Now()
	res := s.Gateway.Read(ctx, id, intentText, sqlText)
	outcome := gateway.OutcomeOK
	switch {
	case res.RetryAfterSeconds > 0:
		outcome = gateway.OutcomeBlocked
	case !res.Ok:
		outcome = gateway.OutcomeError
	}
	telemetry.RecordCall(gateway.KindRead, outcome, time.Since(start))
	return res
}

// RefreshCatalog re-scans the backend, commits the new snapshot, and
// reports deltas against the previously committed one.
func (s *Service) RefreshCatalog(ctx context.Context) *api.RefreshResult {
	snap, err := s.Scanner.Scan(ctx)
	if err != nil {
		return &api.RefreshResult{Ok: false, Error: err.ErrorAll()}
	}
	deltas := catalog.Diff(s.Snapshots.Committed(), snap)
	s.Snapshots.Commit(snap)

	res := &api.RefreshResult{
		Ok:               true,
		ObjectCount:      len(snap.Objects),
		DescriptorErrors: len(snap.Errors),
	}
	for _, d := range deltas {
		res.Deltas = append(res.Deltas, api.DeltaSummary{
			Kind:       string(d.Kind),
			ObjectName: d.ObjectName,
			ChangeType: string(d.ChangeType),
		})
	}
	return res
}

// RebuildRegistry materializes the staging generation from the committed
// snapshot, scanning first if no snapshot has been committed yet.
func (s *Service) RebuildRegistry(ctx context.Context) *api.RebuildResult {
	snap := s.Snapshots.Committed()
	if snap == nil {
		refresh := s.RefreshCatalog(ctx)
		if !refresh.Ok {
			return &api.RebuildResult{Ok: false, Error: refresh.Error}
		}
		snap = s.Snapshots.Committed()
	}

	set, err := s.Registry.Rebuild(ctx, snap)
	if err != nil {
		return &api.RebuildResult{Ok: false, Error: err.ErrorAll()}
	}
	return &api.RebuildResult{
		Ok:        true,
		Target:    string(set.Generation),
		Subjects:  len(set.Subjects),
		Views:     len(set.Views),
		Workflows: len(set.Workflows),
	}
}

// PromoteRegistry flips the active pointer to staging after safety checks.
func (s *Service) PromoteRegistry(ctx context.Context, allowRemovals bool) *api.PromoteResult {
	var descErrors []catalog.DescriptorError
	if snap := s.Snapshots.Committed(); snap != nil {
		descErrors = snap.Errors
	}
	ptr, prev, findings, err := s.Registry.Promote(ctx, descErrors, allowRemovals)
	res := &api.PromoteResult{
		Active:   string(ptr.Generation),
		Previous: string(prev),
		Findings: toAPIFindings(findings),
	}
	if err != nil {
		res.Ok = false
		res.Error = err.Error()
		return res
	}
	res.Ok = true
	return res
}

// RollbackRegistry re-points at the previously active generation.
func (s *Service) RollbackRegistry(ctx context.Context) *api.PromoteResult {
	_, ptr := s.Registry.Active()
	prev := ptr.Generation
	newPtr, err := s.Registry.Rollback(ctx)
	if err != nil {
		return &api.PromoteResult{Ok: false, Error: err.Error(), Active: string(prev)}
	}
	return &api.PromoteResult{
		Ok:       true,
		Active:   string(newPtr.Generation),
		Previous: string(prev),
	}
}

// DiffRegistry compares active against staging.
func (s *Service) DiffRegistry(ctx context.Context) *api.DiffResult {
	active, staging, entries, err := s.Registry.Diff(ctx)
	if err != nil {
		return &api.DiffResult{Ok: false, Error: err.ErrorAll()}
	}
	res := &api.DiffResult{
		Ok:      true,
		Active:  string(active),
		Staging: string(staging),
	}
	for _, e := range entries {
		res.Entries = append(res.Entries, api.RegistryDiffEntry{
			Kind:       e.Kind,
			Key:        e.Key,
			ChangeType: e.ChangeType,
		})
	}
	return res
}

// RunComplianceChecks verifies the invariants operators care about before
// trusting a deployment: engine reachability, a non-empty active registry,
// zero quarantined descriptors, resolvable default views, and PII labeling
// consistency.
func (s *Service) RunComplianceChecks(ctx context.Context) *api.ComplianceResult {
	res := &api.ComplianceResult{Ok: true}
	add := func(name string, passed bool, detail string) {
		if passed {
			detail = ""
		}
		res.Checks = append(res.Checks, api.ComplianceCheck{Name: name, Passed: passed, Detail: detail})
		if !passed {
			res.Ok = false
		}
	}

	add("engine_reachable", s.Engine.Ping(ctx) == nil, "engine ping failed")

	set, _ := s.Registry.Active()
	add("active_registry_nonempty", !set.Empty(), "active generation has no subjects")

	snap := s.Snapshots.Committed()
	if snap == nil {
		add("catalog_scanned", false, "no catalog snapshot committed")
	} else {
		add("catalog_scanned", true, "")
		add("no_descriptor_errors", len(snap.Errors) == 0,
			fmt.Sprintf("%d descriptors quarantined", len(snap.Errors)))
	}

	defaultsOK := true
	piiOK := true
	for name, subj := range set.Subjects {
		if _, ok := set.Views[subj.DefaultViewFqName]; !ok {
			defaultsOK = false
			log.Ctx(ctx).Warn().Str("subject", name).Msg("default view does not resolve")
		}
	}
	for name, view := range set.Views {
		if len(view.PIIColumns) > 0 && view.SensitivityLevel != string(catalog.SensitivityPII) {
			piiOK = false
			log.Ctx(ctx).Warn().Str("view", name).Msg("pii columns without pii sensitivity level")
		}
	}
	add("default_views_resolve", defaultsOK, "subject default views missing from registry")
	add("pii_labeling_consistent", piiOK, "views carry pii columns without pii sensitivity")

	// Verifying against an empty secret never matches, but it does parse the
	// stored hash, which is what this check cares about.
	secretsOK := true
	for name, wf := range set.Workflows {
		if !wf.RequiresSecret {
			continue
		}
		if _, verr := gwcommon.VerifySecret("", wf.SecretHash); verr != nil {
			secretsOK = false
			log.Ctx(ctx).Warn().Str("workflow", name).Msg("workflow secret hash is malformed")
		}
	}
	add("workflow_secret_hashes_wellformed", secretsOK,
		"secret-bearing workflows carry malformed secret hashes")

	return res
}

func toAPIFindings(findings []registry.Finding) []api.Finding {
	out := make([]api.Finding, 0, len(findings))
	for _, f := range findings {
		out = append(out, api.Finding{Kind: f.Kind, Key: f.Key, Reason: f.Reason, Blocking: f.Blocking})
	}
	return out
}
