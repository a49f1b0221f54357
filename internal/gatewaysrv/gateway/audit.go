package gateway

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/datagate-io/datagate/internal/common/apperrors"
)

// Call kinds and outcomes recorded in the audit log.
const (
	KindRead      = "read"
	KindDiscovery = "discovery"

	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeBlocked = "blocked"
)

// AuditRecord is one append-only entry in the agent call log. The log is
// the single source of truth for rate limiting; there is no separate
// counter state.
type AuditRecord struct {
	AgentID      string    `json:"agent_id"`
	TS           time.Time `json:"ts"`
	Intent       string    `json:"intent,omitempty"`
	Kind         string    `json:"kind"`
	Outcome      string    `json:"outcome"`
	SQLText      string    `json:"sql_text,omitempty"`
	ErrorText    string    `json:"error_text,omitempty"`
	RowsReturned int       `json:"rows_returned"`
	DurationMs   int64     `json:"duration_ms"`
}

// AuditStore persists audit records. Appends are idempotent on
// (agent_id, ts, kind): replaying a record is a no-op, never a double
// count.
type AuditStore interface {
	Append(ctx context.Context, rec AuditRecord) apperrors.Error
	RecentByAgent(ctx context.Context, agentID string, since time.Time) ([]AuditRecord, apperrors.Error)
}

type auditKey struct {
	agentID string
	ts      time.Time
	kind    string
}

// MemoryAuditStore is an in-memory AuditStore used by the "memory" engine
// type and by tests.
type MemoryAuditStore struct {
	mu      sync.RWMutex
	records []AuditRecord
	keys    map[auditKey]bool
}

// NewMemoryAuditStore creates an empty store.
func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{keys: make(map[auditKey]bool)}
}

func (s *MemoryAuditStore) Append(ctx context.Context, rec AuditRecord) apperrors.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := auditKey{agentID: rec.AgentID, ts: rec.TS, kind: rec.Kind}
	if s.keys[key] {
		return nil
	}
	s.keys[key] = true
	s.records = append(s.records, rec)
	return nil
}

func (s *MemoryAuditStore) RecentByAgent(ctx context.Context, agentID string, since time.Time) ([]AuditRecord, apperrors.Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []AuditRecord
	for _, r := range s.records {
		if r.AgentID == agentID && !r.TS.Before(since) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TS.Before(out[j].TS) })
	return out, nil
}

// All returns every record, for tests and compliance checks.
func (s *MemoryAuditStore) All() []AuditRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AuditRecord, len(s.records))
	copy(out, s.records)
	return out
}

var _ AuditStore = (*MemoryAuditStore)(nil)

// PostgresAuditStore persists the call log in the agent_call_log table.
type PostgresAuditStore struct {
	db *sql.DB
}

// NewPostgresAuditStore creates the store and its table if missing.
func NewPostgresAuditStore(ctx context.Context, db *sql.DB) (*PostgresAuditStore, apperrors.Error) {
	const migrate = `
		CREATE TABLE IF NOT EXISTS agent_call_log (
			agent_id TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			intent TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL,
			outcome TEXT NOT NULL,
			sql_text TEXT NOT NULL DEFAULT '',
			error_text TEXT NOT NULL DEFAULT '',
			rows_returned INT NOT NULL DEFAULT 0,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (agent_id, ts, kind)
		);
		CREATE INDEX IF NOT EXISTS agent_call_log_agent_ts ON agent_call_log (agent_id, ts);
	`
	if _, err := db.ExecContext(ctx, migrate); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to create audit table")
		return nil, ErrAudit.MsgErr("failed to create audit table", err)
	}
	return &PostgresAuditStore{db: db}, nil
}

func (s *PostgresAuditStore) Append(ctx context.Context, rec AuditRecord) apperrors.Error {
	const insert = `
		INSERT INTO agent_call_log
			(agent_id, ts, intent, kind, outcome, sql_text, error_text, rows_returned, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (agent_id, ts, kind) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, insert,
		rec.AgentID, rec.TS, rec.Intent, rec.Kind, rec.Outcome,
		rec.SQLText, rec.ErrorText, rec.RowsReturned, rec.DurationMs,
	)
	if err != nil {
		return ErrAudit.MsgErr("failed to append audit record", err)
	}
	return nil
}

func (s *PostgresAuditStore) RecentByAgent(ctx context.Context, agentID string, since time.Time) ([]AuditRecord, apperrors.Error) {
	const query = `
		SELECT agent_id, ts, intent, kind, outcome, sql_text, error_text, rows_returned, duration_ms
		FROM agent_call_log
		WHERE agent_id = $1 AND ts >= $2
		ORDER BY ts
	`
	rows, err := s.db.QueryContext(ctx, query, agentID, since)
	if err != nil {
		return nil, ErrAudit.MsgErr("failed to read audit records", err)
	}
	defer rows.Close()

	var out []AuditRecord
	for rows.Next() {
		var r AuditRecord
		if err := rows.Scan(&r.AgentID, &r.TS, &r.Intent, &r.Kind, &r.Outcome,
			&r.SQLText, &r.ErrorText, &r.RowsReturned, &r.DurationMs); err != nil {
			return nil, ErrAudit.Err(err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, ErrAudit.Err(err)
	}
	return out, nil
}

var _ AuditStore = (*PostgresAuditStore)(nil)
