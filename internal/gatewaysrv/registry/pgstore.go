package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/datagate-io/datagate/internal/common/apperrors"
	"github.com/datagate-io/datagate/internal/gatewaysrv/gwcommon"
)

const (
	kindSubject  = "subject"
	kindView     = "view"
	kindWorkflow = "workflow"
)

// PostgresStore persists registry generations in two tables: one holding
// the records of both generations keyed by (generation, kind, key), and a
// single-row table holding the active pointer.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates the store and its tables if missing.
func NewPostgresStore(ctx context.Context, db *sql.DB) (*PostgresStore, apperrors.Error) {
	const migrate = `
		CREATE TABLE IF NOT EXISTS registry_records (
			generation TEXT NOT NULL,
			kind TEXT NOT NULL,
			key TEXT NOT NULL,
			doc JSONB NOT NULL,
			built_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (generation, kind, key)
		);
		CREATE TABLE IF NOT EXISTS registry_active (
			id BOOLEAN PRIMARY KEY DEFAULT TRUE,
			generation TEXT NOT NULL,
			version BIGINT NOT NULL,
			promoted_at TIMESTAMPTZ NOT NULL
		);
	`
	if _, err := db.ExecContext(ctx, migrate); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to create registry tables")
		return nil, ErrStore.MsgErr("failed to create registry tables", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) ReplaceGeneration(ctx context.Context, set *GenerationSet) apperrors.Error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ErrStore.Err(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM registry_records WHERE generation = $1`, string(set.Generation),
	); err != nil {
		return ErrStore.MsgErr("failed to clear generation", err)
	}

	const insert = `
		INSERT INTO registry_records (generation, kind, key, doc, built_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	builtAt := set.BuiltAt
	if builtAt.IsZero() {
		builtAt = time.Now().UTC()
	}
	put := func(kind, key string, rec any) error {
		doc, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, insert, string(set.Generation), kind, key, doc, builtAt)
		return err
	}
	for name, subj := range set.Subjects {
		if err := put(kindSubject, name, subj); err != nil {
			return ErrStore.MsgErr("failed to write subject", err)
		}
	}
	for name, view := range set.Views {
		if err := put(kindView, name, view); err != nil {
			return ErrStore.MsgErr("failed to write view", err)
		}
	}
	for intent, wf := range set.Workflows {
		if err := put(kindWorkflow, intent, wf); err != nil {
			return ErrStore.MsgErr("failed to write workflow", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return ErrStore.MsgErr("failed to commit generation", err)
	}
	return nil
}

func (s *PostgresStore) LoadGeneration(ctx context.Context, gen gwcommon.Generation) (*GenerationSet, apperrors.Error) {
	const query = `
		SELECT kind, key, doc, built_at
		FROM registry_records
		WHERE generation = $1
	`
	rows, err := s.db.QueryContext(ctx, query, string(gen))
	if err != nil {
		return nil, ErrStore.MsgErr("failed to load generation", err)
	}
	defer rows.Close()

	set := NewGenerationSet(gen)
	for rows.Next() {
		var kind, key string
		var doc []byte
		var builtAt time.Time
		if err := rows.Scan(&kind, &key, &doc, &builtAt); err != nil {
			return nil, ErrStore.Err(err)
		}
		set.BuiltAt = builtAt
		switch kind {
		case kindSubject:
			var subj Subject
			if err := json.Unmarshal(doc, &subj); err != nil {
				return nil, ErrStore.MsgErr("corrupt subject record: "+key, err)
			}
			set.Subjects[key] = subj
		case kindView:
			var view SubjectView
			if err := json.Unmarshal(doc, &view); err != nil {
				return nil, ErrStore.MsgErr("corrupt view record: "+key, err)
			}
			set.Views[key] = view
		case kindWorkflow:
			var wf Workflow
			if err := json.Unmarshal(doc, &wf); err != nil {
				return nil, ErrStore.MsgErr("corrupt workflow record: "+key, err)
			}
			set.Workflows[key] = wf
		}
	}
	if err := rows.Err(); err != nil {
		return nil, ErrStore.Err(err)
	}
	return set, nil
}

func (s *PostgresStore) LoadActivePointer(ctx context.Context) (ActivePointer, apperrors.Error) {
	var ptr ActivePointer
	var gen string
	err := s.db.QueryRowContext(ctx,
		`SELECT generation, version, promoted_at FROM registry_active WHERE id = TRUE`,
	).Scan(&gen, &ptr.Version, &ptr.PromotedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ActivePointer{Generation: gwcommon.GenerationBlue}, nil
	}
	if err != nil {
		return ActivePointer{}, ErrStore.MsgErr("failed to load active pointer", err)
	}
	ptr.Generation = gwcommon.Generation(gen)
	return ptr, nil
}

func (s *PostgresStore) SaveActivePointer(ctx context.Context, ptr ActivePointer) apperrors.Error {
	const upsert = `
		INSERT INTO registry_active (id, generation, version, promoted_at)
		VALUES (TRUE, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			generation = EXCLUDED.generation,
			version = EXCLUDED.version,
			promoted_at = EXCLUDED.promoted_at
	`
	if _, err := s.db.ExecContext(ctx, upsert, string(ptr.Generation), ptr.Version, ptr.PromotedAt); err != nil {
		return ErrStore.MsgErr("failed to save active pointer", err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
