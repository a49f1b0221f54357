package catalog

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"

	"github.com/datagate-io/datagate/internal/common/apperrors"
	"github.com/datagate-io/datagate/internal/gatewaysrv/engine"
)

// Scanner introspects the backend catalog into complete snapshots.
// Introspection calls retry transient failures before surfacing an error.
type Scanner struct {
	eng engine.Engine
	pii *PiiClassifier
}

// NewScanner creates a Scanner over the given engine and classifier.
func NewScanner(eng engine.Engine, pii *PiiClassifier) *Scanner {
	return &Scanner{eng: eng, pii: pii}
}

// Scan introspects all objects and columns and returns a complete snapshot.
// Descriptors that fail parsing are quarantined as DescriptorError records;
// their objects appear in the snapshot without a descriptor so the registry
// builder can exclude them. Scan never publishes partial state: either a
// full snapshot is returned or an error is.
func (s *Scanner) Scan(ctx context.Context) (*Snapshot, apperrors.Error) {
	var rawObjects []engine.RawObject
	err := retry.Do(
		func() error {
			var aerr apperrors.Error
			rawObjects, aerr = s.eng.IntrospectObjects(ctx)
			if aerr != nil {
				return aerr
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.Context(ctx),
	)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("catalog introspection failed")
		return nil, ErrScanFailed.Err(err)
	}

	snap := &Snapshot{
		Objects:   make(map[string]CatalogObject, len(rawObjects)),
		Columns:   make(map[string][]ColumnMeta),
		ScannedAt: time.Now().UTC(),
	}

	for _, raw := range rawObjects {
		obj := CatalogObject{
			Kind:        raw.Kind,
			FqName:      strings.ToLower(raw.FqName),
			Schema:      strings.ToLower(raw.Schema),
			RawComment:  raw.Comment,
			CreatedAt:   raw.CreatedAt,
			LastAltered: raw.LastAltered,
		}

		if HasDescriptor(raw.Comment) {
			desc, invalid := ParseDescriptor(raw.Comment)
			if invalid != nil {
				snap.Errors = append(snap.Errors, DescriptorError{
					ObjectName: obj.FqName,
					ObjectType: string(raw.Kind),
					Reason:     invalid.Reason,
					RawText:    raw.Comment,
					At:         snap.ScannedAt,
				})
				log.Ctx(ctx).Warn().
					Str("object", obj.FqName).
					Str("reason", invalid.Reason).
					Msg("descriptor quarantined")
			} else {
				obj.Descriptor = desc
			}
		}

		if raw.Kind == engine.KindView {
			cols, aerr := s.scanColumns(ctx, obj.FqName)
			if aerr != nil {
				return nil, aerr
			}
			snap.Columns[obj.FqName] = cols
		}

		snap.Objects[obj.FqName] = obj
	}

	return snap, nil
}

func (s *Scanner) scanColumns(ctx context.Context, fqName string) ([]ColumnMeta, apperrors.Error) {
	var rawCols []engine.RawColumn
	err := retry.Do(
		func() error {
			var aerr apperrors.Error
			rawCols, aerr = s.eng.IntrospectColumns(ctx, fqName)
			if aerr != nil {
				return aerr
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.Context(ctx),
	)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("object", fqName).Msg("column introspection failed")
		return nil, ErrScanFailed.Err(err)
	}

	cols := make([]ColumnMeta, 0, len(rawCols))
	for _, rc := range rawCols {
		cols = append(cols, ColumnMeta{
			ObjectFqName: fqName,
			Name:         strings.ToLower(rc.Name),
			Ordinal:      rc.Ordinal,
			DataType:     rc.DataType,
			Nullable:     rc.Nullable,
			Sensitivity:  s.pii.Classify(rc.Name, rc.Comment),
		})
	}
	return cols, nil
}

// SnapshotStore holds the committed catalog snapshot. Commit swaps the
// snapshot pointer only after a scan completed, so readers always see a
// fully consistent snapshot.
type SnapshotStore struct {
	mu        sync.RWMutex
	committed *Snapshot
}

// NewSnapshotStore creates an empty store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// Commit publishes a complete snapshot.
func (st *SnapshotStore) Commit(s *Snapshot) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.committed = s
}

// Committed returns the current snapshot, or nil when no scan has been
// committed yet.
func (st *SnapshotStore) Committed() *Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.committed
}
