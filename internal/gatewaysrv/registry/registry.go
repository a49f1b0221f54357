package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/datagate-io/datagate/internal/common/apperrors"
	"github.com/datagate-io/datagate/internal/gatewaysrv/catalog"
	"github.com/datagate-io/datagate/internal/gatewaysrv/gwcommon"
)

type activeState struct {
	set *GenerationSet
	ptr ActivePointer
}

// Registry is the facade over the two registry generations. Reads are
// lock-free off an atomically swapped snapshot of the active generation;
// rebuild, promote, and rollback serialize on a single writer mutex.
type Registry struct {
	store Store

	mu        sync.Mutex
	active    atomic.Value
	onPromote []func(ActivePointer)
}

// NewRegistry loads the active pointer and its generation content from the
// store. A fresh store yields an empty blue generation at version 0.
func NewRegistry(ctx context.Context, store Store) (*Registry, apperrors.Error) {
	ptr, err := store.LoadActivePointer(ctx)
	if err != nil {
		return nil, err
	}
	set, err := store.LoadGeneration(ctx, ptr.Generation)
	if err != nil {
		return nil, err
	}
	r := &Registry{store: store}
	r.active.Store(&activeState{set: set, ptr: ptr})
	return r, nil
}

// OnPromote registers a callback fired after every successful pointer flip,
// promotion and rollback alike. Callbacks run under the writer mutex.
func (r *Registry) OnPromote(fn func(ActivePointer)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onPromote = append(r.onPromote, fn)
}

// Active returns the serving generation content and pointer.
func (r *Registry) Active() (*GenerationSet, ActivePointer) {
	st := r.active.Load().(*activeState)
	return st.set, st.ptr
}

// StagingGeneration names the generation rebuilds write to.
func (r *Registry) StagingGeneration() gwcommon.Generation {
	_, ptr := r.Active()
	return ptr.Generation.Other()
}

// Rebuild materializes the staging generation from a catalog snapshot and
// persists it. The active generation is never written.
func (r *Registry) Rebuild(ctx context.Context, snap *catalog.Snapshot) (*GenerationSet, apperrors.Error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ptr := r.Active()
	target := ptr.Generation.Other()

	set, err := BuildGeneration(ctx, snap, target)
	if err != nil {
		return nil, err
	}
	if err := r.store.ReplaceGeneration(ctx, set); err != nil {
		return nil, err
	}
	return set, nil
}

// Diff compares the active generation against staging.
func (r *Registry) Diff(ctx context.Context) (gwcommon.Generation, gwcommon.Generation, []DiffEntry, apperrors.Error) {
	activeSet, ptr := r.Active()
	staging, err := r.store.LoadGeneration(ctx, ptr.Generation.Other())
	if err != nil {
		return "", "", nil, err
	}
	return ptr.Generation, staging.Generation, DiffSets(activeSet, staging), nil
}

// Promote flips the active pointer to the staging generation after safety
// checks. An empty staging generation or a blocking finding fails the
// promotion without mutating the pointer. Findings are returned in both
// outcomes so callers can surface them.
func (r *Registry) Promote(ctx context.Context, descriptorErrors []catalog.DescriptorError, allowRemovals bool) (ActivePointer, gwcommon.Generation, []Finding, apperrors.Error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	activeSet, ptr := r.Active()
	staging, err := r.store.LoadGeneration(ctx, ptr.Generation.Other())
	if err != nil {
		return ptr, ptr.Generation, nil, err
	}
	if staging.Empty() {
		return ptr, ptr.Generation, nil, ErrEmptyTarget
	}

	findings := SafetyFindings(activeSet, staging, descriptorErrors, allowRemovals)
	if Blocking(findings) {
		return ptr, ptr.Generation, findings, ErrPromotionBlocked
	}

	newPtr := ActivePointer{
		Generation: staging.Generation,
		Version:    ptr.Version + 1,
		PromotedAt: time.Now().UTC(),
	}
	if err := r.store.SaveActivePointer(ctx, newPtr); err != nil {
		return ptr, ptr.Generation, findings, err
	}
	r.active.Store(&activeState{set: staging, ptr: newPtr})
	r.firePromote(newPtr)

	log.Ctx(ctx).Info().
		Str("active", string(newPtr.Generation)).
		Int64("version", newPtr.Version).
		Msg("registry generation promoted")
	return newPtr, ptr.Generation, findings, nil
}

// Rollback re-points the registry at the previously active generation,
// restoring its content as-is. The safety gate does not apply: rollback is
// the escape hatch.
func (r *Registry) Rollback(ctx context.Context) (ActivePointer, apperrors.Error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ptr := r.Active()
	prev, err := r.store.LoadGeneration(ctx, ptr.Generation.Other())
	if err != nil {
		return ptr, err
	}
	if prev.Empty() {
		return ptr, ErrEmptyTarget
	}

	newPtr := ActivePointer{
		Generation: prev.Generation,
		Version:    ptr.Version + 1,
		PromotedAt: time.Now().UTC(),
	}
	if err := r.store.SaveActivePointer(ctx, newPtr); err != nil {
		return ptr, err
	}
	r.active.Store(&activeState{set: prev, ptr: newPtr})
	r.firePromote(newPtr)

	log.Ctx(ctx).Warn().
		Str("active", string(newPtr.Generation)).
		Int64("version", newPtr.Version).
		Msg("registry rolled back")
	return newPtr, nil
}

func (r *Registry) firePromote(ptr ActivePointer) {
	for _, fn := range r.onPromote {
		fn(ptr)
	}
}
