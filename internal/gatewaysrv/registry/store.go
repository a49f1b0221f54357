package registry

import (
	"context"

	"github.com/datagate-io/datagate/internal/common/apperrors"
	"github.com/datagate-io/datagate/internal/gatewaysrv/gwcommon"
)

// Store persists registry generations and the active pointer. Implementations
// must make ReplaceGeneration atomic: a failed replace leaves the previous
// content of that generation intact.
type Store interface {
	// ReplaceGeneration atomically swaps the full content of one generation.
	ReplaceGeneration(ctx context.Context, set *GenerationSet) apperrors.Error

	// LoadGeneration returns the content of one generation. A generation
	// that was never built loads as an empty set, not an error.
	LoadGeneration(ctx context.Context, gen gwcommon.Generation) (*GenerationSet, apperrors.Error)

	// LoadActivePointer returns the current active pointer. Before the first
	// promotion the pointer is blue at version 0.
	LoadActivePointer(ctx context.Context) (ActivePointer, apperrors.Error)

	// SaveActivePointer persists a new active pointer.
	SaveActivePointer(ctx context.Context, ptr ActivePointer) apperrors.Error
}
