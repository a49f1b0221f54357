package access

import (
	"context"
	"strings"

	"github.com/datagate-io/datagate/internal/common/apperrors"
	"github.com/datagate-io/datagate/internal/gatewaysrv/engine"
	"github.com/datagate-io/datagate/internal/gatewaysrv/registry"
)

// Allowlist is the set of objects one principal may read right now. The
// read path computes it fresh for every call so privilege revocations take
// effect immediately; the primer computes one per role at build time and
// relies on TTL plus promotion invalidation.
type Allowlist struct {
	objects map[string]bool
}

// ComputeAllowlist intersects the active registry's views with the
// principal's live SELECT privileges. Objects outside the registry never
// enter the allowlist no matter what the engine would permit.
func ComputeAllowlist(ctx context.Context, eng engine.Engine, set *registry.GenerationSet, principal string) (*Allowlist, apperrors.Error) {
	al := &Allowlist{objects: make(map[string]bool, len(set.Views))}
	for fqName := range set.Views {
		ok, err := eng.CanRead(ctx, fqName, principal)
		if err != nil {
			return nil, err
		}
		if ok {
			al.objects[strings.ToLower(fqName)] = true
		}
	}
	return al, nil
}

// Allowed reports whether the caller may read the object.
func (a *Allowlist) Allowed(object string) bool {
	return a.objects[strings.ToLower(object)]
}

// Filter partitions objects into allowed and blocked.
func (a *Allowlist) Filter(objects []string) (allowed, blocked []string) {
	for _, o := range objects {
		if a.Allowed(o) {
			allowed = append(allowed, o)
		} else {
			blocked = append(blocked, o)
		}
	}
	return allowed, blocked
}

// Size returns the number of allowed objects.
func (a *Allowlist) Size() int {
	return len(a.objects)
}
