package catalog

import (
	"sort"
	"time"
)

// Diff computes the deltas from old to new as a pure keyed comparison.
// An object is added or removed when its key is absent on one side, and
// modified when its comment text or last-altered timestamp differs.
// Re-scanning an unchanged backend yields zero deltas.
func Diff(old, new *Snapshot) []Delta {
	at := time.Now().UTC()
	var deltas []Delta

	if old == nil {
		old = &Snapshot{Objects: map[string]CatalogObject{}}
	}

	for name, newObj := range new.Objects {
		oldObj, ok := old.Objects[name]
		if !ok {
			deltas = append(deltas, Delta{
				Kind:       newObj.Kind,
				ObjectName: name,
				ChangeType: ChangeAdded,
				Payload:    map[string]any{"comment": newObj.RawComment},
				At:         at,
			})
			continue
		}
		if oldObj.RawComment != newObj.RawComment || !oldObj.LastAltered.Equal(newObj.LastAltered) {
			deltas = append(deltas, Delta{
				Kind:       newObj.Kind,
				ObjectName: name,
				ChangeType: ChangeModified,
				Payload: map[string]any{
					"old_comment": oldObj.RawComment,
					"new_comment": newObj.RawComment,
				},
				At: at,
			})
		}
	}

	for name, oldObj := range old.Objects {
		if _, ok := new.Objects[name]; !ok {
			deltas = append(deltas, Delta{
				Kind:       oldObj.Kind,
				ObjectName: name,
				ChangeType: ChangeRemoved,
				Payload:    map[string]any{"comment": oldObj.RawComment},
				At:         at,
			})
		}
	}

	sort.Slice(deltas, func(i, j int) bool {
		if deltas[i].ObjectName != deltas[j].ObjectName {
			return deltas[i].ObjectName < deltas[j].ObjectName
		}
		return deltas[i].ChangeType < deltas[j].ChangeType
	})
	return deltas
}
