package registry

import (
	"encoding/json"
	"sort"

	"github.com/datagate-io/datagate/internal/gatewaysrv/catalog"
)

// DiffSets compares two generation sets key by key. Records present only in
// from are removed, only in to are added, and records whose serialized form
// differs are modified.
func DiffSets(from, to *GenerationSet) []DiffEntry {
	if from == nil {
		from = NewGenerationSet("")
	}
	if to == nil {
		to = NewGenerationSet("")
	}

	var entries []DiffEntry
	entries = append(entries, diffKind(kindSubject, subjectDocs(from), subjectDocs(to))...)
	entries = append(entries, diffKind(kindView, viewDocs(from), viewDocs(to))...)
	entries = append(entries, diffKind(kindWorkflow, workflowDocs(from), workflowDocs(to))...)

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Kind != entries[j].Kind {
			return entries[i].Kind < entries[j].Kind
		}
		return entries[i].Key < entries[j].Key
	})
	return entries
}

func diffKind(kind string, from, to map[string]string) []DiffEntry {
	var entries []DiffEntry
	for key, doc := range to {
		old, ok := from[key]
		if !ok {
			entries = append(entries, DiffEntry{Kind: kind, Key: key, ChangeType: string(catalog.ChangeAdded)})
		} else if old != doc {
			entries = append(entries, DiffEntry{Kind: kind, Key: key, ChangeType: string(catalog.ChangeModified)})
		}
	}
	for key := range from {
		if _, ok := to[key]; !ok {
			entries = append(entries, DiffEntry{Kind: kind, Key: key, ChangeType: string(catalog.ChangeRemoved)})
		}
	}
	return entries
}

func subjectDocs(set *GenerationSet) map[string]string {
	out := make(map[string]string, len(set.Subjects))
	for k, v := range set.Subjects {
		out[k] = marshalDoc(v)
	}
	return out
}

func viewDocs(set *GenerationSet) map[string]string {
	out := make(map[string]string, len(set.Views))
	for k, v := range set.Views {
		out[k] = marshalDoc(v)
	}
	return out
}

func workflowDocs(set *GenerationSet) map[string]string {
	out := make(map[string]string, len(set.Workflows))
	for k, v := range set.Workflows {
		out[k] = marshalDoc(v)
	}
	return out
}

func marshalDoc(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}
