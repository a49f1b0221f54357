// Package intent ranks registry entries against free-text agent queries
// using a deterministic synonym-weighted scorer. No model calls: the same
// query against the same registry always yields the same suggestions.
package intent

import (
	"regexp"
	"sort"
	"strings"

	"github.com/datagate-io/datagate/internal/gatewaysrv/registry"
	"github.com/datagate-io/datagate/pkg/api"
)

// Field weights. Workflow intents score highest so an agent flailing at
// SQL gets steered toward the vetted operation first.
const (
	weightIntent   = 4.0
	weightSubject  = 3.0
	weightMeasure  = 2.5
	weightTitle    = 2.0
	weightTag      = 1.5
	temporalBonus  = 1.0
	defaultMaxHits = 5
)

var (
	tokenRe       = regexp.MustCompile(`[a-z0-9_]+`)
	temporalWords = map[string]bool{
		"daily": true, "weekly": true, "monthly": true, "quarterly": true,
		"trend": true, "trends": true, "history": true, "recent": true,
		"time": true, "date": true,
	}
)

// Matcher scores registry entries against queries.
type Matcher struct {
	groups  map[string][]string // word -> canonical groups it belongs to
	weights map[string]float64  // canonical group -> synonym-match weight
}

// NewMatcher builds a matcher from a canonical-term synonym table.
func NewMatcher(synonyms map[string]SynonymEntry) *Matcher {
	groups := make(map[string][]string)
	weights := make(map[string]float64, len(synonyms))
	add := func(word, group string) {
		word = strings.ToLower(word)
		for _, g := range groups[word] {
			if g == group {
				return
			}
		}
		groups[word] = append(groups[word], group)
	}
	for canonical, entry := range synonyms {
		add(canonical, canonical)
		for _, w := range entry.Synonyms {
			add(w, canonical)
		}
		weights[canonical] = entry.Weight
	}
	return &Matcher{groups: groups, weights: weights}
}

// Suggest returns the top-scoring registry entries for the query, at most
// limit of them. Ties rank workflows before views, then by name.
func (m *Matcher) Suggest(set *registry.GenerationSet, query string, limit int) []api.Suggestion {
	if limit <= 0 {
		limit = defaultMaxHits
	}
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 || set == nil {
		return nil
	}

	var out []api.Suggestion
	for _, wf := range set.Workflows {
		score := m.overlap(queryTokens, tokenize(wf.Intent))*weightIntent +
			m.overlap(queryTokens, tokenize(wf.Title))*weightTitle +
			m.overlap(queryTokens, wf.Tags)*weightTag
		if score > 0 {
			out = append(out, api.Suggestion{
				Kind:  "workflow",
				Name:  wf.Intent,
				Title: wf.Title,
				Score: score,
			})
		}
	}

	temporal := hasTemporalWord(queryTokens)
	for _, view := range set.Views {
		score := m.overlap(queryTokens, tokenize(view.Subject))*weightSubject +
			m.overlap(queryTokens, tokenize(view.Title))*weightTitle +
			m.overlap(queryTokens, view.Tags)*weightTag +
			m.overlap(queryTokens, view.Measures)*weightMeasure
		if score > 0 && temporal && view.TimeColumn != "" {
			score += temporalBonus
		}
		if score > 0 {
			subj, defaultView := view.Subject, ""
			if s, ok := set.Subjects[view.Subject]; ok {
				defaultView = s.DefaultViewFqName
			}
			out = append(out, api.Suggestion{
				Kind:        "view",
				Name:        view.ViewFqName,
				Title:       view.Title,
				Subject:     subj,
				DefaultView: defaultView,
				Score:       score,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind == "workflow"
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// overlap sums target tokens matched by the query: a direct token match
// counts 1, a synonym-mediated match counts the weight of the strongest
// shared group.
func (m *Matcher) overlap(queryTokens []string, target []string) float64 {
	if len(target) == 0 {
		return 0
	}
	querySet := make(map[string]bool, len(queryTokens))
	queryGroups := make(map[string]bool)
	for _, t := range queryTokens {
		querySet[t] = true
		for _, g := range m.groups[t] {
			queryGroups[g] = true
		}
	}

	matched := 0.0
	for _, raw := range target {
		for _, t := range tokenize(raw) {
			if querySet[t] {
				matched++
				continue
			}
			best := 0.0
			for _, g := range m.groups[t] {
				if !queryGroups[g] {
					continue
				}
				w := m.weights[g]
				if w <= 0 {
					w = 1
				}
				if w > best {
					best = w
				}
			}
			matched += best
		}
	}
	return matched
}

func hasTemporalWord(tokens []string) bool {
	for _, t := range tokens {
		if temporalWords[t] {
			return true
		}
	}
	return false
}

// tokenize lowercases and splits on non-word characters, discarding tokens
// of two characters or fewer so stopwords and bare numbers never score.
func tokenize(s string) []string {
	raw := tokenRe.FindAllString(strings.ToLower(s), -1)
	out := raw[:0]
	for _, t := range raw {
		if len(t) > 2 {
			out = append(out, t)
		}
	}
	return out
}
