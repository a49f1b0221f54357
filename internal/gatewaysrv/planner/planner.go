// Package planner answers natural-language questions about what to query.
// When a model is configured it asks the model to pick from the active
// registry; on any failure, and whenever the planner is disabled, it falls
// back to the deterministic intent matcher so suggestions never depend on
// model availability.
package planner

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/datagate-io/datagate/internal/gatewaysrv/intent"
	"github.com/datagate-io/datagate/internal/gatewaysrv/registry"
	"github.com/datagate-io/datagate/pkg/api"
)

const systemPrompt = `You are a data-access planner. You are given a list of
registered workflows and subject views. Pick the entries most relevant to
the user's question. Respond with ONLY a JSON array of entry names, best
match first, at most %d entries. Use exact names from the list.`

// Planner produces ranked suggestions for free-text questions.
type Planner struct {
	client  *openai.Client
	model   string
	matcher *intent.Matcher
}

// New creates a Planner. An empty apiKey disables the model path entirely.
func New(apiKey, model string, matcher *intent.Matcher) *Planner {
	p := &Planner{model: model, matcher: matcher}
	if apiKey != "" {
		client := openai.NewClient(option.WithAPIKey(apiKey))
		p.client = &client
	}
	return p
}

// Suggest returns up to limit suggestions for the query.
func (p *Planner) Suggest(ctx context.Context, set *registry.GenerationSet, query string, limit int) []api.Suggestion {
	if p.client != nil {
		if out, ok := p.suggestWithModel(ctx, set, query, limit); ok {
			return out
		}
		log.Ctx(ctx).Warn().Msg("planner model call failed, using matcher fallback")
	}
	return p.matcher.Suggest(set, query, limit)
}

func (p *Planner) suggestWithModel(ctx context.Context, set *registry.GenerationSet, query string, limit int) ([]api.Suggestion, bool) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(fmt.Sprintf(systemPrompt, limit) + "\n\n" + catalogListing(set)),
			openai.UserMessage(query),
		},
		Seed:  openai.Int(0),
		Model: p.model,
	})
	if err != nil || len(resp.Choices) == 0 {
		return nil, false
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.Trim(content, "` \n")
	if !gjson.Valid(content) {
		return nil, false
	}

	var out []api.Suggestion
	names := gjson.Parse(content).Array()
	for i, n := range names {
		if len(out) >= limit {
			break
		}
		name := n.String()
		score := float64(limit - i)
		if wf, ok := set.Workflows[name]; ok {
			out = append(out, api.Suggestion{
				Kind: "workflow", Name: wf.Intent, Title: wf.Title, Score: score,
			})
			continue
		}
		if view, ok := set.Views[name]; ok {
			defaultView := ""
			if s, ok := set.Subjects[view.Subject]; ok {
				defaultView = s.DefaultViewFqName
			}
			out = append(out, api.Suggestion{
				Kind: "view", Name: view.ViewFqName, Title: view.Title,
				Subject: view.Subject, DefaultView: defaultView, Score: score,
			})
		}
		// Hallucinated names are dropped silently.
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

func catalogListing(set *registry.GenerationSet) string {
	var b strings.Builder
	b.WriteString("Workflows:\n")
	for _, key := range sortedKeys(set.Workflows) {
		wf := set.Workflows[key]
		fmt.Fprintf(&b, "- %s (%s)\n", wf.Intent, strings.Join(wf.Tags, ", "))
	}
	b.WriteString("Views:\n")
	for _, name := range sortedKeys(set.Views) {
		view := set.Views[name]
		fmt.Fprintf(&b, "- %s: subject=%s measures=%s\n",
			view.ViewFqName, view.Subject, strings.Join(view.Measures, ","))
	}
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
