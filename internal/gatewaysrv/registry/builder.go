package registry

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/datagate-io/datagate/internal/common/apperrors"
	"github.com/datagate-io/datagate/internal/gatewaysrv/catalog"
	"github.com/datagate-io/datagate/internal/gatewaysrv/engine"
	"github.com/datagate-io/datagate/internal/gatewaysrv/gwcommon"
)

var titleCaser = cases.Title(language.English)

// BuildGeneration materializes a generation set from a catalog snapshot.
// Only objects with a valid descriptor enter the registry; quarantined and
// undescribed objects are skipped. The function is pure over its inputs and
// deterministic: object names are processed in sorted order.
func BuildGeneration(ctx context.Context, snap *catalog.Snapshot, target gwcommon.Generation) (*GenerationSet, apperrors.Error) {
	if snap == nil {
		return nil, ErrNoCatalog
	}

	set := NewGenerationSet(target)
	set.BuiltAt = time.Now().UTC()

	names := make([]string, 0, len(snap.Objects))
	for name := range snap.Objects {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		obj := snap.Objects[name]
		if obj.Descriptor == nil {
			continue
		}
		switch obj.Kind {
		case engine.KindView:
			buildView(set, obj, snap.Columns[obj.FqName])
		case engine.KindProcedure:
			buildWorkflow(ctx, set, obj)
		}
	}

	// Subjects without an explicit default view fall back to their first
	// view in name order.
	resolveDefaultViews(set)

	log.Ctx(ctx).Info().
		Str("generation", string(target)).
		Int("subjects", len(set.Subjects)).
		Int("views", len(set.Views)).
		Int("workflows", len(set.Workflows)).
		Msg("registry generation built")
	return set, nil
}

func buildView(set *GenerationSet, obj catalog.CatalogObject, cols []catalog.ColumnMeta) {
	desc := obj.Descriptor

	subjectName := desc.Subject
	if subjectName == "" {
		subjectName = objectBaseName(obj.FqName)
	}

	piiCols := catalog.ViewPIIColumns(desc, cols)
	level := string(catalog.SensitivityPublic)
	if len(piiCols) > 0 || desc.Sensitivity == string(catalog.SensitivityPII) {
		level = string(catalog.SensitivityPII)
	}

	view := SubjectView{
		Subject:          subjectName,
		ViewFqName:       obj.FqName,
		Title:            titleOrHumanize(desc.Title, obj.FqName),
		Grain:            desc.Grain,
		TimeColumn:       desc.TimeColumn,
		Dimensions:       desc.Dimensions,
		Measures:         desc.Measures,
		Tags:             desc.Tags,
		PIIColumns:       piiCols,
		SensitivityLevel: level,
	}
	set.Views[obj.FqName] = view

	subj, ok := set.Subjects[subjectName]
	if !ok {
		subj = Subject{
			Name:             subjectName,
			Title:            titleOrHumanize("", subjectName),
			SensitivityLevel: string(catalog.SensitivityPublic),
		}
	}
	subj.Tags = mergeTags(subj.Tags, desc.Tags)
	if level == string(catalog.SensitivityPII) {
		subj.SensitivityLevel = level
	}
	if desc.DefaultView && subj.DefaultViewFqName == "" {
		subj.DefaultViewFqName = obj.FqName
	}
	set.Subjects[subjectName] = subj
}

func buildWorkflow(ctx context.Context, set *GenerationSet, obj catalog.CatalogObject) {
	desc := obj.Descriptor
	if desc.Intent == "" {
		log.Ctx(ctx).Warn().Str("object", obj.FqName).Msg("procedure descriptor has no intent, skipping")
		return
	}
	set.Workflows[desc.Intent] = Workflow{
		Intent:         desc.Intent,
		Title:          titleOrHumanize(desc.Title, obj.FqName),
		ProcFqName:     obj.FqName,
		Inputs:         desc.Inputs,
		Outputs:        desc.Outputs,
		Tags:           desc.Tags,
		RequiresSecret: desc.RequiresSecret,
		SecretHash:     desc.SecretHash,
		MinRole:        desc.MinRole,
		Idempotent:     desc.Idempotent,
	}
}

func resolveDefaultViews(set *GenerationSet) {
	viewNames := make([]string, 0, len(set.Views))
	for name := range set.Views {
		viewNames = append(viewNames, name)
	}
	sort.Strings(viewNames)

	for name, subj := range set.Subjects {
		if subj.DefaultViewFqName != "" {
			continue
		}
		for _, vn := range viewNames {
			if set.Views[vn].Subject == name {
				subj.DefaultViewFqName = vn
				set.Subjects[name] = subj
				break
			}
		}
	}
}

func objectBaseName(fqName string) string {
	if i := strings.LastIndexByte(fqName, '.'); i >= 0 {
		return fqName[i+1:]
	}
	return fqName
}

func titleOrHumanize(title, fallback string) string {
	if title != "" {
		return title
	}
	base := objectBaseName(fallback)
	return titleCaser.String(strings.ReplaceAll(base, "_", " "))
}

func mergeTags(existing, extra []string) []string {
	seen := make(map[string]bool, len(existing))
	out := existing
	for _, t := range existing {
		seen[t] = true
	}
	for _, t := range extra {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
