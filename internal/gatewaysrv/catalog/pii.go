package catalog

import (
	"strings"

	"github.com/tidwall/gjson"
)

// defaultPIIDenylist is the fallback column-name denylist used when none is
// configured.
var defaultPIIDenylist = []string{
	"email", "phone", "ssn", "credit_card", "card_number",
	"dob", "birth", "address", "salary", "tax_id",
	"passport", "national_id",
}

// PiiClassifier tags columns as sensitive. An explicit sensitivity tag in
// the column comment wins; otherwise a case-insensitive substring match
// against the denylist decides, and anything ambiguous classifies as pii
// (fail closed).
type PiiClassifier struct {
	denylist []string
}

// NewPiiClassifier creates a classifier with the given denylist, falling
// back to the default list when empty.
func NewPiiClassifier(denylist []string) *PiiClassifier {
	if len(denylist) == 0 {
		denylist = defaultPIIDenylist
	}
	lowered := make([]string, len(denylist))
	for i, d := range denylist {
		lowered[i] = strings.ToLower(d)
	}
	return &PiiClassifier{denylist: lowered}
}

// Classify returns the sensitivity of a column given its name and comment.
// The comment may carry an explicit tag either as plain text ("pii",
// "public") or as a JSON object with a "sensitivity" field.
func (c *PiiClassifier) Classify(name, comment string) Sensitivity {
	if tag, ok := explicitTag(comment); ok {
		return tag
	}
	lowered := strings.ToLower(name)
	for _, d := range c.denylist {
		if strings.Contains(lowered, d) {
			return SensitivityPII
		}
	}
	return SensitivityPublic
}

func explicitTag(comment string) (Sensitivity, bool) {
	trimmed := strings.TrimSpace(strings.ToLower(comment))
	switch trimmed {
	case string(SensitivityPII):
		return SensitivityPII, true
	case string(SensitivityPublic):
		return SensitivityPublic, true
	}
	if gjson.Valid(trimmed) {
		switch gjson.Get(trimmed, "sensitivity").String() {
		case string(SensitivityPII):
			return SensitivityPII, true
		case string(SensitivityPublic):
			return SensitivityPublic, true
		}
	}
	return "", false
}

// ViewPIIColumns returns the pii-classified column names of a view: the
// union of descriptor-declared pii_columns and heuristic classification.
// Enforcement keys off this set, never off the descriptor's advisory
// sensitivity level, so a mis-set level cannot bypass protection.
func ViewPIIColumns(desc *Descriptor, cols []ColumnMeta) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		lowered := strings.ToLower(name)
		if !seen[lowered] {
			seen[lowered] = true
			out = append(out, lowered)
		}
	}
	if desc != nil {
		for _, name := range desc.PIIColumns {
			add(name)
		}
	}
	for _, col := range cols {
		if col.Sensitivity == SensitivityPII {
			add(col.Name)
		}
	}
	return out
}
