package catalog

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// Descriptor is the parsed form of the JSON metadata embedded in an
// object's comment. View descriptors populate the subject/view fields;
// procedure descriptors populate the workflow fields.
type Descriptor struct {
	ContractVersion string `json:"contract_version" validate:"omitempty"`

	// Subject / view fields.
	Subject     string   `json:"subject" validate:"omitempty,lowercase"`
	Title       string   `json:"title"`
	DefaultView bool     `json:"default_view"`
	Grain       string   `json:"grain"`
	TimeColumn  string   `json:"time_column"`
	Dimensions  []string `json:"dimensions"`
	Measures    []string `json:"measures"`
	Tags        []string `json:"tags"`
	Sensitivity string   `json:"sensitivity" validate:"omitempty,oneof=public pii"`
	PIIColumns  []string `json:"pii_columns"`

	// Workflow fields.
	Intent         string   `json:"intent"`
	Inputs         []string `json:"inputs"`
	Outputs        []string `json:"outputs"`
	RequiresSecret bool     `json:"requires_secret"`
	SecretHash     string   `json:"secret_hash"`
	MinRole        string   `json:"min_role"`
	Idempotent     bool     `json:"idempotent"`
}

// InvalidDescriptor carries the quarantine reason for a descriptor that
// failed validation. Together with Descriptor it forms the sum type for
// descriptor parse outcomes: a descriptor is parsed, invalid, or absent,
// never silently coerced.
type InvalidDescriptor struct {
	Reason string
}

func (e *InvalidDescriptor) Error() string {
	return e.Reason
}

// descriptorSchema constrains the descriptor's structure before decoding.
// Field-level rules live on the struct's validate tags; the schema rejects
// gross shape errors (wrong types, non-object roots).
const descriptorSchema = `{
	"type": "object",
	"properties": {
		"contract_version": {"type": "string"},
		"subject": {"type": "string"},
		"title": {"type": "string"},
		"default_view": {"type": "boolean"},
		"grain": {"type": "string"},
		"time_column": {"type": "string"},
		"dimensions": {"type": "array", "items": {"type": "string"}},
		"measures": {"type": "array", "items": {"type": "string"}},
		"tags": {"type": "array", "items": {"type": "string"}},
		"sensitivity": {"type": "string"},
		"pii_columns": {"type": "array", "items": {"type": "string"}},
		"intent": {"type": "string"},
		"inputs": {"type": "array", "items": {"type": "string"}},
		"outputs": {"type": "array", "items": {"type": "string"}},
		"requires_secret": {"type": "boolean"},
		"secret_hash": {"type": "string"},
		"min_role": {"type": "string"},
		"idempotent": {"type": "boolean"}
	}
}`

// supportedContract is the descriptor contract versions this build
// understands.
var supportedContract = mustConstraint("^2")

var (
	compiledSchema = jsonschema.MustCompileString("descriptor.json", descriptorSchema)
	validate       = validator.New()
)

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// HasDescriptor reports whether the comment text embeds a descriptor. A
// comment is treated as a descriptor when it begins with '{'; plain-text
// comments carry no metadata.
func HasDescriptor(comment string) bool {
	return strings.HasPrefix(strings.TrimSpace(comment), "{")
}

// ParseDescriptor parses and validates a descriptor from comment text.
// Returns the parsed descriptor, or an InvalidDescriptor naming the first
// failure. Callers must quarantine invalid descriptors rather than drop
// them.
func ParseDescriptor(comment string) (*Descriptor, *InvalidDescriptor) {
	raw := strings.TrimSpace(comment)

	if !gjson.Valid(raw) {
		return nil, &InvalidDescriptor{Reason: "descriptor is not valid JSON"}
	}

	// Contract gate before structural checks: a v3 descriptor failing the
	// schema should report the version mismatch, not the shape drift.
	if cv := gjson.Get(raw, "contract_version"); cv.Exists() && cv.String() != "" {
		v, err := semver.NewVersion(cv.String())
		if err != nil {
			return nil, &InvalidDescriptor{Reason: fmt.Sprintf("invalid contract_version %q", cv.String())}
		}
		if !supportedContract.Check(v) {
			return nil, &InvalidDescriptor{Reason: fmt.Sprintf("unsupported contract_version %q (supported: ^2)", cv.String())}
		}
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, &InvalidDescriptor{Reason: "descriptor is not a JSON object: " + err.Error()}
	}
	if err := compiledSchema.Validate(decoded); err != nil {
		return nil, &InvalidDescriptor{Reason: "descriptor failed schema validation: " + err.Error()}
	}

	var d Descriptor
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		Result:      &d,
		ErrorUnused: false,
	})
	if err != nil {
		return nil, &InvalidDescriptor{Reason: "descriptor decode failed: " + err.Error()}
	}
	if err := dec.Decode(decoded); err != nil {
		return nil, &InvalidDescriptor{Reason: "descriptor decode failed: " + err.Error()}
	}

	if err := validate.Struct(&d); err != nil {
		return nil, &InvalidDescriptor{Reason: "descriptor failed validation: " + err.Error()}
	}

	return &d, nil
}
