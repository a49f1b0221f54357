// Package catalog introspects backend metadata into validated snapshots:
// it scans objects and columns, parses embedded JSON descriptors
// (quarantining unparsable ones), classifies column sensitivity, and diffs
// successive snapshots.
package catalog

import (
	"time"

	"github.com/datagate-io/datagate/internal/gatewaysrv/engine"
)

// Sensitivity classifies a column or view.
type Sensitivity string

const (
	SensitivityPublic Sensitivity = "public"
	SensitivityPII    Sensitivity = "pii"
)

// CatalogObject is an introspected object together with its parsed
// descriptor. Descriptor is nil when the object carries none or when it was
// quarantined (the latter is recorded as a DescriptorError on the
// snapshot).
type CatalogObject struct {
	Kind        engine.ObjectKind
	FqName      string
	Schema      string
	RawComment  string
	Descriptor  *Descriptor
	CreatedAt   time.Time
	LastAltered time.Time
}

// ColumnMeta is an introspected column with its sensitivity classification.
type ColumnMeta struct {
	ObjectFqName string
	Name         string
	Ordinal      int
	DataType     string
	Nullable     bool
	Sensitivity  Sensitivity
}

// DescriptorError is the quarantine record for an object whose embedded
// descriptor could not be parsed. Such objects never enter the registry.
type DescriptorError struct {
	ObjectName string    `json:"object_name"`
	ObjectType string    `json:"object_type"`
	Reason     string    `json:"reason"`
	RawText    string    `json:"raw_text"`
	At         time.Time `json:"at"`
}

// Snapshot is one committed scan of the catalog. A snapshot is only ever
// published complete; a failure mid-scan leaves the previously committed
// snapshot untouched.
type Snapshot struct {
	Objects   map[string]CatalogObject
	Columns   map[string][]ColumnMeta
	Errors    []DescriptorError
	ScannedAt time.Time
}

// ChangeType classifies a delta between two snapshots.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeRemoved  ChangeType = "removed"
	ChangeModified ChangeType = "modified"
)

// Delta is one difference between successive catalog snapshots.
type Delta struct {
	Kind       engine.ObjectKind
	ObjectName string
	ChangeType ChangeType
	Payload    map[string]any
	At         time.Time
}
