// Package engine defines the port to the backing execution engine: catalog
// introspection, the privilege-check primitive, and tagged read execution.
// The gateway never reaches the engine except through this interface, which
// keeps the security pipeline testable against the in-memory implementation.
package engine

import (
	"context"
	"time"

	"github.com/datagate-io/datagate/internal/common/apperrors"
)

// ObjectKind classifies an introspected catalog object.
type ObjectKind string

const (
	KindView      ObjectKind = "view"
	KindProcedure ObjectKind = "procedure"
)

// RawObject is an introspected catalog object as reported by the engine.
type RawObject struct {
	Kind        ObjectKind
	FqName      string // schema-qualified, lowercase
	Schema      string
	Comment     string // may embed a JSON descriptor
	CreatedAt   time.Time
	LastAltered time.Time
}

// RawColumn is an introspected column of a view.
type RawColumn struct {
	Name     string
	Ordinal  int
	DataType string
	Nullable bool
	Comment  string // may carry an explicit sensitivity tag
}

// QueryTag identifies a gateway execution for downstream attribution.
type QueryTag struct {
	Agent   string `json:"agent"`
	Intent  string `json:"intent"`
	Request string `json:"request"`
}

// ResultSet holds the rows returned by a read execution.
type ResultSet struct {
	Columns []string
	Rows    []map[string]any
}

// Engine is the execution-engine port consumed by the gateway.
type Engine interface {
	// IntrospectObjects returns all views and procedures visible to the
	// gateway's service principal.
	IntrospectObjects(ctx context.Context) ([]RawObject, apperrors.Error)

	// IntrospectColumns returns the columns of the named view in ordinal
	// order.
	IntrospectColumns(ctx context.Context, fqName string) ([]RawColumn, apperrors.Error)

	// CanRead reports whether the principal may SELECT from the object.
	CanRead(ctx context.Context, object, principal string) (bool, apperrors.Error)

	// ExecuteRead runs a read statement under the given tag, bounded by
	// maxRows. The context deadline is the hard statement timeout.
	ExecuteRead(ctx context.Context, sqlText string, tag QueryTag, maxRows int) (*ResultSet, apperrors.Error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) apperrors.Error
}
