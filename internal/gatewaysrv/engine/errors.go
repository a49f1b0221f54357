package engine

import (
	"github.com/datagate-io/datagate/internal/common/apperrors"
	"github.com/datagate-io/datagate/internal/gatewaysrv/gwerrors"
)

var (
	ErrEngine           apperrors.Error = gwerrors.ErrTransient.New("engine error")
	ErrIntrospection    apperrors.Error = ErrEngine.New("introspection failed")
	ErrPrivilegeCheck   apperrors.Error = ErrEngine.New("privilege check failed")
	ErrExecution        apperrors.Error = ErrEngine.New("query execution failed")
	ErrExecutionTimeout apperrors.Error = ErrEngine.New("query execution timed out")
	ErrUnknownObject    apperrors.Error = gwerrors.ErrValidation.New("unknown object")
)
