package registry

import (
	"github.com/datagate-io/datagate/internal/common/apperrors"
	"github.com/datagate-io/datagate/internal/gatewaysrv/gwerrors"
)

var (
	ErrStore            apperrors.Error = gwerrors.ErrTransient.New("registry store error")
	ErrBuildIntoActive  apperrors.Error = gwerrors.ErrValidation.New("cannot rebuild the active generation")
	ErrEmptyTarget      apperrors.Error = gwerrors.ErrValidation.New("target registry empty")
	ErrPromotionBlocked apperrors.Error = gwerrors.ErrPolicyViolation.New("promotion blocked by safety findings")
	ErrNoCatalog        apperrors.Error = gwerrors.ErrConfiguration.New("no catalog snapshot to build from")
)
