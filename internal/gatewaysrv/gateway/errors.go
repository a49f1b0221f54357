package gateway

import (
	"github.com/datagate-io/datagate/internal/common/apperrors"
	"github.com/datagate-io/datagate/internal/gatewaysrv/gwerrors"
)

var (
	ErrAudit       apperrors.Error = gwerrors.ErrTransient.New("audit store error")
	ErrRateLimited apperrors.Error = gwerrors.ErrPolicyViolation.New("rate limit exceeded")
	ErrBadQuery    apperrors.Error = gwerrors.ErrValidation.New("invalid query")
	ErrDenied      apperrors.Error = gwerrors.ErrPolicyViolation.New("access denied")
)
