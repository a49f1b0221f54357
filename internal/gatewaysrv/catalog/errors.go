package catalog

import (
	"github.com/datagate-io/datagate/internal/common/apperrors"
	"github.com/datagate-io/datagate/internal/gatewaysrv/gwerrors"
)

var (
	ErrScanFailed        apperrors.Error = gwerrors.ErrTransient.New("catalog scan failed")
	ErrInvalidDescriptor apperrors.Error = gwerrors.ErrValidation.New("invalid descriptor")
	ErrNoSnapshot        apperrors.Error = gwerrors.ErrConfiguration.New("no committed catalog snapshot")
)
