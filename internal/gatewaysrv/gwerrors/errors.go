// Package gwerrors defines the gateway error taxonomy. Each root maps to a
// class of failures with distinct retry semantics:
//
//   - ErrValidation: malformed input or shape, never retried
//   - ErrPolicyViolation: allowlist, PII, or rate-limit block, logged as "blocked"
//   - ErrTransient: infrastructure failure, safe to retry
//   - ErrConfiguration: blocks an administrative operation only
//
// Packages derive their specific errors from these roots so callers can
// classify with errors.Is.
package gwerrors

import (
	"net/http"

	"github.com/datagate-io/datagate/internal/common/apperrors"
)

var (
	ErrValidation      apperrors.Error = apperrors.New("validation error").SetStatusCode(http.StatusBadRequest)
	ErrPolicyViolation apperrors.Error = apperrors.New("policy violation").SetStatusCode(http.StatusForbidden)
	ErrTransient       apperrors.Error = apperrors.New("transient infrastructure error").SetStatusCode(http.StatusServiceUnavailable)
	ErrConfiguration   apperrors.Error = apperrors.New("configuration error").SetStatusCode(http.StatusUnprocessableEntity)
)
