// Package services contains the server-side business logic: the auth
// workflow, the user directory operations and the audit recorder. Services
// return the sentinels from internal/common; anything unexpected is logged
// and surfaces as common.ErrorInternal.
package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
)

var domainErrors = []error{
	common.ErrorNotFound,
	common.ErrorAlreadyExists,
	common.ErrorUnauthorized,
	common.ErrorForbidden,
	common.ErrorValidation,
	common.ErrorInvalidCredentials,
	common.ErrorInvalidRefreshToken,
	common.ErrorInvalidPassword,
	common.ErrorInternal,
}

func isDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// internalError passes domain errors through and replaces anything else
// with ErrorInternal after logging it.
func internalError(ctx context.Context, logger logging.Logger, op string, err error) error {
	if isDomainError(err) {
		return err
	}
	logger.Error(ctx, op+" failed", "error", err)
	return common.ErrorInternal
}
