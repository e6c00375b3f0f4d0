package services

import (
	"errors"

	"github.com/skillpath/backend/internal/storage"
	"github.com/skillpath/backend/libs/apperr"
)

// storeError maps a storage error onto a caller-visible kind.
// Errors that already carry a kind pass through unchanged.
func storeError(err error, notFound string) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return apperr.Wrap(apperr.NotFound, err, notFound)
	case storage.IsRetryable(err):
		return apperr.Wrap(apperr.Unavailable, err, "the service is busy, please retry")
	}
	return apperr.Wrap(apperr.Internal, err, "internal server error")
}
