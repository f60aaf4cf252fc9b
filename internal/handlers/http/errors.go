package http

import (
	"errors"
	"net/http"

	"pttrelay/internal/core/domain"
	apperrors "pttrelay/pkg/errors"
)

// toAppError maps service errors onto the HTTP error taxonomy.
func toAppError(err error, maxUpload int64) *apperrors.AppError {
	if appErr := apperrors.GetAppError(err); appErr != nil {
		return appErr
	}

	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.Is(err, domain.ErrPayloadTooLarge), errors.As(err, &maxBytesErr):
		return apperrors.NewPayloadTooLargeError(maxUpload)
	case errors.Is(err, domain.ErrEmptyPayload):
		return apperrors.NewInvalidInputError("audio payload is empty")
	case errors.Is(err, domain.ErrInvalidChannelID):
		return apperrors.NewInvalidInputError(err.Error())
	case errors.Is(err, domain.ErrAudioExpired):
		return apperrors.NewExpiredError("audio")
	case domain.IsNotFound(err):
		return apperrors.NewNotFoundError("audio")
	case errors.Is(err, domain.ErrChannelNotFound):
		return apperrors.NewNotFoundError("channel")
	case errors.Is(err, domain.ErrStorageUnavailable):
		return apperrors.NewStorageError(err)
	default:
		return apperrors.WrapError(err, apperrors.ErrCodeInternal, "internal server error", http.StatusInternalServerError)
	}
}
