package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "test error", http.StatusBadRequest)
	assert.Equal(t, "INVALID_INPUT: test error", err.Error())
}

func TestAppError_WithCause(t *testing.T) {
	originalErr := errors.New("disk full")
	err := NewStorageError(originalErr)

	assert.Equal(t, ErrCodeStorage, err.Code)
	assert.Equal(t, http.StatusServiceUnavailable, err.HTTPStatus)
	assert.ErrorIs(t, err, originalErr)
	assert.Contains(t, err.Error(), "disk full")
}

func TestAppError_WithContext(t *testing.T) {
	err := NewProtocolError("bad frame").WithContext("field", "channelId").WithContext("count", 2)

	assert.Equal(t, "channelId", err.Context["field"])
	assert.Equal(t, 2, err.Context["count"])
}

func TestConstructors(t *testing.T) {
	cases := []struct {
		name   string
		err    *AppError
		code   ErrorCode
		status int
	}{
		{"invalid input", NewInvalidInputError("x"), ErrCodeInvalidInput, http.StatusBadRequest},
		{"protocol", NewProtocolError("x"), ErrCodeProtocol, http.StatusBadRequest},
		{"not found", NewNotFoundError("audio"), ErrCodeNotFound, http.StatusNotFound},
		{"expired", NewExpiredError("audio"), ErrCodeExpired, http.StatusNotFound},
		{"too large", NewPayloadTooLargeError(1024), ErrCodePayloadTooLarge, http.StatusRequestEntityTooLarge},
		{"rate limit", NewRateLimitError(), ErrCodeRateLimit, http.StatusTooManyRequests},
		{"internal", NewInternalError("x"), ErrCodeInternal, http.StatusInternalServerError},
		{"unavailable", NewServiceUnavailableError("x"), ErrCodeServiceUnavailable, http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.code, tc.err.Code)
			assert.Equal(t, tc.status, tc.err.HTTPStatus)
		})
	}

	assert.Equal(t, int64(1024), NewPayloadTooLargeError(1024).Context["limit_bytes"])
}

func TestGetAppError(t *testing.T) {
	appErr := NewNotFoundError("audio")
	wrapped := fmt.Errorf("resolve: %w", appErr)

	got := GetAppError(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, ErrCodeNotFound, got.Code)

	assert.Nil(t, GetAppError(errors.New("plain")))
	assert.Nil(t, GetAppError(nil))
}
