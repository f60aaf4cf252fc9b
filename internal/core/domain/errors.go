package domain

import "errors"

var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrInvalidChannelID   = errors.New("invalid channel id")
	ErrNotMember          = errors.New("connection is not a member of the channel")
	ErrChannelNotFound    = errors.New("channel not found")

	ErrAudioNotFound      = errors.New("audio not found")
	ErrAudioExpired       = errors.New("audio expired")
	ErrInvalidReference   = errors.New("invalid audio reference")
	ErrPayloadTooLarge    = errors.New("audio payload exceeds size limit")
	ErrEmptyPayload       = errors.New("audio payload is empty")
	ErrStorageUnavailable = errors.New("audio storage unavailable")

	ErrBackpressure     = errors.New("outbound queue full")
	ErrConnectionClosed = errors.New("connection closed")
)

// IsNotFound reports whether err means the audio reference cannot be served.
// Expired references are treated as plain not-found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAudioNotFound) || errors.Is(err, ErrAudioExpired) || errors.Is(err, ErrInvalidReference)
}
