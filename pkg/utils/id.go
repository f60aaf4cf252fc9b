package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// GenerateConnectionID returns an unguessable connection ID.
func GenerateConnectionID() string {
	return uuid.NewString()
}

// GenerateObjectName returns a time-ordered random name with ext appended.
// ext must include the leading dot or be empty.
func GenerateObjectName(ext string) string {
	return ksuid.New().String() + ext
}

// GenerateObjectNameAt is GenerateObjectName with an explicit timestamp.
func GenerateObjectNameAt(t time.Time, ext string) (string, error) {
	id, err := ksuid.NewRandomWithTime(t)
	if err != nil {
		return "", err
	}
	return id.String() + ext, nil
}

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	timestamp := time.Now().UnixNano()
	b := make([]byte, 4)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", timestamp, hex.EncodeToString(b))
}
