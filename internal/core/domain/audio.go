package domain

import (
	"path"
	"strings"
	"time"
)

// Reference is the opaque retrieval handle handed to uploaders and relayed
// to listeners. It is the object name, optionally prefixed by a URL path.
type Reference string

// ObjectName strips any URL path prefix and returns the bare object name.
func (r Reference) ObjectName() string {
	s := string(r)
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	return path.Base(s)
}

// AudioObject is an immutable uploaded clip.
type AudioObject struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
	ChannelID ChannelID `json:"channelId,omitempty"`
	Adopted   bool      `json:"adopted,omitempty"`
}

func (o *AudioObject) Age(now time.Time) time.Duration {
	return now.Sub(o.CreatedAt)
}

func (o *AudioObject) Expired(now time.Time, ttl time.Duration) bool {
	return o.Age(now) > ttl
}

// StoredAudio is the result of a successful upload.
type StoredAudio struct {
	Object    *AudioObject
	Reference Reference
}
