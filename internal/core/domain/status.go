package domain

import "time"

// RelayStatus is the snapshot served by the status endpoint.
type RelayStatus struct {
	Channels     []ChannelID `json:"channels"`
	Connections  int         `json:"connections"`
	AudioObjects int         `json:"audioObjects"`
	Uptime       string      `json:"uptime"`
	Timestamp    time.Time   `json:"timestamp"`
}
