package domain

import (
	"fmt"
	"strings"
)

type ChannelID string

const channelPrefix = "freq-"

// ChannelIDFromFrequency derives the canonical channel key for a frequency.
// 446 and 446.0 both map to "freq-446.00".
func ChannelIDFromFrequency(mhz float64) ChannelID {
	return ChannelID(fmt.Sprintf("%s%.2f", channelPrefix, mhz))
}

// IsFrequencyChannel reports whether id was built by ChannelIDFromFrequency.
func (id ChannelID) IsFrequencyChannel() bool {
	return strings.HasPrefix(string(id), channelPrefix)
}

type ChannelSummary struct {
	ID      ChannelID `json:"channelId"`
	Members int       `json:"members"`
}
