package validation

import (
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// ChannelIDRegex validates channel ID format ("freq-446.00", "ops_team")
	ChannelIDRegex = regexp.MustCompile(`^[a-zA-Z0-9._:-]+$`)

	// ObjectNameRegex validates stored audio object names: a ksuid followed
	// by an optional lowercase extension.
	ObjectNameRegex = regexp.MustCompile(`^[0-9A-Za-z]{27}(\.[a-z0-9]{1,8})?$`)

	// ExtensionRegex validates a file extension including the leading dot
	ExtensionRegex = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)
)

const (
	MaxChannelIDLength = 64
	MaxFrequencyMHz    = 100000
)

// ValidateChannelID validates channel ID
func ValidateChannelID(channelID string) error {
	if strings.TrimSpace(channelID) == "" {
		return fmt.Errorf("channel ID is required")
	}
	if len(channelID) > MaxChannelIDLength {
		return fmt.Errorf("channel ID is too long (max %d characters)", MaxChannelIDLength)
	}
	if !utf8.ValidString(channelID) || !ChannelIDRegex.MatchString(channelID) {
		return fmt.Errorf("invalid channel ID format")
	}
	return nil
}

// ValidateFrequency validates a tuning frequency in MHz
func ValidateFrequency(mhz float64) error {
	if math.IsNaN(mhz) || math.IsInf(mhz, 0) {
		return fmt.Errorf("frequency must be a finite number")
	}
	if mhz <= 0 {
		return fmt.Errorf("frequency must be positive")
	}
	if mhz > MaxFrequencyMHz {
		return fmt.Errorf("frequency is too high (max %d MHz)", MaxFrequencyMHz)
	}
	return nil
}

// ValidateObjectName validates a stored audio object name
func ValidateObjectName(name string) error {
	if name == "" {
		return fmt.Errorf("object name is required")
	}
	if !ObjectNameRegex.MatchString(name) {
		return fmt.Errorf("invalid object name format")
	}
	return nil
}

// NormalizeExtension returns the lowercase extension of filename if it is in
// allowed, otherwise fallback.
func NormalizeExtension(filename string, allowed []string, fallback string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if !ExtensionRegex.MatchString(ext) {
		return fallback
	}
	for _, a := range allowed {
		if strings.EqualFold(a, ext) {
			return ext
		}
	}
	return fallback
}
