package domain

import (
	"fmt"
	"strings"
)

// DetailLevel is the set of extra decorations requested for graph entries.
// Presence and identity are always fetched.
type DetailLevel uint8

const (
	DetailNone           DetailLevel = 0
	DetailTitleHistory   DetailLevel = 1 << 0
	DetailPreferredColor DetailLevel = 1 << 1
	DetailAll                        = DetailTitleHistory | DetailPreferredColor
)

// Has reports whether every flag in flag is set.
func (d DetailLevel) Has(flag DetailLevel) bool {
	return d&flag == flag
}

// String returns the config spelling of the level.
func (d DetailLevel) String() string {
	switch d {
	case DetailNone:
		return "none"
	case DetailTitleHistory:
		return "titlehistory"
	case DetailPreferredColor:
		return "preferredcolor"
	case DetailAll:
		return "all"
	default:
		return fmt.Sprintf("DetailLevel(%d)", uint8(d))
	}
}

// ParseDetailLevel parses a comma-separated list of detail names.
func ParseDetailLevel(value string) (DetailLevel, error) {
	level := DetailNone
	for _, part := range strings.Split(value, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "", "none":
		case "titlehistory":
			level |= DetailTitleHistory
		case "preferredcolor":
			level |= DetailPreferredColor
		case "all":
			level |= DetailAll
		default:
			return DetailNone, fmt.Errorf("unknown detail level %q", part)
		}
	}
	return level, nil
}
