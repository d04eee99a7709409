package domain

import "strings"

// PresenceFilter selects group members by presence and title history.
type PresenceFilter int

const (
	PresenceFilterUnknown PresenceFilter = iota
	// PresenceFilterAll accepts every user.
	PresenceFilterAll
	// PresenceFilterOnline accepts online users.
	PresenceFilterOnline
	// PresenceFilterOffline accepts offline users.
	PresenceFilterOffline
	// PresenceFilterTitleHistory accepts users who have played the title.
	PresenceFilterTitleHistory
	// PresenceFilterTitleHistoryOffline accepts offline users who have
	// played the title.
	PresenceFilterTitleHistoryOffline
	// PresenceFilterTitleOnline accepts users currently playing the title.
	PresenceFilterTitleOnline
	// PresenceFilterTitleOnlineOutside accepts online users who have played
	// the title but are not playing it now.
	PresenceFilterTitleOnlineOutside
)

var presenceFilterNames = map[PresenceFilter]string{
	PresenceFilterAll:                 "all",
	PresenceFilterOnline:              "online",
	PresenceFilterOffline:             "offline",
	PresenceFilterTitleHistory:        "titlehistory",
	PresenceFilterTitleHistoryOffline: "titlehistory-offline",
	PresenceFilterTitleOnline:         "title-online",
	PresenceFilterTitleOnlineOutside:  "title-online-outside",
}

// String returns the config spelling of the filter.
func (f PresenceFilter) String() string {
	if name, ok := presenceFilterNames[f]; ok {
		return name
	}
	return "unknown"
}

// RequiresTitleHistory reports whether evaluating the filter reads title
// history, which is only fetched at DetailTitleHistory.
func (f PresenceFilter) RequiresTitleHistory() bool {
	switch f {
	case PresenceFilterTitleHistory,
		PresenceFilterTitleHistoryOffline,
		PresenceFilterTitleOnlineOutside:
		return true
	default:
		return false
	}
}

// ParsePresenceFilter parses the config spelling of a presence filter.
func ParsePresenceFilter(value string) PresenceFilter {
	value = strings.ToLower(strings.TrimSpace(value))
	for filter, name := range presenceFilterNames {
		if name == value {
			return filter
		}
	}
	return PresenceFilterUnknown
}

// RelationshipFilter selects group members by relationship to the caller.
type RelationshipFilter int

const (
	RelationshipFilterUnknown RelationshipFilter = iota
	// RelationshipFilterFriends accepts users the caller follows.
	RelationshipFilterFriends
	// RelationshipFilterFavorite accepts users the caller marked favorite.
	RelationshipFilterFavorite
	// RelationshipFilterAll accepts every tracked user.
	RelationshipFilterAll
)

// String returns the config spelling of the filter.
func (f RelationshipFilter) String() string {
	switch f {
	case RelationshipFilterFriends:
		return "friends"
	case RelationshipFilterFavorite:
		return "favorite"
	case RelationshipFilterAll:
		return "all"
	default:
		return "unknown"
	}
}

// ParseRelationshipFilter parses the config spelling of a relationship filter.
func ParseRelationshipFilter(value string) RelationshipFilter {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "friends":
		return RelationshipFilterFriends
	case "favorite":
		return RelationshipFilterFavorite
	case "all":
		return RelationshipFilterAll
	default:
		return RelationshipFilterUnknown
	}
}
