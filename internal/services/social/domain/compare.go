package domain

import "golang.org/x/text/cases"

// ChangeSet is the bit set of field groups that differ between two entries.
type ChangeSet uint8

const (
	ChangeRelationship ChangeSet = 1 << iota
	ChangePresence
	ChangeProfile
)

// Has reports whether flag is set.
func (c ChangeSet) Has(flag ChangeSet) bool {
	return c&flag != 0
}

// Compare classifies the differences between an old and new entry for the
// same user. Any combination of flags may be set.
func Compare(previous, next *User) ChangeSet {
	var changes ChangeSet
	if previous.IsFollowedByCaller != next.IsFollowedByCaller ||
		previous.IsFollowingCaller != next.IsFollowingCaller ||
		previous.IsFavorite != next.IsFavorite {
		changes |= ChangeRelationship
	}
	if !previous.Presence.Equal(next.Presence) {
		changes |= ChangePresence
	}
	if profileChanged(previous, next) {
		changes |= ChangeProfile
	}
	return changes
}

func profileChanged(previous, next *User) bool {
	if previous.Gamerscore != next.Gamerscore ||
		previous.AvatarURL != next.AvatarURL ||
		previous.UseAvatar != next.UseAvatar {
		return true
	}
	if previous.TitleHistory.HasPlayed != next.TitleHistory.HasPlayed ||
		!previous.TitleHistory.LastPlayed.Equal(next.TitleHistory.LastPlayed) {
		return true
	}
	fold := cases.Fold()
	equal := func(a, b string) bool {
		return a == b || fold.String(a) == fold.String(b)
	}
	return !equal(previous.Gamertag, next.Gamertag) ||
		!equal(previous.DisplayName, next.DisplayName) ||
		!equal(previous.RealName, next.RealName) ||
		!equal(previous.PreferredColor.Primary, next.PreferredColor.Primary) ||
		!equal(previous.PreferredColor.Secondary, next.PreferredColor.Secondary) ||
		!equal(previous.PreferredColor.Tertiary, next.PreferredColor.Tertiary)
}
