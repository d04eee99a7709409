// Package domain defines the social graph data model shared by the graph,
// group and manager packages.
//
// Values handed out by the engine are treated as immutable: a change to a
// remote user produces a new *User that replaces the old one wholesale.
package domain

import "time"

// User is the graph entry for one remote user as seen by a local user.
type User struct {
	ID string

	IsFavorite         bool
	IsFollowingCaller  bool
	IsFollowedByCaller bool

	DisplayName string
	RealName    string
	Gamertag    string
	Gamerscore  string
	AvatarURL   string
	UseAvatar   bool

	PreferredColor PreferredColor
	TitleHistory   TitleHistory
	Presence       PresenceRecord
}

// PreferredColor holds the three profile color slots as hex strings.
type PreferredColor struct {
	Primary   string
	Secondary string
	Tertiary  string
}

// TitleHistory records whether the user has played the configured title.
type TitleHistory struct {
	HasPlayed  bool
	LastPlayed time.Time
	TitleID    uint32
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	clone := *u
	clone.Presence = u.Presence.Clone()
	return &clone
}

// IsOnline reports whether the user's presence state is online.
func (u *User) IsOnline() bool {
	return u != nil && u.Presence.State == UserStateOnline
}

// WithPresence returns a copy of u carrying the given presence record.
func (u *User) WithPresence(presence PresenceRecord) *User {
	clone := *u
	clone.Presence = presence.Clone()
	return &clone
}
