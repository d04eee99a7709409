package domain

import (
	"testing"
	"time"
)

func baseUser() *User {
	return &User{
		ID:                 "100",
		IsFollowedByCaller: true,
		DisplayName:        "Ada",
		Gamertag:           "AdaPlays",
		Gamerscore:         "1200",
		AvatarURL:          "https://images.example/ada.png",
		PreferredColor:     PreferredColor{Primary: "193e91", Secondary: "2458cf", Tertiary: "1f48b0"},
		TitleHistory:       TitleHistory{HasPlayed: true, LastPlayed: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
		Presence:           PresenceRecord{State: UserStateOnline, Devices: []DeviceRecord{{Type: DeviceXboxOne}}},
	}
}

func TestCompareClassifiesFieldGroups(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*User)
		want   ChangeSet
	}{
		{name: "unchanged", mutate: func(*User) {}, want: 0},
		{name: "favorite", mutate: func(u *User) { u.IsFavorite = true }, want: ChangeRelationship},
		{name: "following caller", mutate: func(u *User) { u.IsFollowingCaller = true }, want: ChangeRelationship},
		{name: "presence state", mutate: func(u *User) { u.Presence.State = UserStateAway }, want: ChangePresence},
		{name: "gamerscore", mutate: func(u *User) { u.Gamerscore = "1300" }, want: ChangeProfile},
		{name: "gamertag case only", mutate: func(u *User) { u.Gamertag = "adaplays" }, want: 0},
		{name: "display name", mutate: func(u *User) { u.DisplayName = "Ada L" }, want: ChangeProfile},
		{name: "color case only", mutate: func(u *User) { u.PreferredColor.Primary = "193E91" }, want: 0},
		{name: "title history", mutate: func(u *User) { u.TitleHistory.HasPlayed = false }, want: ChangeProfile},
		{
			name: "all three",
			mutate: func(u *User) {
				u.IsFollowedByCaller = false
				u.Presence = PresenceRecord{State: UserStateOffline}
				u.UseAvatar = true
			},
			want: ChangeRelationship | ChangePresence | ChangeProfile,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			previous := baseUser()
			next := previous.Clone()
			tc.mutate(next)
			if got := Compare(previous, next); got != tc.want {
				t.Fatalf("Compare = %03b, want %03b", got, tc.want)
			}
		})
	}
}

func TestUserWithPresenceLeavesOriginal(t *testing.T) {
	user := baseUser()
	next := user.WithPresence(PresenceRecord{State: UserStateOffline})
	if user.Presence.State != UserStateOnline {
		t.Fatal("expected original presence to be untouched")
	}
	if next.IsOnline() {
		t.Fatal("expected replacement to be offline")
	}
	if next.DisplayName != user.DisplayName {
		t.Fatalf("display name = %q, want %q", next.DisplayName, user.DisplayName)
	}
}
