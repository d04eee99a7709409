package peoplehub

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/louisbranch/socialsync/internal/services/social/domain"
)

type batchRequest struct {
	XUIDs []string `json:"xuids"`
}

type peopleResponse struct {
	People []person `json:"people"`
}

type person struct {
	XUID               string           `json:"xuid"`
	IsFavorite         bool             `json:"isFavorite"`
	IsFollowedByCaller bool             `json:"isFollowedByCaller"`
	IsFollowingCaller  bool             `json:"isFollowingCaller"`
	DisplayName        string           `json:"displayName"`
	RealName           string           `json:"realName"`
	DisplayPicRaw      string           `json:"displayPicRaw"`
	UseAvatar          bool             `json:"useAvatar"`
	Gamertag           string           `json:"gamertag"`
	GamerScore         string           `json:"gamerScore"`
	PresenceState      string           `json:"presenceState"`
	PresenceDetails    []presenceDetail `json:"presenceDetails"`
	TitleHistory       *titleHistory    `json:"titleHistory"`
	PreferredColor     *preferredColor  `json:"preferredColor"`
}

type presenceDetail struct {
	Device       string `json:"Device"`
	PresenceText string `json:"PresenceText"`
	State        string `json:"State"`
	TitleID      string `json:"TitleId"`
	IsPrimary    bool   `json:"IsPrimary"`
}

type titleHistory struct {
	// LastTimePlayed is null when the service could not load title history.
	LastTimePlayed     *string `json:"lastTimePlayed"`
	LastTimePlayedText string  `json:"lastTimePlayedText"`
}

type preferredColor struct {
	PrimaryColor   string `json:"primaryColor"`
	SecondaryColor string `json:"secondaryColor"`
	TertiaryColor  string `json:"tertiaryColor"`
}

func (p person) toUser() (domain.User, error) {
	xuid := strings.TrimSpace(p.XUID)
	if xuid == "" {
		return domain.User{}, fmt.Errorf("person without xuid")
	}
	user := domain.User{
		ID:                 xuid,
		IsFavorite:         p.IsFavorite,
		IsFollowedByCaller: p.IsFollowedByCaller,
		IsFollowingCaller:  p.IsFollowingCaller,
		DisplayName:        p.DisplayName,
		RealName:           p.RealName,
		Gamertag:           p.Gamertag,
		Gamerscore:         p.GamerScore,
		AvatarURL:          p.DisplayPicRaw,
		UseAvatar:          p.UseAvatar,
	}
	user.Presence = p.presence()

	if p.TitleHistory != nil && p.TitleHistory.LastTimePlayed != nil {
		played, err := time.Parse(time.RFC3339Nano, *p.TitleHistory.LastTimePlayed)
		if err != nil {
			return domain.User{}, fmt.Errorf("person %s: last time played: %w", xuid, err)
		}
		user.TitleHistory = domain.TitleHistory{HasPlayed: !played.IsZero(), LastPlayed: played}
	}
	if p.PreferredColor != nil {
		user.PreferredColor = domain.PreferredColor{
			Primary:   p.PreferredColor.PrimaryColor,
			Secondary: p.PreferredColor.SecondaryColor,
			Tertiary:  p.PreferredColor.TertiaryColor,
		}
	}
	return user, nil
}

// presence groups the flat title records by device, keeping first-seen
// device order.
func (p person) presence() domain.PresenceRecord {
	record := domain.PresenceRecord{State: domain.ParseUserState(p.PresenceState)}
	index := make(map[domain.DeviceType]int)
	for _, detail := range p.PresenceDetails {
		device := domain.ParseDeviceType(detail.Device)
		i, ok := index[device]
		if !ok {
			i = len(record.Devices)
			index[device] = i
			record.Devices = append(record.Devices, domain.DeviceRecord{Type: device})
		}
		record.Devices[i].Titles = append(record.Devices[i].Titles, domain.TitleRecord{
			TitleID:      parseTitleID(detail.TitleID),
			TitleName:    titleName(detail.PresenceText),
			IsActive:     strings.EqualFold(detail.State, "active"),
			IsPrimary:    detail.IsPrimary,
			RichPresence: detail.PresenceText,
		})
	}
	return record
}

// parseTitleID reads the leading decimal digits of value. Anything else,
// including an out-of-range id, reads as 0 so one bad record cannot fail
// the batch.
func parseTitleID(value string) uint32 {
	value = strings.TrimSpace(value)
	end := 0
	for end < len(value) && value[end] >= '0' && value[end] <= '9' {
		end++
	}
	id, err := strconv.ParseUint(value[:end], 10, 32)
	if err != nil {
		return 0
	}
	return uint32(id)
}

// titleName is the part of "Title - Rich presence" before the first dash.
func titleName(presenceText string) string {
	name, _, _ := strings.Cut(presenceText, "-")
	return strings.TrimSpace(name)
}
