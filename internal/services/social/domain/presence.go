package domain

import (
	"slices"
	"strings"
	"time"
)

// UserState is the coarse presence state of a user.
type UserState int

const (
	UserStateUnknown UserState = iota
	UserStateOnline
	UserStateAway
	UserStateOffline
)

// String returns the wire spelling of the state.
func (s UserState) String() string {
	switch s {
	case UserStateOnline:
		return "Online"
	case UserStateAway:
		return "Away"
	case UserStateOffline:
		return "Offline"
	default:
		return "Unknown"
	}
}

// ParseUserState parses a state case-insensitively; unknown values map to
// UserStateUnknown.
func ParseUserState(value string) UserState {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "online":
		return UserStateOnline
	case "away":
		return UserStateAway
	case "offline":
		return UserStateOffline
	default:
		return UserStateUnknown
	}
}

// DeviceType identifies the device a presence record came from.
type DeviceType int

const (
	DeviceUnknown DeviceType = iota
	DeviceXboxOne
	DeviceScarlett
	DeviceXbox360
	DeviceWindows
	DeviceWindowsOneCore
	DeviceIOS
	DeviceAndroid
	DeviceWeb
)

var deviceNames = map[DeviceType]string{
	DeviceUnknown:        "Unknown",
	DeviceXboxOne:        "XboxOne",
	DeviceScarlett:       "Scarlett",
	DeviceXbox360:        "Xbox360",
	DeviceWindows:        "Win32",
	DeviceWindowsOneCore: "WindowsOneCore",
	DeviceIOS:            "iOS",
	DeviceAndroid:        "Android",
	DeviceWeb:            "Web",
}

// String returns the wire spelling of the device type.
func (d DeviceType) String() string {
	if name, ok := deviceNames[d]; ok {
		return name
	}
	return "Unknown"
}

// ParseDeviceType parses a device type case-insensitively.
func ParseDeviceType(value string) DeviceType {
	value = strings.TrimSpace(value)
	for device, name := range deviceNames {
		if strings.EqualFold(name, value) {
			return device
		}
	}
	return DeviceUnknown
}

// ViewState is how much screen a title occupies on its device.
type ViewState int

const (
	ViewStateUnknown ViewState = iota
	ViewStateFull
	ViewStateFill
	ViewStateSnapped
	ViewStateBackground
)

// BroadcastRecord describes a live broadcast attached to a title record.
type BroadcastRecord struct {
	ID        string
	Provider  string
	Viewers   uint32
	StartedAt time.Time
}

// TitleRecord is one title running, or recently running, on a device.
type TitleRecord struct {
	TitleID      uint32
	TitleName    string
	IsActive     bool
	IsPrimary    bool
	RichPresence string
	LastModified time.Time
	ViewState    ViewState
	Broadcast    *BroadcastRecord
}

// DeviceRecord groups the title records reported by one device.
type DeviceRecord struct {
	Type   DeviceType
	Titles []TitleRecord
}

// PresenceRecord is the presence sub-structure of a graph entry.
type PresenceRecord struct {
	State   UserState
	Devices []DeviceRecord
}

// IsUserPlayingTitle reports whether the user is playing titleID.
//
// The scan stops at the first title record matching titleID across devices
// in order, and returns that record's IsActive. A later device showing the
// same title active does not change the answer.
func (p PresenceRecord) IsUserPlayingTitle(titleID uint32) bool {
	for _, device := range p.Devices {
		for _, title := range device.Titles {
			if title.TitleID == titleID {
				return title.IsActive
			}
		}
	}
	return false
}

// Clone returns a deep copy of p.
func (p PresenceRecord) Clone() PresenceRecord {
	clone := PresenceRecord{State: p.State}
	if p.Devices == nil {
		return clone
	}
	clone.Devices = make([]DeviceRecord, len(p.Devices))
	for i, device := range p.Devices {
		clone.Devices[i] = DeviceRecord{Type: device.Type}
		if device.Titles == nil {
			continue
		}
		clone.Devices[i].Titles = make([]TitleRecord, len(device.Titles))
		for j, title := range device.Titles {
			if title.Broadcast != nil {
				broadcast := *title.Broadcast
				title.Broadcast = &broadcast
			}
			clone.Devices[i].Titles[j] = title
		}
	}
	return clone
}

// Equal reports whether two presence records carry the same data.
func (p PresenceRecord) Equal(other PresenceRecord) bool {
	if p.State != other.State {
		return false
	}
	return slices.EqualFunc(p.Devices, other.Devices, func(a, b DeviceRecord) bool {
		return a.Type == b.Type && slices.EqualFunc(a.Titles, b.Titles, TitleRecord.Equal)
	})
}

// Equal reports whether two title records carry the same data.
func (t TitleRecord) Equal(other TitleRecord) bool {
	if t.TitleID != other.TitleID ||
		t.TitleName != other.TitleName ||
		t.IsActive != other.IsActive ||
		t.IsPrimary != other.IsPrimary ||
		t.RichPresence != other.RichPresence ||
		!t.LastModified.Equal(other.LastModified) ||
		t.ViewState != other.ViewState {
		return false
	}
	switch {
	case t.Broadcast == nil && other.Broadcast == nil:
		return true
	case t.Broadcast == nil || other.Broadcast == nil:
		return false
	default:
		return t.Broadcast.ID == other.Broadcast.ID &&
			t.Broadcast.Provider == other.Broadcast.Provider &&
			t.Broadcast.Viewers == other.Broadcast.Viewers &&
			t.Broadcast.StartedAt.Equal(other.Broadcast.StartedAt)
	}
}

// WithDevice applies a device presence push: an online device is added if
// missing, an offline device is dropped along with its titles. The user is
// offline once no device remains.
func (p PresenceRecord) WithDevice(device DeviceType, online bool) PresenceRecord {
	next := p.Clone()
	index := slices.IndexFunc(next.Devices, func(d DeviceRecord) bool { return d.Type == device })
	if online {
		if index < 0 {
			next.Devices = append(next.Devices, DeviceRecord{Type: device})
		}
		next.State = UserStateOnline
		return next
	}
	if index >= 0 {
		next.Devices = slices.Delete(next.Devices, index, index+1)
	}
	if len(next.Devices) == 0 {
		next.Devices = nil
		next.State = UserStateOffline
	}
	return next
}

// WithTitle applies a title presence push. A started title becomes active,
// attached to the first device when no record exists yet. An ended title is
// removed from every device.
func (p PresenceRecord) WithTitle(titleID uint32, state TitleState, at time.Time) PresenceRecord {
	next := p.Clone()
	switch state {
	case TitleStarted:
		found := false
		for i := range next.Devices {
			for j := range next.Devices[i].Titles {
				if next.Devices[i].Titles[j].TitleID == titleID {
					next.Devices[i].Titles[j].IsActive = true
					next.Devices[i].Titles[j].LastModified = at
					found = true
				}
			}
		}
		if !found {
			if len(next.Devices) == 0 {
				next.Devices = append(next.Devices, DeviceRecord{Type: DeviceUnknown})
			}
			next.Devices[0].Titles = append(next.Devices[0].Titles, TitleRecord{
				TitleID:      titleID,
				IsActive:     true,
				LastModified: at,
			})
		}
		next.State = UserStateOnline
	case TitleEnded:
		for i := range next.Devices {
			next.Devices[i].Titles = slices.DeleteFunc(next.Devices[i].Titles, func(t TitleRecord) bool {
				return t.TitleID == titleID
			})
		}
	}
	return next
}
