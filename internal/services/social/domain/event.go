package domain

// MaxAffectedUsersPerEvent caps AffectedUserIDs on one published event.
// Larger changes are split into several events of the same type.
const MaxAffectedUsersPerEvent = 10

// EventType identifies an application-visible social event.
type EventType int

const (
	EventUnknown EventType = iota
	EventUsersAddedToSocialGraph
	EventUsersRemovedFromSocialGraph
	EventPresenceChanged
	EventProfilesChanged
	EventSocialRelationshipsChanged
	EventLocalUserAdded
	EventSocialUserGroupLoaded
	EventSocialUserGroupUpdated
)

// String returns the event type name used in logs and metrics.
func (t EventType) String() string {
	switch t {
	case EventUsersAddedToSocialGraph:
		return "UsersAddedToSocialGraph"
	case EventUsersRemovedFromSocialGraph:
		return "UsersRemovedFromSocialGraph"
	case EventPresenceChanged:
		return "PresenceChanged"
	case EventProfilesChanged:
		return "ProfilesChanged"
	case EventSocialRelationshipsChanged:
		return "SocialRelationshipsChanged"
	case EventLocalUserAdded:
		return "LocalUserAdded"
	case EventSocialUserGroupLoaded:
		return "SocialUserGroupLoaded"
	case EventSocialUserGroupUpdated:
		return "SocialUserGroupUpdated"
	default:
		return "Unknown"
	}
}

// Event is one application-visible change returned from DoWork.
type Event struct {
	Type            EventType
	LocalUserID     string
	AffectedUserIDs []string
	// GroupID is set on group loaded/updated events.
	GroupID string
	// Err is set when the event reports a failed background operation.
	Err error
}

// RelationshipChange is the kind of a relationship push notification.
type RelationshipChange int

const (
	RelationshipAdded RelationshipChange = iota + 1
	RelationshipChanged
	RelationshipRemoved
)

// String returns the wire spelling of the change.
func (c RelationshipChange) String() string {
	switch c {
	case RelationshipAdded:
		return "added"
	case RelationshipChanged:
		return "changed"
	case RelationshipRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// TitleState is the transition reported by a title presence push.
type TitleState int

const (
	TitleStarted TitleState = iota + 1
	TitleEnded
)

// String returns the wire spelling of the state.
func (s TitleState) String() string {
	switch s {
	case TitleStarted:
		return "started"
	case TitleEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// ChunkIDs splits ids into consecutive slices of at most size entries.
func ChunkIDs(ids []string, size int) [][]string {
	if len(ids) == 0 {
		return nil
	}
	if size <= 0 {
		size = len(ids)
	}
	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end:end])
	}
	return chunks
}
