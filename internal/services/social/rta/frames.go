package rta

import (
	"strings"

	"github.com/louisbranch/socialsync/internal/services/social/domain"
)

const (
	kindDevice       = "device"
	kindTitle        = "title"
	kindRelationship = "relationship"

	opSubscribe   = "subscribe"
	opUnsubscribe = "unsubscribe"
)

// subscription is one entry of the desired subscription set.
type subscription struct {
	Caller  string `json:"caller"`
	Kind    string `json:"kind"`
	User    string `json:"user,omitempty"`
	TitleID uint32 `json:"titleId,omitempty"`
}

// controlFrame is sent by the client to change what it receives.
type controlFrame struct {
	Op string `json:"op"`
	subscription
}

// pushFrame is one notification from the service.
type pushFrame struct {
	Kind       string   `json:"kind"`
	Caller     string   `json:"caller"`
	User       string   `json:"user"`
	Users      []string `json:"users"`
	DeviceType string   `json:"deviceType"`
	Online     bool     `json:"online"`
	TitleID    uint32   `json:"titleId"`
	State      string   `json:"state"`
	Change     string   `json:"change"`
}

func parseTitleState(value string) (domain.TitleState, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "started":
		return domain.TitleStarted, true
	case "ended":
		return domain.TitleEnded, true
	default:
		return 0, false
	}
}

func parseRelationshipChange(value string) (domain.RelationshipChange, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "added":
		return domain.RelationshipAdded, true
	case "changed":
		return domain.RelationshipChanged, true
	case "removed":
		return domain.RelationshipRemoved, true
	default:
		return 0, false
	}
}
