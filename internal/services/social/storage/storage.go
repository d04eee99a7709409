// Package storage defines persistence contracts for the people directory.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/socialsync/internal/services/social/domain"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// Person stores the profile and presence of one user.
type Person struct {
	UserID         string
	Gamertag       string
	DisplayName    string
	RealName       string
	Gamerscore     string
	AvatarURL      string
	UseAvatar      bool
	PreferredColor domain.PreferredColor
	Presence       domain.PresenceRecord
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Relationship stores one owner-scoped directed follow edge.
type Relationship struct {
	OwnerUserID   string
	ContactUserID string
	IsFavorite    bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RelationshipPage stores a page of directed relationships.
type RelationshipPage struct {
	Relationships []Relationship
	NextPageToken string
}

// PeopleStore persists people and the titles they played.
type PeopleStore interface {
	PutPerson(ctx context.Context, person Person) error
	GetPerson(ctx context.Context, userID string) (Person, error)
	PutTitlePlayed(ctx context.Context, userID string, titleID uint32, playedAt time.Time) error
}

// RelationshipStore persists owner-scoped directed relationships.
type RelationshipStore interface {
	PutRelationship(ctx context.Context, relationship Relationship) error
	GetRelationship(ctx context.Context, ownerUserID string, contactUserID string) (Relationship, error)
	DeleteRelationship(ctx context.Context, ownerUserID string, contactUserID string) error
	ListRelationships(ctx context.Context, ownerUserID string, pageSize int, pageToken string) (RelationshipPage, error)
}
