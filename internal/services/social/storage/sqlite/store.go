// Package sqlite provides the SQLite-backed people directory.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/socialsync/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/socialsync/internal/services/social/domain"
	"github.com/louisbranch/socialsync/internal/services/social/storage"
	"github.com/louisbranch/socialsync/internal/services/social/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists people and relationships in SQLite.
type Store struct {
	sqlDB      *sql.DB
	migrations []string
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// migrationTable keeps the directory's migrations apart from other schemas
// sharing the file.
const migrationTable = "people_migrations"

// Option configures Open.
type Option func(*openOptions)

type openOptions struct {
	logf func(string, ...any)
}

// WithLogf reports applied schema migrations to logf.
func WithLogf(logf func(string, ...any)) Option {
	return func(o *openOptions) { o.logf = logf }
}

// Open opens a SQLite people directory and applies embedded migrations.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	var options openOptions
	for _, opt := range opts {
		opt(&options)
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	applied, err := sqlitemigrate.Apply(context.Background(), sqlDB, migrations.FS, sqlitemigrate.Options{
		Table: migrationTable,
		Logf:  options.logf,
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, migrations: applied}, nil
}

// Migrations returns the schema migrations applied when the store opened.
func (s *Store) Migrations() []string {
	return slices.Clone(s.migrations)
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

func stamps(createdAt, updatedAt time.Time) (time.Time, time.Time) {
	createdAt = createdAt.UTC()
	updatedAt = updatedAt.UTC()
	if createdAt.IsZero() && updatedAt.IsZero() {
		now := time.Now().UTC()
		return now, now
	}
	if createdAt.IsZero() {
		createdAt = updatedAt
	}
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}
	return createdAt, updatedAt
}

// PutPerson inserts or replaces one person. CreatedAt of an existing row is
// kept, and writing identical values leaves UpdatedAt alone.
func (s *Store) PutPerson(ctx context.Context, person storage.Person) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	userID := strings.TrimSpace(person.UserID)
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	presence, err := json.Marshal(person.Presence)
	if err != nil {
		return fmt.Errorf("encode presence: %w", err)
	}
	createdAt, updatedAt := stamps(person.CreatedAt, person.UpdatedAt)

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO people (
		   user_id, gamertag, display_name, real_name, gamerscore,
		   avatar_url, use_avatar, color_primary, color_secondary, color_tertiary,
		   presence_json, created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   gamertag = excluded.gamertag,
		   display_name = excluded.display_name,
		   real_name = excluded.real_name,
		   gamerscore = excluded.gamerscore,
		   avatar_url = excluded.avatar_url,
		   use_avatar = excluded.use_avatar,
		   color_primary = excluded.color_primary,
		   color_secondary = excluded.color_secondary,
		   color_tertiary = excluded.color_tertiary,
		   presence_json = excluded.presence_json,
		   updated_at = excluded.updated_at
		 WHERE people.gamertag IS NOT excluded.gamertag
		    OR people.display_name IS NOT excluded.display_name
		    OR people.real_name IS NOT excluded.real_name
		    OR people.gamerscore IS NOT excluded.gamerscore
		    OR people.avatar_url IS NOT excluded.avatar_url
		    OR people.use_avatar IS NOT excluded.use_avatar
		    OR people.color_primary IS NOT excluded.color_primary
		    OR people.color_secondary IS NOT excluded.color_secondary
		    OR people.color_tertiary IS NOT excluded.color_tertiary
		    OR people.presence_json IS NOT excluded.presence_json`,
		userID,
		strings.TrimSpace(person.Gamertag),
		strings.TrimSpace(person.DisplayName),
		strings.TrimSpace(person.RealName),
		strings.TrimSpace(person.Gamerscore),
		strings.TrimSpace(person.AvatarURL),
		person.UseAvatar,
		person.PreferredColor.Primary,
		person.PreferredColor.Secondary,
		person.PreferredColor.Tertiary,
		string(presence),
		toMillis(createdAt),
		toMillis(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("put person: %w", err)
	}
	return nil
}

// GetPerson returns one person by user ID.
func (s *Store) GetPerson(ctx context.Context, userID string) (storage.Person, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Person{}, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return storage.Person{}, fmt.Errorf("user id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT user_id, gamertag, display_name, real_name, gamerscore,
		        avatar_url, use_avatar, color_primary, color_secondary, color_tertiary,
		        presence_json, created_at, updated_at
		   FROM people
		  WHERE user_id = ?`,
		userID,
	)

	var person storage.Person
	var presence string
	var createdAt int64
	var updatedAt int64
	err := row.Scan(
		&person.UserID,
		&person.Gamertag,
		&person.DisplayName,
		&person.RealName,
		&person.Gamerscore,
		&person.AvatarURL,
		&person.UseAvatar,
		&person.PreferredColor.Primary,
		&person.PreferredColor.Secondary,
		&person.PreferredColor.Tertiary,
		&presence,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Person{}, storage.ErrNotFound
		}
		return storage.Person{}, fmt.Errorf("get person: %w", err)
	}
	if person.Presence, err = decodePresence(presence); err != nil {
		return storage.Person{}, err
	}
	person.CreatedAt = fromMillis(createdAt)
	person.UpdatedAt = fromMillis(updatedAt)
	return person, nil
}

// PutTitlePlayed records the last time userID played titleID.
func (s *Store) PutTitlePlayed(ctx context.Context, userID string, titleID uint32, playedAt time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	if titleID == 0 {
		return fmt.Errorf("title id is required")
	}
	if playedAt.IsZero() {
		return fmt.Errorf("played at is required")
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO title_history (user_id, title_id, last_played_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(user_id, title_id) DO UPDATE SET
		   last_played_at = MAX(title_history.last_played_at, excluded.last_played_at)`,
		userID,
		int64(titleID),
		toMillis(playedAt),
	)
	if err != nil {
		return fmt.Errorf("put title played: %w", err)
	}
	return nil
}

// PutRelationship inserts or updates one directed relationship.
func (s *Store) PutRelationship(ctx context.Context, relationship storage.Relationship) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	ownerUserID := strings.TrimSpace(relationship.OwnerUserID)
	contactUserID := strings.TrimSpace(relationship.ContactUserID)
	if ownerUserID == "" {
		return fmt.Errorf("owner user id is required")
	}
	if contactUserID == "" {
		return fmt.Errorf("contact user id is required")
	}
	if ownerUserID == contactUserID {
		return fmt.Errorf("relationship owner and contact must differ")
	}
	createdAt, updatedAt := stamps(relationship.CreatedAt, relationship.UpdatedAt)

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO relationships (owner_user_id, contact_user_id, is_favorite, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(owner_user_id, contact_user_id) DO UPDATE SET
		   is_favorite = excluded.is_favorite,
		   updated_at = excluded.updated_at`,
		ownerUserID,
		contactUserID,
		relationship.IsFavorite,
		toMillis(createdAt),
		toMillis(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("put relationship: %w", err)
	}
	return nil
}

// GetRelationship returns one owner-scoped relationship.
func (s *Store) GetRelationship(ctx context.Context, ownerUserID string, contactUserID string) (storage.Relationship, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Relationship{}, err
	}
	ownerUserID = strings.TrimSpace(ownerUserID)
	contactUserID = strings.TrimSpace(contactUserID)
	if ownerUserID == "" || contactUserID == "" {
		return storage.Relationship{}, fmt.Errorf("owner and contact user ids are required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT owner_user_id, contact_user_id, is_favorite, created_at, updated_at
		   FROM relationships
		  WHERE owner_user_id = ? AND contact_user_id = ?`,
		ownerUserID,
		contactUserID,
	)
	relationship, err := scanRelationship(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Relationship{}, storage.ErrNotFound
		}
		return storage.Relationship{}, fmt.Errorf("get relationship: %w", err)
	}
	return relationship, nil
}

// DeleteRelationship removes one owner-scoped relationship. Deleting a
// missing relationship is not an error.
func (s *Store) DeleteRelationship(ctx context.Context, ownerUserID string, contactUserID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	ownerUserID = strings.TrimSpace(ownerUserID)
	contactUserID = strings.TrimSpace(contactUserID)
	if ownerUserID == "" || contactUserID == "" {
		return fmt.Errorf("owner and contact user ids are required")
	}
	if _, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM relationships WHERE owner_user_id = ? AND contact_user_id = ?`,
		ownerUserID,
		contactUserID,
	); err != nil {
		return fmt.Errorf("delete relationship: %w", err)
	}
	return nil
}

// ListRelationships returns one page of an owner's relationships ordered by
// contact user ID.
func (s *Store) ListRelationships(ctx context.Context, ownerUserID string, pageSize int, pageToken string) (storage.RelationshipPage, error) {
	if err := s.ready(ctx); err != nil {
		return storage.RelationshipPage{}, err
	}
	ownerUserID = strings.TrimSpace(ownerUserID)
	if ownerUserID == "" {
		return storage.RelationshipPage{}, fmt.Errorf("owner user id is required")
	}
	if pageSize <= 0 {
		return storage.RelationshipPage{}, fmt.Errorf("page size must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT owner_user_id, contact_user_id, is_favorite, created_at, updated_at
		   FROM relationships
		  WHERE owner_user_id = ? AND contact_user_id > ?
		  ORDER BY contact_user_id ASC
		  LIMIT ?`,
		ownerUserID,
		strings.TrimSpace(pageToken),
		pageSize+1,
	)
	if err != nil {
		return storage.RelationshipPage{}, fmt.Errorf("list relationships: %w", err)
	}
	defer rows.Close()

	page := storage.RelationshipPage{Relationships: make([]storage.Relationship, 0, pageSize)}
	for rows.Next() {
		relationship, err := scanRelationship(rows)
		if err != nil {
			return storage.RelationshipPage{}, fmt.Errorf("list relationships: %w", err)
		}
		page.Relationships = append(page.Relationships, relationship)
	}
	if err := rows.Err(); err != nil {
		return storage.RelationshipPage{}, fmt.Errorf("list relationships: %w", err)
	}
	if len(page.Relationships) > pageSize {
		page.NextPageToken = page.Relationships[pageSize-1].ContactUserID
		page.Relationships = page.Relationships[:pageSize]
	}
	return page, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRelationship(row scanner) (storage.Relationship, error) {
	var relationship storage.Relationship
	var createdAt int64
	var updatedAt int64
	if err := row.Scan(
		&relationship.OwnerUserID,
		&relationship.ContactUserID,
		&relationship.IsFavorite,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.Relationship{}, err
	}
	relationship.CreatedAt = fromMillis(createdAt)
	relationship.UpdatedAt = fromMillis(updatedAt)
	return relationship, nil
}

func decodePresence(value string) (domain.PresenceRecord, error) {
	var presence domain.PresenceRecord
	if strings.TrimSpace(value) == "" {
		return presence, nil
	}
	if err := json.Unmarshal([]byte(value), &presence); err != nil {
		return domain.PresenceRecord{}, fmt.Errorf("decode presence: %w", err)
	}
	return presence, nil
}

var (
	_ storage.PeopleStore       = (*Store)(nil)
	_ storage.RelationshipStore = (*Store)(nil)
)
