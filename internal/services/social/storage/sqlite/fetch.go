package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/louisbranch/socialsync/internal/services/social/domain"
	"github.com/louisbranch/socialsync/internal/services/social/graph"
)

// maxQueryIDs keeps IN lists well under the SQLite variable limit.
const maxQueryIDs = 500

// entryColumns selects one graph entry as seen by the caller bound to the
// first two placeholders. p is people, r the caller's edge, t the title
// history row for the bound title.
const entryColumns = `
	COALESCE(r.is_favorite, 0),
	r.owner_user_id IS NOT NULL,
	EXISTS (SELECT 1 FROM relationships back
	         WHERE back.owner_user_id = %[1]s AND back.contact_user_id = ?),
	COALESCE(p.gamertag, ''), COALESCE(p.display_name, ''), COALESCE(p.real_name, ''),
	COALESCE(p.gamerscore, ''), COALESCE(p.avatar_url, ''), COALESCE(p.use_avatar, 0),
	COALESCE(p.color_primary, ''), COALESCE(p.color_secondary, ''), COALESCE(p.color_tertiary, ''),
	COALESCE(p.presence_json, ''),
	t.last_played_at`

// FetchUsers implements graph.Fetcher against the directory. All returns
// every user the caller follows; explicit ids return the known people among
// them in request order.
func (s *Store) FetchUsers(ctx context.Context, req graph.FetchRequest) ([]domain.User, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	callerID := strings.TrimSpace(req.CallerID)
	if callerID == "" {
		return nil, fmt.Errorf("caller id is required")
	}
	if req.All {
		return s.fetchFollowed(ctx, callerID, req)
	}

	users := make(map[string]domain.User, len(req.UserIDs))
	for _, chunk := range domain.ChunkIDs(req.UserIDs, maxQueryIDs) {
		if err := s.fetchChunk(ctx, callerID, chunk, req, users); err != nil {
			return nil, err
		}
	}
	ordered := make([]domain.User, 0, len(users))
	for _, id := range req.UserIDs {
		if user, ok := users[id]; ok {
			ordered = append(ordered, user)
			delete(users, id)
		}
	}
	return ordered, nil
}

func (s *Store) fetchFollowed(ctx context.Context, callerID string, req graph.FetchRequest) ([]domain.User, error) {
	query := `SELECT r.contact_user_id,` + fmt.Sprintf(entryColumns, "r.contact_user_id") + `
		   FROM relationships r
		   LEFT JOIN people p ON p.user_id = r.contact_user_id
		   LEFT JOIN title_history t ON t.user_id = r.contact_user_id AND t.title_id = ?
		  WHERE r.owner_user_id = ?
		  ORDER BY r.contact_user_id ASC`
	rows, err := s.sqlDB.QueryContext(ctx, query, callerID, int64(req.TitleID), callerID)
	if err != nil {
		return nil, fmt.Errorf("fetch followed users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanEntry(rows, req)
		if err != nil {
			return nil, fmt.Errorf("fetch followed users: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch followed users: %w", err)
	}
	return users, nil
}

func (s *Store) fetchChunk(ctx context.Context, callerID string, ids []string, req graph.FetchRequest, into map[string]domain.User) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := `SELECT p.user_id,` + fmt.Sprintf(entryColumns, "p.user_id") + `
		   FROM people p
		   LEFT JOIN relationships r ON r.owner_user_id = ? AND r.contact_user_id = p.user_id
		   LEFT JOIN title_history t ON t.user_id = p.user_id AND t.title_id = ?
		  WHERE p.user_id IN (` + placeholders + `)`
	args := make([]any, 0, len(ids)+3)
	args = append(args, callerID, callerID, int64(req.TitleID))
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("fetch users: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		user, err := scanEntry(rows, req)
		if err != nil {
			return fmt.Errorf("fetch users: %w", err)
		}
		into[user.ID] = user
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("fetch users: %w", err)
	}
	return nil
}

// scanEntry reads one row selected with entryColumns. Decorations the
// request did not ask for are left zero.
func scanEntry(row scanner, req graph.FetchRequest) (domain.User, error) {
	var user domain.User
	var color domain.PreferredColor
	var presence string
	var lastPlayed sql.NullInt64
	if err := row.Scan(
		&user.ID,
		&user.IsFavorite,
		&user.IsFollowedByCaller,
		&user.IsFollowingCaller,
		&user.Gamertag,
		&user.DisplayName,
		&user.RealName,
		&user.Gamerscore,
		&user.AvatarURL,
		&user.UseAvatar,
		&color.Primary,
		&color.Secondary,
		&color.Tertiary,
		&presence,
		&lastPlayed,
	); err != nil {
		return domain.User{}, err
	}
	decoded, err := decodePresence(presence)
	if err != nil {
		return domain.User{}, fmt.Errorf("user %s: %w", user.ID, err)
	}
	user.Presence = decoded
	if decoded.State == domain.UserStateUnknown {
		user.Presence.State = domain.UserStateOffline
	}
	if req.PresenceOnly {
		return user, nil
	}
	if req.Detail.Has(domain.DetailPreferredColor) {
		user.PreferredColor = color
	}
	if req.Detail.Has(domain.DetailTitleHistory) {
		user.TitleHistory.TitleID = req.TitleID
		if lastPlayed.Valid {
			user.TitleHistory.HasPlayed = true
			user.TitleHistory.LastPlayed = fromMillis(lastPlayed.Int64)
		}
	}
	return user, nil
}

var _ graph.Fetcher = (*Store)(nil)
