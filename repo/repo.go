package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"

	"github.com/deddy77/Moun-project/model"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrUsernameTaken = errors.New("username taken")
	ErrEmailTaken    = errors.New("email taken")
	ErrSelfFollow    = errors.New("cannot follow yourself")
)

const userColumns = `id, username, email, name, avatar, bio, last_activity`

type Repository struct {
	db *sql.DB
}

func New(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateUser(ctx context.Context, username, email, name, passwordHash string) (int64, error) {
	var userID int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (username, email, name, password_hash) VALUES ($1, $2, $3, $4) RETURNING id`,
		username, email, name, passwordHash,
	).Scan(&userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			switch pgErr.ConstraintName {
			case "users_username_key":
				return 0, ErrUsernameTaken
			case "users_email_key":
				return 0, ErrEmailTaken
			}
		}
		return 0, errors.Wrap(err, "repo.CreateUser")
	}
	return userID, nil
}

func (r *Repository) GetUser(ctx context.Context, userID int64) (model.User, error) {
	u, err := r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, errors.Wrap(err, "repo.GetUser")
	}
	return u, nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (int64, string, error) {
	var userID int64
	var hash string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, password_hash FROM users WHERE username = $1`, username,
	).Scan(&userID, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", ErrNotFound
	}
	return userID, hash, err
}

func (r *Repository) UpdateUser(ctx context.Context, userID int64, update model.UserUpdate) error {
	setParts := make([]string, 0, 4)
	args := []interface{}{userID}
	argIndex := 2
	add := func(column string, value interface{}) {
		setParts = append(setParts, fmt.Sprintf("%s = $%d", column, argIndex))
		args = append(args, value)
		argIndex++
	}
	if update.NameSet {
		add("name", update.Name)
	}
	if update.EmailSet {
		add("email", update.Email)
	}
	if update.BioSet {
		add("bio", update.Bio)
	}
	if update.AvatarSet {
		add("avatar", update.Avatar)
	}
	if len(setParts) == 0 {
		return errors.New("no fields to update")
	}
	query := `UPDATE users SET ` + strings.Join(setParts, ", ") + ` WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "users_email_key" {
			return ErrEmailTaken
		}
		return errors.Wrap(err, "repo.UpdateUser")
	}
	return nil
}

func (r *Repository) CreateSession(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, expires_at) VALUES ($1, $2, $3)`,
		token, userID, expiresAt,
	)
	return errors.Wrap(err, "repo.CreateSession")
}

func (r *Repository) GetSessionUserID(ctx context.Context, token string) (int64, error) {
	var userID int64
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id FROM sessions WHERE token = $1 AND expires_at > NOW()`, token,
	).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return userID, err
}

func (r *Repository) DeleteSession(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	return errors.Wrap(err, "repo.DeleteSession")
}

// TouchActivity stamps the presence timestamp. Best-effort: callers ignore the
// error beyond logging because the request's main operation must not depend on it.
func (r *Repository) TouchActivity(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_activity = NOW() WHERE id = $1`, userID)
	return errors.Wrap(err, "repo.TouchActivity")
}

// ClearActivity nulls last_activity so the user reads as offline immediately
// instead of waiting out the online window.
func (r *Repository) ClearActivity(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_activity = NULL WHERE id = $1`, userID)
	return errors.Wrap(err, "repo.ClearActivity")
}

func (r *Repository) CreateFollow(ctx context.Context, followerID, followedID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO follows (follower_id, followed_id) VALUES ($1, $2)
		 ON CONFLICT (follower_id, followed_id) DO NOTHING`,
		followerID, followedID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23514" {
			return ErrSelfFollow
		}
		return errors.Wrap(err, "repo.CreateFollow")
	}
	return nil
}

func (r *Repository) DeleteFollow(ctx context.Context, followerID, followedID int64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM follows WHERE follower_id = $1 AND followed_id = $2`,
		followerID, followedID,
	)
	return errors.Wrap(err, "repo.DeleteFollow")
}

func (r *Repository) IsFollowing(ctx context.Context, followerID, followedID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM follows WHERE follower_id = $1 AND followed_id = $2)`,
		followerID, followedID,
	).Scan(&exists)
	return exists, errors.Wrap(err, "repo.IsFollowing")
}

func (r *Repository) FollowCounts(ctx context.Context, userID int64) (followers, following int64, err error) {
	err = r.db.QueryRowContext(ctx,
		`SELECT
		    (SELECT COUNT(*) FROM follows WHERE followed_id = $1),
		    (SELECT COUNT(*) FROM follows WHERE follower_id = $1)`,
		userID,
	).Scan(&followers, &following)
	return followers, following, errors.Wrap(err, "repo.FollowCounts")
}

// MutualFollowers returns the users who follow userID and are followed back.
func (r *Repository) MutualFollowers(ctx context.Context, userID int64) ([]model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+prefixed(userColumns, "u")+`
		   FROM users u
		   JOIN follows f1 ON f1.follower_id = u.id AND f1.followed_id = $1
		   JOIN follows f2 ON f2.followed_id = u.id AND f2.follower_id = $1
		  ORDER BY u.username`,
		userID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "repo.MutualFollowers")
	}
	defer rows.Close()
	return r.collectUsers(rows)
}

// OnlineUsers returns users whose last activity falls inside the window.
func (r *Repository) OnlineUsers(ctx context.Context, window time.Duration) ([]model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		  WHERE last_activity IS NOT NULL AND last_activity > NOW() - $1::interval
		  ORDER BY username`,
		fmt.Sprintf("%d seconds", int(window.Seconds())),
	)
	if err != nil {
		return nil, errors.Wrap(err, "repo.OnlineUsers")
	}
	defer rows.Close()
	return r.collectUsers(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *Repository) scanUser(row rowScanner) (model.User, error) {
	var u model.User
	var avatar, bio sql.NullString
	var lastActivity sql.NullTime
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Name, &avatar, &bio, &lastActivity); err != nil {
		return model.User{}, err
	}
	if avatar.Valid {
		u.Avatar = &avatar.String
	}
	if bio.Valid {
		u.Bio = &bio.String
	}
	if lastActivity.Valid {
		t := lastActivity.Time
		u.LastActivity = &t
	}
	return u, nil
}

func (r *Repository) collectUsers(rows *sql.Rows) ([]model.User, error) {
	var users []model.User
	for rows.Next() {
		u, err := r.scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func prefixed(columns, alias string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}
