package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type User struct {
	UserID             string
	Username           string
	Points             int
	CurrentTier        int
	CorrectQuizAnswers int
	JoinedAt           time.Time
	LastActive         time.Time
	Verified           bool
	MutedUntil         *time.Time
	BanReason          string
	WarnCount          int
}

// IsMuted treats a muted_until in the past as not muted.
func (u User) IsMuted(now time.Time) bool {
	return u.MutedUntil != nil && u.MutedUntil.After(now)
}

type userRow struct {
	UserID             string         `db:"user_id"`
	Username           string         `db:"username"`
	Points             int            `db:"points"`
	CurrentTier        int            `db:"current_tier"`
	CorrectQuizAnswers int            `db:"correct_quiz_answers"`
	JoinedAt           int64          `db:"joined_at"`
	LastActive         int64          `db:"last_active"`
	Verified           bool           `db:"verified"`
	MutedUntil         sql.NullInt64  `db:"muted_until"`
	BanReason          sql.NullString `db:"ban_reason"`
	WarnCount          int            `db:"warn_count"`
}

func (r userRow) toUser() User {
	user := User{
		UserID:             r.UserID,
		Username:           r.Username,
		Points:             r.Points,
		CurrentTier:        r.CurrentTier,
		CorrectQuizAnswers: r.CorrectQuizAnswers,
		JoinedAt:           time.Unix(r.JoinedAt, 0),
		LastActive:         time.Unix(r.LastActive, 0),
		Verified:           r.Verified,
		BanReason:          r.BanReason.String,
		WarnCount:          r.WarnCount,
	}
	if r.MutedUntil.Valid {
		value := time.Unix(r.MutedUntil.Int64, 0)
		user.MutedUntil = &value
	}
	return user
}

const userColumns = `user_id, username, points, current_tier, correct_quiz_answers,
	joined_at, last_active, verified, muted_until, ban_reason, warn_count`

// EnsureUser creates the row if missing and never touches an existing one.
func (s *Store) EnsureUser(ctx context.Context, userID, username string) error {
	now := s.clock.Now().Unix()
	return s.Exec(ctx, `
		INSERT OR IGNORE INTO users (user_id, username, joined_at, last_active)
		VALUES (?, ?, ?, ?)
	`, userID, displayName(username), now, now)
}

// TouchUser upserts the row and refreshes username and last_active.
func (s *Store) TouchUser(ctx context.Context, userID, username string) error {
	now := s.clock.Now().Unix()
	return s.Exec(ctx, `
		INSERT INTO users (user_id, username, joined_at, last_active)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			username = excluded.username,
			last_active = excluded.last_active
	`, userID, displayName(username), now, now)
}

func (s *Store) GetUser(ctx context.Context, userID string) (User, error) {
	var row userRow
	if err := s.FetchOne(ctx, &row, `SELECT `+userColumns+` FROM users WHERE user_id = ?`, userID); err != nil {
		return User{}, err
	}
	return row.toUser(), nil
}

func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	var rows []userRow
	if err := s.Fetch(ctx, &rows, `SELECT `+userColumns+` FROM users ORDER BY joined_at`); err != nil {
		return nil, err
	}
	return toUsers(rows), nil
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := s.FetchOne(ctx, &count, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, err
	}
	return count, nil
}

// Leaderboard orders users by correct quiz answers, highest first.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]User, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []userRow
	err := s.Fetch(ctx, &rows, `
		SELECT `+userColumns+` FROM users
		WHERE correct_quiz_answers > 0
		ORDER BY correct_quiz_answers DESC, points DESC, user_id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	return toUsers(rows), nil
}

// AwardQuizPoints adds points and bumps correct_quiz_answers in one transaction.
func (s *Store) AwardQuizPoints(ctx context.Context, userID string, points int) (User, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return User{}, s.fail("begin", "award_quiz_points", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var res sql.Result
	res, err = tx.ExecContext(ctx, `
		UPDATE users SET
			points = points + ?,
			correct_quiz_answers = correct_quiz_answers + 1
		WHERE user_id = ?
	`, points, userID)
	if err != nil {
		return User{}, s.fail("exec", "award_quiz_points", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		err = ErrNotFound
		return User{}, err
	}

	var row userRow
	if err = tx.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE user_id = ?`, userID); err != nil {
		return User{}, s.fail("fetch_one", "award_quiz_points", err)
	}
	if err = tx.Commit(); err != nil {
		return User{}, s.fail("commit", "award_quiz_points", err)
	}
	return row.toUser(), nil
}

func (s *Store) AddPoints(ctx context.Context, userID string, points int) error {
	return s.Exec(ctx, `UPDATE users SET points = MAX(points + ?, 0) WHERE user_id = ?`, points, userID)
}

func (s *Store) IncrementCorrectAnswers(ctx context.Context, userID string) error {
	return s.Exec(ctx, `UPDATE users SET correct_quiz_answers = correct_quiz_answers + 1 WHERE user_id = ?`, userID)
}

// SetPoints is an admin override and leaves current_tier untouched.
func (s *Store) SetPoints(ctx context.Context, userID string, points int) error {
	if points < 0 {
		return errors.New("points must not be negative")
	}
	return s.Exec(ctx, `UPDATE users SET points = ? WHERE user_id = ?`, points, userID)
}

func (s *Store) SetTier(ctx context.Context, userID string, tierID int) error {
	return s.Exec(ctx, `UPDATE users SET current_tier = ? WHERE user_id = ?`, tierID, userID)
}

func (s *Store) IncrementWarnCount(ctx context.Context, userID string) (int, error) {
	if err := s.Exec(ctx, `UPDATE users SET warn_count = warn_count + 1 WHERE user_id = ?`, userID); err != nil {
		return 0, err
	}
	var count int
	if err := s.FetchOne(ctx, &count, `SELECT warn_count FROM users WHERE user_id = ?`, userID); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) SetMutedUntil(ctx context.Context, userID string, until time.Time) error {
	return s.Exec(ctx, `UPDATE users SET muted_until = ? WHERE user_id = ?`, until.Unix(), userID)
}

func (s *Store) ClearMutedUntil(ctx context.Context, userID string) error {
	return s.Exec(ctx, `UPDATE users SET muted_until = NULL WHERE user_id = ?`, userID)
}

// SetVerified upserts the user with verified set.
func (s *Store) SetVerified(ctx context.Context, userID, username string) error {
	now := s.clock.Now().Unix()
	return s.Exec(ctx, `
		INSERT INTO users (user_id, username, joined_at, last_active, verified)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(user_id) DO UPDATE SET verified = 1
	`, userID, displayName(username), now, now)
}

func (s *Store) SetBanReason(ctx context.Context, userID, reason string) error {
	var value any
	if reason != "" {
		value = reason
	}
	return s.Exec(ctx, `UPDATE users SET ban_reason = ? WHERE user_id = ?`, value, userID)
}

func toUsers(rows []userRow) []User {
	users := make([]User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toUser())
	}
	return users
}

func displayName(username string) string {
	if username == "" {
		return "n/a"
	}
	return username
}
