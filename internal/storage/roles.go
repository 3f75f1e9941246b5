package storage

import (
	"context"
	"time"
)

type Role struct {
	RoleID string `db:"role_id"`
	Name   string `db:"name"`
}

type UserRole struct {
	UserID     string
	RoleID     string
	AssignedAt time.Time
}

func (s *Store) UpsertRole(ctx context.Context, role Role) error {
	return s.Exec(ctx, `
		INSERT INTO roles (role_id, name) VALUES (?, ?)
		ON CONFLICT(role_id) DO UPDATE SET name = excluded.name
	`, role.RoleID, role.Name)
}

func (s *Store) AddUserRole(ctx context.Context, userID, roleID string) error {
	return s.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id, assigned_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id, role_id) DO UPDATE SET assigned_at = excluded.assigned_at
	`, userID, roleID, s.clock.Now().Unix())
}

func (s *Store) RemoveUserRole(ctx context.Context, userID, roleID string) error {
	return s.Exec(ctx, `DELETE FROM user_roles WHERE user_id = ? AND role_id = ?`, userID, roleID)
}

func (s *Store) ListUserRoles(ctx context.Context, userID string) ([]UserRole, error) {
	var rows []struct {
		UserID     string `db:"user_id"`
		RoleID     string `db:"role_id"`
		AssignedAt int64  `db:"assigned_at"`
	}
	if err := s.Fetch(ctx, &rows, `SELECT user_id, role_id, assigned_at FROM user_roles WHERE user_id = ? ORDER BY assigned_at`, userID); err != nil {
		return nil, err
	}
	roles := make([]UserRole, 0, len(rows))
	for _, row := range rows {
		roles = append(roles, UserRole{UserID: row.UserID, RoleID: row.RoleID, AssignedAt: time.Unix(row.AssignedAt, 0)})
	}
	return roles, nil
}
