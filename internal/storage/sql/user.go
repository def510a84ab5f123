package sql

import (
	"database/sql"
	"errors"
	"time"

	"github.com/Ayi-pei/yunjvcrm/internal/domain"
	"github.com/Ayi-pei/yunjvcrm/internal/storage"
)

// ========== User Repository ==========

const userColumns = `id, name, email, role_name, status, is_online, max_sessions,
       created_at, updated_at, last_active_at`

// CreateUser 创建新用户
func (s *Store) CreateUser(user *domain.User) error {
	query := s.rebind(`
		INSERT INTO users (id, name, email, role_name, status, is_online, max_sessions, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := s.db.Exec(query,
		user.ID,
		user.Name,
		user.Email,
		user.RoleName,
		user.Status,
		user.IsOnline,
		user.MaxSessions,
		user.CreatedAt,
		user.UpdatedAt,
	)
	return err
}

// GetUserByID 根据ID获取用户
func (s *Store) GetUserByID(id string) (*domain.User, error) {
	query := s.rebind(`SELECT ` + userColumns + ` FROM users WHERE id = ?`)
	user, err := scanUserRow(s.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateUser 更新用户信息
func (s *Store) UpdateUser(user *domain.User) error {
	query := s.rebind(`
		UPDATE users
		SET name = ?, email = ?, role_name = ?, status = ?, is_online = ?, max_sessions = ?, updated_at = ?
		WHERE id = ?
	`)
	result, err := s.db.Exec(query,
		user.Name,
		user.Email,
		user.RoleName,
		user.Status,
		user.IsOnline,
		user.MaxSessions,
		time.Now(),
		user.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(result, storage.ErrUserNotFound)
}

// ListUsers 列出所有用户，按创建时间倒序
func (s *Store) ListUsers() ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}

	return users, rows.Err()
}

// SetUserOnline 更新在线状态，上线时顺带流转坐席状态
func (s *Store) SetUserOnline(id string, online bool, now time.Time) error {
	status := domain.AgentOffline
	if online {
		status = domain.AgentOnline
	}

	query := s.rebind(`
		UPDATE users
		SET is_online = ?, status = ?, last_active_at = ?, updated_at = ?
		WHERE id = ?
	`)
	result, err := s.db.Exec(query, online, status, now, now, id)
	if err != nil {
		return err
	}
	return requireRow(result, storage.ErrUserNotFound)
}

// UpdateAgentStatus 更新坐席状态
func (s *Store) UpdateAgentStatus(id string, status domain.AgentStatus) error {
	now := time.Now()
	query := s.rebind(`
		UPDATE users
		SET status = ?, is_online = ?, last_active_at = ?, updated_at = ?
		WHERE id = ?
	`)
	result, err := s.db.Exec(query, status, status != domain.AgentOffline, now, now, id)
	if err != nil {
		return err
	}
	return requireRow(result, storage.ErrUserNotFound)
}

func scanUserRow(row rowScanner) (*domain.User, error) {
	var user domain.User
	var lastActiveAt sql.NullTime

	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.RoleName,
		&user.Status,
		&user.IsOnline,
		&user.MaxSessions,
		&user.CreatedAt,
		&user.UpdatedAt,
		&lastActiveAt,
	)
	if err != nil {
		return nil, err
	}

	if lastActiveAt.Valid {
		user.LastActiveAt = &lastActiveAt.Time
	}
	return &user, nil
}
