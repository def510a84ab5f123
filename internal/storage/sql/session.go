package sql

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Ayi-pei/yunjvcrm/internal/domain"
	"github.com/Ayi-pei/yunjvcrm/internal/storage"
)

// ========== Session Repository ==========

const sessionColumns = `id, customer_id, customer_name, agent_id, status, message_count,
       created_at, updated_at, last_message_at, closed_at`

// SaveSession 保存新会话
func (s *Store) SaveSession(session *domain.ChatSession) error {
	query := s.rebind(`
		INSERT INTO chat_sessions (id, customer_id, customer_name, agent_id, status, message_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := s.db.Exec(query,
		session.ID,
		session.CustomerID,
		session.CustomerName,
		session.AgentID,
		session.Status,
		session.MessageCount,
		session.CreatedAt,
		session.UpdatedAt,
	)
	return err
}

// GetSession 根据ID获取会话
func (s *Store) GetSession(id string) (*domain.ChatSession, error) {
	query := s.rebind(`SELECT ` + sessionColumns + ` FROM chat_sessions WHERE id = ?`)
	session, err := scanSessionRow(s.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// UpdateSession 更新会话
func (s *Store) UpdateSession(session *domain.ChatSession) error {
	query := s.rebind(`
		UPDATE chat_sessions
		SET agent_id = ?, status = ?, message_count = ?, last_message_at = ?, closed_at = ?, updated_at = ?
		WHERE id = ?
	`)
	result, err := s.db.Exec(query,
		session.AgentID,
		session.Status,
		session.MessageCount,
		session.LastMessageAt,
		session.ClosedAt,
		time.Now(),
		session.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(result, storage.ErrSessionNotFound)
}

// ListSessions 按状态列出会话，status 为 nil 时返回全部
func (s *Store) ListSessions(status *domain.SessionStatus) ([]domain.ChatSession, error) {
	where := ""
	args := []interface{}{}
	if status != nil {
		where = "WHERE status = ?"
		args = append(args, *status)
	}

	query := s.rebind(`SELECT ` + sessionColumns + ` FROM chat_sessions ` + where + ` ORDER BY created_at DESC`)
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSessions(rows)
}

// ListSessionsByAgent 列出坐席的会话
func (s *Store) ListSessionsByAgent(agentID string) ([]domain.ChatSession, error) {
	query := s.rebind(`SELECT ` + sessionColumns + ` FROM chat_sessions WHERE agent_id = ? ORDER BY created_at DESC`)
	rows, err := s.db.Query(query, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSessions(rows)
}

// CountActiveSessionsByAgent 统计坐席未关闭的会话数
func (s *Store) CountActiveSessionsByAgent(agentID string) (int, error) {
	query := s.rebind(`
		SELECT COUNT(*) FROM chat_sessions
		WHERE agent_id = ? AND status != 'closed'
	`)
	var count int
	if err := s.db.QueryRow(query, agentID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// SaveChatMessage 保存消息并刷新会话统计（同一事务）
func (s *Store) SaveChatMessage(message *domain.ChatMessage) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	insert := s.rebind(`
		INSERT INTO chat_messages (id, session_id, sender_id, sender_type, message_type, content, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if _, err := tx.Exec(insert,
		message.ID,
		message.SessionID,
		message.SenderID,
		message.SenderType,
		message.Type,
		message.Content,
		message.Status,
		message.CreatedAt,
	); err != nil {
		return err
	}

	touch := s.rebind(`
		UPDATE chat_sessions
		SET message_count = message_count + 1, last_message_at = ?, updated_at = ?
		WHERE id = ?
	`)
	result, err := tx.Exec(touch, message.CreatedAt, message.CreatedAt, message.SessionID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrSessionNotFound
	}

	return tx.Commit()
}

// ListChatMessages 按时间正序拉取会话消息
func (s *Store) ListChatMessages(sessionID string, page, limit int) ([]domain.ChatMessage, int, error) {
	countQuery := s.rebind(`SELECT COUNT(*) FROM chat_messages WHERE session_id = ?`)
	var total int
	if err := s.db.QueryRow(countQuery, sessionID).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, limit = normalizePage(page, limit)
	offset := (page - 1) * limit

	query := s.rebind(`
		SELECT id, session_id, sender_id, sender_type, message_type, content, status, created_at
		FROM chat_messages
		WHERE session_id = ?
		ORDER BY created_at ASC
		LIMIT ? OFFSET ?
	`)
	rows, err := s.db.Query(query, sessionID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var messages []domain.ChatMessage
	for rows.Next() {
		var msg domain.ChatMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.SessionID,
			&msg.SenderID,
			&msg.SenderType,
			&msg.Type,
			&msg.Content,
			&msg.Status,
			&msg.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		messages = append(messages, msg)
	}

	return messages, total, rows.Err()
}

// SaveShareLink 保存短链接
func (s *Store) SaveShareLink(link *domain.ShareLink) error {
	query := s.rebind(`INSERT INTO share_links (id, agent_id, created_at) VALUES (?, ?, ?)`)
	_, err := s.db.Exec(query, link.ID, link.AgentID, link.CreatedAt)
	if isDuplicateError(err) {
		return fmt.Errorf("share link id taken: %w", err)
	}
	return err
}

// GetShareLink 根据短码获取链接
func (s *Store) GetShareLink(id string) (*domain.ShareLink, error) {
	query := s.rebind(`SELECT id, agent_id, created_at FROM share_links WHERE id = ?`)
	var link domain.ShareLink
	err := s.db.QueryRow(query, id).Scan(&link.ID, &link.AgentID, &link.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrShareLinkNotFound
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func scanSessionRow(row rowScanner) (*domain.ChatSession, error) {
	var session domain.ChatSession
	var agentID sql.NullString
	var lastMessageAt, closedAt sql.NullTime

	err := row.Scan(
		&session.ID,
		&session.CustomerID,
		&session.CustomerName,
		&agentID,
		&session.Status,
		&session.MessageCount,
		&session.CreatedAt,
		&session.UpdatedAt,
		&lastMessageAt,
		&closedAt,
	)
	if err != nil {
		return nil, err
	}

	if agentID.Valid {
		session.AgentID = &agentID.String
	}
	if lastMessageAt.Valid {
		session.LastMessageAt = &lastMessageAt.Time
	}
	if closedAt.Valid {
		session.ClosedAt = &closedAt.Time
	}
	return &session, nil
}

func collectSessions(rows *sql.Rows) ([]domain.ChatSession, error) {
	var sessions []domain.ChatSession
	for rows.Next() {
		session, err := scanSessionRow(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, rows.Err()
}
