package sql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/Ayi-pei/yunjvcrm/internal/domain"
	"github.com/Ayi-pei/yunjvcrm/internal/storage"
)

// ========== Key Repository ==========

const keyColumns = `id, key_value, key_type, status, user_id, created_by, notes,
       usage_count, max_usage, created_at, updated_at, expires_at, last_used_at`

// SaveKey 保存新密钥，key_value 冲突时返回 ErrKeyValueExists
func (s *Store) SaveKey(ctx context.Context, key *domain.AccessKey) error {
	query := s.rebind(`
		INSERT INTO access_keys (id, key_value, key_type, status, user_id, created_by, notes,
		                         usage_count, max_usage, created_at, updated_at, expires_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := s.db.ExecContext(ctx, query,
		key.ID,
		key.Value,
		key.Kind,
		key.Status,
		key.OwnerID,
		key.CreatedBy,
		key.Notes,
		key.UsageCount,
		key.MaxUsage,
		key.IssuedAt,
		key.UpdatedAt,
		key.ExpiresAt,
		key.LastUsedAt,
	)
	if isDuplicateError(err) {
		return storage.ErrKeyValueExists
	}
	return wrapUnavailable(err)
}

// GetKey 根据ID获取密钥
func (s *Store) GetKey(ctx context.Context, id string) (*domain.AccessKey, error) {
	query := s.rebind(`SELECT ` + keyColumns + ` FROM access_keys WHERE id = ?`)
	return s.scanKey(s.db.QueryRowContext(ctx, query, id))
}

// GetKeyByValue 根据密钥值获取密钥
func (s *Store) GetKeyByValue(ctx context.Context, value string) (*domain.AccessKey, error) {
	query := s.rebind(`SELECT ` + keyColumns + ` FROM access_keys WHERE key_value = ?`)
	return s.scanKey(s.db.QueryRowContext(ctx, query, value))
}

// KeyValueExists 判断密钥值是否已被占用
func (s *Store) KeyValueExists(ctx context.Context, value string) (bool, error) {
	query := s.rebind(`SELECT COUNT(*) FROM access_keys WHERE key_value = ?`)
	var count int
	if err := s.db.QueryRowContext(ctx, query, value).Scan(&count); err != nil {
		return false, wrapUnavailable(err)
	}
	return count > 0, nil
}

// ListKeys 列出密钥（支持分页和过滤），按签发时间倒序
func (s *Store) ListKeys(ctx context.Context, filter domain.KeyListFilter) ([]domain.AccessKey, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}

	if filter.Status != nil {
		where += " AND status = ?"
		args = append(args, *filter.Status)
	}
	if filter.Kind != nil {
		where += " AND key_type = ?"
		args = append(args, *filter.Kind)
	}

	countQuery := s.rebind("SELECT COUNT(*) FROM access_keys " + where)
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, wrapUnavailable(err)
	}

	page, limit := normalizePage(filter.Page, filter.Limit)
	offset := (page - 1) * limit

	query := s.rebind(`SELECT ` + keyColumns + ` FROM access_keys ` + where + `
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, wrapUnavailable(err)
	}
	defer rows.Close()

	var keys []domain.AccessKey
	for rows.Next() {
		key, err := scanKeyRow(rows)
		if err != nil {
			return nil, 0, err
		}
		keys = append(keys, *key)
	}

	return keys, total, wrapUnavailable(rows.Err())
}

// UpdateKey 更新密钥
func (s *Store) UpdateKey(ctx context.Context, key *domain.AccessKey) error {
	query := s.rebind(`
		UPDATE access_keys
		SET status = ?, user_id = ?, notes = ?, max_usage = ?, expires_at = ?, updated_at = ?
		WHERE id = ?
	`)
	result, err := s.db.ExecContext(ctx, query,
		key.Status,
		key.OwnerID,
		key.Notes,
		key.MaxUsage,
		key.ExpiresAt,
		time.Now(),
		key.ID,
	)
	if err != nil {
		return wrapUnavailable(err)
	}
	return requireRow(result, storage.ErrKeyNotFound)
}

// UpdateKeyStatus 更新密钥状态
func (s *Store) UpdateKeyStatus(ctx context.Context, id string, status domain.KeyStatus) error {
	query := s.rebind(`UPDATE access_keys SET status = ?, updated_at = ? WHERE id = ?`)
	result, err := s.db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return wrapUnavailable(err)
	}
	return requireRow(result, storage.ErrKeyNotFound)
}

// DeleteKey 删除密钥
func (s *Store) DeleteKey(ctx context.Context, id string) error {
	query := s.rebind(`DELETE FROM access_keys WHERE id = ?`)
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return wrapUnavailable(err)
	}
	return requireRow(result, storage.ErrKeyNotFound)
}

// IncrementKeyUsage 条件递增使用次数
//
// 行级守卫：仅当仍为 active 且未达 max_usage 时命中。
// 并发登录抢占最后一个名额时，落败方拿到 ErrUsageConflict。
func (s *Store) IncrementKeyUsage(ctx context.Context, id string, now time.Time) error {
	query := s.rebind(`
		UPDATE access_keys
		SET usage_count = usage_count + 1, last_used_at = ?, updated_at = ?
		WHERE id = ? AND status = 'active'
		  AND (max_usage IS NULL OR usage_count < max_usage)
	`)
	result, err := s.db.ExecContext(ctx, query, now, now, id)
	if err != nil {
		return wrapUnavailable(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrUsageConflict
	}
	return nil
}

// MarkKeyExpired 惰性过期落库
//
// 仅当仍为 active 且已超过有效期时翻转状态；未命中静默返回，
// 可能已被并发请求先落库。
func (s *Store) MarkKeyExpired(ctx context.Context, id string, now time.Time) error {
	query := s.rebind(`
		UPDATE access_keys
		SET status = 'expired', updated_at = ?
		WHERE id = ? AND status = 'active' AND expires_at < ?
	`)
	_, err := s.db.ExecContext(ctx, query, now, id, now)
	return wrapUnavailable(err)
}

// ========== Usage Log Repository ==========

// AppendUsageLog 追加使用日志
func (s *Store) AppendUsageLog(ctx context.Context, log *domain.KeyUsageLog) error {
	query := s.rebind(`
		INSERT INTO key_usage_logs (id, key_id, user_id, action, ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := s.db.ExecContext(ctx, query,
		log.ID,
		log.KeyID,
		log.UserID,
		log.Action,
		log.IPAddress,
		log.UserAgent,
		log.CreatedAt,
	)
	return wrapUnavailable(err)
}

// ListUsageLogs 按时间倒序拉取密钥的使用日志
func (s *Store) ListUsageLogs(ctx context.Context, keyID string, page, limit int) ([]domain.KeyUsageLog, int, error) {
	countQuery := s.rebind(`SELECT COUNT(*) FROM key_usage_logs WHERE key_id = ?`)
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, keyID).Scan(&total); err != nil {
		return nil, 0, wrapUnavailable(err)
	}

	page, limit = normalizePage(page, limit)
	offset := (page - 1) * limit

	query := s.rebind(`
		SELECT id, key_id, user_id, action, ip_address, user_agent, created_at
		FROM key_usage_logs
		WHERE key_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`)
	rows, err := s.db.QueryContext(ctx, query, keyID, limit, offset)
	if err != nil {
		return nil, 0, wrapUnavailable(err)
	}
	defer rows.Close()

	var logs []domain.KeyUsageLog
	for rows.Next() {
		var entry domain.KeyUsageLog
		if err := rows.Scan(
			&entry.ID,
			&entry.KeyID,
			&entry.UserID,
			&entry.Action,
			&entry.IPAddress,
			&entry.UserAgent,
			&entry.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		logs = append(logs, entry)
	}

	return logs, total, wrapUnavailable(rows.Err())
}

// ========== helpers ==========

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanKey(row rowScanner) (*domain.AccessKey, error) {
	key, err := scanKeyRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrKeyNotFound
	}
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	return key, nil
}

func scanKeyRow(row rowScanner) (*domain.AccessKey, error) {
	var key domain.AccessKey
	var ownerID sql.NullString
	var maxUsage sql.NullInt64
	var lastUsedAt sql.NullTime

	err := row.Scan(
		&key.ID,
		&key.Value,
		&key.Kind,
		&key.Status,
		&ownerID,
		&key.CreatedBy,
		&key.Notes,
		&key.UsageCount,
		&maxUsage,
		&key.IssuedAt,
		&key.UpdatedAt,
		&key.ExpiresAt,
		&lastUsedAt,
	)
	if err != nil {
		return nil, err
	}

	if ownerID.Valid {
		key.OwnerID = &ownerID.String
	}
	if maxUsage.Valid {
		m := int(maxUsage.Int64)
		key.MaxUsage = &m
	}
	if lastUsedAt.Valid {
		key.LastUsedAt = &lastUsedAt.Time
	}
	return &key, nil
}

// isDuplicateError 识别唯一约束冲突（MySQL 1062 / PostgreSQL 23505）
func isDuplicateError(err error) bool {
	if err == nil {
		return false
	}

	var myErr *mysqldrv.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// wrapUnavailable 将超时与连接层故障归一为 storage.ErrUnavailable，
// 调用方据此区分“记录不存在”与“存储打不通”。
func wrapUnavailable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return err
}

// requireRow 未命中任何行时返回给定的未找到错误
func requireRow(result sql.Result, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

// normalizePage 页码与页大小的默认值和上限
func normalizePage(page, limit int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	return page, limit
}
