// Package repository 命令审计记录的存储操作
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"batchrpc/internal/shared/model"
	"batchrpc/internal/shared/storage"
	"batchrpc/internal/shared/storage/dbutil"
)

const auditColumns = `id, event, correlation_id, cmd, failed, data, created_at`

// RecordAudit 写入审计记录
func (s *Store) RecordAudit(ctx context.Context, rec *model.AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()

	query := s.rebind(`
		INSERT INTO command_audit (` + auditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`)
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, string(rec.Event), rec.CorrelationID, rec.Cmd, rec.Failed, jsonArg(rec.Data), rec.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return storage.ErrDuplicate
	}
	return err
}

// GetAudit 获取审计记录
func (s *Store) GetAudit(ctx context.Context, id string) (*model.AuditRecord, error) {
	query := s.rebind(`SELECT ` + auditColumns + ` FROM command_audit WHERE id = $1`)
	rec, err := scanAudit(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return rec, err
}

// ListAudit 列出审计记录
func (s *Store) ListAudit(ctx context.Context, filter model.AuditFilter) ([]*model.AuditRecord, error) {
	conditions, args := auditConditions(filter)
	limit := filter.Limit
	if limit <= 0 {
		limit = model.DefaultAuditLimit
	}

	query, args := dbutil.BuildDynamicQuery(s.dialect, `SELECT `+auditColumns+` FROM command_audit`, conditions, args)
	args = append(args, limit)
	query += s.rebind(fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*model.AuditRecord
	for rows.Next() {
		rec, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountAudit 统计审计记录
func (s *Store) CountAudit(ctx context.Context, filter model.AuditFilter) (int64, error) {
	conditions, args := auditConditions(filter)
	query, args := dbutil.BuildDynamicQuery(s.dialect, `SELECT COUNT(1) FROM command_audit`, conditions, args)

	var cnt int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&cnt); err != nil {
		return 0, err
	}
	return cnt, nil
}

func auditConditions(f model.AuditFilter) ([]string, []interface{}) {
	var (
		conditions []string
		args       []interface{}
	)
	add := func(expr string, v interface{}) {
		args = append(args, v)
		conditions = append(conditions, fmt.Sprintf(expr, len(args)))
	}

	if f.CorrelationID != "" {
		add("correlation_id = $%d", f.CorrelationID)
	}
	if f.Cmd != "" {
		add("cmd = $%d", f.Cmd)
	}
	if f.Event != "" {
		add("event = $%d", string(f.Event))
	}
	if !f.Since.IsZero() {
		add("created_at >= $%d", f.Since.UTC())
	}
	return conditions, args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAudit(row scanner) (*model.AuditRecord, error) {
	var (
		rec   model.AuditRecord
		event string
		data  sql.NullString
	)
	if err := row.Scan(&rec.ID, &event, &rec.CorrelationID, &rec.Cmd, &rec.Failed, &data, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.Event = model.AuditEventType(event)
	if data.Valid && data.String != "" {
		rec.Data = json.RawMessage(data.String)
	}
	return &rec, nil
}

// jsonArg 空 JSON 写入 NULL
func jsonArg(data json.RawMessage) interface{} {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}

// isUniqueViolation 识别 SQLite / PostgreSQL 的唯一键冲突
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "SQLSTATE 23505")
}
