// Package repository SQLite 集成测试
//
// 使用 SQLite 内存数据库验证审计存储，无需外部数据库。
package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batchrpc/internal/shared/model"
	"batchrpc/internal/shared/storage"
	"batchrpc/internal/shared/storage/dbutil"
	sqlitedriver "batchrpc/internal/shared/storage/driver/sqlite"
)

// newTestStore 创建用于测试的 SQLite 内存数据库 Store
func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sqlitedriver.Open(":memory:")
	require.NoError(t, err)
	dialect := sqlitedriver.NewDialect()
	require.NoError(t, dialect.AutoMigrate(db))
	store := NewStore(db, dialect)
	t.Cleanup(func() { store.Close() })
	return store
}

// ============================================================================
// Dialect 基础测试
// ============================================================================

func TestDialectTypes(t *testing.T) {
	d := sqlitedriver.NewDialect()
	assert.Equal(t, dbutil.DriverSQLite, d.DriverType())
}

func TestRebind(t *testing.T) {
	d := sqlitedriver.NewDialect()
	assert.Equal(t, "SELECT * FROM t WHERE id = ? AND name = ?",
		d.Rebind("SELECT * FROM t WHERE id = $1 AND name = $2"))
	assert.Equal(t, "UPDATE t SET status = ? WHERE id = ?",
		d.Rebind("UPDATE t SET status = $1::varchar WHERE id = $2"))
}

// ============================================================================
// Audit 测试
// ============================================================================

func TestAuditRecordAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	rec := &model.AuditRecord{
		Event:         model.AuditPostCommand,
		CorrelationID: "corr-1",
		Cmd:           "echo",
		Failed:        true,
		Data:          json.RawMessage(`{"_errcode":"X"}`),
		CreatedAt:     now,
	}
	require.NoError(t, s.RecordAudit(ctx, rec))
	assert.NotEmpty(t, rec.ID)

	got, err := s.GetAudit(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AuditPostCommand, got.Event)
	assert.Equal(t, "corr-1", got.CorrelationID)
	assert.Equal(t, "echo", got.Cmd)
	assert.True(t, got.Failed)
	assert.JSONEq(t, `{"_errcode":"X"}`, string(got.Data))
	assert.True(t, now.Equal(got.CreatedAt), "want %v got %v", now, got.CreatedAt)

	_, err = s.GetAudit(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, s.RecordAudit(ctx, rec), storage.ErrDuplicate)
}

func TestAuditListAndCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, cmd := range []string{"echo", "ping", "echo", "kv.get"} {
		for _, ev := range []model.AuditEventType{model.AuditPreCommand, model.AuditPostCommand} {
			require.NoError(t, s.RecordAudit(ctx, &model.AuditRecord{
				Event:         ev,
				CorrelationID: "c" + string(rune('0'+i)),
				Cmd:           cmd,
				CreatedAt:     base.Add(time.Duration(i) * time.Minute),
			}))
		}
	}

	all, err := s.ListAudit(ctx, model.AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 8)
	assert.Equal(t, "kv.get", all[0].Cmd, "按创建时间倒序")

	echoes, err := s.ListAudit(ctx, model.AuditFilter{Cmd: "echo", Event: model.AuditPostCommand})
	require.NoError(t, err)
	require.Len(t, echoes, 2)
	assert.Equal(t, "c2", echoes[0].CorrelationID)
	assert.Nil(t, echoes[0].Data)

	limited, err := s.ListAudit(ctx, model.AuditFilter{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, limited, 3)

	n, err := s.CountAudit(ctx, model.AuditFilter{CorrelationID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.CountAudit(ctx, model.AuditFilter{Since: base.Add(2 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}
