// Package sqlite SQLite 数据库驱动
//
// 提供 SQLite 连接管理、方言实现和自动 Schema 迁移。
// 适用于开发、测试和单机部署场景。
package sqlite

import (
	"database/sql"
	"fmt"

	"batchrpc/internal/shared/storage/dbutil"

	_ "modernc.org/sqlite"
)

// Dialect SQLite 方言实现
type Dialect struct{}

var _ dbutil.Dialect = (*Dialect)(nil)

func (d *Dialect) DriverType() dbutil.DriverType {
	return dbutil.DriverSQLite
}

func (d *Dialect) Rebind(query string) string {
	return dbutil.StripPgCasts(dbutil.RebindToQuestion(query))
}

func (d *Dialect) AutoMigrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// Open 创建 SQLite 数据库连接
// dsn 示例: "file:audit.db?cache=shared&mode=rwc" 或 ":memory:"
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// 内存库每个连接是独立的数据库
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", p, err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}

	return db, nil
}

// NewDialect 创建 SQLite 方言
func NewDialect() *Dialect {
	return &Dialect{}
}

// schema SQLite 建表语句（与 PostgreSQL 版本字段一致）
const schema = `
CREATE TABLE IF NOT EXISTS command_audit (
    id VARCHAR(64) PRIMARY KEY,
    event VARCHAR(32) NOT NULL,
    correlation_id VARCHAR(64) NOT NULL,
    cmd VARCHAR(200) NOT NULL,
    failed INTEGER DEFAULT 0,
    data TEXT,
    created_at DATETIME DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_command_audit_correlation ON command_audit (correlation_id);
CREATE INDEX IF NOT EXISTS idx_command_audit_cmd ON command_audit (cmd);
CREATE INDEX IF NOT EXISTS idx_command_audit_created ON command_audit (created_at);
`
