// Package postgres PostgreSQL 数据库驱动
//
// 提供 PostgreSQL 连接管理、方言实现和自动 Schema 迁移。
package postgres

import (
	"database/sql"
	"fmt"
	"time"

	"batchrpc/internal/shared/storage/dbutil"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Dialect PostgreSQL 方言实现
type Dialect struct{}

var _ dbutil.Dialect = (*Dialect)(nil)

func (d *Dialect) DriverType() dbutil.DriverType {
	return dbutil.DriverPostgres
}

func (d *Dialect) Rebind(query string) string {
	return dbutil.RebindToPositional(query)
}

func (d *Dialect) AutoMigrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// Open 创建 PostgreSQL 数据库连接
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return db, nil
}

// NewDialect 创建 PostgreSQL 方言
func NewDialect() *Dialect {
	return &Dialect{}
}

const schema = `
CREATE TABLE IF NOT EXISTS command_audit (
    id VARCHAR(64) PRIMARY KEY,
    event VARCHAR(32) NOT NULL,
    correlation_id VARCHAR(64) NOT NULL,
    cmd VARCHAR(200) NOT NULL,
    failed BOOLEAN DEFAULT FALSE,
    data JSONB,
    created_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_command_audit_correlation ON command_audit (correlation_id);
CREATE INDEX IF NOT EXISTS idx_command_audit_cmd ON command_audit (cmd);
CREATE INDEX IF NOT EXISTS idx_command_audit_created ON command_audit (created_at DESC);
`
