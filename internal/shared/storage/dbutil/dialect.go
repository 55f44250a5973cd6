// Package dbutil 提供数据库方言抽象和工具函数
//
// 通过 Dialect 接口屏蔽不同数据库（PostgreSQL、SQLite）的 SQL 差异，
// 使 repository 层可以编写与数据库无关的存储逻辑。
package dbutil

import (
	"database/sql"
	"regexp"
	"strings"
)

// DriverType 数据库驱动类型
type DriverType string

const (
	DriverPostgres DriverType = "postgres"
	DriverSQLite   DriverType = "sqlite"
)

// Dialect 数据库方言接口
//
// 审计查询以 PostgreSQL 语法编写（$N 占位符、::type 转换），
// SQLite 通过 Rebind 转换。
type Dialect interface {
	DriverType() DriverType

	// Rebind 将 $1, $2, ... 转换为目标数据库的占位符格式
	Rebind(query string) string

	// AutoMigrate 创建 command_audit 表及索引
	AutoMigrate(db *sql.DB) error
}

// pgPlaceholderRe 匹配 PostgreSQL 风格占位符 $1, $2, ...
var pgPlaceholderRe = regexp.MustCompile(`\$(\d+)`)

// pgCastRe 匹配 PostgreSQL 类型转换 ::type
var pgCastRe = regexp.MustCompile(`::(\w+)`)

// RebindToPositional 保持 $N 占位符不变（PostgreSQL 专用）
func RebindToPositional(query string) string {
	return query
}

// RebindToQuestion 将 $N 占位符转换为 ? （SQLite 专用）
//
// 仅适用于占位符按编号顺序出现、且每个编号只出现一次的查询。
func RebindToQuestion(query string) string {
	return pgPlaceholderRe.ReplaceAllString(query, "?")
}

// StripPgCasts 去除 PostgreSQL 类型转换 (::varchar, ::text 等)
func StripPgCasts(query string) string {
	return pgCastRe.ReplaceAllString(query, "")
}

// BuildDynamicQuery 拼接 AND 条件并按方言转换占位符
func BuildDynamicQuery(d Dialect, baseQuery string, conditions []string, args []any) (string, []any) {
	if len(conditions) > 0 {
		baseQuery += " WHERE " + strings.Join(conditions, " AND ")
	}
	return d.Rebind(baseQuery), args
}
