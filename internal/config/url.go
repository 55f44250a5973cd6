package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// buildAuditDSN 根据驱动类型构建审计存储连接字符串
func buildAuditDSN(driver string, db AuditConfig) string {
	switch driver {
	case "sqlite":
		dbPath := db.Path
		if dbPath == "" {
			dbPath = "batchrpc-audit.db"
		}
		return fmt.Sprintf("file:%s?cache=shared&mode=rwc", dbPath)
	case "mongodb":
		if db.URI != "" {
			return db.URI
		}
		if db.User != "" && db.Password != "" {
			return fmt.Sprintf("mongodb://%s:%s@%s:%d", db.User, db.Password, db.Host, db.Port)
		}
		return fmt.Sprintf("mongodb://%s:%d", db.Host, db.Port)
	case "postgres":
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			db.User, db.Password, db.Host, db.Port, db.Name, db.SSLMode)
	default:
		return ""
	}
}

// detectAuditDriver 检测审计存储驱动
// 优先级：YAML driver 字段 > AUDIT_DSN 前缀自动检测 > 默认 none
func detectAuditDriver(yamlDriver, dsn string) string {
	if d := strings.ToLower(yamlDriver); d == "sqlite" || d == "postgres" || d == "mongodb" {
		return d
	}
	switch {
	case strings.HasPrefix(dsn, "file:") || strings.HasPrefix(dsn, "sqlite:"):
		return "sqlite"
	case strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(dsn, "mongodb://") || strings.HasPrefix(dsn, "mongodb+srv://"):
		return "mongodb"
	}
	if d := strings.ToLower(yamlDriver); d != "" && d != "none" {
		return d
	}
	return "none"
}

// buildRedisURL 构建 Redis 连接字符串
// URL 字段非空时直接使用；否则从 host/port/db/password 构建
func buildRedisURL(redis RedisConfig) string {
	if redis.URL != "" {
		return redis.URL
	}
	if redis.Password != "" {
		return fmt.Sprintf("redis://:%s@%s:%d/%d", redis.Password, redis.Host, redis.Port, redis.DB)
	}
	return fmt.Sprintf("redis://%s:%d/%d", redis.Host, redis.Port, redis.DB)
}

// maskPassword 隐藏密码
func maskPassword(url string) string {
	re := regexp.MustCompile(`(://[^:]*:)([^@]+)(@)`)
	return re.ReplaceAllString(url, "${1}***${3}")
}

// parseEnv 解析环境字符串
func parseEnv(env string) Environment {
	switch strings.ToLower(env) {
	case "test":
		return EnvTest
	case "prod", "production":
		return EnvProduction
	default:
		return EnvDevelopment
	}
}

// getEnv 获取环境变量，支持默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// IsTest 是否为测试环境
func (c *Config) IsTest() bool {
	return c.Env == EnvTest
}

// String 返回配置摘要（隐藏密码）
func (c *Config) String() string {
	return fmt.Sprintf("Config{Env: %s, Port: %s, GetBase: %q, Debug: %t, Redis: %s, Audit: %s %s}",
		c.Env, c.Server.Port, c.Server.GetBase, c.Server.Debug,
		maskPassword(c.RedisURL), c.AuditDriver, maskPassword(c.AuditDSN))
}
