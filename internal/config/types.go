// Package config 统一配置管理
//
// 配置加载优先级（高→低）：
//  1. 环境变量（通过 .env 文件或 shell/systemd 注入）
//  2. YAML 配置文件（{env}.yaml，如 dev.yaml、test.yaml、prod.yaml）
//  3. common.yaml 公共配置
//  4. 代码硬编码默认值
//
// 凭据（Redis 密码、MinIO 密钥、审计数据库密码）只从环境变量读取，YAML 中不存储。
//
// 配置路径确定策略：
//  1. --config 命令行参数（显式路径）
//  2. CONFIG_DIR 环境变量
//  3. 按 APP_ENV 选择默认路径：
//     - prod → /etc/batchrpc/
//     - dev/test → ./configs/
package config

// Environment 环境类型
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
	EnvDevelopment Environment = "dev"
)

// YAMLConfig YAML 配置文件结构
type YAMLConfig struct {
	Server       ServerConfig       `yaml:"server"`
	Limits       LimitsConfig       `yaml:"limits"`
	ResultFields ResultFieldsConfig `yaml:"result_fields"`
	Upload       UploadConfig       `yaml:"upload"`
	Redis        RedisConfig        `yaml:"redis"`
	MinIO        MinIOConfig        `yaml:"minio"`
	Audit        AuditConfig        `yaml:"audit"`
	Log          LogConfig          `yaml:"log"`

	loadedFrom string
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Port    string `yaml:"port"`
	GetBase string `yaml:"get_base"` // 非空时启用 GET 调用，值为 URL 前缀，如 "/api/"
	Debug   bool   `yaml:"debug"`    // 调试模式：失败结果中附带原始错误
}

// LimitsConfig 上传限制，0 表示不限制
type LimitsConfig struct {
	MaxFieldCount int   `yaml:"max_field_count"`
	MaxFieldSize  int64 `yaml:"max_field_size"`
	MaxFileCount  int   `yaml:"max_file_count"`
	MaxFileSize   int64 `yaml:"max_file_size"`
}

// ResultFieldsConfig 结果中保留字段的名称
type ResultFieldsConfig struct {
	ErrCode   string `yaml:"errcode"`
	ErrMsg    string `yaml:"errmsg"`
	ErrLoc    string `yaml:"errloc"`
	Args      string `yaml:"args"`
	Exception string `yaml:"exception"`
	ID        string `yaml:"id"`
	ExecTime  string `yaml:"exectime"`
}

// UploadConfig 上传文件暂存配置
type UploadConfig struct {
	TempDir string `yaml:"temp_dir"` // 空值使用系统临时目录
}

// RedisConfig Redis 配置（kv.* 命令与事件流日志）
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       int    `yaml:"db"`
	Password string `yaml:"-"`   // 只从 REDIS_PASSWORD 环境变量读取
	URL      string `yaml:"url"` // 直接指定 URL，优先于 host/port/db
	Stream   string `yaml:"stream"`
}

// MinIOConfig MinIO 对象存储配置（blob.* 命令）
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"` // 例如 localhost:9000，空值表示不启用
	AccessKey string `yaml:"-"`        // 只从 MINIO_ROOT_USER 环境变量读取
	SecretKey string `yaml:"-"`        // 只从 MINIO_ROOT_PASSWORD 环境变量读取
	UseSSL    bool   `yaml:"use_ssl"`
	Bucket    string `yaml:"bucket"`
}

// AuditConfig 命令审计日志存储
type AuditConfig struct {
	Driver   string `yaml:"driver"` // "none", "sqlite", "postgres" 或 "mongodb"
	Path     string `yaml:"path"`   // SQLite 文件路径
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"-"` // 只从 AUDIT_PASSWORD 环境变量读取
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	URI      string `yaml:"uri"` // MongoDB 连接 URI
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config 应用配置（最终使用的配置）
type Config struct {
	Env          Environment
	Server       ServerConfig
	Limits       LimitsConfig
	ResultFields ResultFieldsConfig
	Upload       UploadConfig
	RedisEnabled bool
	RedisURL     string
	RedisStream  string
	MinIO        MinIOConfig
	AuditDriver  string
	AuditDSN     string
	AuditDBName  string
	Log          LogConfig
}
