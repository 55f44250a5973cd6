package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load 加载配置
//  1. 加载 .env.{env}（敏感信息）
//  2. 加载 YAML：默认值 → common.yaml → {env}.yaml
//  3. 环境变量覆盖
//  4. 填充默认值
func Load() *Config {
	env := parseEnv(getEnv("APP_ENV", "dev"))
	loadEnvFiles(env)

	yamlCfg := loadYAMLConfig(env)
	applyEnvOverrides(yamlCfg)

	cfg := &Config{
		Env:          env,
		Server:       yamlCfg.Server,
		Limits:       yamlCfg.Limits,
		ResultFields: yamlCfg.ResultFields,
		Upload:       yamlCfg.Upload,
		RedisEnabled: yamlCfg.Redis.Enabled,
		RedisURL:     buildRedisURL(yamlCfg.Redis),
		RedisStream:  yamlCfg.Redis.Stream,
		MinIO:        yamlCfg.MinIO,
		AuditDriver:  detectAuditDriver(yamlCfg.Audit.Driver, getEnv("AUDIT_DSN", "")),
		AuditDBName:  yamlCfg.Audit.Name,
		Log:          yamlCfg.Log,
	}
	cfg.AuditDSN = getEnv("AUDIT_DSN", buildAuditDSN(cfg.AuditDriver, yamlCfg.Audit))
	cfg.fillDefaults()

	return cfg
}

// defaultYAMLConfig 硬编码默认值
func defaultYAMLConfig() *YAMLConfig {
	return &YAMLConfig{
		Server: ServerConfig{Port: "8080"},
		ResultFields: ResultFieldsConfig{
			ErrCode:   "_errcode",
			ErrMsg:    "_errmsg",
			ErrLoc:    "_errloc",
			Args:      "_args",
			Exception: "_e",
			ID:        "_id",
			ExecTime:  "_exectime",
		},
		Redis: RedisConfig{Host: "localhost", Port: 6379, DB: 0, Stream: "batchrpc:events"},
		MinIO: MinIOConfig{Bucket: "batchrpc"},
		Audit: AuditConfig{Driver: "none", Port: 5432, User: "batchrpc", Name: "batchrpc", SSLMode: "disable"},
		Log:   LogConfig{Level: "info", Format: "text"},
	}
}

// loadYAMLConfig 加载 YAML 配置文件
// 加载顺序：默认值 → common.yaml → {env}.yaml
func loadYAMLConfig(env Environment) *YAMLConfig {
	cfg := defaultYAMLConfig()

	for _, base := range effectiveConfigPaths() {
		path := filepath.Join(base, "common.yaml")
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, cfg)
			break
		}
	}

	filename := fmt.Sprintf("%s.yaml", env)
	for _, base := range effectiveConfigPaths() {
		path := filepath.Join(base, filename)
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, cfg)
			cfg.loadedFrom = path
			break
		}
	}

	return cfg
}

// applyEnvOverrides 环境变量覆盖 YAML 配置
func applyEnvOverrides(cfg *YAMLConfig) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v, ok := os.LookupEnv("GET_BASE"); ok {
		cfg.Server.GetBase = v
	}
	if v := os.Getenv("DEBUG"); v != "" {
		cfg.Server.Debug = parseBool(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("MAX_FILE_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Limits.MaxFileSize = n
		}
	}
	if v := os.Getenv("MAX_FILE_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limits.MaxFileCount = n
		}
	}
	if v := os.Getenv("UPLOAD_TEMP_DIR"); v != "" {
		cfg.Upload.TempDir = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
		cfg.Redis.Enabled = true
	}
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	if v := os.Getenv("AUDIT_DRIVER"); v != "" {
		cfg.Audit.Driver = v
	}
	cfg.Audit.Password = os.Getenv("AUDIT_PASSWORD")
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	cfg.MinIO.AccessKey = os.Getenv("MINIO_ROOT_USER")
	cfg.MinIO.SecretKey = os.Getenv("MINIO_ROOT_PASSWORD")
}

// fillDefaults 填充空值的默认配置
func (c *Config) fillDefaults() {
	d := defaultYAMLConfig()
	if c.Server.Port == "" {
		c.Server.Port = d.Server.Port
	}
	f := &c.ResultFields
	if f.ErrCode == "" {
		f.ErrCode = d.ResultFields.ErrCode
	}
	if f.ErrMsg == "" {
		f.ErrMsg = d.ResultFields.ErrMsg
	}
	if f.ErrLoc == "" {
		f.ErrLoc = d.ResultFields.ErrLoc
	}
	if f.Args == "" {
		f.Args = d.ResultFields.Args
	}
	if f.Exception == "" {
		f.Exception = d.ResultFields.Exception
	}
	if f.ID == "" {
		f.ID = d.ResultFields.ID
	}
	if f.ExecTime == "" {
		f.ExecTime = d.ResultFields.ExecTime
	}
	if c.RedisStream == "" {
		c.RedisStream = d.Redis.Stream
	}
	if c.MinIO.Bucket == "" {
		c.MinIO.Bucket = d.MinIO.Bucket
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
}

// Validate 校验配置
//
// 保留字段名必须互不相同，否则框架写入的元数据会相互覆盖。
func (c *Config) Validate() error {
	f := c.ResultFields
	names := map[string]string{}
	for key, name := range map[string]string{
		"errcode":   f.ErrCode,
		"errmsg":    f.ErrMsg,
		"errloc":    f.ErrLoc,
		"args":      f.Args,
		"exception": f.Exception,
		"id":        f.ID,
		"exectime":  f.ExecTime,
	} {
		if prev, ok := names[name]; ok {
			return fmt.Errorf("result_fields.%s and result_fields.%s share the name %q", prev, key, name)
		}
		names[name] = key
	}
	if c.Limits.MaxFieldCount < 0 || c.Limits.MaxFileCount < 0 || c.Limits.MaxFieldSize < 0 || c.Limits.MaxFileSize < 0 {
		return fmt.Errorf("limits must not be negative")
	}
	switch c.AuditDriver {
	case "none", "sqlite", "postgres", "mongodb":
	default:
		return fmt.Errorf("unknown audit driver %q", c.AuditDriver)
	}
	return nil
}

// GetEnabled 是否启用 GET 调用
func (c *Config) GetEnabled() bool {
	return c.Server.GetBase != ""
}

// MinIOEnabled 是否配置了 MinIO
func (c *Config) MinIOEnabled() bool {
	return c.MinIO.Endpoint != ""
}

func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
