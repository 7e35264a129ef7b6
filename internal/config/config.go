package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 全局配置结构
type Config struct {
	App      AppConfig      `yaml:"app"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      LogConfig      `yaml:"log"`
	Beam     BeamConfig     `yaml:"beam"`
	Token    TokenConfig    `yaml:"token"`
	Cache    CacheConfig    `yaml:"cache"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env" env:"APP_ENV"` // dev, test, prod
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Address      string        `yaml:"address" env:"ADDR"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	EnableCORS   bool          `yaml:"enable_cors" env:"ENABLE_CORS"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string        `yaml:"driver" env:"TOKEN_MANAGER_DB_DRIVER"` // sqlite, mysql, postgres
	Path            string        `yaml:"path" env:"TOKEN_MANAGER_DB_PATH"`     // sqlite 文件路径
	Host            string        `yaml:"host" env:"TOKEN_MANAGER_DB_HOST"`
	Port            int           `yaml:"port" env:"TOKEN_MANAGER_DB_PORT"`
	Username        string        `yaml:"username" env:"TOKEN_MANAGER_DB_USER"`
	Password        string        `yaml:"password" env:"TOKEN_MANAGER_DB_PASSWORD"`
	Database        string        `yaml:"database" env:"TOKEN_MANAGER_DB_NAME"`
	Charset         string        `yaml:"charset"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" env:"REDIS_ENABLED"`
	Host     string `yaml:"host" env:"REDIS_HOST"`
	Port     int    `yaml:"port" env:"REDIS_PORT"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL"`   // debug, info, warn, error
	Format     string `yaml:"format" env:"LOG_FORMAT"` // json, console
	Output     string `yaml:"output"`                  // stdout, file, both
	FilePath   string `yaml:"file_path"`
	MaxSize    int    `yaml:"max_size"` // MB
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // days
}

// BeamConfig Beam 代理配置
type BeamConfig struct {
	URL            string        `yaml:"url" env:"BEAM_URL"`
	Secret         string        `yaml:"secret" env:"BEAM_SECRET"`
	AppID          string        `yaml:"app_id" env:"BEAM_ID"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"BEAM_REQUEST_TIMEOUT"`
	// StreamTimeout 结果流的客户端截止时间，0 表示只依赖 Beam 的 TTL
	StreamTimeout time.Duration `yaml:"stream_timeout" env:"BEAM_STREAM_TIMEOUT"`
}

// TokenConfig token 加密配置
type TokenConfig struct {
	EncryptKey string `yaml:"encrypt_key" env:"TOKEN_ENCRYPT_KEY"`
}

// CacheConfig 表发现缓存配置
type CacheConfig struct {
	TablesTTL time.Duration `yaml:"tables_ttl" env:"CACHE_TABLES_TTL"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:    "token-manager",
			Version: "1.0.0",
			Env:     "dev",
		},
		Server: ServerConfig{
			Address:      "0.0.0.0:3030",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 90 * time.Second,
			EnableCORS:   true,
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			Path:            "tokens.db",
			Charset:         "utf8mb4",
			MaxIdleConns:    5,
			MaxOpenConns:    20,
			ConnMaxLifetime: time.Hour,
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stdout",
			MaxSize:    100,
			MaxBackups: 7,
			MaxAge:     30,
		},
		Beam: BeamConfig{
			RequestTimeout: 10 * time.Second,
			StreamTimeout:  70 * time.Second,
		},
		Cache: CacheConfig{
			TablesTTL: 0,
		},
	}
}

// Loader 按优先级加载配置: 默认值 < YAML 文件 < 环境变量 < 命令行参数
type Loader struct {
	configPath string
	cmdArgs    map[string]string
}

// NewLoader 创建配置加载器
func NewLoader() *Loader {
	return &Loader{cmdArgs: make(map[string]string)}
}

// WithConfigPath 设置 YAML 配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithCmdArgs 设置命令行覆盖项，key 为点分路径，如 server.address
func (l *Loader) WithCmdArgs(args map[string]string) *Loader {
	l.cmdArgs = args
	return l
}

// Load 加载配置
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("从文件加载配置失败: %w", err)
		}
	}

	if err := applyEnvToStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("应用环境变量覆盖失败: %w", err)
	}

	for key, value := range l.cmdArgs {
		if value == "" {
			continue
		}
		if err := setConfigValue(cfg, key, value); err != nil {
			return nil, fmt.Errorf("设置配置值 %s 失败: %w", key, err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("解析配置文件失败: %w", err)
	}
	return nil
}

func applyEnvToStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct {
			if err := applyEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}
		envValue, ok := os.LookupEnv(envTag)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("从环境变量 %s 设置字段 %s 失败: %w", envTag, fieldType.Name, err)
		}
	}
	return nil
}

// setConfigValue 按 yaml 标签的点分路径设置字段
func setConfigValue(cfg *Config, path, value string) error {
	parts := strings.Split(path, ".")
	v := reflect.ValueOf(cfg).Elem()

	for i, part := range parts {
		field, ok := fieldByYAMLName(v, part)
		if !ok {
			return fmt.Errorf("未知的配置路径: %s", path)
		}

		if i == len(parts)-1 {
			return setFieldValue(field, value)
		}
		if field.Kind() != reflect.Struct {
			return fmt.Errorf("期望 %s 是结构体，实际是 %s", part, field.Kind())
		}
		v = field
	}
	return nil
}

func fieldByYAMLName(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := strings.Split(t.Field(i).Tag.Get("yaml"), ",")[0]
		if tag == name || strings.EqualFold(t.Field(i).Name, name) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("无法设置字段")
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("无效的时间格式: %w", err)
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("无效的整数: %w", err)
		}
		field.SetInt(i)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("无效的布尔值: %w", err)
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("不支持的字段类型: %s", field.Kind())
	}
	return nil
}
