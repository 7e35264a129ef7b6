package config

import (
	"fmt"
	"strings"
)

// ValidationError 单个配置校验错误
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors 配置校验错误集合
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("配置校验失败:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate 校验启动必需的配置项
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, msg string) {
		errs = append(errs, ValidationError{Field: field, Message: msg})
	}

	if c.Server.Address == "" {
		add("server.address", "不能为空")
	}
	if c.Beam.URL == "" {
		add("beam.url", "不能为空 (BEAM_URL)")
	}
	if c.Beam.AppID == "" {
		add("beam.app_id", "不能为空 (BEAM_ID)")
	}
	if c.Beam.Secret == "" {
		add("beam.secret", "不能为空 (BEAM_SECRET)")
	}
	if c.Beam.StreamTimeout < 0 {
		add("beam.stream_timeout", "不能为负数")
	}
	if c.Token.EncryptKey == "" {
		add("token.encrypt_key", "不能为空 (TOKEN_ENCRYPT_KEY)")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			add("database.path", "sqlite 需要数据库文件路径 (TOKEN_MANAGER_DB_PATH)")
		}
	case "mysql", "postgres":
		if c.Database.Host == "" {
			add("database.host", "不能为空")
		}
	default:
		add("database.driver", fmt.Sprintf("不支持的数据库驱动: %s", c.Database.Driver))
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
