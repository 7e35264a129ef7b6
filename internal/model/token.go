package model

import "time"

// 项目状态
const (
	ProjectStatusCreated  = "CREATED"
	ProjectStatusWithData = "WITH_DATA"
	ProjectStatusNotFound = "NOT_FOUND"
)

// token 状态
const (
	TokenStatusCreated  = "CREATED"
	TokenStatusUpdated  = "UPDATED"
	TokenStatusExpired  = "EXPIRED"
	TokenStatusNotFound = "NOT_FOUND"
)

// CreatedAtLayout token_created_at 的存储格式 (dd-mm-YYYY HH:MM:SS)
const CreatedAtLayout = "02-01-2006 15:04:05"

// Token 站点 token 记录，token 字段为加密后的 base64
type Token struct {
	ID             uint   `gorm:"primarykey" json:"id"`
	TokenName      string `gorm:"size:64;not null;uniqueIndex:idx_token_name_bk" json:"token_name"`
	Token          string `gorm:"type:text;not null" json:"-"`
	ProjectID      string `gorm:"size:255;not null;index" json:"project_id"`
	ProjectStatus  string `gorm:"size:32;not null" json:"project_status"`
	Bk             string `gorm:"size:255;not null;uniqueIndex:idx_token_name_bk" json:"bk"`
	TokenStatus    string `gorm:"size:32;not null" json:"token_status"`
	UserID         string `gorm:"size:255;not null;index" json:"user_id"`
	TokenCreatedAt string `gorm:"size:32;not null" json:"token_created_at"`
}

// TableName 表名
func (Token) TableName() string {
	return "tokens"
}

// FormatCreatedAt 按存储格式格式化时间
func FormatCreatedAt(t time.Time) string {
	return t.Format(CreatedAtLayout)
}
