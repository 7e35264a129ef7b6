package beam

import (
	"fmt"
	"net/http"
)

// TokenPayload CREATE/UPDATE 成功时站点签发的 token
type TokenPayload struct {
	Token string `json:"token"`
}

// StatusPayload STATUS/DELETE 成功时站点返回的状态
type StatusPayload struct {
	Status string `json:"status"`
}

// TablesPayload 表发现成功时站点返回的表名列表
type TablesPayload struct {
	Tables []string `json:"tables"`
}

// Payload 站点成功回复的负载类型
type Payload interface {
	TokenPayload | StatusPayload | TablesPayload
}

// SiteError 站点返回的错误
type SiteError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"error_message"`
}

func (e *SiteError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("site error: %s", e.Message)
	}
	return fmt.Sprintf("site error (%d): %s", e.StatusCode, e.Message)
}

// HTTPStatus 可直接作为 HTTP 状态码返回的值，非法时为 500
func (e *SiteError) HTTPStatus() int {
	if e.StatusCode >= 100 && e.StatusCode <= 599 {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

// Result 站点结果，Ok 与 Err 恰好一个非空
type Result[T Payload] struct {
	Ok  *T
	Err *SiteError
}

// IsOk 是否为成功结果
func (r Result[T]) IsOk() bool {
	return r.Ok != nil
}

// SiteReply 一个站点的回复
type SiteReply[T Payload] struct {
	From   AppID
	Result Result[T]
}
