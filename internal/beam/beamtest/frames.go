package beamtest

import (
	"yqhp/token-manager/internal/beam"
	"yqhp/token-manager/internal/utils"
)

// ResultEvent Beam 结果流使用的事件名
const ResultEvent = "new_result"

// Message 生成一条结果事件，body 按 JSON 序列化
func Message(from beam.AppID, body any) Frame {
	data, err := utils.MarshalString(map[string]any{
		"from":     from,
		"to":       []string{"token-manager.proxy.broker"},
		"status":   "succeeded",
		"task":     "00000000-0000-0000-0000-000000000000",
		"body":     body,
		"metadata": nil,
	})
	if err != nil {
		panic(err)
	}
	return Frame{Event: ResultEvent, Data: data}
}

// TokenOk 站点签发 token 的成功回复
func TokenOk(from beam.AppID, token string) Frame {
	return Message(from, map[string]any{"token": token})
}

// StatusOk 站点状态的成功回复
func StatusOk(from beam.AppID, status string) Frame {
	return Message(from, map[string]any{"status": status})
}

// TablesOk 站点表名列表的成功回复
func TablesOk(from beam.AppID, tables ...string) Frame {
	if tables == nil {
		tables = []string{}
	}
	return Message(from, map[string]any{"tables": tables})
}

// SiteErr 站点错误回复
func SiteErr(from beam.AppID, code int, msg string) Frame {
	return Message(from, map[string]any{"status_code": code, "error_message": msg})
}

// Raw 原样写出的数据帧
func Raw(data string) Frame {
	return Frame{Data: data}
}
