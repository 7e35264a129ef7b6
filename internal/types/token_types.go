package types

// TokenParams 创建、刷新 token 以及表发现、脚本生成的请求体
type TokenParams struct {
	UserID        string   `json:"user_id"`
	ProjectID     string   `json:"project_id"`
	BridgeheadIDs []string `json:"bridgehead_ids"`
}

// TokensQuery 删除 token、查询 token 状态的查询参数
type TokensQuery struct {
	UserID    string `query:"user_id"`
	ProjectID string `query:"project_id"`
	Bk        string `query:"bk"`
}

// ProjectQuery 删除项目、查询项目状态的查询参数
type ProjectQuery struct {
	ProjectID string `query:"project_id"`
	Bk        string `query:"bk"`
}

// JobResponse 已提交的后台任务
type JobResponse struct {
	TaskID    string `json:"task_id"`
	TokenName string `json:"token_name,omitempty"`
	Sites     int    `json:"sites"`
}

// ProjectStatusResponse 项目状态
type ProjectStatusResponse struct {
	ProjectID     string `json:"project_id"`
	Bk            string `json:"bk"`
	ProjectStatus string `json:"project_status"`
	Error         string `json:"error,omitempty"`
}

// TokenStatusResponse token 状态
type TokenStatusResponse struct {
	ProjectID      string `json:"project_id"`
	Bk             string `json:"bk"`
	UserID         string `json:"user_id"`
	TokenCreatedAt string `json:"token_created_at"`
	ProjectStatus  string `json:"project_status"`
	TokenStatus    string `json:"token_status"`
}

// TablesResponse 每个站点的可用表
type TablesResponse struct {
	ProjectID string              `json:"project_id"`
	Tables    map[string][]string `json:"tables"`
	All       []string            `json:"all"`
}

// AuthenticationStatusResponse 用户是否已有 token
type AuthenticationStatusResponse struct {
	Authenticated bool `json:"authenticated"`
}
