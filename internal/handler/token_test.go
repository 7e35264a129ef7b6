package handler_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"yqhp/token-manager/internal/aggregator"
	"yqhp/token-manager/internal/beam"
	"yqhp/token-manager/internal/handler"
	"yqhp/token-manager/internal/logic"
	"yqhp/token-manager/internal/response"
	"yqhp/token-manager/internal/router"
	"yqhp/token-manager/internal/types"
	"yqhp/token-manager/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubLogic 按字段返回预设结果
type stubLogic struct {
	err    error
	job    *logic.Job
	script string
	auth   bool

	gotParams *types.TokenParams
	gotTokens *types.TokensQuery
}

func (s *stubLogic) CreateTokens(_ context.Context, req *types.TokenParams) (*logic.Job, error) {
	s.gotParams = req
	return s.job, s.err
}

func (s *stubLogic) RefreshTokens(_ context.Context, req *types.TokenParams) (*logic.Job, error) {
	s.gotParams = req
	return s.job, s.err
}

func (s *stubLogic) RemoveTokens(_ context.Context, q *types.TokensQuery) error {
	s.gotTokens = q
	return s.err
}

func (s *stubLogic) RemoveProject(context.Context, *types.ProjectQuery) error {
	return s.err
}

func (s *stubLogic) ProjectStatus(_ context.Context, q *types.ProjectQuery) (*types.ProjectStatusResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &types.ProjectStatusResponse{ProjectID: q.ProjectID, Bk: q.Bk, ProjectStatus: "CREATED"}, nil
}

func (s *stubLogic) TokenStatus(_ context.Context, q *types.TokensQuery) (*types.TokenStatusResponse, error) {
	s.gotTokens = q
	if s.err != nil {
		return nil, s.err
	}
	return &types.TokenStatusResponse{ProjectID: q.ProjectID, Bk: q.Bk, UserID: q.UserID, TokenStatus: "CREATED"}, nil
}

func (s *stubLogic) Tables(_ context.Context, req *types.TokenParams) (*types.TablesResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &types.TablesResponse{
		ProjectID: req.ProjectID,
		Tables:    map[string][]string{"siteA": {"t1"}},
		All:       []string{"t1"},
	}, nil
}

func (s *stubLogic) GenerateScript(_ context.Context, req *types.TokenParams) (string, error) {
	s.gotParams = req
	return s.script, s.err
}

func (s *stubLogic) AuthenticationStatus(context.Context, *types.TokenParams) (bool, error) {
	return s.auth, s.err
}

func newApp(stub *stubLogic) *fiber.App {
	app := fiber.New(fiber.Config{
		JSONEncoder: utils.Marshal,
		JSONDecoder: utils.Unmarshal,
	})
	router.Register(app, handler.NewTokenHandler(stub))
	return app
}

const tokenBody = `{"user_id":"u1","project_id":"p1","bridgehead_ids":["siteA","siteB"]}`

func do(t *testing.T, app *fiber.App, method, target, body string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func envelope(t *testing.T, data []byte) response.Response {
	t.Helper()
	var r response.Response
	require.NoError(t, utils.Unmarshal(data, &r))
	return r
}

func TestCreateAccepted(t *testing.T) {
	taskID := uuid.New()
	stub := &stubLogic{job: &logic.Job{TaskID: taskID, TokenName: "name", Sites: 2}}
	app := newApp(stub)

	status, data := do(t, app, http.MethodPost, "/api/token", tokenBody)
	assert.Equal(t, http.StatusAccepted, status)
	assert.Contains(t, string(data), taskID.String())
	assert.Equal(t, response.CodeSuccess, envelope(t, data).Code)
	assert.Equal(t, []string{"siteA", "siteB"}, stub.gotParams.BridgeheadIDs)
}

func TestRefreshNotFound(t *testing.T) {
	app := newApp(&stubLogic{err: logic.ErrTokenNotFound})

	status, data := do(t, app, http.MethodPut, "/api/refreshToken", tokenBody)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, response.CodeNotFound, envelope(t, data).Code)
}

func TestTokenParamsValidation(t *testing.T) {
	app := newApp(&stubLogic{})

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"user_id":`},
		{"missing user", `{"project_id":"p1","bridgehead_ids":["a"]}`},
		{"blank project", `{"user_id":"u1","project_id":"  ","bridgehead_ids":["a"]}`},
		{"no sites", `{"user_id":"u1","project_id":"p1","bridgehead_ids":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := do(t, app, http.MethodPost, "/api/token", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
		})
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"no recipients", beam.ErrNoRecipients, http.StatusBadRequest},
		{"invalid request", fmt.Errorf("%w: x", beam.ErrInvalidRequest), http.StatusBadRequest},
		{"site busy", &beam.SiteError{StatusCode: 503, Message: "busy"}, http.StatusServiceUnavailable},
		{"site bogus code", &beam.SiteError{StatusCode: 42, Message: "odd"}, http.StatusInternalServerError},
		{"broker down", fmt.Errorf("%w: refused", beam.ErrBrokerUnreachable), http.StatusBadGateway},
		{"no replies", aggregator.ErrNoReplies, http.StatusInternalServerError},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newApp(&stubLogic{err: tt.err})
			status, data := do(t, app, http.MethodDelete, "/api/project?project_id=p1&bk=siteA", "")
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.status, envelope(t, data).Code)
		})
	}
}

func TestRemoveTokenQuery(t *testing.T) {
	stub := &stubLogic{}
	app := newApp(stub)

	status, _ := do(t, app, http.MethodDelete, "/api/token?user_id=u1&project_id=p1&bk=siteA", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, &types.TokensQuery{UserID: "u1", ProjectID: "p1", Bk: "siteA"}, stub.gotTokens)

	status, data := do(t, app, http.MethodDelete, "/api/token?user_id=u1&project_id=p1", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, envelope(t, data).Message, "bk")
}

func TestStatusEndpoints(t *testing.T) {
	app := newApp(&stubLogic{})

	status, data := do(t, app, http.MethodGet, "/api/project-status?project_id=p1&bk=siteA", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(data), `"project_status":"CREATED"`)

	status, data = do(t, app, http.MethodGet, "/api/token-status?user_id=u1&project_id=p1&bk=siteA", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(data), `"token_status":"CREATED"`)
}

func TestTablesEndpoint(t *testing.T) {
	app := newApp(&stubLogic{})

	status, data := do(t, app, http.MethodPost, "/api/tables", tokenBody)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(data), `"all":["t1"]`)
}

func TestScriptIsPlainText(t *testing.T) {
	app := newApp(&stubLogic{script: "library(DSI)\n"})

	req := httptest.NewRequest(http.MethodPost, "/api/script", strings.NewReader(tokenBody))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "library(DSI)\n", string(data))
	assert.True(t, strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMETextPlain))
}

func TestAuthenticationStatusEndpoint(t *testing.T) {
	app := newApp(&stubLogic{auth: true})

	status, data := do(t, app, http.MethodPost, "/api/authentication-status", tokenBody)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(data), `"authenticated":true`)
}

type healthFunc func(context.Context) error

func (f healthFunc) Health(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	app := fiber.New()
	app.Get("/ok", handler.Health(healthFunc(func(context.Context) error { return nil })))
	app.Get("/down", handler.Health(healthFunc(func(context.Context) error { return beam.ErrBrokerUnreachable })))

	status, _ := do(t, app, http.MethodGet, "/ok", "")
	assert.Equal(t, http.StatusOK, status)
	status, data := do(t, app, http.MethodGet, "/down", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, string(data), "degraded")
}
