package beam

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"yqhp/token-manager/internal/utils"

	"github.com/google/uuid"
)

// Broker Beam 代理的最小接口
type Broker interface {
	// PostTask 提交任务，成功后任务 ID 立即可轮询
	PostTask(ctx context.Context, task *TaskRequest) error
	// OpenResults 打开任务结果的 SSE 流，调用方负责关闭
	OpenResults(ctx context.Context, taskID uuid.UUID, waitCount int) (io.ReadCloser, error)
}

// Client Beam 代理的 HTTP 客户端
type Client struct {
	baseURL      string
	appID        AppID
	secret       string
	httpClient   *http.Client
	streamClient *http.Client
}

// ClientOption 客户端选项
type ClientOption func(*Client)

// WithRequestTimeout 设置普通请求超时
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithStreamTimeout 设置结果流的整体截止时间，0 表示不限制
func WithStreamTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.streamClient.Timeout = d
	}
}

// WithTransport 替换底层 Transport，测试时使用
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *Client) {
		c.httpClient.Transport = rt
		c.streamClient.Transport = rt
	}
}

// NewClient 创建 Beam 客户端
func NewClient(baseURL string, appID AppID, secret string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		appID:   appID,
		secret:  secret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		streamClient: &http.Client{
			Timeout: 70 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AppID 本服务在 Beam 中的标识
func (c *Client) AppID() AppID {
	return c.appID
}

// PostTask 提交任务
func (c *Client) PostTask(ctx context.Context, task *TaskRequest) error {
	data, err := utils.Marshal(task)
	if err != nil {
		return fmt.Errorf("序列化任务失败: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/v1/tasks", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: 提交任务 %s 失败: %v", ErrBrokerUnreachable, task.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: 提交任务 %s 返回 %d: %s", ErrBrokerUnreachable, task.ID, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// OpenResults 打开结果流，wait_count 只是提示，Beam 可能提前结束
func (c *Client) OpenResults(ctx context.Context, taskID uuid.UUID, waitCount int) (io.ReadCloser, error) {
	path := fmt.Sprintf("/v1/tasks/%s/results?wait_count=%d", taskID, waitCount)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: 打开任务 %s 结果流失败: %v", ErrBrokerUnreachable, taskID, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("%w: 任务 %s 结果流返回 %d: %s", ErrBrokerUnreachable, taskID, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp.Body, nil
}

// Health 检查 Beam 代理是否可用
func (c *Client) Health(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBrokerUnreachable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: 健康检查返回 %d", ErrBrokerUnreachable, resp.StatusCode)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("ApiKey %s %s", c.appID, c.secret))
	return req, nil
}
