// Package beamtest 提供一个基于 httptest 的 Beam 代理替身
package beamtest

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"yqhp/token-manager/internal/beam"
	"yqhp/token-manager/internal/utils"
)

// Frame 结果流中的一帧，Event 为空时不写 event 行，Data 为空时只写空行
type Frame struct {
	Event string
	Data  string
}

// Responder 根据任务生成结果流的帧序列
type Responder func(task beam.TaskRequest) []Frame

// Broker Beam 代理替身，记录收到的任务并按脚本回放结果
type Broker struct {
	*httptest.Server

	AppID  beam.AppID
	Secret string

	mu          sync.Mutex
	tasks       []beam.TaskRequest
	waitCounts  map[string]int
	responders  map[beam.RequestType]Responder
	postStatus  int
	holdOpen    bool
	authFailure int
}

// NewBroker 启动替身代理，测试结束时自动关闭
func NewBroker(t interface{ Cleanup(func()) }) *Broker {
	b := &Broker{
		AppID:      "token-manager.proxy.broker",
		Secret:     "test-secret",
		waitCounts: make(map[string]int),
		responders: make(map[beam.RequestType]Responder),
		postStatus: http.StatusCreated,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/tasks", b.handlePost)
	mux.HandleFunc("GET /v1/tasks/{id}/results", b.handleResults)
	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Close)
	return b
}

// Client 指向替身代理的客户端
func (b *Broker) Client(opts ...beam.ClientOption) *beam.Client {
	return beam.NewClient(b.URL, b.AppID, b.Secret, opts...)
}

// Respond 为某种请求类型设置回放脚本
func (b *Broker) Respond(rt beam.RequestType, fn Responder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responders[rt] = fn
}

// FailPosts 让后续提交返回指定状态码
func (b *Broker) FailPosts(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.postStatus = status
}

// HoldOpen 回放完帧后保持连接，直到客户端断开
func (b *Broker) HoldOpen(hold bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.holdOpen = hold
}

// Tasks 已收到的任务
func (b *Broker) Tasks() []beam.TaskRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]beam.TaskRequest(nil), b.tasks...)
}

// WaitCount 轮询某任务时带的 wait_count，未轮询返回 -1
func (b *Broker) WaitCount(taskID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n, ok := b.waitCounts[taskID]; ok {
		return n
	}
	return -1
}

// AuthFailures 鉴权头不正确的请求数量
func (b *Broker) AuthFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.authFailure
}

func (b *Broker) checkAuth(r *http.Request) {
	want := fmt.Sprintf("ApiKey %s %s", b.AppID, b.Secret)
	if r.Header.Get("Authorization") != want {
		b.mu.Lock()
		b.authFailure++
		b.mu.Unlock()
	}
}

func (b *Broker) handlePost(w http.ResponseWriter, r *http.Request) {
	b.checkAuth(r)

	buf, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var task beam.TaskRequest
	if err := utils.Unmarshal(buf, &task); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	status := b.postStatus
	if status < 300 {
		b.tasks = append(b.tasks, task)
	}
	b.mu.Unlock()

	w.WriteHeader(status)
}

func (b *Broker) handleResults(w http.ResponseWriter, r *http.Request) {
	b.checkAuth(r)
	id := r.PathValue("id")
	waitCount, _ := strconv.Atoi(r.URL.Query().Get("wait_count"))

	b.mu.Lock()
	b.waitCounts[id] = waitCount
	var task *beam.TaskRequest
	for i := range b.tasks {
		if b.tasks[i].ID.String() == id {
			task = &b.tasks[i]
			break
		}
	}
	var responder Responder
	if task != nil {
		responder = b.responders[task.Body.RequestType]
	}
	hold := b.holdOpen
	b.mu.Unlock()

	if task == nil {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	if responder != nil {
		for _, f := range responder(*task) {
			if f.Event != "" {
				fmt.Fprintf(w, "event: %s\n", f.Event)
			}
			if f.Data != "" {
				fmt.Fprintf(w, "data: %s\n", f.Data)
			}
			fmt.Fprint(w, "\n")
			if flusher != nil {
				flusher.Flush()
			}
		}
	}

	if hold {
		<-r.Context().Done()
	}
}
