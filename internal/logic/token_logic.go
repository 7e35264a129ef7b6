package logic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"yqhp/token-manager/internal/aggregator"
	"yqhp/token-manager/internal/beam"
	"yqhp/token-manager/internal/cache"
	"yqhp/token-manager/internal/logger"
	"yqhp/token-manager/internal/model"
	"yqhp/token-manager/internal/types"
	"yqhp/token-manager/internal/utils"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"go.uber.org/zap"
)

// ErrTokenNotFound 本地没有可用的 token 记录
var ErrTokenNotFound = errors.New("token not found")

// TokenStore token 记录的持久化接口，service.TokenService 实现了它
type TokenStore interface {
	Save(ctx context.Context, token *model.Token) error
	UpdateLatest(ctx context.Context, userID, projectID, bk, token, createdAt string) (bool, error)
	UpdateStatus(ctx context.Context, userID, projectID, bk, status string) error
	DeleteByProject(ctx context.Context, projectID, bk string) (int64, error)
	DeleteByTokenName(ctx context.Context, tokenName, bk string) (int64, error)
	LatestForProject(ctx context.Context, userID, projectID string) (*model.Token, error)
	Latest(ctx context.Context, userID, projectID, bk string) (*model.Token, error)
	AnyAvailable(ctx context.Context, userID, projectID string, bks []string) (bool, error)
}

// TokenLogic 编排 token 的创建、刷新、撤销、状态查询和表发现
type TokenLogic struct {
	dispatcher *beam.Dispatcher
	store      TokenStore
	cipher     *utils.TokenCipher
	tables     cache.TableCache
	jobs       *JobGroup
	now        func() time.Time
}

// NewTokenLogic 创建 token 逻辑，tables 为 nil 时不缓存
func NewTokenLogic(dispatcher *beam.Dispatcher, store TokenStore, cipher *utils.TokenCipher, tables cache.TableCache, jobs *JobGroup) *TokenLogic {
	if tables == nil {
		tables = cache.Noop{}
	}
	if jobs == nil {
		jobs = NewJobGroup()
	}
	return &TokenLogic{
		dispatcher: dispatcher,
		store:      store,
		cipher:     cipher,
		tables:     tables,
		jobs:       jobs,
		now:        time.Now,
	}
}

// Jobs 后台任务组
func (l *TokenLogic) Jobs() *JobGroup {
	return l.jobs
}

// CreateTokens 为用户在各站点创建 token，结果在后台逐站点保存
func (l *TokenLogic) CreateTokens(ctx context.Context, req *types.TokenParams) (*Job, error) {
	tokenName := uuid.NewString()
	op := newOperation(beam.KindCreate,
		zap.String("user_id", req.UserID),
		zap.String("project_id", req.ProjectID),
	)

	task, err := l.dispatcher.Dispatch(ctx, beam.DispatchRequest{
		Kind:       beam.KindCreate,
		Name:       tokenName,
		Project:    req.ProjectID,
		Recipients: req.BridgeheadIDs,
	})
	if err != nil {
		op.fail(err)
		return nil, err
	}
	op.submitted(task)

	createdAt := model.FormatCreatedAt(l.now())
	persist := func(ctx context.Context, reply beam.SiteReply[beam.TokenPayload]) error {
		encrypted, err := l.cipher.Encrypt(reply.Result.Ok.Token, tokenName)
		if err != nil {
			return err
		}
		return l.store.Save(ctx, &model.Token{
			TokenName:      tokenName,
			Token:          encrypted,
			ProjectID:      req.ProjectID,
			ProjectStatus:  model.ProjectStatusCreated,
			Bk:             string(reply.From),
			TokenStatus:    model.TokenStatusCreated,
			UserID:         req.UserID,
			TokenCreatedAt: createdAt,
		})
	}

	job := newJob(task.ID, tokenName, task.WaitCount())
	l.jobs.Go("create-tokens", job, func() aggregator.CollectSummary {
		return collectInBackground(context.WithoutCancel(ctx), l.dispatcher, op, task, persist)
	})
	return job, nil
}

// RefreshTokens 用最新记录的名称和 token 请求各站点换发，结果在后台更新
func (l *TokenLogic) RefreshTokens(ctx context.Context, req *types.TokenParams) (*Job, error) {
	latest, err := l.store.LatestForProject(ctx, req.UserID, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("查询 token 记录失败: %w", err)
	}
	if latest == nil {
		return nil, ErrTokenNotFound
	}
	current, err := l.cipher.Decrypt(latest.Token, latest.TokenName)
	if err != nil {
		return nil, fmt.Errorf("解密 token 失败: %w", err)
	}

	op := newOperation(beam.KindUpdate,
		zap.String("user_id", req.UserID),
		zap.String("project_id", req.ProjectID),
		zap.String("token_name", latest.TokenName),
	)
	task, err := l.dispatcher.Dispatch(ctx, beam.DispatchRequest{
		Kind:       beam.KindUpdate,
		Name:       latest.TokenName,
		Project:    req.ProjectID,
		Token:      current,
		Recipients: req.BridgeheadIDs,
	})
	if err != nil {
		op.fail(err)
		return nil, err
	}
	op.submitted(task)

	createdAt := model.FormatCreatedAt(l.now())
	persist := func(ctx context.Context, reply beam.SiteReply[beam.TokenPayload]) error {
		encrypted, err := l.cipher.Encrypt(reply.Result.Ok.Token, latest.TokenName)
		if err != nil {
			return err
		}
		updated, err := l.store.UpdateLatest(ctx, req.UserID, req.ProjectID, string(reply.From), encrypted, createdAt)
		if err != nil || updated {
			return err
		}
		// 该站点之前没有记录，以最新记录为模板新建
		var fresh model.Token
		if err := copier.Copy(&fresh, latest); err != nil {
			return err
		}
		fresh.ID = 0
		fresh.Bk = string(reply.From)
		fresh.Token = encrypted
		fresh.TokenStatus = model.TokenStatusUpdated
		fresh.TokenCreatedAt = createdAt
		return l.store.Save(ctx, &fresh)
	}

	job := newJob(task.ID, latest.TokenName, task.WaitCount())
	l.jobs.Go("refresh-tokens", job, func() aggregator.CollectSummary {
		return collectInBackground(context.WithoutCancel(ctx), l.dispatcher, op, task, persist)
	})
	return job, nil
}

func collectInBackground(ctx context.Context, d *beam.Dispatcher, op *Operation, task *beam.TaskRequest, persist aggregator.PersistFunc[beam.TokenPayload]) aggregator.CollectSummary {
	stream, err := beam.Poll[beam.TokenPayload](ctx, d, task)
	if err != nil {
		op.fail(err)
		return aggregator.CollectSummary{Err: err, LastError: err}
	}
	op.to(StateStreaming)

	summary := aggregator.CollectAll(ctx, stream, persist)
	op.to(StateFolded,
		zap.Int("received", summary.Received),
		zap.Int("skipped", stream.Skipped()),
	)
	if streamErr := stream.Err(); streamErr != nil {
		logger.Warn("结果流提前结束", zap.String("task_id", task.ID.String()), zap.Error(streamErr))
	}

	if summary.Err != nil {
		op.fail(summary.Err)
		return summary
	}
	fields := []zap.Field{
		zap.Int("persisted", len(summary.Persisted)),
		zap.Int("failed", len(summary.Failed)),
	}
	if summary.LastError != nil {
		fields = append(fields, zap.NamedError("last_error", summary.LastError))
	}
	op.to(StatePersisted, fields...)
	return summary
}

// firstReply 提交任务并返回首个成功回复，没有成功时返回最后的错误回复
func firstReply[T beam.Payload](ctx context.Context, d *beam.Dispatcher, op *Operation, req beam.DispatchRequest) (beam.SiteReply[T], error) {
	task, err := d.Dispatch(ctx, req)
	if err != nil {
		op.fail(err)
		return beam.SiteReply[T]{}, err
	}
	op.submitted(task)

	stream, err := beam.Poll[T](ctx, d, task)
	if err != nil {
		op.fail(err)
		return beam.SiteReply[T]{}, err
	}
	op.to(StateStreaming)

	reply, err := aggregator.FirstSuccess[T](ctx, stream)
	if err != nil {
		if streamErr := stream.Err(); streamErr != nil {
			err = fmt.Errorf("%w: %v", err, streamErr)
		}
		op.fail(err, zap.Int("skipped", stream.Skipped()))
		return beam.SiteReply[T]{}, err
	}
	op.to(StateFolded, zap.String("site", string(reply.From)), zap.Bool("ok", reply.Result.IsOk()))
	return reply, nil
}

// RemoveTokens 撤销用户在某站点的 token，站点确认后删除本地记录
func (l *TokenLogic) RemoveTokens(ctx context.Context, q *types.TokensQuery) error {
	record, err := l.store.Latest(ctx, q.UserID, q.ProjectID, q.Bk)
	if err != nil {
		return fmt.Errorf("查询 token 记录失败: %w", err)
	}
	if record == nil {
		return ErrTokenNotFound
	}

	op := newOperation(beam.KindDelete, zap.String("token_name", record.TokenName), zap.String("bk", q.Bk))
	reply, err := firstReply[beam.StatusPayload](ctx, l.dispatcher, op, beam.DispatchRequest{
		Kind:       beam.KindDelete,
		Name:       record.TokenName,
		Recipients: []string{q.Bk},
	})
	if err != nil {
		return err
	}
	if !reply.Result.IsOk() {
		op.to(StateReported, zap.Error(reply.Result.Err))
		return reply.Result.Err
	}

	n, err := l.store.DeleteByTokenName(ctx, record.TokenName, q.Bk)
	if err != nil {
		op.fail(err)
		return fmt.Errorf("删除 token 记录失败: %w", err)
	}
	op.to(StatePersisted, zap.Int64("deleted", n))
	return nil
}

// RemoveProject 删除站点上的项目及其 token，站点确认后删除本地记录
func (l *TokenLogic) RemoveProject(ctx context.Context, q *types.ProjectQuery) error {
	op := newOperation(beam.KindDelete, zap.String("project_id", q.ProjectID), zap.String("bk", q.Bk))
	reply, err := firstReply[beam.StatusPayload](ctx, l.dispatcher, op, beam.DispatchRequest{
		Kind:       beam.KindDelete,
		Project:    q.ProjectID,
		Recipients: []string{q.Bk},
	})
	if err != nil {
		return err
	}
	if !reply.Result.IsOk() {
		op.to(StateReported, zap.Error(reply.Result.Err))
		return reply.Result.Err
	}

	n, err := l.store.DeleteByProject(ctx, q.ProjectID, q.Bk)
	if err != nil {
		op.fail(err)
		return fmt.Errorf("删除项目记录失败: %w", err)
	}
	op.to(StatePersisted, zap.Int64("deleted", n))
	return nil
}

// ProjectStatus 查询项目在站点上的状态，站点报错时状态为 NOT_FOUND
func (l *TokenLogic) ProjectStatus(ctx context.Context, q *types.ProjectQuery) (*types.ProjectStatusResponse, error) {
	resp := &types.ProjectStatusResponse{
		ProjectID:     q.ProjectID,
		Bk:            q.Bk,
		ProjectStatus: model.ProjectStatusNotFound,
	}

	op := newOperation(beam.KindStatus, zap.String("project_id", q.ProjectID), zap.String("bk", q.Bk))
	reply, err := firstReply[beam.StatusPayload](ctx, l.dispatcher, op, beam.DispatchRequest{
		Kind:       beam.KindStatus,
		Project:    q.ProjectID,
		Recipients: []string{q.Bk},
	})
	if err != nil {
		return nil, err
	}

	if reply.Result.IsOk() {
		resp.ProjectStatus = reply.Result.Ok.Status
	} else {
		resp.Error = reply.Result.Err.Message
	}
	op.to(StateReported, zap.String("project_status", resp.ProjectStatus))
	return resp, nil
}

// TokenStatus 组合项目状态、本地记录和站点上的 token 状态。
// 站点上 token 不是 CREATED 时重新下发本地保存的 token。
func (l *TokenLogic) TokenStatus(ctx context.Context, q *types.TokensQuery) (*types.TokenStatusResponse, error) {
	resp := &types.TokenStatusResponse{
		ProjectID:     q.ProjectID,
		Bk:            q.Bk,
		UserID:        q.UserID,
		ProjectStatus: model.ProjectStatusNotFound,
		TokenStatus:   model.TokenStatusNotFound,
	}

	project, err := l.ProjectStatus(ctx, &types.ProjectQuery{ProjectID: q.ProjectID, Bk: q.Bk})
	if err != nil {
		logger.Error("查询项目状态失败", zap.String("project_id", q.ProjectID), zap.String("bk", q.Bk), zap.Error(err))
	} else {
		resp.ProjectStatus = project.ProjectStatus
	}

	record, err := l.store.Latest(ctx, q.UserID, q.ProjectID, q.Bk)
	if err != nil {
		return nil, fmt.Errorf("查询 token 记录失败: %w", err)
	}
	if record == nil {
		return resp, nil
	}
	resp.TokenCreatedAt = record.TokenCreatedAt

	op := newOperation(beam.KindStatus, zap.String("token_name", record.TokenName), zap.String("bk", q.Bk))
	reply, err := firstReply[beam.StatusPayload](ctx, l.dispatcher, op, beam.DispatchRequest{
		Kind:       beam.KindStatus,
		Name:       record.TokenName,
		Recipients: []string{q.Bk},
	})
	if err != nil {
		logger.Error("查询 token 状态失败", zap.String("token_name", record.TokenName), zap.Error(err))
		return resp, nil
	}
	if !reply.Result.IsOk() {
		op.to(StateReported, zap.Error(reply.Result.Err))
		return resp, nil
	}

	status := reply.Result.Ok.Status
	if status != model.TokenStatusCreated {
		if err := l.resendToken(ctx, record); err != nil {
			logger.Warn("重新下发 token 失败", zap.String("token_name", record.TokenName), zap.String("bk", q.Bk), zap.Error(err))
			resp.TokenStatus = status
			op.to(StateReported, zap.String("token_status", status))
			return resp, nil
		}
		status = model.TokenStatusCreated
	}

	resp.TokenStatus = status
	if err := l.store.UpdateStatus(ctx, q.UserID, q.ProjectID, q.Bk, status); err != nil {
		op.fail(err)
		return nil, fmt.Errorf("更新 token 状态失败: %w", err)
	}
	op.to(StatePersisted, zap.String("token_status", status))
	return resp, nil
}

// resendToken 用本地保存的 token 在站点上重新创建
func (l *TokenLogic) resendToken(ctx context.Context, record *model.Token) error {
	plain, err := l.cipher.Decrypt(record.Token, record.TokenName)
	if err != nil {
		return fmt.Errorf("解密 token 失败: %w", err)
	}

	op := newOperation(beam.KindCreate, zap.String("token_name", record.TokenName), zap.String("bk", record.Bk))
	reply, err := firstReply[beam.TokenPayload](ctx, l.dispatcher, op, beam.DispatchRequest{
		Kind:       beam.KindCreate,
		Name:       record.TokenName,
		Project:    record.ProjectID,
		Token:      plain,
		Recipients: []string{record.Bk},
	})
	if err != nil {
		return err
	}
	if !reply.Result.IsOk() {
		op.to(StateReported, zap.Error(reply.Result.Err))
		return reply.Result.Err
	}
	op.to(StateReported)
	return nil
}

// DiscoverTables 查询各站点上项目可用的表
func (l *TokenLogic) DiscoverTables(ctx context.Context, req *types.TokenParams) (aggregator.TableSets, error) {
	sites := beam.NormalizeRecipients(req.BridgeheadIDs)
	if sets, ok := l.tables.Get(ctx, req.ProjectID, req.UserID, sites); ok {
		logger.Debug("命中表缓存", zap.String("project_id", req.ProjectID))
		return sets, nil
	}

	op := newOperation(beam.KindDiscoverTables, zap.String("project_id", req.ProjectID))
	task, err := l.dispatcher.Dispatch(ctx, beam.DispatchRequest{
		Kind:       beam.KindDiscoverTables,
		Name:       req.UserID,
		Project:    req.ProjectID,
		Recipients: req.BridgeheadIDs,
	})
	if err != nil {
		op.fail(err)
		return nil, err
	}
	op.submitted(task)

	stream, err := beam.Poll[beam.TablesPayload](ctx, l.dispatcher, task)
	if err != nil {
		op.fail(err)
		return nil, err
	}
	op.to(StateStreaming)

	sets, err := aggregator.Union(ctx, stream)
	if err != nil {
		op.fail(err, zap.Int("skipped", stream.Skipped()))
		return nil, err
	}
	op.to(StateFolded, zap.Int("sites", len(sets)), zap.Int("skipped", stream.Skipped()))

	if len(sets) > 0 {
		l.tables.Set(ctx, req.ProjectID, req.UserID, sites, sets)
	}
	op.to(StateReported)
	return sets, nil
}

// AuthenticationStatus 用户在任一站点上是否已有该项目的 token
func (l *TokenLogic) AuthenticationStatus(ctx context.Context, req *types.TokenParams) (bool, error) {
	sites := beam.NormalizeRecipients(req.BridgeheadIDs)
	bks := make([]string, len(sites))
	for i, s := range sites {
		bks[i] = string(s)
	}
	ok, err := l.store.AnyAvailable(ctx, req.UserID, req.ProjectID, bks)
	if err != nil {
		return false, fmt.Errorf("检查 token 可用性失败: %w", err)
	}
	return ok, nil
}
