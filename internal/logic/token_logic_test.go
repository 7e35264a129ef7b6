package logic

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"yqhp/token-manager/internal/aggregator"
	"yqhp/token-manager/internal/beam"
	"yqhp/token-manager/internal/beam/beamtest"
	"yqhp/token-manager/internal/model"
	"yqhp/token-manager/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func params(bks ...string) *types.TokenParams {
	return &types.TokenParams{UserID: testUser, ProjectID: testProject, BridgeheadIDs: bks}
}

func TestDiscoverTablesPerSite(t *testing.T) {
	f := newFixture(t, nil)
	f.tablesScenario()

	sets, err := f.logic.DiscoverTables(context.Background(), params(siteA, siteB))
	require.NoError(t, err)

	assert.Equal(t, []string{"t1", "t2"}, sets[siteA].Sorted())
	assert.Equal(t, []string{"t2", "t3"}, sets[siteB].Sorted())
	assert.Equal(t, []string{"t1", "t2", "t3"}, sets.All().Sorted())

	tasks := f.broker.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, beam.RequestScript, tasks[0].Body.RequestType)
	require.NotNil(t, tasks[0].Body.Name)
	assert.Equal(t, testUser, *tasks[0].Body.Name)
	assert.Equal(t, 2, f.broker.WaitCount(tasks[0].ID.String()))
}

func TestDiscoverTablesUsesCache(t *testing.T) {
	tables := newMemoryCache()
	f := newFixture(t, tables)
	f.tablesScenario()

	_, err := f.logic.DiscoverTables(context.Background(), params(siteA, siteB))
	require.NoError(t, err)
	resp, err := f.logic.Tables(context.Background(), params(siteB, siteA))
	require.NoError(t, err)

	assert.Len(t, f.broker.Tasks(), 1)
	assert.Equal(t, 1, tables.hits)
	assert.Equal(t, []string{"t1", "t2", "t3"}, resp.All)
	assert.Equal(t, []string{"t2", "t3"}, resp.Tables[siteB])
}

func TestDiscoverTablesCacheIsPerUser(t *testing.T) {
	tables := newMemoryCache()
	f := newFixture(t, tables)
	f.tablesScenario()

	_, err := f.logic.DiscoverTables(context.Background(), params(siteA, siteB))
	require.NoError(t, err)
	other := &types.TokenParams{UserID: "someone-else@example.org", ProjectID: testProject, BridgeheadIDs: []string{siteA, siteB}}
	_, err = f.logic.DiscoverTables(context.Background(), other)
	require.NoError(t, err)

	assert.Len(t, f.broker.Tasks(), 2)
	assert.Zero(t, tables.hits)
	assert.Len(t, tables.data, 2)
}

func TestDiscoverTablesOnlyErrorsNotCached(t *testing.T) {
	tables := newMemoryCache()
	f := newFixture(t, tables)
	f.broker.Respond(beam.RequestScript, func(beam.TaskRequest) []beamtest.Frame {
		return []beamtest.Frame{beamtest.SiteErr(siteA, 500, "opal down")}
	})

	sets, err := f.logic.DiscoverTables(context.Background(), params(siteA))
	require.NoError(t, err)
	assert.Empty(t, sets)
	assert.Empty(t, tables.data)
}

func TestDiscoverTablesNoReplies(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.logic.DiscoverTables(context.Background(), params(siteA))
	assert.ErrorIs(t, err, aggregator.ErrNoReplies)
}

func TestProjectStatusSiteError(t *testing.T) {
	f := newFixture(t, nil)
	f.broker.Respond(beam.RequestStatus, func(beam.TaskRequest) []beamtest.Frame {
		return []beamtest.Frame{beamtest.SiteErr(siteA, 503, "busy")}
	})

	resp, err := f.logic.ProjectStatus(context.Background(), &types.ProjectQuery{ProjectID: testProject, Bk: siteA})
	require.NoError(t, err)
	assert.Equal(t, model.ProjectStatusNotFound, resp.ProjectStatus)
	assert.Equal(t, "busy", resp.Error)
}

func TestProjectStatusOk(t *testing.T) {
	f := newFixture(t, nil)
	f.broker.Respond(beam.RequestStatus, func(task beam.TaskRequest) []beamtest.Frame {
		return []beamtest.Frame{beamtest.StatusOk(task.To[0], model.ProjectStatusWithData)}
	})

	resp, err := f.logic.ProjectStatus(context.Background(), &types.ProjectQuery{ProjectID: testProject, Bk: siteA})
	require.NoError(t, err)
	assert.Equal(t, model.ProjectStatusWithData, resp.ProjectStatus)
	assert.Empty(t, resp.Error)
}

func TestCreateTokensCollectsEachOkSite(t *testing.T) {
	f := newFixture(t, nil)
	f.broker.Respond(beam.RequestCreate, func(beam.TaskRequest) []beamtest.Frame {
		return []beamtest.Frame{
			beamtest.TokenOk(siteA, "tok-a"),
			beamtest.Raw("not json"),
			beamtest.TokenOk(siteB, "tok-b"),
		}
	})

	job, err := f.logic.CreateTokens(context.Background(), params(siteA, siteB, siteC))
	require.NoError(t, err)
	assert.Equal(t, 3, job.Sites)
	assert.Len(t, job.TokenName, 36)

	summary := waitJob(t, job)
	require.NoError(t, summary.Err)
	assert.ElementsMatch(t, []beam.AppID{siteA, siteB}, summary.Persisted)
	assert.Empty(t, summary.Failed)

	for bk, want := range map[string]string{siteA: "tok-a", siteB: "tok-b"} {
		record, plain := f.plainToken(t, bk)
		assert.Equal(t, want, plain)
		assert.Equal(t, job.TokenName, record.TokenName)
		assert.Equal(t, model.TokenStatusCreated, record.TokenStatus)
		assert.Equal(t, "07-03-2024 09:05:01", record.TokenCreatedAt)
	}
	missing, err := f.store.Latest(context.Background(), testUser, testProject, siteC)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCreateTokensSurvivesRequestCancel(t *testing.T) {
	f := newFixture(t, nil)
	f.broker.Respond(beam.RequestCreate, func(beam.TaskRequest) []beamtest.Frame {
		return []beamtest.Frame{beamtest.TokenOk(siteA, "tok-a")}
	})

	ctx, cancel := context.WithCancel(context.Background())
	job, err := f.logic.CreateTokens(ctx, params(siteA))
	require.NoError(t, err)
	cancel()

	summary := waitJob(t, job)
	assert.Equal(t, []beam.AppID{siteA}, summary.Persisted)
}

func TestCreateTokensBrokerRejects(t *testing.T) {
	f := newFixture(t, nil)
	f.broker.FailPosts(http.StatusInternalServerError)

	job, err := f.logic.CreateTokens(context.Background(), params(siteA))
	assert.Nil(t, job)
	assert.ErrorIs(t, err, beam.ErrBrokerUnreachable)
}

func TestCreateTokensNoRecipients(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.logic.CreateTokens(context.Background(), params(" ", ""))
	assert.ErrorIs(t, err, beam.ErrNoRecipients)
	assert.Empty(t, f.broker.Tasks())
}

func TestRefreshTokensWithoutRecord(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.logic.RefreshTokens(context.Background(), params(siteA))
	assert.ErrorIs(t, err, ErrTokenNotFound)
	assert.Empty(t, f.broker.Tasks())
}

func TestRefreshTokensUpdatesAndAddsSites(t *testing.T) {
	f := newFixture(t, nil)
	name := "7c1d3a0e-5b2f-4c1e-9a55-0d9f7e3b2a10"
	f.seed(t, name, siteA, "old-a", model.TokenStatusCreated)

	f.broker.Respond(beam.RequestUpdate, func(beam.TaskRequest) []beamtest.Frame {
		return []beamtest.Frame{
			beamtest.TokenOk(siteA, "new-a"),
			beamtest.TokenOk(siteB, "new-b"),
		}
	})

	job, err := f.logic.RefreshTokens(context.Background(), params(siteA, siteB))
	require.NoError(t, err)
	assert.Equal(t, name, job.TokenName)
	summary := waitJob(t, job)
	assert.Len(t, summary.Persisted, 2)

	tasks := f.broker.Tasks()
	require.Len(t, tasks, 1)
	require.NotNil(t, tasks[0].Body.Token)
	assert.Equal(t, "old-a", *tasks[0].Body.Token)
	assert.Equal(t, name, *tasks[0].Body.Name)

	record, plain := f.plainToken(t, siteA)
	assert.Equal(t, "new-a", plain)
	assert.Equal(t, model.TokenStatusUpdated, record.TokenStatus)
	assert.Equal(t, "07-03-2024 09:05:01", record.TokenCreatedAt)

	record, plain = f.plainToken(t, siteB)
	assert.Equal(t, "new-b", plain)
	assert.Equal(t, name, record.TokenName)
}

func TestRemoveTokensDeletesOnOk(t *testing.T) {
	f := newFixture(t, nil)
	name := "0f8a7e5c-1d2b-4e3f-8a9b-c0d1e2f3a4b5"
	f.seed(t, name, siteA, "tok-a", model.TokenStatusCreated)
	f.seed(t, name, siteB, "tok-b", model.TokenStatusCreated)
	f.broker.Respond(beam.RequestDelete, func(task beam.TaskRequest) []beamtest.Frame {
		return []beamtest.Frame{beamtest.StatusOk(task.To[0], "DELETED")}
	})

	err := f.logic.RemoveTokens(context.Background(), &types.TokensQuery{UserID: testUser, ProjectID: testProject, Bk: siteA})
	require.NoError(t, err)

	gone, err := f.store.Latest(context.Background(), testUser, testProject, siteA)
	require.NoError(t, err)
	assert.Nil(t, gone)
	kept, err := f.store.Latest(context.Background(), testUser, testProject, siteB)
	require.NoError(t, err)
	assert.NotNil(t, kept)

	task := f.broker.Tasks()[0]
	assert.Equal(t, []beam.AppID{siteA}, task.To)
	assert.Nil(t, task.Body.Project)
}

func TestRemoveTokensWithoutRecord(t *testing.T) {
	f := newFixture(t, nil)

	err := f.logic.RemoveTokens(context.Background(), &types.TokensQuery{UserID: testUser, ProjectID: testProject, Bk: siteA})
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestRemoveProjectSiteErrorKeepsRecords(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "2b9f4d1a-6c3e-4f80-b7a2-915d0c4e8f36", siteA, "tok-a", model.TokenStatusCreated)
	f.broker.Respond(beam.RequestDelete, func(beam.TaskRequest) []beamtest.Frame {
		return []beamtest.Frame{beamtest.SiteErr(siteA, 503, "busy")}
	})

	err := f.logic.RemoveProject(context.Background(), &types.ProjectQuery{ProjectID: testProject, Bk: siteA})
	var siteErr *beam.SiteError
	require.True(t, errors.As(err, &siteErr))
	assert.Equal(t, http.StatusServiceUnavailable, siteErr.HTTPStatus())

	kept, err := f.store.Latest(context.Background(), testUser, testProject, siteA)
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestRemoveProjectDeletesOnOk(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "2b9f4d1a-6c3e-4f80-b7a2-915d0c4e8f36", siteA, "tok-a", model.TokenStatusCreated)
	f.broker.Respond(beam.RequestDelete, func(beam.TaskRequest) []beamtest.Frame {
		return []beamtest.Frame{beamtest.StatusOk(siteA, "DELETED")}
	})

	require.NoError(t, f.logic.RemoveProject(context.Background(), &types.ProjectQuery{ProjectID: testProject, Bk: siteA}))

	gone, err := f.store.Latest(context.Background(), testUser, testProject, siteA)
	require.NoError(t, err)
	assert.Nil(t, gone)
	require.NotNil(t, f.broker.Tasks()[0].Body.Project)
	assert.Nil(t, f.broker.Tasks()[0].Body.Name)
}

// 项目状态查询带 project，token 状态查询带 name
func statusResponder(projectStatus, tokenStatus string) beamtest.Responder {
	return func(task beam.TaskRequest) []beamtest.Frame {
		if task.Body.Project != nil {
			return []beamtest.Frame{beamtest.StatusOk(task.To[0], projectStatus)}
		}
		return []beamtest.Frame{beamtest.StatusOk(task.To[0], tokenStatus)}
	}
}

func TestTokenStatusResendsWhenNotCreated(t *testing.T) {
	f := newFixture(t, nil)
	name := "5e6f7a8b-9c0d-4e1f-a2b3-c4d5e6f7a8b9"
	f.seed(t, name, siteA, "tok-a", model.TokenStatusUpdated)
	f.broker.Respond(beam.RequestStatus, statusResponder(model.ProjectStatusCreated, model.TokenStatusExpired))
	f.broker.Respond(beam.RequestCreate, func(task beam.TaskRequest) []beamtest.Frame {
		return []beamtest.Frame{beamtest.TokenOk(task.To[0], *task.Body.Token)}
	})

	resp, err := f.logic.TokenStatus(context.Background(), &types.TokensQuery{UserID: testUser, ProjectID: testProject, Bk: siteA})
	require.NoError(t, err)
	assert.Equal(t, model.ProjectStatusCreated, resp.ProjectStatus)
	assert.Equal(t, model.TokenStatusCreated, resp.TokenStatus)
	assert.Equal(t, "07-03-2024 08:05:01", resp.TokenCreatedAt)

	var resend *beam.TaskRequest
	for _, task := range f.broker.Tasks() {
		if task.Body.RequestType == beam.RequestCreate {
			resend = &task
		}
	}
	require.NotNil(t, resend)
	assert.Equal(t, "tok-a", *resend.Body.Token)
	assert.Equal(t, name, *resend.Body.Name)

	record, _ := f.plainToken(t, siteA)
	assert.Equal(t, model.TokenStatusCreated, record.TokenStatus)
}

func TestTokenStatusResendFailureKeepsRemoteStatus(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "5e6f7a8b-9c0d-4e1f-a2b3-c4d5e6f7a8b9", siteA, "tok-a", model.TokenStatusUpdated)
	f.broker.Respond(beam.RequestStatus, statusResponder(model.ProjectStatusCreated, model.TokenStatusExpired))
	f.broker.Respond(beam.RequestCreate, func(beam.TaskRequest) []beamtest.Frame {
		return []beamtest.Frame{beamtest.SiteErr(siteA, 409, "exists")}
	})

	resp, err := f.logic.TokenStatus(context.Background(), &types.TokensQuery{UserID: testUser, ProjectID: testProject, Bk: siteA})
	require.NoError(t, err)
	assert.Equal(t, model.TokenStatusExpired, resp.TokenStatus)

	record, _ := f.plainToken(t, siteA)
	assert.Equal(t, model.TokenStatusUpdated, record.TokenStatus)
}

func TestTokenStatusWithoutRecord(t *testing.T) {
	f := newFixture(t, nil)
	f.broker.Respond(beam.RequestStatus, func(beam.TaskRequest) []beamtest.Frame {
		return []beamtest.Frame{beamtest.SiteErr(siteA, 404, "no project")}
	})

	resp, err := f.logic.TokenStatus(context.Background(), &types.TokensQuery{UserID: testUser, ProjectID: testProject, Bk: siteA})
	require.NoError(t, err)
	assert.Equal(t, model.ProjectStatusNotFound, resp.ProjectStatus)
	assert.Equal(t, model.TokenStatusNotFound, resp.TokenStatus)
	assert.Empty(t, resp.TokenCreatedAt)
	assert.Len(t, f.broker.Tasks(), 1)
}

func TestTokenStatusCreatedNeedsNoResend(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "5e6f7a8b-9c0d-4e1f-a2b3-c4d5e6f7a8b9", siteA, "tok-a", model.TokenStatusUpdated)
	f.broker.Respond(beam.RequestStatus, statusResponder(model.ProjectStatusWithData, model.TokenStatusCreated))

	resp, err := f.logic.TokenStatus(context.Background(), &types.TokensQuery{UserID: testUser, ProjectID: testProject, Bk: siteA})
	require.NoError(t, err)
	assert.Equal(t, model.ProjectStatusWithData, resp.ProjectStatus)
	assert.Equal(t, model.TokenStatusCreated, resp.TokenStatus)
	assert.Len(t, f.broker.Tasks(), 2)
}

func TestAuthenticationStatus(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "5e6f7a8b-9c0d-4e1f-a2b3-c4d5e6f7a8b9", siteB, "tok-b", model.TokenStatusCreated)

	ok, err := f.logic.AuthenticationStatus(context.Background(), params(siteA, " "+siteB))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.logic.AuthenticationStatus(context.Background(), params(siteA, siteC))
	require.NoError(t, err)
	assert.False(t, ok)
}
