package logic

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"yqhp/token-manager/internal/aggregator"
	"yqhp/token-manager/internal/beam"
	"yqhp/token-manager/internal/beam/beamtest"
	"yqhp/token-manager/internal/cache"
	"yqhp/token-manager/internal/config"
	"yqhp/token-manager/internal/database"
	"yqhp/token-manager/internal/model"
	"yqhp/token-manager/internal/service"
	"yqhp/token-manager/internal/utils"

	"github.com/stretchr/testify/require"
)

const (
	siteA = "app.site-a.broker"
	siteB = "app.site-b.broker"
	siteC = "app.site-c.broker"

	testUser    = "researcher@example.org"
	testProject = "project-42"
)

var fixedNow = time.Date(2024, 3, 7, 9, 5, 1, 0, time.UTC)

type fixture struct {
	broker *beamtest.Broker
	logic  *TokenLogic
	store  *service.TokenService
	cipher *utils.TokenCipher
}

func newFixture(t *testing.T, tables cache.TableCache) *fixture {
	t.Helper()

	db, err := database.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "tokens.db"),
	}, "warn")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	store := service.NewTokenService(db)
	require.NoError(t, store.AutoMigrate())

	cipher, err := utils.NewTokenCipher("unit-test-secret")
	require.NoError(t, err)

	broker := beamtest.NewBroker(t)
	d := beam.NewDispatcher(broker.Client(beam.WithStreamTimeout(5*time.Second)), broker.AppID)

	l := NewTokenLogic(d, store, cipher, tables, NewJobGroup())
	l.now = func() time.Time { return fixedNow }
	return &fixture{broker: broker, logic: l, store: store, cipher: cipher}
}

// seed 写入一条加密后的记录
func (f *fixture) seed(t *testing.T, name, bk, plain, status string) {
	t.Helper()
	encrypted, err := f.cipher.Encrypt(plain, name)
	require.NoError(t, err)
	require.NoError(t, f.store.Save(context.Background(), &model.Token{
		TokenName:      name,
		Token:          encrypted,
		ProjectID:      testProject,
		ProjectStatus:  model.ProjectStatusCreated,
		Bk:             bk,
		TokenStatus:    status,
		UserID:         testUser,
		TokenCreatedAt: model.FormatCreatedAt(fixedNow.Add(-time.Hour)),
	}))
}

// plainToken 读取并解密站点上最新的 token
func (f *fixture) plainToken(t *testing.T, bk string) (*model.Token, string) {
	t.Helper()
	record, err := f.store.Latest(context.Background(), testUser, testProject, bk)
	require.NoError(t, err)
	require.NotNil(t, record)
	plain, err := f.cipher.Decrypt(record.Token, record.TokenName)
	require.NoError(t, err)
	return record, plain
}

func (f *fixture) tablesScenario() {
	f.broker.Respond(beam.RequestScript, func(beam.TaskRequest) []beamtest.Frame {
		return []beamtest.Frame{
			beamtest.TablesOk(siteA, "t1", "t2"),
			beamtest.TablesOk(siteB, "t2", "t3"),
		}
	})
}

// memoryCache 进程内的表缓存，记录命中次数
type memoryCache struct {
	mu   sync.Mutex
	data map[string]aggregator.TableSets
	hits int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string]aggregator.TableSets)}
}

func (c *memoryCache) Get(_ context.Context, project, user string, sites []beam.AppID) (aggregator.TableSets, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sets, ok := c.data[cache.Key(project, user, sites)]
	if ok {
		c.hits++
	}
	return sets, ok
}

func (c *memoryCache) Set(_ context.Context, project, user string, sites []beam.AppID, sets aggregator.TableSets) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[cache.Key(project, user, sites)] = sets
}

func waitJob(t *testing.T, job *Job) aggregator.CollectSummary {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	summary, err := job.Wait(ctx)
	require.NoError(t, err)
	return summary
}
