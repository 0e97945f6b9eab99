/*
Copyright 2024 Brazil Data Cube Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package builder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/brazil-data-cube/bdc-collection-builder-sub001/config"
	"github.com/brazil-data-cube/bdc-collection-builder-sub001/database/mocks"
	"github.com/brazil-data-cube/bdc-collection-builder-sub001/model"
)

func testConfig() *config.Configuration {
	return &config.Configuration{
		ProjectName: "builder-test",
		Redis:       config.RedisConfig{Dns: "localhost:6379"},
		DataSource:  config.DataSourceConfig{Dns: "postgres://localhost:5432/builder"},
		Queue: config.QueueConfig{
			CorrectionQueue: "builder:correct",
			PublishQueue:    "builder:publish",
			UploadQueue:     "builder:upload",
			DownloadQueue:   "builder:download",
		},
		Dispatch: config.DispatchConfig{
			ClaimBatchSize:    10,
			IntervalSec:       60,
			StuckThresholdSec: 3600,
		},
		Download: config.DownloadConfig{DataDir: "/tmp/scenes", MaxParallel: 2, MinSizeBytes: 1},
	}
}

// newTestRedis returns a redis mock that grants and releases the dispatch
// lock once. The lock value is random per pass, so argument matching is
// relaxed.
func newTestRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	client, redisMock := redismock.NewClientMock()
	anyArgs := func(expected, actual []interface{}) error { return nil }
	redisMock.CustomMatch(anyArgs).ExpectSetNX(dispatchLockKey, "", 60*time.Second).SetVal(true)
	redisMock.CustomMatch(anyArgs).ExpectEval("", []string{dispatchLockKey}, "").SetVal(int64(1))
	return client
}

func TestRunOnceSubmitsClaimedInOrder(t *testing.T) {
	config.MockConfig(testConfig())

	claimed := []model.Activity{
		{ID: 11, SceneRef: "scene-correct", Stage: model.Stage{Name: model.StageCorrect, Kind: model.KindSentinel}, Status: model.StatusDoing, Priority: 1},
		{ID: 13, SceneRef: "scene-publish", Stage: model.Stage{Name: model.StagePublish, Kind: model.KindLandsat}, Status: model.StatusDoing, Priority: 2},
		{ID: 12, SceneRef: "scene-download", Stage: model.Stage{Name: model.StageDownload, Kind: model.KindSentinel}, Status: model.StatusDoing, Priority: 4},
	}

	ds := new(mocks.MockDataSource)
	ds.On("ClaimRunnable", mock.Anything, 10).Return(claimed, nil)
	ds.On("RecordDispatch", mock.Anything, mock.Anything).Return(int64(1), nil)

	enqueuer := &MockEnqueuer{}
	b := NewBuilderWithDeps(ds, enqueuer, newTestRedis(t), nil, nil, nil, nil)

	report, err := b.RunOnce(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 3, report.Claimed)
	assert.Equal(t, 3, report.Submitted)

	refs := make([]string, len(enqueuer.Submitted))
	for i, a := range enqueuer.Submitted {
		refs[i] = a.SceneRef
	}
	assert.Equal(t, []string{"scene-correct", "scene-publish", "scene-download"}, refs)
	ds.AssertExpectations(t)
}

func TestRunOnceFailsMalformedRowAndContinues(t *testing.T) {
	config.MockConfig(testConfig())

	claimed := []model.Activity{
		{ID: 1, SceneRef: "scene-bad", Stage: model.Stage{}, Status: model.StatusDoing, Priority: 1},
		{ID: 2, SceneRef: "scene-good", Stage: model.Stage{Name: model.StageUpload, Kind: model.KindLandsat}, Status: model.StatusDoing, Priority: 3},
	}

	ds := new(mocks.MockDataSource)
	ds.On("ClaimRunnable", mock.Anything, 10).Return(claimed, nil)
	ds.On("MarkError", mock.Anything, int64(1), 1, mock.Anything).Return(nil)
	ds.On("RecordDispatch", mock.Anything, mock.Anything).Return(int64(1), nil)

	enqueuer := &MockEnqueuer{}
	b := NewBuilderWithDeps(ds, enqueuer, newTestRedis(t), nil, nil, nil, nil)

	report, err := b.RunOnce(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Submitted)
	assert.Len(t, enqueuer.Submitted, 1)
	assert.Equal(t, "scene-good", enqueuer.Submitted[0].SceneRef)
	ds.AssertExpectations(t)
}

func TestRunOnceReleasesClaimOnEnqueueFailure(t *testing.T) {
	config.MockConfig(testConfig())

	claimed := []model.Activity{
		{ID: 5, SceneRef: "scene-broken-broker", Stage: model.Stage{Name: model.StageDownload, Kind: model.KindSentinel}, Status: model.StatusDoing, Priority: 4},
		{ID: 6, SceneRef: "scene-fine", Stage: model.Stage{Name: model.StageDownload, Kind: model.KindSentinel}, Status: model.StatusDoing, Priority: 4},
	}

	ds := new(mocks.MockDataSource)
	ds.On("ClaimRunnable", mock.Anything, 10).Return(claimed, nil)
	ds.On("ReleaseActivity", mock.Anything, int64(5)).Return(nil)
	ds.On("RecordDispatch", mock.Anything, mock.Anything).Return(int64(1), nil)

	enqueuer := &MockEnqueuer{FailFor: map[string]error{"scene-broken-broker": errors.New("broker down")}}
	b := NewBuilderWithDeps(ds, enqueuer, newTestRedis(t), nil, nil, nil, nil)

	report, err := b.RunOnce(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, report.Released)
	assert.Equal(t, 1, report.Submitted)
	ds.AssertExpectations(t)
	ds.AssertNotCalled(t, "MarkError", mock.Anything, int64(5), mock.Anything, mock.Anything)
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	config.MockConfig(testConfig())

	client, redisMock := redismock.NewClientMock()
	anyArgs := func(expected, actual []interface{}) error { return nil }
	redisMock.CustomMatch(anyArgs).ExpectSetNX(dispatchLockKey, "", 60*time.Second).SetVal(false)

	ds := new(mocks.MockDataSource)
	b := NewBuilderWithDeps(ds, &MockEnqueuer{}, client, nil, nil, nil, nil)

	report, err := b.RunOnce(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, report.Claimed)
	ds.AssertNotCalled(t, "ClaimRunnable", mock.Anything, mock.Anything)
}
