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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/brazil-data-cube/bdc-collection-builder-sub001/config"
	"github.com/brazil-data-cube/bdc-collection-builder-sub001/database/mocks"
	"github.com/brazil-data-cube/bdc-collection-builder-sub001/model"
)

func TestRestartSingleActivity(t *testing.T) {
	config.MockConfig(testConfig())

	id := int64(5)
	revived := []model.Activity{
		{ID: 5, SceneRef: "scene-a", Stage: model.Stage{Name: model.StageCorrect, Kind: model.KindSentinel}, Status: model.StatusDoing, Priority: 1},
	}

	ds := new(mocks.MockDataSource)
	ds.On("ResetActivity", mock.Anything, id).Return(nil)
	ds.On("ClaimRunnable", mock.Anything, 10).Return(revived, nil)
	ds.On("RecordDispatch", mock.Anything, mock.Anything).Return(int64(1), nil)

	enqueuer := &MockEnqueuer{}
	b := NewBuilderWithDeps(ds, enqueuer, newTestRedis(t), nil, nil, nil, nil)

	report, err := b.Restart(context.Background(), &id)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), report.Revived)
	assert.Equal(t, 1, report.Dispatch.Submitted)
	assert.Len(t, enqueuer.Submitted, 1)
	ds.AssertExpectations(t)
	ds.AssertNotCalled(t, "ResetActivities", mock.Anything)
}

func TestRestartAllRevivesEveryResettableRow(t *testing.T) {
	config.MockConfig(testConfig())

	ds := new(mocks.MockDataSource)
	ds.On("ResetActivities", mock.Anything).Return(int64(3), nil)
	ds.On("ClaimRunnable", mock.Anything, 10).Return([]model.Activity{}, nil)

	b := NewBuilderWithDeps(ds, &MockEnqueuer{}, newTestRedis(t), nil, nil, nil, nil)

	report, err := b.Restart(context.Background(), nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), report.Revived)
	assert.Equal(t, 0, report.Dispatch.Claimed)
	ds.AssertExpectations(t)
}

func TestRecoverStuckActivities(t *testing.T) {
	config.MockConfig(testConfig())

	claimedAt := time.Now().Add(-2 * time.Hour)
	stuck := []model.Activity{
		{ID: 1, SceneRef: "scene-a", Stage: model.Stage{Name: model.StageDownload, Kind: model.KindSentinel}, Status: model.StatusDoing, ClaimedAt: &claimedAt},
		{ID: 2, SceneRef: "scene-b", Stage: model.Stage{Name: model.StagePublish, Kind: model.KindLandsat}, Status: model.StatusDoing, ClaimedAt: &claimedAt},
	}

	ds := new(mocks.MockDataSource)
	ds.On("StuckActivities", mock.Anything, time.Hour, 500).Return(stuck, nil)
	ds.On("ReleaseActivity", mock.Anything, int64(1)).Return(nil)
	ds.On("ReleaseActivity", mock.Anything, int64(2)).Return(nil)

	b := NewBuilderWithDeps(ds, &MockEnqueuer{}, nil, nil, nil, nil, nil)

	released, err := b.RecoverStuckActivities(context.Background(), time.Hour, 500)
	assert.NoError(t, err)
	assert.Equal(t, 2, released)
	ds.AssertExpectations(t)
}

func TestStuckRecoveryThresholdFloor(t *testing.T) {
	cfg := testConfig()
	cfg.Dispatch.StuckThresholdSec = 10
	config.MockConfig(cfg)

	p := NewStuckActivityRecovery(NewBuilderWithDeps(new(mocks.MockDataSource), &MockEnqueuer{}, nil, nil, nil, nil, nil))
	assert.Equal(t, 2*time.Minute, p.stuckThreshold)
}

func TestStuckRecoveryStartStop(t *testing.T) {
	config.MockConfig(testConfig())

	ds := new(mocks.MockDataSource)
	p := NewStuckActivityRecovery(NewBuilderWithDeps(ds, &MockEnqueuer{}, nil, nil, nil, nil, nil))

	p.Start(context.Background())
	assert.True(t, p.IsRunning())

	// Starting twice is a no-op.
	p.Start(context.Background())
	assert.True(t, p.IsRunning())

	p.Stop()
	assert.False(t, p.IsRunning())
}
