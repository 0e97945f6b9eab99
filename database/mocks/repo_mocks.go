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
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/brazil-data-cube/bdc-collection-builder-sub001/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Activity-ledger methods

func (m *MockDataSource) UpsertActivity(ctx context.Context, a *model.Activity) (int64, error) {
	args := m.Called(ctx, a)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) ListRunnable(ctx context.Context) ([]model.Activity, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Activity), args.Error(1)
}

func (m *MockDataSource) ClaimRunnable(ctx context.Context, limit int) ([]model.Activity, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]model.Activity), args.Error(1)
}

func (m *MockDataSource) ClaimActivity(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) GetActivity(ctx context.Context, id int64) (*model.Activity, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Activity), args.Error(1)
}

func (m *MockDataSource) GetActivities(ctx context.Context, status model.Status, limit, offset int) ([]model.Activity, error) {
	args := m.Called(ctx, status, limit, offset)
	return args.Get(0).([]model.Activity), args.Error(1)
}

func (m *MockDataSource) MarkStarted(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDataSource) MarkDone(ctx context.Context, id int64, outputRef string) error {
	args := m.Called(ctx, id, outputRef)
	return args.Error(0)
}

func (m *MockDataSource) MarkError(ctx context.Context, id int64, retcode int, message string) error {
	args := m.Called(ctx, id, retcode, message)
	return args.Error(0)
}

func (m *MockDataSource) SuspendActivity(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDataSource) ReleaseActivity(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDataSource) ResetActivity(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDataSource) ResetActivities(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) StuckActivities(ctx context.Context, threshold time.Duration, limit int) ([]model.Activity, error) {
	args := m.Called(ctx, threshold, limit)
	return args.Get(0).([]model.Activity), args.Error(1)
}

// Dispatch-history methods

func (m *MockDataSource) RecordDispatch(ctx context.Context, h *model.ActivityHistory) (int64, error) {
	args := m.Called(ctx, h)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) GetActivityHistory(ctx context.Context, activityID int64) ([]model.ActivityHistory, error) {
	args := m.Called(ctx, activityID)
	return args.Get(0).([]model.ActivityHistory), args.Error(1)
}

// Catalog methods

func (m *MockDataSource) UpsertCatalogScene(ctx context.Context, s *model.CatalogScene) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockDataSource) UpsertCatalogProduct(ctx context.Context, p *model.CatalogProduct) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockDataSource) UpsertCatalogQuicklook(ctx context.Context, q *model.CatalogQuicklook) error {
	args := m.Called(ctx, q)
	return args.Error(0)
}

func (m *MockDataSource) SearchCatalog(ctx context.Context, filter model.CatalogFilter) ([]model.CatalogScene, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]model.CatalogScene), args.Error(1)
}

func (m *MockDataSource) GetCatalogProducts(ctx context.Context, sceneRef string) ([]model.CatalogProduct, error) {
	args := m.Called(ctx, sceneRef)
	return args.Get(0).([]model.CatalogProduct), args.Error(1)
}
