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

	"github.com/brazil-data-cube/bdc-collection-builder-sub001/model"
)

// MockEnqueuer records submissions in order instead of talking to a broker.
type MockEnqueuer struct {
	Submitted []model.Activity
	Err       error
	FailFor   map[string]error // keyed by scene_ref
}

func (m *MockEnqueuer) EnqueueActivity(ctx context.Context, activity *model.Activity) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	if err, ok := m.FailFor[activity.SceneRef]; ok && err != nil {
		return "", err
	}
	m.Submitted = append(m.Submitted, *activity)
	return "task-" + activity.SceneRef, nil
}

// MockDownloader substitutes the download transport.
type MockDownloader struct {
	FetchFunc     func(ctx context.Context, link, dest string) error
	IntegrityFunc func(path string) error
	Fetched       []string
}

func (m *MockDownloader) Fetch(ctx context.Context, link, dest string) error {
	m.Fetched = append(m.Fetched, link)
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, link, dest)
	}
	return nil
}

func (m *MockDownloader) IntegrityCheck(path string) error {
	if m.IntegrityFunc != nil {
		return m.IntegrityFunc(path)
	}
	return nil
}

// MockCorrector substitutes the correction toolchain.
type MockCorrector struct {
	CorrectFunc func(ctx context.Context, kind model.SceneKind, input, outputDir string) (string, error)
	Calls       int
}

func (m *MockCorrector) Correct(ctx context.Context, kind model.SceneKind, input, outputDir string) (string, error) {
	m.Calls++
	if m.CorrectFunc != nil {
		return m.CorrectFunc(ctx, kind, input, outputDir)
	}
	return input + ".corrected", nil
}

// MockPublisher substitutes the raster backend.
type MockPublisher struct {
	PublishFunc func(ctx context.Context, kind model.SceneKind, input string) (*model.PublishResult, error)
}

func (m *MockPublisher) Publish(ctx context.Context, kind model.SceneKind, input string) (*model.PublishResult, error) {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, kind, input)
	}
	return &model.PublishResult{}, nil
}

// MockUploadTransport substitutes the object store.
type MockUploadTransport struct {
	PutFunc func(ctx context.Context, path, key string) error
	HasFunc func(ctx context.Context, key string, size int64) (bool, error)
	Keys    []string
}

func (m *MockUploadTransport) Put(ctx context.Context, path, key string) error {
	m.Keys = append(m.Keys, key)
	if m.PutFunc != nil {
		return m.PutFunc(ctx, path, key)
	}
	return nil
}

func (m *MockUploadTransport) Has(ctx context.Context, key string, size int64) (bool, error) {
	if m.HasFunc != nil {
		return m.HasFunc(ctx, key, size)
	}
	return false, nil
}
