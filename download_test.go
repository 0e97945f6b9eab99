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
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"

	"github.com/brazil-data-cube/bdc-collection-builder-sub001/config"
	"github.com/brazil-data-cube/bdc-collection-builder-sub001/internal/credpool"
	"github.com/brazil-data-cube/bdc-collection-builder-sub001/model"
)

func newTestDownloader(t *testing.T) *HTTPDownloader {
	t.Helper()
	d := NewHTTPDownloader(config.DownloadConfig{
		MaxParallel:  2,
		MinSizeBytes: 16,
		Username:     "builder",
		Password:     "secret",
	}, credpool.New(2))
	httpmock.ActivateNonDefault(d.client)
	t.Cleanup(httpmock.DeactivateAndReset)
	return d
}

func TestFetchWritesArchiveAndKeepsNoPartFile(t *testing.T) {
	d := newTestDownloader(t)

	payload := bytes.Repeat([]byte("scene-data"), 10)
	httpmock.RegisterResponder("GET", "https://provider.example/scene.zip",
		httpmock.NewBytesResponder(200, payload))

	dest := filepath.Join(t.TempDir(), "sentinel", "scene.zip")
	err := d.Fetch(context.Background(), "https://provider.example/scene.zip", dest)
	assert.NoError(t, err)

	got, err := os.ReadFile(dest)
	assert.NoError(t, err)
	assert.Equal(t, payload, got)

	entries, err := os.ReadDir(filepath.Dir(dest))
	assert.NoError(t, err)
	assert.Len(t, entries, 1)

	// Permit returned after the fetch.
	assert.Equal(t, 2, d.pool.Available())
}

func TestFetchSendsProviderCredentials(t *testing.T) {
	d := newTestDownloader(t)

	var authHeader string
	httpmock.RegisterResponder("GET", "https://provider.example/scene.zip",
		func(req *http.Request) (*http.Response, error) {
			authHeader = req.Header.Get("Authorization")
			return httpmock.NewBytesResponse(200, bytes.Repeat([]byte("x"), 32)), nil
		})

	dest := filepath.Join(t.TempDir(), "scene.zip")
	err := d.Fetch(context.Background(), "https://provider.example/scene.zip", dest)
	assert.NoError(t, err)
	assert.Equal(t, "Basic YnVpbGRlcjpzZWNyZXQ=", authHeader)
}

func TestFetchRejectsUndersizedBody(t *testing.T) {
	d := newTestDownloader(t)

	// Providers answer throttled requests with a tiny HTML page and 200.
	httpmock.RegisterResponder("GET", "https://provider.example/scene.zip",
		httpmock.NewStringResponder(200, "<html>"))

	dest := filepath.Join(t.TempDir(), "scene.zip")
	err := d.Fetch(context.Background(), "https://provider.example/scene.zip", dest)
	assert.Error(t, err)
	assert.NoFileExists(t, dest)
}

func TestFetchDoesNotRetryAuthFailure(t *testing.T) {
	d := newTestDownloader(t)

	httpmock.RegisterResponder("GET", "https://provider.example/scene.zip",
		httpmock.NewStringResponder(401, "unauthorized"))

	dest := filepath.Join(t.TempDir(), "scene.zip")
	err := d.Fetch(context.Background(), "https://provider.example/scene.zip", dest)
	assert.Error(t, err)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
	assert.Equal(t, 2, d.pool.Available())
}

func TestFetchRetriesServerErrors(t *testing.T) {
	d := newTestDownloader(t)

	calls := 0
	httpmock.RegisterResponder("GET", "https://provider.example/scene.zip",
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls < 3 {
				return httpmock.NewStringResponse(503, "busy"), nil
			}
			return httpmock.NewBytesResponse(200, bytes.Repeat([]byte("x"), 32)), nil
		})

	dest := filepath.Join(t.TempDir(), "scene.zip")
	err := d.Fetch(context.Background(), "https://provider.example/scene.zip", dest)
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestUploadStagePushesMissingFilesOnly(t *testing.T) {
	config.MockConfig(testConfig())

	dir := t.TempDir()
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "B04.tif"), []byte("band 4"), 0o644))
	assert.NoError(t, os.MkdirAll(filepath.Join(dir, "meta"), 0o755))
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "meta", "scene.json"), []byte("{}"), 0o644))

	transport := &MockUploadTransport{
		HasFunc: func(ctx context.Context, key string, size int64) (bool, error) {
			return filepath.Base(key) == "B04.tif", nil
		},
	}
	b := NewBuilderWithDeps(nil, nil, nil, nil, nil, nil, transport)

	activity := &model.Activity{
		ID:       60,
		SceneRef: "LC08_L2SP_231062_20240101",
		Stage:    model.Stage{Name: model.StageUpload, Kind: model.KindLandsat},
		Status:   model.StatusDoing,
		InputRef: dir,
	}
	out, err := b.uploadStage(context.Background(), activity)
	assert.NoError(t, err)
	assert.Equal(t, filepath.Join("scenes", "landsat", activity.SceneRef), out)
	assert.Equal(t, []string{"scenes/landsat/" + activity.SceneRef + "/meta/scene.json"}, transport.Keys)
}
