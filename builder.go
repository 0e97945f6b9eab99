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
	"embed"
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/brazil-data-cube/bdc-collection-builder-sub001/config"
	"github.com/brazil-data-cube/bdc-collection-builder-sub001/database"
	"github.com/brazil-data-cube/bdc-collection-builder-sub001/internal/credpool"
	redis_db "github.com/brazil-data-cube/bdc-collection-builder-sub001/internal/redis-db"
	"github.com/brazil-data-cube/bdc-collection-builder-sub001/internal/storage"
	"github.com/brazil-data-cube/bdc-collection-builder-sub001/model"
	"github.com/redis/go-redis/v9"
)

var tracer = otel.Tracer("builder")

//go:embed sql/*.sql
var SQLFiles embed.FS

// Builder is the orchestrator core: it owns the ledger datasource, the task
// queue and the stage collaborators.
type Builder struct {
	datasource database.IDataSource
	queue      Enqueuer
	redis      redis.UniversalClient
	downloader Downloader
	corrector  Corrector
	publisher  Publisher
	uploader   UploadTransport
}

// NewBuilder initializes a Builder with the provided ledger datasource and
// the default collaborators built from configuration.
func NewBuilder(db database.IDataSource) (*Builder, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)}, configuration.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}

	pool := credpool.New(configuration.Download.MaxParallel)
	uploader, err := storage.NewUploader(context.Background(), configuration.Storage)
	if err != nil {
		return nil, err
	}

	newBuilder := &Builder{
		datasource: db,
		queue:      NewQueue(configuration),
		redis:      redisClient.Client(),
		downloader: NewHTTPDownloader(configuration.Download, pool),
		corrector:  NewCommandCorrector(""),
		publisher:  NewCommandPublisher(""),
		uploader:   NewS3Transport(uploader, configuration.Storage.S3BucketName),
	}
	return newBuilder, nil
}

// NewBuilderWithDeps wires a Builder from explicit collaborators. Tests use
// it to substitute fakes.
func NewBuilderWithDeps(db database.IDataSource, queue Enqueuer, redisClient redis.UniversalClient, downloader Downloader, corrector Corrector, publisher Publisher, uploader UploadTransport) *Builder {
	return &Builder{
		datasource: db,
		queue:      queue,
		redis:      redisClient,
		downloader: downloader,
		corrector:  corrector,
		publisher:  publisher,
		uploader:   uploader,
	}
}

// IngestScene is the external ingestion trigger: it upserts the first-stage
// activity for a scene so the next dispatch pass picks it up. Re-ingesting a
// scene whose download is still open updates the row instead of duplicating
// it.
func (b *Builder) IngestScene(ctx context.Context, sceneRef, link string, kind model.SceneKind) (*model.Activity, error) {
	activity := &model.Activity{
		SceneRef: sceneRef,
		Stage:    model.Stage{Name: model.StageDownload, Kind: kind},
		Status:   model.StatusNotDone,
		Priority: StagePriority(model.StageDownload),
		InputRef: link,
	}
	if !activity.Stage.Valid() {
		return nil, fmt.Errorf("unknown scene kind %q", kind)
	}

	if _, err := b.datasource.UpsertActivity(ctx, activity); err != nil {
		return nil, err
	}
	return activity, nil
}

// GetActivity exposes one ledger row with its dispatch history.
func (b *Builder) GetActivity(ctx context.Context, id int64) (*model.Activity, []model.ActivityHistory, error) {
	activity, err := b.datasource.GetActivity(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	history, err := b.datasource.GetActivityHistory(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return activity, history, nil
}

// GetActivities lists ledger rows, optionally filtered by status.
func (b *Builder) GetActivities(ctx context.Context, status model.Status, limit, offset int) ([]model.Activity, error) {
	return b.datasource.GetActivities(ctx, status, limit, offset)
}

// SearchCatalog queries published scenes. Read-only; the catalog is written
// only by the publish stage.
func (b *Builder) SearchCatalog(ctx context.Context, filter model.CatalogFilter) ([]model.CatalogScene, error) {
	return b.datasource.SearchCatalog(ctx, filter)
}

// GetCatalogProducts lists the published band files of one scene.
func (b *Builder) GetCatalogProducts(ctx context.Context, sceneRef string) ([]model.CatalogProduct, error) {
	return b.datasource.GetCatalogProducts(ctx, sceneRef)
}
