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

package database

import (
	"context"
	"time"

	"github.com/brazil-data-cube/bdc-collection-builder-sub001/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	activity // Interface for activity-ledger operations
	history  // Interface for dispatch-history operations
	catalog  // Interface for catalog operations
}

// activity defines the ledger operations. Every mutation is a single atomic
// statement; the upsert by natural key is the only deduplication mechanism.
type activity interface {
	UpsertActivity(ctx context.Context, a *model.Activity) (int64, error)                             // Inserts or updates the open row matching (scene_ref, stage)
	ListRunnable(ctx context.Context) ([]model.Activity, error)                                       // NOTDONE rows, priority ASC then id ASC
	ClaimRunnable(ctx context.Context, limit int) ([]model.Activity, error)                           // Atomically flips NOTDONE rows to DOING and returns them in dispatch order
	ClaimActivity(ctx context.Context, id int64) (bool, error)                                        // Claims one specific NOTDONE row, for executor-side chaining
	GetActivity(ctx context.Context, id int64) (*model.Activity, error)                               // Retrieves one row by id
	GetActivities(ctx context.Context, status model.Status, limit, offset int) ([]model.Activity, error) // Retrieves rows filtered by status
	MarkStarted(ctx context.Context, id int64) error                                                  // Stamps started_at on a claimed row
	MarkDone(ctx context.Context, id int64, outputRef string) error                                   // DOING -> DONE with output_ref, retcode 0 and elapsed
	MarkError(ctx context.Context, id int64, retcode int, message string) error                       // DOING -> ERROR with diagnostics
	SuspendActivity(ctx context.Context, id int64) error                                              // DOING -> SUSPEND, operator hold
	ReleaseActivity(ctx context.Context, id int64) error                                              // DOING -> NOTDONE, returns a failed claim to the pool
	ResetActivity(ctx context.Context, id int64) error                                                // Revives one non-DONE row to NOTDONE
	ResetActivities(ctx context.Context) (int64, error)                                               // Revives all ERROR/DOING/SUSPEND rows, returns count
	StuckActivities(ctx context.Context, threshold time.Duration, limit int) ([]model.Activity, error) // DOING rows claimed longer ago than threshold
}

// history defines the append-only dispatch audit trail.
type history interface {
	RecordDispatch(ctx context.Context, h *model.ActivityHistory) (int64, error)
	GetActivityHistory(ctx context.Context, activityID int64) ([]model.ActivityHistory, error)
}

// catalog defines the metadata catalog written by the publish stage and read
// by the search surface. Writes are idempotent upserts by natural key.
type catalog interface {
	UpsertCatalogScene(ctx context.Context, s *model.CatalogScene) error
	UpsertCatalogProduct(ctx context.Context, p *model.CatalogProduct) error
	UpsertCatalogQuicklook(ctx context.Context, q *model.CatalogQuicklook) error
	SearchCatalog(ctx context.Context, filter model.CatalogFilter) ([]model.CatalogScene, error)
	GetCatalogProducts(ctx context.Context, sceneRef string) ([]model.CatalogProduct, error)
}
