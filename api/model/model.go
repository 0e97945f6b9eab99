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
package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/brazil-data-cube/bdc-collection-builder-sub001/model"
)

// IngestScene is the ingestion request: one scene to feed into the pipeline.
type IngestScene struct {
	SceneRef string `json:"scene_ref"`
	Link     string `json:"link"`
	Kind     string `json:"kind"`
}

func (r *IngestScene) ValidateIngestScene() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.SceneRef, validation.Required),
		validation.Field(&r.Link, validation.Required),
		validation.Field(&r.Kind, validation.Required, validation.In(string(model.KindSentinel), string(model.KindLandsat))),
	)
}

func (r *IngestScene) SceneKind() model.SceneKind {
	return model.SceneKind(r.Kind)
}

// Restart is the recovery request. A nil ID means restart everything
// resettable.
type Restart struct {
	ID *int64 `json:"id"`
}

// CatalogQuery narrows the catalog search surface.
type CatalogQuery struct {
	Kind          string   `form:"kind"`
	SceneRef      string   `form:"scene_ref"`
	MaxCloudCover *float64 `form:"max_cloud_cover"`
	SensedAfter   string   `form:"sensed_after"`
	SensedBefore  string   `form:"sensed_before"`
	Limit         int      `form:"limit"`
	Offset        int      `form:"offset"`
}

func (q *CatalogQuery) ValidateCatalogQuery() error {
	return validation.ValidateStruct(q,
		validation.Field(&q.Kind, validation.In("", string(model.KindSentinel), string(model.KindLandsat))),
		validation.Field(&q.SensedAfter, validation.Date(time.RFC3339)),
		validation.Field(&q.SensedBefore, validation.Date(time.RFC3339)),
	)
}

// ToFilter converts the query into the catalog filter. Validation runs
// first, so date parse errors cannot reach here.
func (q *CatalogQuery) ToFilter() model.CatalogFilter {
	filter := model.CatalogFilter{
		Kind:          model.SceneKind(q.Kind),
		SceneRef:      q.SceneRef,
		MaxCloudCover: q.MaxCloudCover,
		Limit:         q.Limit,
		Offset:        q.Offset,
	}
	if t, err := time.Parse(time.RFC3339, q.SensedAfter); err == nil && q.SensedAfter != "" {
		filter.SensedAfter = &t
	}
	if t, err := time.Parse(time.RFC3339, q.SensedBefore); err == nil && q.SensedBefore != "" {
		filter.SensedBefore = &t
	}
	return filter
}
