package model

import (
	"encoding/json"
	"time"
)

// CatalogScene is the per-scene catalog record written once per successful
// publish stage.
type CatalogScene struct {
	ID         int64     `json:"id"`
	SceneRef   string    `json:"scene_ref"`
	Kind       SceneKind `json:"kind"`
	CloudCover float64   `json:"cloud_cover"`
	// Bounding box in lon/lat, [min_x, min_y, max_x, max_y].
	Bounds    [4]float64 `json:"bounds"`
	CRS       string     `json:"crs"`
	SensedAt  time.Time  `json:"sensed_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// CatalogProduct is one published band file of a scene.
type CatalogProduct struct {
	ID       int64  `json:"id"`
	SceneRef string `json:"scene_ref"`
	Band     string `json:"band"`
	Path     string `json:"path"`
}

// CatalogQuicklook is the browse image generated for a published scene.
type CatalogQuicklook struct {
	ID       int64  `json:"id"`
	SceneRef string `json:"scene_ref"`
	Path     string `json:"path"`
}

// PublishResult is what the raster backend reports for a published scene:
// the catalog record plus the derived files to register.
type PublishResult struct {
	Scene     CatalogScene     `json:"scene"`
	Products  []CatalogProduct `json:"products"`
	Quicklook CatalogQuicklook `json:"quicklook"`
}

// CatalogFilter narrows catalog searches on the read-only query surface.
type CatalogFilter struct {
	Kind          SceneKind  `json:"kind,omitempty"`
	SceneRef      string     `json:"scene_ref,omitempty"`
	MaxCloudCover *float64   `json:"max_cloud_cover,omitempty"`
	SensedAfter   *time.Time `json:"sensed_after,omitempty"`
	SensedBefore  *time.Time `json:"sensed_before,omitempty"`
	Limit         int        `json:"limit,omitempty"`
	Offset        int        `json:"offset,omitempty"`
}

func (r *PublishResult) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}
