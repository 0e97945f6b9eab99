package database

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/brazil-data-cube/bdc-collection-builder-sub001/model"
)

func TestUpsertCatalogScene(t *testing.T) {
	ds, mock := newDatasource(t)

	scene := &model.CatalogScene{
		SceneRef:   "S2A_MSIL2A_20240101T132231",
		Kind:       model.KindSentinel,
		CloudCover: 12.5,
		Bounds:     [4]float64{-46.1, -23.7, -45.2, -22.9},
		CRS:        "EPSG:4326",
		SensedAt:   time.Date(2024, 1, 1, 13, 22, 31, 0, time.UTC),
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO catalog_scenes")).
		WithArgs(scene.SceneRef, "sentinel", scene.CloudCover,
			scene.Bounds[0], scene.Bounds[1], scene.Bounds[2], scene.Bounds[3], scene.CRS, scene.SensedAt).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))

	assert.NoError(t, ds.UpsertCatalogScene(context.Background(), scene))
	assert.Equal(t, int64(3), scene.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCatalogProductOverwritesByBand(t *testing.T) {
	ds, mock := newDatasource(t)

	product := &model.CatalogProduct{SceneRef: "S2A_MSIL2A_20240101T132231", Band: "B04", Path: "/published/B04.tif"}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO catalog_products")).
		WithArgs(product.SceneRef, product.Band, product.Path).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(8)))

	assert.NoError(t, ds.UpsertCatalogProduct(context.Background(), product))
	assert.Equal(t, int64(8), product.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchCatalogBuildsFilteredQuery(t *testing.T) {
	ds, mock := newDatasource(t)

	maxCC := 20.0
	sensed := time.Date(2024, 1, 1, 13, 22, 31, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "scene_ref", "kind", "cloud_cover", "min_x", "min_y", "max_x", "max_y", "crs", "sensed_at", "created_at"}).
		AddRow(int64(1), "S2A_MSIL2A_20240101T132231", "sentinel", 12.5, -46.1, -23.7, -45.2, -22.9, "EPSG:4326", sensed, sensed)

	mock.ExpectQuery(regexp.QuoteMeta("FROM catalog_scenes")).
		WithArgs("sentinel", maxCC, 50, 0).
		WillReturnRows(rows)

	scenes, err := ds.SearchCatalog(context.Background(), model.CatalogFilter{
		Kind:          model.KindSentinel,
		MaxCloudCover: &maxCC,
	})
	assert.NoError(t, err)
	assert.Len(t, scenes, 1)
	assert.Equal(t, model.KindSentinel, scenes[0].Kind)
	assert.Equal(t, [4]float64{-46.1, -23.7, -45.2, -22.9}, scenes[0].Bounds)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCatalogProducts(t *testing.T) {
	ds, mock := newDatasource(t)

	rows := sqlmock.NewRows([]string{"id", "scene_ref", "band", "path"}).
		AddRow(int64(1), "scene-a", "B04", "/published/B04.tif").
		AddRow(int64(2), "scene-a", "B08", "/published/B08.tif")

	mock.ExpectQuery(regexp.QuoteMeta("FROM catalog_products")).
		WithArgs("scene-a").
		WillReturnRows(rows)

	products, err := ds.GetCatalogProducts(context.Background(), "scene-a")
	assert.NoError(t, err)
	assert.Len(t, products, 2)
	assert.Equal(t, "B04", products[0].Band)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordDispatchAppendsHistory(t *testing.T) {
	ds, mock := newDatasource(t)

	h := &model.ActivityHistory{
		ActivityID: 7,
		TaskID:     "correct-sentinel:S2A_MSIL1C_20240101T132231",
		Start:      time.Now(),
		Env:        "worker-1",
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO activity_history")).
		WithArgs(h.ActivityID, h.TaskID, h.Start, h.Env).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(99)))

	id, err := ds.RecordDispatch(context.Background(), h)
	assert.NoError(t, err)
	assert.Equal(t, int64(99), id)
	assert.Equal(t, int64(99), h.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetActivityHistoryOrdered(t *testing.T) {
	ds, mock := newDatasource(t)

	first := time.Now().Add(-time.Hour)
	second := time.Now()
	rows := sqlmock.NewRows([]string{"id", "activity_id", "task_id", "start", "env"}).
		AddRow(int64(1), int64(7), "download-sentinel:scene-a", first, "worker-1").
		AddRow(int64(2), int64(7), "download-sentinel:scene-a", second, nil)

	mock.ExpectQuery(regexp.QuoteMeta("FROM activity_history")).
		WithArgs(int64(7)).
		WillReturnRows(rows)

	entries, err := ds.GetActivityHistory(context.Background(), 7)
	assert.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, "worker-1", entries[0].Env)
	assert.Empty(t, entries[1].Env)
	assert.NoError(t, mock.ExpectationsWereMet())
}
