package database

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/brazil-data-cube/bdc-collection-builder-sub001/internal/apierror"
	"github.com/brazil-data-cube/bdc-collection-builder-sub001/model"
)

// UpsertCatalogScene writes the per-scene catalog record. Keyed on scene_ref
// so a re-run of the publish stage overwrites instead of duplicating.
func (d Datasource) UpsertCatalogScene(ctx context.Context, s *model.CatalogScene) error {
	ctx, span := otel.Tracer("catalog.database").Start(ctx, "Upserting catalog scene")
	defer span.End()

	err := d.Conn.QueryRowContext(ctx, `
		INSERT INTO catalog_scenes (scene_ref, kind, cloud_cover, min_x, min_y, max_x, max_y, crs, sensed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (scene_ref)
		DO UPDATE SET kind = EXCLUDED.kind, cloud_cover = EXCLUDED.cloud_cover,
		    min_x = EXCLUDED.min_x, min_y = EXCLUDED.min_y, max_x = EXCLUDED.max_x, max_y = EXCLUDED.max_y,
		    crs = EXCLUDED.crs, sensed_at = EXCLUDED.sensed_at
		RETURNING id
	`, s.SceneRef, string(s.Kind), s.CloudCover, s.Bounds[0], s.Bounds[1], s.Bounds[2], s.Bounds[3], s.CRS, s.SensedAt).Scan(&s.ID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to upsert catalog scene", err)
	}
	return nil
}

func (d Datasource) UpsertCatalogProduct(ctx context.Context, p *model.CatalogProduct) error {
	err := d.Conn.QueryRowContext(ctx, `
		INSERT INTO catalog_products (scene_ref, band, path)
		VALUES ($1, $2, $3)
		ON CONFLICT (scene_ref, band)
		DO UPDATE SET path = EXCLUDED.path
		RETURNING id
	`, p.SceneRef, p.Band, p.Path).Scan(&p.ID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to upsert catalog product", err)
	}
	return nil
}

func (d Datasource) UpsertCatalogQuicklook(ctx context.Context, q *model.CatalogQuicklook) error {
	err := d.Conn.QueryRowContext(ctx, `
		INSERT INTO catalog_quicklooks (scene_ref, path)
		VALUES ($1, $2)
		ON CONFLICT (scene_ref)
		DO UPDATE SET path = EXCLUDED.path
		RETURNING id
	`, q.SceneRef, q.Path).Scan(&q.ID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to upsert catalog quicklook", err)
	}
	return nil
}

// SearchCatalog is the read-only query surface over published scenes. The
// filter builds a parameterized WHERE clause; values are never interpolated.
func (d Datasource) SearchCatalog(ctx context.Context, filter model.CatalogFilter) ([]model.CatalogScene, error) {
	query := `
		SELECT id, scene_ref, kind, cloud_cover, min_x, min_y, max_x, max_y, crs, sensed_at, created_at
		FROM catalog_scenes
		WHERE 1=1`
	var args []interface{}

	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		query += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	if filter.SceneRef != "" {
		args = append(args, filter.SceneRef)
		query += fmt.Sprintf(" AND scene_ref = $%d", len(args))
	}
	if filter.MaxCloudCover != nil {
		args = append(args, *filter.MaxCloudCover)
		query += fmt.Sprintf(" AND cloud_cover <= $%d", len(args))
	}
	if filter.SensedAfter != nil {
		args = append(args, *filter.SensedAfter)
		query += fmt.Sprintf(" AND sensed_at >= $%d", len(args))
	}
	if filter.SensedBefore != nil {
		args = append(args, *filter.SensedBefore)
		query += fmt.Sprintf(" AND sensed_at <= $%d", len(args))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY sensed_at DESC LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to search catalog", err)
	}
	defer rows.Close()

	var scenes []model.CatalogScene
	for rows.Next() {
		var s model.CatalogScene
		var kind string
		if err := rows.Scan(&s.ID, &s.SceneRef, &kind, &s.CloudCover,
			&s.Bounds[0], &s.Bounds[1], &s.Bounds[2], &s.Bounds[3], &s.CRS, &s.SensedAt, &s.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan catalog scene", err)
		}
		s.Kind = model.SceneKind(kind)
		scenes = append(scenes, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to iterate catalog scenes", err)
	}
	return scenes, nil
}

func (d Datasource) GetCatalogProducts(ctx context.Context, sceneRef string) ([]model.CatalogProduct, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, scene_ref, band, path
		FROM catalog_products
		WHERE scene_ref = $1
		ORDER BY band ASC
	`, sceneRef)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve catalog products", err)
	}
	defer rows.Close()

	var products []model.CatalogProduct
	for rows.Next() {
		var p model.CatalogProduct
		if err := rows.Scan(&p.ID, &p.SceneRef, &p.Band, &p.Path); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan catalog product", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to iterate catalog products", err)
	}
	return products, nil
}
