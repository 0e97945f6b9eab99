package database

import (
	"context"

	"github.com/brazil-data-cube/bdc-collection-builder-sub001/internal/apierror"
	"github.com/brazil-data-cube/bdc-collection-builder-sub001/model"
)

// RecordDispatch appends one dispatch attempt to the audit trail. History
// rows are never updated or deleted.
func (d Datasource) RecordDispatch(ctx context.Context, h *model.ActivityHistory) (int64, error) {
	var id int64
	err := d.Conn.QueryRowContext(ctx, `
		INSERT INTO activity_history (activity_id, task_id, start, env)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, h.ActivityID, h.TaskID, h.Start, h.Env).Scan(&id)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record dispatch history", err)
	}
	h.ID = id
	return id, nil
}

func (d Datasource) GetActivityHistory(ctx context.Context, activityID int64) ([]model.ActivityHistory, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, activity_id, task_id, start, env
		FROM activity_history
		WHERE activity_id = $1
		ORDER BY start ASC
	`, activityID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve activity history", err)
	}
	defer rows.Close()

	var entries []model.ActivityHistory
	for rows.Next() {
		var h model.ActivityHistory
		var env *string
		if err := rows.Scan(&h.ID, &h.ActivityID, &h.TaskID, &h.Start, &env); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan history row", err)
		}
		if env != nil {
			h.Env = *env
		}
		entries = append(entries, h)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to iterate history rows", err)
	}
	return entries, nil
}
