package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/brazil-data-cube/bdc-collection-builder-sub001/internal/apierror"
	"github.com/brazil-data-cube/bdc-collection-builder-sub001/model"

	_ "github.com/lib/pq"
)

const activityColumns = `id, scene_ref, stage, status, priority, input_ref, output_ref, started_at, ended_at, claimed_at, elapsed_ms, retcode, message, args, created_at`

// UpsertActivity enqueues a unit of work. When an open (non-DONE) row already
// exists for (scene_ref, stage) the new fields overwrite it in place and the
// row returns to NOTDONE; otherwise a fresh row is inserted. Either way the
// row id is returned, so a re-dispatch never creates duplicate runnable work.
func (d Datasource) UpsertActivity(ctx context.Context, a *model.Activity) (int64, error) {
	ctx, span := otel.Tracer("activity.database").Start(ctx, "Upserting activity")
	defer span.End()

	argsJSON, err := json.Marshal(a.Args)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal activity args", err)
	}

	var id int64
	err = d.Conn.QueryRowContext(ctx, `
		INSERT INTO activities (scene_ref, stage, status, priority, input_ref, args)
		VALUES ($1, $2, 'NOTDONE', $3, $4, $5)
		ON CONFLICT (scene_ref, stage) WHERE status <> 'DONE'
		DO UPDATE SET priority = EXCLUDED.priority, input_ref = EXCLUDED.input_ref, args = EXCLUDED.args, status = 'NOTDONE'
		RETURNING id
	`, a.SceneRef, a.Stage.String(), a.Priority, a.InputRef, argsJSON).Scan(&id)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to upsert activity", err)
	}

	a.ID = id
	return id, nil
}

// ListRunnable returns all NOTDONE rows in dispatch order: priority
// ascending, id ascending within a tier. This ordering is the dispatch
// contract.
func (d Datasource) ListRunnable(ctx context.Context) ([]model.Activity, error) {
	rows, err := d.Conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM activities
		WHERE status = 'NOTDONE'
		ORDER BY priority ASC, id ASC
	`, activityColumns))
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list runnable activities", err)
	}
	defer rows.Close()

	return scanActivities(rows)
}

// ClaimRunnable atomically claims up to limit runnable rows: NOTDONE flips to
// DOING and claimed_at is stamped as part of the read, so two concurrent
// dispatch passes can never both submit the same row. SKIP LOCKED keeps
// competing passes from blocking on each other.
func (d Datasource) ClaimRunnable(ctx context.Context, limit int) ([]model.Activity, error) {
	ctx, span := otel.Tracer("activity.database").Start(ctx, "Claiming runnable activities")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, fmt.Sprintf(`
		UPDATE activities
		SET status = 'DOING', claimed_at = NOW()
		WHERE id IN (
			SELECT id FROM activities
			WHERE status = 'NOTDONE'
			ORDER BY priority ASC, id ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %s
	`, activityColumns), limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to claim runnable activities", err)
	}
	defer rows.Close()

	claimed, err := scanActivities(rows)
	if err != nil {
		return nil, err
	}

	// RETURNING does not guarantee order; restore the dispatch contract.
	sort.SliceStable(claimed, func(i, j int) bool {
		if claimed[i].Priority != claimed[j].Priority {
			return claimed[i].Priority < claimed[j].Priority
		}
		return claimed[i].ID < claimed[j].ID
	})
	return claimed, nil
}

// ClaimActivity claims one specific runnable row, used by an executor to
// chain the follow-up stage it just upserted without waiting for the next
// dispatch pass. Claiming a row that is no longer NOTDONE is not an error;
// the caller checks the returned flag.
func (d Datasource) ClaimActivity(ctx context.Context, id int64) (bool, error) {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE activities
		SET status = 'DOING', claimed_at = NOW()
		WHERE id = $1 AND status = 'NOTDONE'
	`, id)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to claim activity", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	return rowsAffected > 0, nil
}

func (d Datasource) GetActivity(ctx context.Context, id int64) (*model.Activity, error) {
	row := d.Conn.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM activities
		WHERE id = $1
	`, activityColumns), id)

	a, err := scanActivity(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Activity with ID '%d' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve activity", err)
	}
	return a, nil
}

func (d Datasource) GetActivities(ctx context.Context, status model.Status, limit, offset int) ([]model.Activity, error) {
	rows, err := d.Conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM activities
		WHERE ($1 = '' OR status = $1)
		ORDER BY id DESC
		LIMIT $2 OFFSET $3
	`, activityColumns), string(status), limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve activities", err)
	}
	defer rows.Close()

	return scanActivities(rows)
}

// MarkStarted stamps started_at when the executor picks the claim up.
func (d Datasource) MarkStarted(ctx context.Context, id int64) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE activities
		SET started_at = NOW()
		WHERE id = $1 AND status = 'DOING'
	`, id)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark activity started", err)
	}
	return requireRow(result, id)
}

// MarkDone completes an attempt: output_ref is written, retcode zeroed and
// elapsed computed from started_at, atomically with the status change. Only a
// DOING row can complete; DONE rows are immutable.
func (d Datasource) MarkDone(ctx context.Context, id int64, outputRef string) error {
	ctx, span := otel.Tracer("activity.database").Start(ctx, "Marking activity done")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE activities
		SET status = 'DONE',
		    output_ref = $2,
		    retcode = 0,
		    ended_at = NOW(),
		    elapsed_ms = (EXTRACT(EPOCH FROM (NOW() - COALESCE(started_at, claimed_at, NOW()))) * 1000)::BIGINT
		WHERE id = $1 AND status = 'DOING'
	`, id, outputRef)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark activity done", err)
	}
	return requireRow(result, id)
}

// MarkError fails an attempt with diagnostics. The row keeps its retcode and
// message until an operator restarts it.
func (d Datasource) MarkError(ctx context.Context, id int64, retcode int, message string) error {
	ctx, span := otel.Tracer("activity.database").Start(ctx, "Marking activity error")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE activities
		SET status = 'ERROR',
		    retcode = $2,
		    message = $3,
		    ended_at = NOW(),
		    elapsed_ms = (EXTRACT(EPOCH FROM (NOW() - COALESCE(started_at, claimed_at, NOW()))) * 1000)::BIGINT
		WHERE id = $1 AND status = 'DOING'
	`, id, retcode, message)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark activity error", err)
	}
	return requireRow(result, id)
}

// SuspendActivity is the operator hold: DOING -> SUSPEND. Only a restart
// brings the row back.
func (d Datasource) SuspendActivity(ctx context.Context, id int64) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE activities
		SET status = 'SUSPEND'
		WHERE id = $1 AND status = 'DOING'
	`, id)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to suspend activity", err)
	}
	return requireRow(result, id)
}

// ReleaseActivity returns a claimed row to the runnable pool without touching
// its diagnostics. Used when submission to the execution substrate fails
// after the claim.
func (d Datasource) ReleaseActivity(ctx context.Context, id int64) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE activities
		SET status = 'NOTDONE', claimed_at = NULL
		WHERE id = $1 AND status = 'DOING'
	`, id)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to release activity", err)
	}
	return requireRow(result, id)
}

// ResetActivity revives one row to NOTDONE. DONE rows are immutable and are
// never revived; retcode and message stay with the prior attempt.
func (d Datasource) ResetActivity(ctx context.Context, id int64) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE activities
		SET status = 'NOTDONE', claimed_at = NULL
		WHERE id = $1 AND status <> 'DONE'
	`, id)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to reset activity", err)
	}
	return requireRow(result, id)
}

// ResetActivities revives every ERROR, DOING and SUSPEND row to NOTDONE and
// returns how many rows were revived. DONE and NOTDONE rows are untouched.
func (d Datasource) ResetActivities(ctx context.Context) (int64, error) {
	ctx, span := otel.Tracer("activity.database").Start(ctx, "Resetting activities")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE activities
		SET status = 'NOTDONE', claimed_at = NULL
		WHERE status IN ('ERROR', 'DOING', 'SUSPEND')
	`)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to reset activities", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	return count, nil
}

// StuckActivities returns DOING rows whose claim is older than threshold.
// These are workers that died or collaborator calls that never returned.
func (d Datasource) StuckActivities(ctx context.Context, threshold time.Duration, limit int) ([]model.Activity, error) {
	cutoff := time.Now().Add(-threshold)
	rows, err := d.Conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM activities
		WHERE status = 'DOING' AND claimed_at IS NOT NULL AND claimed_at < $1
		ORDER BY claimed_at ASC
		LIMIT $2
	`, activityColumns), cutoff, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve stuck activities", err)
	}
	defer rows.Close()

	return scanActivities(rows)
}

func requireRow(result sql.Result, id int64) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Activity with ID '%d' not found or not in an eligible status", id), nil)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanActivity(row rowScanner) (*model.Activity, error) {
	a := &model.Activity{}
	var (
		stageRaw  string
		inputRef  sql.NullString
		outputRef sql.NullString
		message   sql.NullString
		elapsedMS int64
		argsJSON  []byte
	)
	err := row.Scan(&a.ID, &a.SceneRef, &stageRaw, &a.Status, &a.Priority, &inputRef, &outputRef,
		&a.StartedAt, &a.EndedAt, &a.ClaimedAt, &elapsedMS, &a.Retcode, &message, &argsJSON, &a.CreatedAt)
	if err != nil {
		return nil, err
	}

	// A row whose stage no longer parses (renamed stage, hand-edited data)
	// must not poison the whole scan. Leave the stage zero-valued; the
	// dispatcher fails the single row with a diagnostic.
	if stage, err := model.ParseStage(stageRaw); err == nil {
		a.Stage = stage
	}
	a.InputRef = inputRef.String
	a.OutputRef = outputRef.String
	a.Message = message.String
	a.Elapsed = time.Duration(elapsedMS) * time.Millisecond

	if len(argsJSON) > 0 {
		if err := json.Unmarshal(argsJSON, &a.Args); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func scanActivities(rows *sql.Rows) ([]model.Activity, error) {
	var activities []model.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan activity", err)
		}
		activities = append(activities, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to iterate activities", err)
	}
	return activities, nil
}
