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
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/brazil-data-cube/bdc-collection-builder-sub001/internal/notification"
	"github.com/brazil-data-cube/bdc-collection-builder-sub001/model"
)

// stageFunc runs one stage body for a claimed activity and returns the
// output reference recorded on success. The activity may be mutated (args
// for downstream stages).
type stageFunc func(ctx context.Context, activity *model.Activity) (string, error)

// ExecuteActivity is the worker-side entry point for a dispatched activity.
// It applies the shared stage protocol: stamp the start, run the stage body,
// close the row as DONE or ERROR, and on success upsert and enqueue the next
// stage of the chain. The ledger row is always closed here; errors are not
// propagated to the execution substrate, so a failed stage is retried only
// through an explicit restart.
func (b *Builder) ExecuteActivity(ctx context.Context, activity *model.Activity) error {
	ctx, span := tracer.Start(ctx, fmt.Sprintf("Executing %s", activity.Stage.String()))
	defer span.End()

	var fn stageFunc
	switch activity.Stage.Name {
	case model.StageDownload:
		fn = b.downloadStage
	case model.StageCorrect:
		fn = b.correctStage
	case model.StagePublish:
		fn = b.publishStage
	case model.StageUpload:
		fn = b.uploadStage
	default:
		return b.failActivity(ctx, activity, 1, fmt.Sprintf("no executor for stage %q", activity.Stage.String()))
	}

	if err := b.datasource.MarkStarted(ctx, activity.ID); err != nil {
		return errors.Wrap(err, "marking activity started")
	}

	outputRef, err := fn(ctx, activity)
	if err != nil {
		return b.failActivity(ctx, activity, retcodeOf(err), err.Error())
	}

	if err := b.datasource.MarkDone(ctx, activity.ID, outputRef); err != nil {
		return errors.Wrap(err, "marking activity done")
	}
	logrus.Infof("activity %d (%s %s) done: %s", activity.ID, activity.Stage.String(), activity.SceneRef, outputRef)

	return b.chainNext(ctx, activity, outputRef)
}

// chainNext upserts the follow-up stage row and hands it to the queue. The
// chain lives only here: each completed stage creates exactly the next link,
// carrying its output forward as the input reference.
func (b *Builder) chainNext(ctx context.Context, activity *model.Activity, outputRef string) error {
	next, err := NextStage(*activity)
	if err != nil {
		return err
	}
	if next == nil {
		logrus.Infof("scene %s pipeline complete", activity.SceneRef)
		return nil
	}

	followUp := &model.Activity{
		SceneRef: activity.SceneRef,
		Stage:    *next,
		Status:   model.StatusNotDone,
		Priority: StagePriority(next.Name),
		InputRef: outputRef,
		Args:     activity.Args,
	}
	id, err := b.datasource.UpsertActivity(ctx, followUp)
	if err != nil {
		notification.NotifyError(errors.Wrapf(err, "chaining %s after %s for scene %s", next.String(), activity.Stage.String(), activity.SceneRef))
		return err
	}
	followUp.ID = id

	// Claim the fresh row before handing it to the queue. Losing the claim
	// means a concurrent dispatch pass got there first, which is fine.
	claimed, err := b.datasource.ClaimActivity(ctx, id)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}
	followUp.Status = model.StatusDoing

	if _, err := b.queue.EnqueueActivity(ctx, followUp); err != nil {
		if releaseErr := b.datasource.ReleaseActivity(ctx, id); releaseErr != nil {
			logrus.Errorf("releasing activity %d after enqueue failure: %v", id, releaseErr)
		}
		return err
	}
	return nil
}

// failActivity closes the row as ERROR with diagnostics and notifies. The
// chain halts here; downstream stages are never created for a failed scene.
func (b *Builder) failActivity(ctx context.Context, activity *model.Activity, retcode int, message string) error {
	if err := b.datasource.MarkError(ctx, activity.ID, retcode, message); err != nil {
		return errors.Wrap(err, "marking activity errored")
	}
	notification.NotifyError(fmt.Errorf("activity %d (%s %s) failed: %s", activity.ID, activity.Stage.String(), activity.SceneRef, message))
	return nil
}

// retcodeOf maps a stage error to the retcode column. Stage runners that
// shell out attach the process exit code; everything else records 1.
func retcodeOf(err error) int {
	var exitErr *exitCodeError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	return 1
}

// exitCodeError carries a subprocess exit code through the error chain.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }
