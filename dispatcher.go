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
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/brazil-data-cube/bdc-collection-builder-sub001/config"
	redlock "github.com/brazil-data-cube/bdc-collection-builder-sub001/internal/lock"
	"github.com/brazil-data-cube/bdc-collection-builder-sub001/model"
)

const dispatchLockKey = "dispatch-lock"

// DispatchReport summarizes one dispatch pass.
type DispatchReport struct {
	Claimed   int `json:"claimed"`
	Submitted int `json:"submitted"`
	Failed    int `json:"failed"`
	Released  int `json:"released"`
}

// RunOnce executes one dispatch pass: claim the runnable rows in priority
// order and hand each to its stage queue. The pass runs under a redis lock
// so overlapping schedulers (ticker plus manual trigger) never interleave;
// a held lock means another pass is in flight and this one is a no-op.
func (b *Builder) RunOnce(ctx context.Context) (*DispatchReport, error) {
	ctx, span := tracer.Start(ctx, "Dispatch pass")
	defer span.End()

	conf, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	locker := redlock.NewLocker(b.redis, dispatchLockKey, uuid.New().String())
	if err := locker.Lock(ctx, time.Duration(conf.Dispatch.IntervalSec)*time.Second); err != nil {
		logrus.Infof("dispatch pass skipped: %v", err)
		return &DispatchReport{}, nil
	}
	defer func() {
		if err := locker.Unlock(ctx); err != nil {
			logrus.Warnf("releasing dispatch lock: %v", err)
		}
	}()

	claimed, err := b.datasource.ClaimRunnable(ctx, conf.Dispatch.ClaimBatchSize)
	if err != nil {
		return nil, err
	}

	report := &DispatchReport{Claimed: len(claimed)}
	hostname, _ := os.Hostname()

	for i := range claimed {
		activity := claimed[i]

		if !activity.Stage.Valid() {
			if err := b.datasource.MarkError(ctx, activity.ID, 1, "unparseable stage, cannot dispatch"); err != nil {
				logrus.Errorf("failing malformed activity %d: %v", activity.ID, err)
			}
			report.Failed++
			continue
		}
		if _, err := ChainFor(activity); err != nil {
			if markErr := b.datasource.MarkError(ctx, activity.ID, 1, err.Error()); markErr != nil {
				logrus.Errorf("failing undispatchable activity %d: %v", activity.ID, markErr)
			}
			report.Failed++
			continue
		}

		taskID, err := b.queue.EnqueueActivity(ctx, &activity)
		if err != nil {
			// A failed submission returns the claim so a later pass retries
			// it; the row carries no error state.
			if releaseErr := b.datasource.ReleaseActivity(ctx, activity.ID); releaseErr != nil {
				logrus.Errorf("releasing activity %d after enqueue failure: %v", activity.ID, releaseErr)
			}
			report.Released++
			continue
		}

		if _, err := b.datasource.RecordDispatch(ctx, &model.ActivityHistory{
			ActivityID: activity.ID,
			TaskID:     taskID,
			Start:      time.Now(),
			Env:        hostname,
		}); err != nil {
			logrus.Errorf("recording dispatch of activity %d: %v", activity.ID, err)
		}
		report.Submitted++
	}

	logrus.Infof("dispatch pass: %d claimed, %d submitted, %d failed, %d released",
		report.Claimed, report.Submitted, report.Failed, report.Released)
	return report, nil
}

// StartDispatchLoop runs periodic dispatch passes until the context is
// cancelled. Interval comes from configuration.
func (b *Builder) StartDispatchLoop(ctx context.Context) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}

	ticker := time.NewTicker(time.Duration(conf.Dispatch.IntervalSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := b.RunOnce(ctx); err != nil {
				logrus.Errorf("dispatch pass: %v", err)
			}
		}
	}
}
