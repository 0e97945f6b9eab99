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
	"encoding/json"
	"fmt"
	"log"

	"github.com/brazil-data-cube/bdc-collection-builder-sub001/config"
	redis_db "github.com/brazil-data-cube/bdc-collection-builder-sub001/internal/redis-db"

	"github.com/brazil-data-cube/bdc-collection-builder-sub001/model"
	"github.com/hibiken/asynq"
)

// Enqueuer submits one activity to the execution substrate and returns the
// substrate's task id. Satisfied by Queue; tests substitute a fake.
type Enqueuer interface {
	EnqueueActivity(ctx context.Context, activity *model.Activity) (string, error)
}

// Queue wraps the asynq client used to hand stage executions to the worker
// pool.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// EnqueueActivity submits a claimed activity to its stage queue. The task id
// is derived from (stage, scene_ref) so the broker rejects a duplicate
// submission of the same open attempt; submission is fire-and-forget from
// the dispatcher's perspective.
func (q *Queue) EnqueueActivity(ctx context.Context, activity *model.Activity) (string, error) {
	ctx, span := tracer.Start(ctx, "Adding Activity To Redis Queue")
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(activity)
	if err != nil {
		return "", err
	}

	queueName := QueueForStage(cfg, activity.Stage.Name)
	taskID := fmt.Sprintf("%s:%s", activity.Stage.String(), activity.SceneRef)
	taskOptions := []asynq.Option{
		asynq.TaskID(taskID),
		asynq.Queue(queueName),
	}
	task := asynq.NewTask(queueName, payload, taskOptions...)

	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		log.Println(err, info)
		return "", err
	}
	log.Printf(" [*] Successfully enqueued activity: %s", taskID)

	return info.ID, nil
}

// QueueForStage maps a stage to its asynq queue.
func QueueForStage(cfg *config.Configuration, name model.StageName) string {
	switch name {
	case model.StageCorrect:
		return cfg.Queue.CorrectionQueue
	case model.StagePublish:
		return cfg.Queue.PublishQueue
	case model.StageUpload:
		return cfg.Queue.UploadQueue
	default:
		return cfg.Queue.DownloadQueue
	}
}

// StageQueues returns the queue weight map for the worker server. The
// weights follow the same urgency tiers as the ledger priorities, so the
// broker drains correction work ahead of uploads and downloads.
func StageQueues(cfg *config.Configuration) map[string]int {
	return map[string]int{
		cfg.Queue.CorrectionQueue: 6,
		cfg.Queue.PublishQueue:    3,
		cfg.Queue.UploadQueue:     2,
		cfg.Queue.DownloadQueue:   1,
	}
}

// GetActivityFromQueue retrieves a pending activity task by its task id, for
// operational inspection.
func (q *Queue) GetActivityFromQueue(taskID string) (*model.Activity, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	for queueName := range StageQueues(cfg) {
		task, err := q.Inspector.GetTaskInfo(queueName, taskID)
		if err == nil && task != nil {
			var activity model.Activity
			if err := json.Unmarshal(task.Payload, &activity); err != nil {
				return nil, err
			}
			return &activity, nil
		}
	}
	return nil, nil // not found in any queue
}
