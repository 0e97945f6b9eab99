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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	builder "github.com/brazil-data-cube/bdc-collection-builder-sub001"
	"github.com/brazil-data-cube/bdc-collection-builder-sub001/config"
	redis_db "github.com/brazil-data-cube/bdc-collection-builder-sub001/internal/redis-db"
	"github.com/brazil-data-cube/bdc-collection-builder-sub001/model"
)

// processActivity runs one dispatched stage. The executor closes the ledger
// row as DONE or ERROR itself, so the task never re-queues through the
// broker's retry machinery.
func (b *builderInstance) processActivity(ctx context.Context, t *asynq.Task) error {
	ctx, span := otel.Tracer("builder.stage.worker").Start(ctx, "Process Activity From Redis Queue")
	defer span.End()

	var activity model.Activity
	if err := json.Unmarshal(t.Payload(), &activity); err != nil {
		logrus.Error(err)
		return err
	}

	if err := b.builder.ExecuteActivity(ctx, &activity); err != nil {
		logrus.Errorf("activity %d execution error: %v", activity.ID, err)
		return err
	}

	log.Println(" [*] Activity Processed", activity.SceneRef, activity.Stage.String())
	return nil
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
		asynq.Config{
			Concurrency: conf.Queue.WorkerConcurrency,
			Queues:      queues,
		},
	), nil
}

func initializeTaskHandlers(b *builderInstance, mux *asynq.ServeMux) {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return
	}

	mux.HandleFunc(cfg.Queue.CorrectionQueue, b.processActivity)
	mux.HandleFunc(cfg.Queue.PublishQueue, b.processActivity)
	mux.HandleFunc(cfg.Queue.UploadQueue, b.processActivity)
	mux.HandleFunc(cfg.Queue.DownloadQueue, b.processActivity)
}

// workerCommands defines the "workers" command: the stage executors pulling
// from the per-stage queues, weighted so correction work drains first.
func workerCommands(b *builderInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start builder workers",
		Run: func(cmd *cobra.Command, args []string) {
			conf, err := config.Fetch()
			if err != nil {
				log.Fatal("Error fetching config:", err)
			}

			queues := builder.StageQueues(conf)

			srv, err := initializeWorkerServer(conf, queues)
			if err != nil {
				log.Fatal(err)
			}

			mux := asynq.NewServeMux()
			initializeTaskHandlers(b, mux)

			// Asynqmon for queue health and monitoring.
			redisOption, _ := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
			h := asynqmon.New(asynqmon.Options{
				RootPath: "/monitoring",
				RedisConnOpt: asynq.RedisClientOpt{
					Addr:      redisOption.Addr,
					Password:  redisOption.Password,
					DB:        redisOption.DB,
					TLSConfig: redisOption.TLSConfig,
				},
			})

			go func() {
				monitoringAddr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
				log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
				if err := http.ListenAndServe(monitoringAddr, h); err != nil {
					log.Fatalf("could not start asynqmon server: %v", err)
				}
			}()

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
