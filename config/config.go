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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5021"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	Secure    bool   `json:"secure" envconfig:"BUILDER_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"BUILDER_SERVER_SECRET_KEY"`
	Port      string `json:"port" envconfig:"BUILDER_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"BUILDER_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"BUILDER_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"BUILDER_REDIS_SKIP_TLS_VERIFY"`
}

// QueueConfig names the asynq queues, one per stage tier. Queue weights
// mirror the ledger priority tiers so broker-side scheduling agrees with
// the dispatch ordering.
type QueueConfig struct {
	CorrectionQueue   string `json:"correction_queue" envconfig:"BUILDER_QUEUE_CORRECTION"`
	PublishQueue      string `json:"publish_queue" envconfig:"BUILDER_QUEUE_PUBLISH"`
	UploadQueue       string `json:"upload_queue" envconfig:"BUILDER_QUEUE_UPLOAD"`
	DownloadQueue     string `json:"download_queue" envconfig:"BUILDER_QUEUE_DOWNLOAD"`
	WorkerConcurrency int    `json:"worker_concurrency" envconfig:"BUILDER_QUEUE_WORKER_CONCURRENCY"`
	MonitoringPort    string `json:"monitoring_port" envconfig:"BUILDER_QUEUE_MONITORING_PORT"`
}

// DispatchConfig bounds the control loop: how many rows one pass may claim,
// how often the periodic pass runs and when a silent DOING row is treated
// as stuck.
type DispatchConfig struct {
	ClaimBatchSize    int `json:"claim_batch_size" envconfig:"BUILDER_DISPATCH_CLAIM_BATCH_SIZE"`
	IntervalSec       int `json:"interval_sec" envconfig:"BUILDER_DISPATCH_INTERVAL_SEC"`
	StuckThresholdSec int `json:"stuck_threshold_sec" envconfig:"BUILDER_DISPATCH_STUCK_THRESHOLD_SEC"`
}

// DownloadConfig configures the download transport: where scene archives
// land, the provider account pool size and the smallest archive the
// integrity check accepts.
type DownloadConfig struct {
	DataDir      string `json:"data_dir" envconfig:"BUILDER_DOWNLOAD_DATA_DIR"`
	MaxParallel  int    `json:"max_parallel" envconfig:"BUILDER_DOWNLOAD_MAX_PARALLEL"`
	MinSizeBytes int64  `json:"min_size_bytes" envconfig:"BUILDER_DOWNLOAD_MIN_SIZE_BYTES"`
	Username     string `json:"username" envconfig:"BUILDER_DOWNLOAD_USERNAME"`
	Password     string `json:"password" envconfig:"BUILDER_DOWNLOAD_PASSWORD"`
}

type StorageConfig struct {
	S3Endpoint         string `json:"s3_endpoint" envconfig:"BUILDER_S3_ENDPOINT"`
	S3BucketName       string `json:"s3_bucket_name" envconfig:"BUILDER_S3_BUCKET_NAME"`
	S3Region           string `json:"s3_region" envconfig:"BUILDER_S3_REGION"`
	AwsAccessKeyId     string `json:"aws_access_key_id" envconfig:"BUILDER_AWS_ACCESS_KEY_ID"`
	AwsSecretAccessKey string `json:"aws_secret_access_key" envconfig:"BUILDER_AWS_SECRET_ACCESS_KEY"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type RateLimitConfig struct {
	RequestsPerSecond *float64 `json:"requests_per_second" envconfig:"BUILDER_RATE_LIMIT_RPS"`
	Burst             *int     `json:"burst" envconfig:"BUILDER_RATE_LIMIT_BURST"`
}

type Configuration struct {
	ProjectName  string           `json:"project_name" envconfig:"BUILDER_PROJECT_NAME"`
	Server       ServerConfig     `json:"server"`
	DataSource   DataSourceConfig `json:"data_source"`
	Redis        RedisConfig      `json:"redis"`
	Queue        QueueConfig      `json:"queue"`
	Dispatch     DispatchConfig   `json:"dispatch"`
	Download     DownloadConfig   `json:"download"`
	Storage      StorageConfig    `json:"storage"`
	Notification Notification     `json:"notification"`
	RateLimit    RateLimitConfig  `json:"rate_limit"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("builder", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called builder.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Collection Builder"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Queue.CorrectionQueue == "" {
		cnf.Queue.CorrectionQueue = "builder:correct"
	}
	if cnf.Queue.PublishQueue == "" {
		cnf.Queue.PublishQueue = "builder:publish"
	}
	if cnf.Queue.UploadQueue == "" {
		cnf.Queue.UploadQueue = "builder:upload"
	}
	if cnf.Queue.DownloadQueue == "" {
		cnf.Queue.DownloadQueue = "builder:download"
	}
	if cnf.Queue.WorkerConcurrency <= 0 {
		cnf.Queue.WorkerConcurrency = 4
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = "5555"
	}

	if cnf.Dispatch.ClaimBatchSize <= 0 {
		cnf.Dispatch.ClaimBatchSize = 100
	}
	if cnf.Dispatch.IntervalSec <= 0 {
		cnf.Dispatch.IntervalSec = 60
	}
	if cnf.Dispatch.StuckThresholdSec <= 0 {
		cnf.Dispatch.StuckThresholdSec = 3600
	}

	if cnf.Download.DataDir == "" {
		cnf.Download.DataDir = "/data/scenes"
	}
	if cnf.Download.MaxParallel <= 0 {
		cnf.Download.MaxParallel = 2
	}
	if cnf.Download.MinSizeBytes <= 0 {
		// Anything smaller than 1 MB is a provider error page, not a scene.
		cnf.Download.MinSizeBytes = 1 << 20
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
