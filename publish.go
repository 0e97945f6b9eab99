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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/brazil-data-cube/bdc-collection-builder-sub001/model"
)

// Publisher generates the published raster products (cloud-optimized bands,
// quicklook) from a corrected scene and reports what it produced.
type Publisher interface {
	Publish(ctx context.Context, kind model.SceneKind, input string) (*model.PublishResult, error)
}

// CommandPublisher shells out to the raster backend, which prints a JSON
// publish report on stdout.
type CommandPublisher struct {
	binDir string
}

func NewCommandPublisher(binDir string) *CommandPublisher {
	return &CommandPublisher{binDir: binDir}
}

func (p *CommandPublisher) Publish(ctx context.Context, kind model.SceneKind, input string) (*model.PublishResult, error) {
	tool := "bdc-publish"
	if p.binDir != "" {
		tool = filepath.Join(p.binDir, tool)
	}

	cmd := exec.CommandContext(ctx, tool, "--kind", string(kind), "--input", input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logrus.Infof("publishing %s", filepath.Base(input))
	if err := cmd.Run(); err != nil {
		code := 1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, &exitCodeError{code: code, err: fmt.Errorf("publish failed: %s", msg)}
	}

	var result model.PublishResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return nil, errors.Wrap(err, "decoding publish report")
	}
	return &result, nil
}

// publishStage generates the published products and registers them in the
// catalog. Catalog writes are upserts by natural key, so a re-dispatched
// publish overwrites its own earlier records instead of duplicating them.
func (b *Builder) publishStage(ctx context.Context, activity *model.Activity) (string, error) {
	if activity.InputRef == "" {
		return "", fmt.Errorf("no input product for scene %s", activity.SceneRef)
	}

	result, err := b.publisher.Publish(ctx, activity.Stage.Kind, activity.InputRef)
	if err != nil {
		return "", err
	}

	scene := result.Scene
	if scene.SceneRef == "" {
		scene.SceneRef = activity.SceneRef
	}
	if scene.Kind == "" {
		scene.Kind = activity.Stage.Kind
	}
	if err := b.datasource.UpsertCatalogScene(ctx, &scene); err != nil {
		return "", errors.Wrap(err, "registering catalog scene")
	}

	for i := range result.Products {
		product := result.Products[i]
		if product.SceneRef == "" {
			product.SceneRef = activity.SceneRef
		}
		if err := b.datasource.UpsertCatalogProduct(ctx, &product); err != nil {
			return "", errors.Wrapf(err, "registering band %s", product.Band)
		}
	}

	if result.Quicklook.Path != "" {
		quicklook := result.Quicklook
		if quicklook.SceneRef == "" {
			quicklook.SceneRef = activity.SceneRef
		}
		if err := b.datasource.UpsertCatalogQuicklook(ctx, &quicklook); err != nil {
			return "", errors.Wrap(err, "registering quicklook")
		}
	}

	// The published directory feeds the upload stage.
	if len(result.Products) > 0 {
		return filepath.Dir(result.Products[0].Path), nil
	}
	return activity.InputRef, nil
}
