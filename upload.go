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
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/brazil-data-cube/bdc-collection-builder-sub001/internal/storage"
	"github.com/brazil-data-cube/bdc-collection-builder-sub001/model"
)

// UploadTransport moves one local file to the object store under a key,
// skipping files the store already holds.
type UploadTransport interface {
	Put(ctx context.Context, path, key string) error
	Has(ctx context.Context, key string, size int64) (bool, error)
}

// S3Transport is the object-store adapter for the upload stage.
type S3Transport struct {
	uploader *storage.Uploader
	bucket   string
}

func NewS3Transport(uploader *storage.Uploader, bucket string) *S3Transport {
	return &S3Transport{uploader: uploader, bucket: bucket}
}

func (t *S3Transport) Put(ctx context.Context, path, key string) error {
	return t.uploader.Upload(ctx, path, key)
}

func (t *S3Transport) Has(ctx context.Context, key string, size int64) (bool, error) {
	return t.uploader.Exists(ctx, key, size)
}

// uploadStage walks the published scene directory and pushes every file to
// the object store under scenes/<kind>/<scene_ref>/. Files the store already
// holds at the same size are skipped, so a re-dispatched upload only moves
// what is missing.
func (b *Builder) uploadStage(ctx context.Context, activity *model.Activity) (string, error) {
	if activity.InputRef == "" {
		return "", fmt.Errorf("no published directory for scene %s", activity.SceneRef)
	}

	root := activity.InputRef
	prefix := filepath.Join("scenes", string(activity.Stage.Kind), activity.SceneRef)

	var uploaded, skipped int
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(filepath.Join(prefix, rel))

		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		exists, err := b.uploader.Has(ctx, key, info.Size())
		if err != nil {
			return err
		}
		if exists {
			skipped++
			return nil
		}

		if err := b.uploader.Put(ctx, path, key); err != nil {
			return errors.Wrapf(err, "uploading %s", rel)
		}
		uploaded++
		return nil
	})
	if err != nil {
		return "", err
	}

	logrus.Infof("scene %s upload: %d files pushed, %d already present", activity.SceneRef, uploaded, skipped)
	return prefix, nil
}
