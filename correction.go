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
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/brazil-data-cube/bdc-collection-builder-sub001/model"
)

// Corrector produces a surface-reflectance product from a raw scene archive
// and returns the path of the corrected product.
type Corrector interface {
	Correct(ctx context.Context, kind model.SceneKind, input, outputDir string) (string, error)
}

// CommandCorrector shells out to the processor toolchain: sen2cor for
// Sentinel-2, LaSRC for Landsat. The binaries run inside the worker
// container; a non-zero exit carries the tool's code into the ledger.
type CommandCorrector struct {
	// binDir prefixes the tool names, empty means PATH lookup.
	binDir string
}

func NewCommandCorrector(binDir string) *CommandCorrector {
	return &CommandCorrector{binDir: binDir}
}

func (c *CommandCorrector) Correct(ctx context.Context, kind model.SceneKind, input, outputDir string) (string, error) {
	var tool string
	switch kind {
	case model.KindSentinel:
		tool = "sen2cor"
	case model.KindLandsat:
		tool = "lasrc"
	default:
		return "", fmt.Errorf("no correction tool for kind %q", kind)
	}
	if c.binDir != "" {
		tool = filepath.Join(c.binDir, tool)
	}

	cmd := exec.CommandContext(ctx, tool, "--input", input, "--output", outputDir)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logrus.Infof("running %s on %s", tool, filepath.Base(input))
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
		return "", &exitCodeError{code: code, err: fmt.Errorf("%s failed: %s", filepath.Base(tool), msg)}
	}

	return correctedPath(kind, input, outputDir), nil
}

// correctedPath derives where the toolchain leaves the corrected product.
// Sentinel tools rewrite the level token in the product name; Landsat tools
// append a level suffix.
func correctedPath(kind model.SceneKind, input, outputDir string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	switch kind {
	case model.KindSentinel:
		return filepath.Join(outputDir, strings.Replace(base, "MSIL1C", "MSIL2A", 1)+".SAFE")
	default:
		return filepath.Join(outputDir, base+"_L2")
	}
}

// correctStage runs atmospheric correction over the downloaded archive. The
// chain only reaches here for scenes that are not already corrected, but a
// re-dispatched row re-checks so correction never runs twice.
func (b *Builder) correctStage(ctx context.Context, activity *model.Activity) (string, error) {
	if InputCorrected(*activity) {
		logrus.Infof("scene %s already corrected, passing input through", activity.SceneRef)
		return activity.InputRef, nil
	}
	if activity.InputRef == "" {
		return "", fmt.Errorf("no input archive for scene %s", activity.SceneRef)
	}

	outputDir := filepath.Join(filepath.Dir(activity.InputRef), "corrected")
	out, err := b.corrector.Correct(ctx, activity.Stage.Kind, activity.InputRef, outputDir)
	if err != nil {
		return "", err
	}

	activity.SetArg("corrected", "true")
	return out, nil
}
