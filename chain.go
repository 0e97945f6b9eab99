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
	"fmt"
	"strings"

	"github.com/brazil-data-cube/bdc-collection-builder-sub001/model"
)

// pipelineOrder is the canonical stage sequence for every scene kind.
var pipelineOrder = []model.StageName{
	model.StageDownload,
	model.StageCorrect,
	model.StagePublish,
	model.StageUpload,
}

// StagePriority is the ledger priority assigned to a stage when its row is
// upserted. Lower dispatches first: a scene already half-way through the
// pipeline beats starting a new download, and corrections jump the line.
func StagePriority(name model.StageName) int {
	switch name {
	case model.StageCorrect:
		return 1
	case model.StagePublish:
		return 2
	case model.StageUpload:
		return 3
	default:
		return 4
	}
}

// ChainFor returns the ordered stage sequence that must run for the
// activity, starting at its own stage, with skip rules applied. Chains are
// built fresh per dispatch and never persisted: each executor upserts the
// next row itself, so a dead worker strands exactly one DOING row and a
// restart resumes from that stage.
func ChainFor(a model.Activity) ([]model.Stage, error) {
	if !a.Stage.Valid() {
		return nil, fmt.Errorf("unknown stage %q", a.Stage.String())
	}

	start := -1
	for i, name := range pipelineOrder {
		if name == a.Stage.Name {
			start = i
			break
		}
	}
	if start == -1 {
		return nil, fmt.Errorf("unknown stage %q", a.Stage.String())
	}

	var chain []model.Stage
	for _, name := range pipelineOrder[start:] {
		if name == model.StageCorrect && InputCorrected(a) {
			continue
		}
		chain = append(chain, model.Stage{Name: name, Kind: a.Stage.Kind})
	}
	return chain, nil
}

// NextStage returns the stage that follows the activity's own, or nil when
// the activity is the last link of its chain.
func NextStage(a model.Activity) (*model.Stage, error) {
	chain, err := ChainFor(a)
	if err != nil {
		return nil, err
	}
	if len(chain) < 2 {
		return nil, nil
	}
	return &chain[1], nil
}

// InputCorrected reports whether the scene is already surface-reflectance
// corrected, in which case the correction stage is skipped. The download
// executor flags it explicitly; otherwise the scene identifier tells:
// Sentinel-2 L2A products and Landsat Level-2 products ship corrected.
func InputCorrected(a model.Activity) bool {
	if a.Arg("corrected") == "true" {
		return true
	}
	switch a.Stage.Kind {
	case model.KindSentinel:
		return strings.Contains(a.SceneRef, "MSIL2A")
	case model.KindLandsat:
		return strings.Contains(a.SceneRef, "_L2")
	default:
		return false
	}
}
