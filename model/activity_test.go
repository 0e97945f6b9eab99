package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStage(t *testing.T) {
	stage, err := ParseStage("download-sentinel")
	assert.NoError(t, err)
	assert.Equal(t, StageDownload, stage.Name)
	assert.Equal(t, KindSentinel, stage.Kind)
	assert.Equal(t, "download-sentinel", stage.String())

	_, err = ParseStage("transmogrify-sentinel")
	assert.Error(t, err)

	_, err = ParseStage("download-modis")
	assert.Error(t, err)

	_, err = ParseStage("download")
	assert.Error(t, err)
}

func TestStageJSONRoundTrip(t *testing.T) {
	a := Activity{
		SceneRef: "S2A_MSIL1C_20240101T000000_T23LLG",
		Stage:    Stage{Name: StagePublish, Kind: KindSentinel},
		Status:   StatusNotDone,
	}
	raw, err := json.Marshal(&a)
	assert.NoError(t, err)
	assert.Contains(t, string(raw), `"stage":"publish-sentinel"`)

	var decoded Activity
	assert.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, a.Stage, decoded.Stage)
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusNotDone, StatusDoing, true},
		{StatusNotDone, StatusDone, false},
		{StatusDoing, StatusDone, true},
		{StatusDoing, StatusError, true},
		{StatusDoing, StatusSuspend, true},
		{StatusDoing, StatusNotDone, true}, // recovery reset of a stuck claim
		{StatusError, StatusNotDone, true},
		{StatusSuspend, StatusNotDone, true},
		{StatusDone, StatusNotDone, false}, // DONE is immutable
		{StatusDone, StatusDoing, false},
		{StatusError, StatusDoing, false},
	}

	for _, tt := range tests {
		a := Activity{Status: tt.from}
		assert.Equal(t, tt.allowed, a.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestStatusResettable(t *testing.T) {
	assert.True(t, StatusError.Resettable())
	assert.True(t, StatusDoing.Resettable())
	assert.True(t, StatusSuspend.Resettable())
	assert.False(t, StatusDone.Resettable())
	assert.False(t, StatusNotDone.Resettable())
}

func TestActivityArgs(t *testing.T) {
	var a Activity
	assert.Equal(t, "", a.Arg("corrected"))

	a.SetArg("corrected", "true")
	assert.Equal(t, "true", a.Arg("corrected"))
}
