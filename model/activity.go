package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of an Activity.
type Status string

const (
	StatusNotDone Status = "NOTDONE" // runnable, waiting for dispatch
	StatusDoing   Status = "DOING"   // claimed by the dispatcher / executing
	StatusDone    Status = "DONE"    // terminal success
	StatusError   Status = "ERROR"   // terminal failure until reset
	StatusSuspend Status = "SUSPEND" // operator hold, resolved only by restart
)

func (s Status) Valid() bool {
	switch s {
	case StatusNotDone, StatusDoing, StatusDone, StatusError, StatusSuspend:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status ends an attempt. DONE rows are
// immutable; ERROR rows stay until an operator restarts them.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Resettable reports whether the recovery controller may flip the status
// back to NOTDONE.
func (s Status) Resettable() bool {
	return s == StatusError || s == StatusDoing || s == StatusSuspend
}

// StageName is a pipeline step: download, correct, publish or upload.
type StageName string

const (
	StageDownload StageName = "download"
	StageCorrect  StageName = "correct"
	StagePublish  StageName = "publish"
	StageUpload   StageName = "upload"
)

// SceneKind namespaces a stage to a satellite family.
type SceneKind string

const (
	KindSentinel SceneKind = "sentinel"
	KindLandsat  SceneKind = "landsat"
)

// Stage identifies the executor for an activity, e.g. "download-sentinel"
// or "publish-landsat" on the wire.
type Stage struct {
	Name StageName
	Kind SceneKind
}

func (s Stage) String() string {
	return fmt.Sprintf("%s-%s", s.Name, s.Kind)
}

func (s Stage) Valid() bool {
	switch s.Name {
	case StageDownload, StageCorrect, StagePublish, StageUpload:
	default:
		return false
	}
	switch s.Kind {
	case KindSentinel, KindLandsat:
	default:
		return false
	}
	return true
}

// ParseStage parses the wire form "name-kind" produced by Stage.String.
func ParseStage(raw string) (Stage, error) {
	name, kind, found := strings.Cut(raw, "-")
	if !found {
		return Stage{}, fmt.Errorf("invalid stage %q", raw)
	}
	stage := Stage{Name: StageName(name), Kind: SceneKind(kind)}
	if !stage.Valid() {
		return Stage{}, fmt.Errorf("invalid stage %q", raw)
	}
	return stage, nil
}

func (s Stage) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Stage) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseStage(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Activity is one row in the ledger: one pipeline-stage attempt for one
// scene. (scene_ref, stage) is the natural key; at most one non-terminal
// row may exist for it at a time, enforced by the ledger upsert.
type Activity struct {
	ID        int64             `json:"id"`
	SceneRef  string            `json:"scene_ref"`
	Stage     Stage             `json:"stage"`
	Status    Status            `json:"status"`
	Priority  int               `json:"priority"`
	InputRef  string            `json:"input_ref"`
	OutputRef string            `json:"output_ref,omitempty"`
	StartedAt *time.Time        `json:"started_at,omitempty"`
	EndedAt   *time.Time        `json:"ended_at,omitempty"`
	ClaimedAt *time.Time        `json:"claimed_at,omitempty"`
	Elapsed   time.Duration     `json:"elapsed,omitempty"`
	Retcode   int               `json:"retcode"`
	Message   string            `json:"message,omitempty"`
	Args      map[string]string `json:"args,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// CanTransition reports whether moving the activity to next is a legal
// step of the per-attempt state machine:
//
//	NOTDONE -> DOING -> {DONE | ERROR | SUSPEND}
//	{ERROR, DOING, SUSPEND} -> NOTDONE (recovery reset only)
func (a *Activity) CanTransition(next Status) bool {
	switch a.Status {
	case StatusNotDone:
		return next == StatusDoing
	case StatusDoing:
		return next == StatusDone || next == StatusError || next == StatusSuspend || next == StatusNotDone
	case StatusError, StatusSuspend:
		return next == StatusNotDone
	default:
		return false
	}
}

// Arg returns a per-stage payload value, tolerating a nil map.
func (a *Activity) Arg(key string) string {
	if a.Args == nil {
		return ""
	}
	return a.Args[key]
}

func (a *Activity) SetArg(key, value string) {
	if a.Args == nil {
		a.Args = make(map[string]string)
	}
	a.Args[key] = value
}

func (a *Activity) ToJSON() ([]byte, error) {
	return json.Marshal(a)
}

// ActivityHistory is one dispatch of an Activity to the execution
// substrate. Append-only; never mutated.
type ActivityHistory struct {
	ID         int64     `json:"id"`
	ActivityID int64     `json:"activity_id"`
	TaskID     string    `json:"task_id"`
	Start      time.Time `json:"start"`
	Env        string    `json:"env"`
}
