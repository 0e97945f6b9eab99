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
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brazil-data-cube/bdc-collection-builder-sub001/config"
)

// RestartReport is the outcome of a restart request: how many rows were
// revived and what the immediate dispatch pass did with them.
type RestartReport struct {
	Revived  int64           `json:"revived"`
	Dispatch *DispatchReport `json:"dispatch"`
}

// Restart is the recovery entry point. With an id it revives that single
// non-DONE row; without one it revives every ERROR, DOING and SUSPEND row.
// Revived rows return to NOTDONE with their prior diagnostics intact, and a
// dispatch pass runs synchronously so the caller sees them resubmitted.
func (b *Builder) Restart(ctx context.Context, id *int64) (*RestartReport, error) {
	ctx, span := tracer.Start(ctx, "Restarting activities")
	defer span.End()

	report := &RestartReport{}
	if id != nil {
		if err := b.datasource.ResetActivity(ctx, *id); err != nil {
			return nil, err
		}
		report.Revived = 1
	} else {
		revived, err := b.datasource.ResetActivities(ctx)
		if err != nil {
			return nil, err
		}
		report.Revived = revived
	}
	logrus.Infof("restart revived %d activities", report.Revived)

	dispatch, err := b.RunOnce(ctx)
	if err != nil {
		return nil, err
	}
	report.Dispatch = dispatch
	return report, nil
}

// Suspend places an operator hold on a running activity. Only a restart
// brings it back.
func (b *Builder) Suspend(ctx context.Context, id int64) error {
	return b.datasource.SuspendActivity(ctx, id)
}

// RecoverStuckActivities returns DOING rows claimed longer ago than
// threshold to the runnable pool. These are claims whose worker died or
// whose collaborator call never returned; releasing them lets the next
// dispatch pass retry. Returns how many rows were released.
func (b *Builder) RecoverStuckActivities(ctx context.Context, threshold time.Duration, limit int) (int, error) {
	stuck, err := b.datasource.StuckActivities(ctx, threshold, limit)
	if err != nil {
		return 0, err
	}

	released := 0
	for i := range stuck {
		a := stuck[i]
		if err := b.datasource.ReleaseActivity(ctx, a.ID); err != nil {
			logrus.Errorf("releasing stuck activity %d: %v", a.ID, err)
			continue
		}
		logrus.Warnf("released stuck activity %d (%s %s), claimed %v", a.ID, a.Stage.String(), a.SceneRef, a.ClaimedAt)
		released++
	}
	return released, nil
}

// StuckActivityRecovery periodically sweeps the ledger for stuck DOING rows.
type StuckActivityRecovery struct {
	builder        *Builder
	batchSize      int
	pollInterval   time.Duration
	stuckThreshold time.Duration
	stopCh         chan struct{}
	wg             sync.WaitGroup
	running        bool
	mu             sync.Mutex
}

func NewStuckActivityRecovery(builder *Builder) *StuckActivityRecovery {
	stuckThreshold := time.Hour
	cfg, err := config.Fetch()
	if err == nil && cfg.Dispatch.StuckThresholdSec > 0 {
		stuckThreshold = time.Duration(cfg.Dispatch.StuckThresholdSec) * time.Second
	}
	// A threshold below the longest legitimate stage run would cancel live
	// work; two minutes is the floor.
	if stuckThreshold < 2*time.Minute {
		stuckThreshold = 2 * time.Minute
	}

	return &StuckActivityRecovery{
		builder:        builder,
		batchSize:      500,
		pollInterval:   30 * time.Second,
		stuckThreshold: stuckThreshold,
		stopCh:         make(chan struct{}),
	}
}

func (p *StuckActivityRecovery) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx)
	}()

	logrus.Info("Stuck activity recovery started")
}

func (p *StuckActivityRecovery) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	logrus.Info("Stuck activity recovery stopped")
}

func (p *StuckActivityRecovery) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *StuckActivityRecovery) run(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Stuck activity recovery context cancelled")
			return
		case <-p.stopCh:
			logrus.Info("Stuck activity recovery stop signal received")
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *StuckActivityRecovery) sweep(ctx context.Context) {
	released, err := p.builder.RecoverStuckActivities(ctx, p.stuckThreshold, p.batchSize)
	if err != nil {
		logrus.Errorf("stuck activity sweep: %v", err)
		return
	}
	if released > 0 {
		logrus.Infof("stuck activity sweep released %d rows", released)
	}
}
