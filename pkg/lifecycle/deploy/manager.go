/*
Copyright 2024 The Lifecycle Authors

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

package deploy

import (
	"context"
	"math"

	"github.com/fatih/semgroup"

	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/constants"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/entity"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/output/log"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/store"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/util"
)

// Executor executes one deploy to a terminal status.
type Executor interface {
	Execute(ctx context.Context, d *entity.Deploy) error
}

// Manager is the scheduling head: it partitions deploys into waves at
// construction time and drives them wave by wave with intra-wave
// concurrency.
type Manager struct {
	waves    []Wave
	executor Executor
	store    store.DeployStore

	// concurrency caps in-flight deploys per wave; <=0 means unbounded.
	concurrency int
}

// NewManager builds the wave plan for the given deploys. Invalid input
// (dangling or self dependencies, cycles) is logged but never fatal.
func NewManager(ctx context.Context, deploys []*entity.Deploy, executor Executor, st store.DeployStore, concurrency int) *Manager {
	waves := PartitionWaves(ctx, deploys)
	for _, wave := range waves {
		names := make([]string, 0, len(wave.Deploys))
		for _, d := range wave.Deploys {
			names = append(names, d.Name())
		}
		log.Entry(ctx).Infof("wave %d: %v", wave.Level, names)
	}
	return &Manager{
		waves:       waves,
		executor:    executor,
		store:       st,
		concurrency: concurrency,
	}
}

// Waves exposes the computed plan.
func (m *Manager) Waves() []Wave {
	return m.waves
}

// Deploy runs every wave in order. A wave completes when all of its members
// reach a terminal status; the first member's error is propagated after the
// whole wave has settled. Later waves do not start after a failed wave.
func (m *Manager) Deploy(ctx context.Context) error {
	for _, wave := range m.waves {
		for _, d := range wave.Deploys {
			m.patchStatus(ctx, d, entity.StatusQueued, "")
		}
	}

	for _, wave := range m.waves {
		if err := m.deployWave(ctx, wave); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) deployWave(ctx context.Context, wave Wave) error {
	ctx = log.WithEventContext(ctx, constants.Schedule, "wave")
	log.Entry(ctx).Infof("deploying wave %d with %d deploy(s)", wave.Level, len(wave.Deploys))

	maxWorkers := int64(m.concurrency)
	if maxWorkers <= 0 {
		maxWorkers = math.MaxInt64
	}
	s := semgroup.NewGroup(ctx, maxWorkers)

	errs := make([]error, len(wave.Deploys))
	for i, d := range wave.Deploys {
		i, d := i, d
		s.Go(func() error {
			errs[i] = m.executor.Execute(ctx, d)
			return errs[i]
		})
	}
	// Wait for every member to settle; the aggregate error is discarded in
	// favor of the first failure in wave order.
	_ = s.Wait()

	for i, err := range errs {
		if err != nil {
			log.Entry(ctx).Warnf("wave %d failed on %s: %v", wave.Level, wave.Deploys[i].Name(), err)
			return err
		}
	}
	return nil
}

func (m *Manager) patchStatus(ctx context.Context, d *entity.Deploy, status entity.DeployStatus, message string) {
	d.Status = status
	d.StatusMessage = message
	if m.store == nil {
		return
	}
	if err := m.store.PatchDeploy(ctx, d.UUID, store.DeployPatch{
		Status:        &status,
		StatusMessage: util.Ptr(message),
	}); err != nil {
		log.Entry(ctx).Warnf("patching deploy %s status: %v", d.UUID, err)
	}
}
