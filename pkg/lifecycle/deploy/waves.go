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

	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/entity"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/output/log"
)

// Wave is a maximal set of deploys whose dependencies are satisfied by
// prior waves. Insertion order is preserved for deterministic logs.
type Wave struct {
	Level   int
	Deploys []*entity.Deploy
}

// PartitionWaves computes the deployment plan: a level-partitioned
// topological order over the deploys' declared dependencies. The input is
// never mutated.
//
// Dependencies naming a deployable outside the build and self-dependencies
// are dropped, each with one warning per (deploy, name) pair. Deploys caught
// in a dependency cycle cannot be placed on any level; they are excluded
// from the plan with a warning naming them.
func PartitionWaves(ctx context.Context, deploys []*entity.Deploy) []Wave {
	known := map[string]bool{}
	for _, d := range deploys {
		known[d.Name()] = true
	}

	// remaining holds each deploy's sanitized, unsatisfied dependency set.
	remaining := make([]map[string]bool, len(deploys))
	for i, d := range deploys {
		deps := map[string]bool{}
		warned := map[string]bool{}
		if d.Deployable != nil {
			for _, dep := range d.Deployable.DeploymentDependsOn {
				switch {
				case dep == d.Name():
					if !warned[dep] {
						warned[dep] = true
						log.Entry(ctx).Warnf("deploy %s depends on itself; dropping", d.Name())
					}
				case !known[dep]:
					if !warned[dep] {
						warned[dep] = true
						log.Entry(ctx).Warnf("deploy %s depends on unknown deployable %s; dropping", d.Name(), dep)
					}
				default:
					deps[dep] = true
				}
			}
		}
		remaining[i] = deps
	}

	placed := make([]bool, len(deploys))
	var waves []Wave

	for level := 0; ; level++ {
		var wave []*entity.Deploy
		var waveIdx []int
		for i, d := range deploys {
			if !placed[i] && len(remaining[i]) == 0 {
				wave = append(wave, d)
				waveIdx = append(waveIdx, i)
			}
		}
		if len(wave) == 0 {
			break
		}
		for _, i := range waveIdx {
			placed[i] = true
		}
		for _, member := range wave {
			for i := range deploys {
				if !placed[i] {
					delete(remaining[i], member.Name())
				}
			}
		}
		waves = append(waves, Wave{Level: level, Deploys: wave})
	}

	var excluded []string
	for i, d := range deploys {
		if !placed[i] {
			excluded = append(excluded, d.Name())
		}
	}
	if len(excluded) > 0 {
		log.Entry(ctx).Warnf("excluding deploys caught in a dependency cycle: %v", excluded)
	}

	return waves
}
