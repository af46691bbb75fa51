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

// Package store abstracts the persistence collaborator that owns build and
// deploy rows. The deploy core only ever patches rows it exclusively owns.
package store

import (
	"context"
	"sync"

	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/entity"
)

// DeployPatch is a partial update of a deploy row. Nil fields are untouched.
type DeployPatch struct {
	Status        *entity.DeployStatus
	StatusMessage *string
	BuildOutput   *string
}

// DeployStore persists deploy rows.
type DeployStore interface {
	PatchDeploy(ctx context.Context, uuid string, patch DeployPatch) error
}

// InMemory is a DeployStore holding rows in process. It backs tests and the
// CLI dry path; production wires the database collaborator instead.
type InMemory struct {
	mu      sync.Mutex
	deploys map[string]*entity.Deploy
}

// NewInMemory returns a store seeded with the given deploys.
func NewInMemory(deploys ...*entity.Deploy) *InMemory {
	m := map[string]*entity.Deploy{}
	for _, d := range deploys {
		m[d.UUID] = d
	}
	return &InMemory{deploys: m}
}

func (s *InMemory) PatchDeploy(_ context.Context, uuid string, patch DeployPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deploys[uuid]
	if !ok {
		return nil
	}
	if patch.Status != nil {
		d.Status = *patch.Status
	}
	if patch.StatusMessage != nil {
		d.StatusMessage = *patch.StatusMessage
	}
	if patch.BuildOutput != nil {
		d.BuildOutput = *patch.BuildOutput
	}
	return nil
}

// Get returns the stored deploy row, for tests.
func (s *InMemory) Get(uuid string) *entity.Deploy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deploys[uuid]
}
