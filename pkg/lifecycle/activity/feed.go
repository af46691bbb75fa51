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

// Package activity publishes deploy status transitions to the external
// activity feed. Rendering of user-facing comments happens downstream.
package activity

import (
	"context"
	"sync"

	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/entity"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/output/log"
)

// Event is one status transition pushed to the feed.
type Event struct {
	DeployUUID string
	RunUUID    string
	Status     entity.DeployStatus
	Message    string
}

// Feed receives deploy status transitions.
type Feed interface {
	Push(ctx context.Context, event Event)
}

// LogFeed records events and mirrors them to the log. It stands in for the
// comment-rendering collaborator.
type LogFeed struct {
	mu     sync.Mutex
	events []Event
}

func NewLogFeed() *LogFeed {
	return &LogFeed{}
}

func (f *LogFeed) Push(ctx context.Context, event Event) {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
	log.Entry(ctx).Infof("deploy %s: %s %s", event.DeployUUID, event.Status, event.Message)
}

// Events returns a copy of everything pushed so far.
func (f *LogFeed) Events() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Event, len(f.events))
	copy(out, f.events)
	return out
}
