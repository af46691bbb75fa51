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

package entity

// ReleaseStatus is the observed status of a helm release.
type ReleaseStatus string

const (
	ReleaseDeployed        ReleaseStatus = "deployed"
	ReleasePendingInstall  ReleaseStatus = "pending-install"
	ReleasePendingUpgrade  ReleaseStatus = "pending-upgrade"
	ReleasePendingRollback ReleaseStatus = "pending-rollback"
	ReleaseFailed          ReleaseStatus = "failed"
	ReleaseUnknown         ReleaseStatus = "unknown"
	ReleaseAbsent          ReleaseStatus = "absent"
)

// Pending reports whether the release is stuck in a pending state that
// blocks a fresh install.
func (s ReleaseStatus) Pending() bool {
	switch s {
	case ReleasePendingInstall, ReleasePendingUpgrade, ReleasePendingRollback:
		return true
	}
	return false
}

// ReleaseState is the observed state of a helm release.
type ReleaseState struct {
	Status      ReleaseStatus
	Revision    int
	Description string
}
