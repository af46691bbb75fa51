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

import "strings"

// DeployStatus is the lifecycle state of one deployable within a build.
type DeployStatus string

const (
	StatusQueued       DeployStatus = "QUEUED"
	StatusDeploying    DeployStatus = "DEPLOYING"
	StatusReady        DeployStatus = "READY"
	StatusDeployFailed DeployStatus = "DEPLOY_FAILED"
)

// Deploy is one deployable unit within a Build. It exclusively owns its
// in-cluster deploy job for the duration of one attempt.
type Deploy struct {
	UUID            string            `json:"uuid"`
	Status          DeployStatus      `json:"status,omitempty"`
	StatusMessage   string            `json:"statusMessage,omitempty"`
	DockerImage     string            `json:"dockerImage,omitempty"`
	InitDockerImage string            `json:"initDockerImage,omitempty"`
	Env             map[string]string `json:"env,omitempty"`
	InitEnv         map[string]string `json:"initEnv,omitempty"`
	SHA             string            `json:"sha,omitempty"`
	BranchName      string            `json:"branchName,omitempty"`
	Manifest        string            `json:"manifest,omitempty"`
	ReplicaCount    int               `json:"replicaCount,omitempty"`
	Active          bool              `json:"active,omitempty"`
	RunUUID         string            `json:"runUUID,omitempty"`
	BuildOutput     string            `json:"buildOutput,omitempty"`

	Build      *Build      `json:"build,omitempty"`
	Deployable *Deployable `json:"deployable,omitempty"`
}

// ReleaseName is the helm release name for this deploy.
func (d *Deploy) ReleaseName() string {
	return strings.ToLower(d.UUID)
}

// Name returns the deployable name, or the uuid when the deployable is
// missing.
func (d *Deploy) Name() string {
	if d.Deployable != nil && d.Deployable.Name != "" {
		return d.Deployable.Name
	}
	return d.UUID
}

// JobStatus classifies the terminal outcome of an in-cluster job.
type JobStatus string

const (
	JobSucceeded  JobStatus = "succeeded"
	JobFailed     JobStatus = "failed"
	JobSuperseded JobStatus = "superseded"
)

// JobResult is the terminal outcome of an in-cluster job as observed by the
// job monitor.
type JobResult struct {
	Success bool
	Status  JobStatus
	Logs    string
}
