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

package constants

// Phase describes the high-level task a log entry belongs to.
type Phase string

const (
	Schedule  Phase = "Schedule"
	Deploy    Phase = "Deploy"
	Monitor   Phase = "Monitor"
	Reconcile Phase = "Reconcile"
	Provision Phase = "Provision"

	SubtaskIDNone = "-1"
)

// Label and annotation keys shared with in-cluster operators. These are part
// of the wire contract and must not be renamed.
const (
	// LabelLCUUID marks native-helm deploy jobs with their release name.
	LabelLCUUID = "lc-uuid"

	// LabelDeployUUID marks application pods created by raw-manifest deploys.
	LabelDeployUUID = "deploy_uuid"

	// LabelBuildUUID marks every object of a build's environment.
	LabelBuildUUID = "lc_uuid"

	// LabelAppName identifies the native-helm deploy path.
	LabelAppName = "app.kubernetes.io/name"

	// NativeHelmAppName is the LabelAppName value on native-helm deploy jobs.
	NativeHelmAppName = "native-helm"

	LabelService      = "service"
	LabelGitSHA       = "git-sha"
	LabelGitBranch    = "git-branch"
	LabelDeployID     = "deploy-id"
	LabelDeployableID = "deployable-id"
	LabelJobName      = "job-name"

	// AnnotationTerminationReason records why a deploy job was killed.
	AnnotationTerminationReason = "lifecycle.goodrx.com/termination-reason"

	// AnnotationTerminationTime records when a deploy job was killed.
	AnnotationTerminationTime = "lifecycle.goodrx.com/termination-time"

	// TerminationReasonSuperseded is set by the release reconciler when a
	// newer deploy attempt replaces a stale job. The job monitor is the only
	// reader.
	TerminationReasonSuperseded = "superseded-by-retry"
)

const (
	// DefaultNamespaceEnvValue seeds the __NAMESPACE__ env var of every
	// synthesized container.
	DefaultNamespaceEnvValue = "lifecycle"

	// StaticEnvToleration is tolerated by pods of static environments.
	StaticEnvToleration = "static_env"

	// StaticEnvNodeGroup is the node group static environments are pinned to.
	StaticEnvNodeGroup = "lifecycle-static-env"

	// BuilderTolerationKey lets deploy jobs schedule onto builder nodes.
	BuilderTolerationKey = "builder"

	// CapacityTypeLabel is the EKS-managed node capacity label.
	CapacityTypeLabel = "eks.amazonaws.com/capacityType"

	// IAMRoleAnnotation binds a service account to its IAM role.
	IAMRoleAnnotation = "eks.amazonaws.com/role-arn"
)

// Job and release naming.
const (
	// MaxResourceNameLength is the kubernetes object-name limit applied to
	// synthesized job names.
	MaxResourceNameLength = 63

	// JobIDAlphabet is the alphabet of the random 6-char deploy job id.
	JobIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

	// JobIDLength is the length of the random deploy job id.
	JobIDLength = 6
)
