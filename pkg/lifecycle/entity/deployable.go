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

// DeployType discriminates the deploy path a deployable takes.
type DeployType string

const (
	TypeHelm          DeployType = "helm"
	TypeGithub        DeployType = "github"
	TypeDocker        DeployType = "docker"
	TypeCLI           DeployType = "cli"
	TypeExternalHTTP  DeployType = "externalHTTP"
	TypeConfiguration DeployType = "configuration"
	TypeCodefresh     DeployType = "codefresh"
)

// Deployable is the normalized, type-specific spec of a Deploy. It is
// mutable until the deploy begins.
type Deployable struct {
	Name string     `json:"name"`
	Type DeployType `json:"type"`

	Helm *HelmConfig `json:"helm,omitempty"`

	// Repo and defaultBranch of the source repository, used by the deploy
	// job's git init container.
	Repo string `json:"repo,omitempty"`

	Ports string `json:"port,omitempty"` // CSV of container ports
	GRPC  bool   `json:"grpc,omitempty"`
	Cname string `json:"cname,omitempty"`

	Requests ResourceList `json:"requests,omitempty"`
	Limits   ResourceList `json:"limits,omitempty"`

	ReadinessProbe *Probe `json:"readinessProbe,omitempty"`
	LivenessProbe  *Probe `json:"livenessProbe,omitempty"`

	CapacityType string `json:"capacityType,omitempty"`

	DeploymentDependsOn []string `json:"deploymentDependsOn,omitempty"`

	ServiceDisksYaml string `json:"serviceDisksYaml,omitempty"`

	KedaScaleToZero *KedaScaleToZero `json:"kedaScaleToZero,omitempty"`

	// IPWhitelist and PathPortMapping are carried through to ingress
	// collaborators; opaque here.
	IPWhitelist []string `json:"ipWhitelist,omitempty"`
}

// ResourceList is a cpu/memory pair in kubernetes quantity syntax.
type ResourceList struct {
	CPU    string `json:"cpu,omitempty"`
	Memory string `json:"memory,omitempty"`
}

// Probe is a minimal readiness/liveness probe description.
type Probe struct {
	HTTPGetPath         string `json:"httpGetPath,omitempty"`
	HTTPGetPort         int    `json:"httpGetPort,omitempty"`
	TCPSocketPort       int    `json:"tcpSocketPort,omitempty"`
	InitialDelaySeconds int32  `json:"initialDelaySeconds,omitempty"`
	PeriodSeconds       int32  `json:"periodSeconds,omitempty"`
	TimeoutSeconds      int32  `json:"timeoutSeconds,omitempty"`
	SuccessThreshold    int32  `json:"successThreshold,omitempty"`
	FailureThreshold    int32  `json:"failureThreshold,omitempty"`
}

// KedaScaleToZero configures HTTP-based scale-to-zero for a deployable.
type KedaScaleToZero struct {
	Type               string `json:"type,omitempty"` // only "http" is recognized
	MinReplicas        int    `json:"minReplicas,omitempty"`
	MaxReplicas        int    `json:"maxReplicas,omitempty"`
	ScaledownPeriod    int    `json:"scaledownPeriod,omitempty"`
	MaxRetries         int    `json:"maxRetries,omitempty"`
	TargetPendingCount int    `json:"targetPendingCount,omitempty"`
}

// HelmConfig is the helm-specific deployable configuration.
type HelmConfig struct {
	ChartName    string `json:"chartName,omitempty"`
	ChartRepoURL string `json:"chartRepoUrl,omitempty"`
	ChartVersion string `json:"chartVersion,omitempty"`
	HelmVersion  string `json:"helmVersion,omitempty"`

	// ResourceType selects the org chart's workload block; defaults to
	// "deployment".
	ResourceType string `json:"resourceType,omitempty"`

	Args       []string `json:"args,omitempty"`
	ValueFiles []string `json:"valueFiles,omitempty"`

	// CustomValues are template-resolved service values applied with --set.
	CustomValues map[string]string `json:"customValues,omitempty"`

	// EnvMapping transforms env vars into chart values for local charts.
	EnvMapping *EnvMappings `json:"envMapping,omitempty"`

	// DeploymentMethod is "native" for the in-cluster helm job path.
	DeploymentMethod string `json:"deploymentMethod,omitempty"`
}

// EnvMappings holds the app and init env transformations of a local chart.
type EnvMappings struct {
	App  *EnvMapping `json:"app,omitempty"`
	Init *EnvMapping `json:"init,omitempty"`
}

// EnvMapping selects how env vars are rendered into chart values.
type EnvMapping struct {
	Format string `json:"format"` // "array" or "map"
	Path   string `json:"path"`
}

// Disk is one persistent disk attached to a raw-manifest deployable.
type Disk struct {
	Name       string `json:"name,omitempty"`
	MountPath  string `json:"mountPath"`
	Medium     string `json:"medium,omitempty"` // "", "DISK" or "EBS"
	Storage    string `json:"storage"`
	AccessMode string `json:"accessModes,omitempty"`
}
