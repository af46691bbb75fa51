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

// Package config holds the resolved global configuration consumed by the
// deploy core. It is produced by collaborators (database-backed settings plus
// environment) and treated as read-only here.
package config

import (
	"os"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"
)

// Config is the resolved global configuration.
type Config struct {
	IngressClassName string `json:"ingressClassName,omitempty"`
	DefaultUUID      string `json:"defaultUUID,omitempty"`

	// AppDomain serves plain http hosts, GRPCDomain grpc hosts.
	AppDomain  string `json:"appDomain,omitempty"`
	GRPCDomain string `json:"grpcDomain,omitempty"`

	ECRRegistry string `json:"ecrRegistry,omitempty"`

	DefaultCapacityType string `json:"defaultCapacityType,omitempty"`

	HelmDefaults HelmDefaults `json:"helmDefaults,omitempty"`
	NativeHelm   NativeHelm   `json:"nativeHelm,omitempty"`

	// Charts maps a chart name to its global overrides.
	Charts map[string]ChartConfig `json:"charts,omitempty"`

	// ChartRepositories maps repository aliases to URLs for `helm repo add`.
	ChartRepositories map[string]string `json:"chartRepositories,omitempty"`

	ServiceAccount ServiceAccount `json:"serviceAccount,omitempty"`

	// OrgChartName is the organization's canonical internal chart.
	OrgChartName string `json:"orgChartName,omitempty"`

	// PublicChartBlockList names public charts that must not be installed.
	PublicChartBlockList []string `json:"publicChartBlockList,omitempty"`

	Labels LabelSets `json:"labels,omitempty"`

	// DeployConcurrency caps how many deploys of one wave run at once.
	// Zero means unbounded.
	DeployConcurrency int `json:"deployConcurrency,omitempty"`

	// BannerSnippet is merged into each deploy's ingress
	// configuration-snippet annotation after a successful helm deploy.
	BannerSnippet string `json:"bannerSnippet,omitempty"`
}

// HelmDefaults applies to every helm invocation unless overridden.
type HelmDefaults struct {
	DefaultArgs []string `json:"defaultArgs,omitempty"`
}

// NativeHelm configures the in-cluster helm job deploy path.
type NativeHelm struct {
	DefaultHelmVersion string   `json:"defaultHelmVersion,omitempty"`
	DefaultArgs        []string `json:"defaultArgs,omitempty"`
	JobTimeoutSeconds  int64    `json:"jobTimeoutSeconds,omitempty"`
}

// ChartConfig is the per-chart block of the global configuration.
type ChartConfig struct {
	Chart        string            `json:"chart,omitempty"`
	Repo         string            `json:"repo,omitempty"`
	HelmVersion  string            `json:"helmVersion,omitempty"`
	Values       []string          `json:"values,omitempty"` // key=value entries
	ValueFiles   []string          `json:"valueFiles,omitempty"`
	Args         []string          `json:"args,omitempty"`
	Tolerations  []string          `json:"tolerations,omitempty"`
	NodeSelector map[string]string `json:"nodeSelector,omitempty"`
}

// ServiceAccount names the account deploy jobs run as, with its IAM role.
type ServiceAccount struct {
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

// LabelSets groups the label selectors used by collaborators.
type LabelSets struct {
	Deploy         map[string]string `json:"deploy,omitempty"`
	Disabled       map[string]string `json:"disabled,omitempty"`
	StatusComments map[string]string `json:"statusComments,omitempty"`
}

// Load reads a Config from a YAML file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, errors.Wrap(err, "parsing config")
	}
	return &cfg, nil
}

// IsOrgChart reports whether the chart is the organization chart.
func (c *Config) IsOrgChart(chartName string) bool {
	return c.OrgChartName != "" && chartName == c.OrgChartName
}

// IsBlockedChart reports whether a public chart is on the block list.
func (c *Config) IsBlockedChart(chartName string) bool {
	for _, blocked := range c.PublicChartBlockList {
		if blocked == chartName {
			return true
		}
	}
	return false
}

// ChartDefaults returns the global chart block for the given chart name.
func (c *Config) ChartDefaults(chartName string) ChartConfig {
	if c.Charts == nil {
		return ChartConfig{}
	}
	return c.Charts[chartName]
}
