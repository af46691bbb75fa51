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
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/config"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/constants"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/entity"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/util"
)

// chartVariant distinguishes how custom values are constructed.
type chartVariant int

const (
	chartOrg chartVariant = iota
	chartPublic
	chartLocal
)

func variantOf(cfg *config.Config, h *entity.HelmConfig) chartVariant {
	switch {
	case cfg.IsOrgChart(h.ChartName):
		return chartOrg
	case h.ChartRepoURL != "" || cfg.ChartDefaults(h.ChartName).Repo != "":
		return chartPublic
	default:
		return chartLocal
	}
}

// buildCustomValues returns the ordered key=value entries passed to helm
// with --set for one deploy.
func buildCustomValues(cfg *config.Config, d *entity.Deploy) ([]string, error) {
	h := d.Deployable.Helm
	if h == nil || h.ChartName == "" {
		return nil, errors.New("configuration validation failed: helm chart name is required")
	}

	switch variantOf(cfg, h) {
	case chartOrg:
		return orgChartValues(d)
	case chartPublic:
		return publicChartValues(cfg, d), nil
	default:
		return localChartValues(cfg, d)
	}
}

// orgChartValues renders values for the organization chart.
func orgChartValues(d *entity.Deploy) ([]string, error) {
	h := d.Deployable.Helm
	if d.DockerImage == "" {
		return nil, errors.New("configuration validation failed: docker image is required for the org chart")
	}

	rt := h.ResourceType
	if rt == "" {
		rt = "deployment"
	}

	values := []string{
		fmt.Sprintf("%s.appImage=%s", rt, d.DockerImage),
		fmt.Sprintf("%s.version=%s", rt, imageTag(d.DockerImage)),
	}

	if d.InitDockerImage != "" {
		values = append(values, fmt.Sprintf("%s.initImage=%s", rt, d.InitDockerImage))
		initEnv := d.InitRuntimeEnv()
		for _, k := range util.SortKeys(initEnv) {
			values = append(values, fmt.Sprintf("%s.initEnv.%s=%q", rt, util.DoubleUnderscores(k), initEnv[k]))
		}
	} else {
		values = append(values, fmt.Sprintf("%s.disableInit=true", rt))
	}

	env := d.RuntimeEnv()
	for _, k := range util.SortKeys(env) {
		values = append(values, fmt.Sprintf("%s.env.%s=%q", rt, util.DoubleUnderscores(k), env[k]))
	}

	values = append(values,
		fmt.Sprintf("labels.env=lifecycle-%s", d.Build.UUID),
		fmt.Sprintf("%s.enableServiceLinks=disabled", rt),
		fmt.Sprintf("labels.lc__uuid=%s", d.Build.UUID),
	)

	if d.Build.IsStatic {
		values = append(values,
			fmt.Sprintf("%s.nodeAffinity.key=%s", rt, constants.CapacityTypeLabel),
			fmt.Sprintf("%s.nodeAffinity.values[0]=ON_DEMAND", rt),
			fmt.Sprintf("%s.tolerations[0].key=%s", rt, constants.StaticEnvToleration),
			fmt.Sprintf("%s.tolerations[0].operator=Equal", rt),
			fmt.Sprintf("%s.tolerations[0].value=yes", rt),
			fmt.Sprintf("%s.tolerations[0].effect=NoSchedule", rt),
		)
	}

	return values, nil
}

// publicChartValues merges the chart's global defaults with the deployable's
// template-resolved values and appends the identity overrides.
func publicChartValues(cfg *config.Config, d *entity.Deploy) []string {
	h := d.Deployable.Helm
	release := d.ReleaseName()

	values := config.MergeKeyedValues(
		cfg.ChartDefaults(h.ChartName).Values,
		customValueEntries(h.CustomValues),
	)

	values = append(values,
		fmt.Sprintf("fullnameOverride=%s", release),
		fmt.Sprintf("commonLabels.name=%s", release),
		fmt.Sprintf("commonLabels.lc__uuid=%s", d.Build.UUID),
	)

	if d.Build.IsStatic {
		values = append(values, staticPlacementValues(cfg, h.ChartName)...)
	}
	return values
}

// localChartValues is publicChartValues plus the declared env mapping.
func localChartValues(cfg *config.Config, d *entity.Deploy) ([]string, error) {
	values := publicChartValues(cfg, d)

	h := d.Deployable.Helm
	if h.EnvMapping == nil {
		return values, nil
	}

	if m := h.EnvMapping.App; m != nil {
		mapped, err := mapEnv(m, d.RuntimeEnv())
		if err != nil {
			return nil, err
		}
		values = append(values, mapped...)
	}
	if m := h.EnvMapping.Init; m != nil {
		mapped, err := mapEnv(m, d.InitRuntimeEnv())
		if err != nil {
			return nil, err
		}
		values = append(values, mapped...)
	}
	return values, nil
}

// mapEnv renders env vars into the chart's declared value format.
func mapEnv(m *entity.EnvMapping, env map[string]string) ([]string, error) {
	keys := util.SortKeys(env)
	var values []string
	switch m.Format {
	case "array":
		for i, k := range keys {
			values = append(values,
				fmt.Sprintf("%s[%d].name=%s", m.Path, i, k),
				fmt.Sprintf("%s[%d].value=%s", m.Path, i, env[k]),
			)
		}
	case "map":
		for _, k := range keys {
			values = append(values, fmt.Sprintf("%s.%s=%q", m.Path, util.DoubleUnderscores(k), env[k]))
		}
	default:
		return nil, errors.Errorf("configuration validation failed: unsupported env mapping format %q", m.Format)
	}
	return values, nil
}

// staticPlacementValues pins a public chart's pods onto the static-env node
// group, augmenting whatever placement the chart's global config declares.
func staticPlacementValues(cfg *config.Config, chartName string) []string {
	chart := cfg.ChartDefaults(chartName)
	values := append([]string{}, chart.Tolerations...)
	values = append(values,
		fmt.Sprintf("tolerations[%d].key=%s", len(chart.Tolerations), constants.StaticEnvToleration),
		fmt.Sprintf("tolerations[%d].operator=Equal", len(chart.Tolerations)),
		fmt.Sprintf("tolerations[%d].value=yes", len(chart.Tolerations)),
		fmt.Sprintf("tolerations[%d].effect=NoSchedule", len(chart.Tolerations)),
	)
	for _, k := range util.SortKeys(chart.NodeSelector) {
		values = append(values, fmt.Sprintf("nodeSelector.%s=%s", k, chart.NodeSelector[k]))
	}
	values = append(values, fmt.Sprintf("nodeSelector.app-long=%s", constants.StaticEnvNodeGroup))
	return values
}

// customValueEntries flattens a custom-values map into sorted key=value
// entries.
func customValueEntries(m map[string]string) []string {
	entries := make([]string, 0, len(m))
	for _, k := range util.SortKeys(m) {
		entries = append(entries, fmt.Sprintf("%s=%s", k, m[k]))
	}
	return entries
}

// imageTag extracts the tag of an image reference, ignoring registry ports.
func imageTag(image string) string {
	slash := strings.LastIndex(image, "/")
	if colon := strings.LastIndex(image, ":"); colon > slash {
		return image[colon+1:]
	}
	return "latest"
}
