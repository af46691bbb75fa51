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

package config

import (
	"testing"

	"github.com/Underdog-Inc/lifecycle-sub000/testutil"
)

func TestMergeKeyedValues(t *testing.T) {
	tests := []struct {
		description string
		lists       [][]string
		expected    []string
	}{
		{
			description: "later value wins in place",
			lists: [][]string{
				{"replicas=1", "image.tag=v1"},
				{"replicas=3"},
			},
			expected: []string{"replicas=3", "image.tag=v1"},
		},
		{
			description: "order of first appearance preserved",
			lists: [][]string{
				{"b=1"},
				{"a=2", "b=3", "c=4"},
			},
			expected: []string{"b=3", "a=2", "c=4"},
		},
		{
			description: "empty lists",
			lists:       [][]string{nil, {}},
			expected:    []string{},
		},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			got := MergeKeyedValues(test.lists...)

			testutil.CheckDeepEqual(t, test.expected, got)
		})
	}
}

func TestMergeFlagArgs(t *testing.T) {
	tests := []struct {
		description string
		lists       [][]string
		expected    []string
	}{
		{
			description: "later flag value replaces earlier",
			lists: [][]string{
				{"--timeout=5m", "--atomic"},
				{"--timeout=10m"},
			},
			expected: []string{"--timeout=10m", "--atomic"},
		},
		{
			description: "non-flag args are kept by identity",
			lists: [][]string{
				{"--wait"},
				{"--wait"},
			},
			expected: []string{"--wait"},
		},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			got := MergeFlagArgs(test.lists...)

			testutil.CheckDeepEqual(t, test.expected, got)
		})
	}
}

func TestMergeChartConfigs(t *testing.T) {
	base := ChartConfig{
		Chart:  "redis",
		Repo:   "https://charts.bitnami.com/bitnami",
		Values: []string{"auth.enabled=false", "replica.replicaCount=1"},
		Args:   []string{"--timeout=5m"},
	}
	override := ChartConfig{
		HelmVersion: "3.12.0",
		Values:      []string{"replica.replicaCount=3"},
		Args:        []string{"--timeout=10m", "--atomic"},
	}

	merged, err := MergeChartConfigs(base, override)

	testutil.CheckError(t, false, err)
	testutil.CheckDeepEqual(t, "redis", merged.Chart)
	testutil.CheckDeepEqual(t, "https://charts.bitnami.com/bitnami", merged.Repo)
	testutil.CheckDeepEqual(t, "3.12.0", merged.HelmVersion)
	testutil.CheckDeepEqual(t, []string{"auth.enabled=false", "replica.replicaCount=3"}, merged.Values)
	testutil.CheckDeepEqual(t, []string{"--timeout=10m", "--atomic"}, merged.Args)
}

func TestIsBlockedChart(t *testing.T) {
	cfg := &Config{PublicChartBlockList: []string{"bitcoin-miner"}}

	testutil.CheckDeepEqual(t, true, cfg.IsBlockedChart("bitcoin-miner"))
	testutil.CheckDeepEqual(t, false, cfg.IsBlockedChart("redis"))
}
