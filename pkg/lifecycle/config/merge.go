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
	"strings"

	"github.com/imdario/mergo"
	"github.com/pkg/errors"
)

// MergeChartConfigs layers chart configuration blocks left to right, later
// blocks overriding earlier ones. Scalar fields follow mergo override
// semantics; Values entries merge by key identity instead of array
// concatenation, last writer winning per key.
func MergeChartConfigs(layers ...ChartConfig) (ChartConfig, error) {
	var merged ChartConfig
	for _, layer := range layers {
		values := MergeKeyedValues(merged.Values, layer.Values)
		args := MergeFlagArgs(merged.Args, layer.Args)
		if err := mergo.Merge(&merged, layer, mergo.WithOverride); err != nil {
			return ChartConfig{}, errors.Wrap(err, "merging chart config")
		}
		merged.Values = values
		merged.Args = args
	}
	return merged, nil
}

// MergeKeyedValues merges lists of key=value entries by key identity. Order
// of first appearance is preserved; a later occurrence of a key replaces the
// earlier value in place.
func MergeKeyedValues(lists ...[]string) []string {
	var order []string
	byKey := map[string]string{}
	for _, list := range lists {
		for _, entry := range list {
			key := entry
			if i := strings.Index(entry, "="); i >= 0 {
				key = entry[:i]
			}
			if _, seen := byKey[key]; !seen {
				order = append(order, key)
			}
			byKey[key] = entry
		}
	}
	merged := make([]string, 0, len(order))
	for _, key := range order {
		merged = append(merged, byKey[key])
	}
	return merged
}

// MergeFlagArgs concatenates defaultArgs then specific args, dropping earlier
// occurrences of a flag that reappears later so the later value wins.
func MergeFlagArgs(lists ...[]string) []string {
	var order []string
	byFlag := map[string]string{}
	for _, list := range lists {
		for _, arg := range list {
			flag := arg
			if i := strings.IndexAny(arg, "= "); i >= 0 && strings.HasPrefix(arg, "-") {
				flag = arg[:i]
			}
			if _, seen := byFlag[flag]; !seen {
				order = append(order, flag)
			}
			byFlag[flag] = arg
		}
	}
	merged := make([]string, 0, len(order))
	for _, flag := range order {
		merged = append(merged, byFlag[flag])
	}
	return merged
}
