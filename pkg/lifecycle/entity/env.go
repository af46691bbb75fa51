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

import "fmt"

// FlattenEnv dot-flattens nested comment env objects into a single-level
// string map. Entries whose value cannot be reduced to a scalar (for
// instance arrays) are dropped.
func FlattenEnv(in map[string]interface{}) map[string]string {
	out := map[string]string{}
	flattenInto(out, "", in)
	return out
}

func flattenInto(out map[string]string, prefix string, in map[string]interface{}) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]interface{}:
			flattenInto(out, key, val)
		case string:
			out[key] = val
		case nil:
			out[key] = ""
		case bool, int, int32, int64, float32, float64:
			out[key] = fmt.Sprint(val)
		default:
			// still a structured value after flattening; dropped
		}
	}
}

// RuntimeEnv merges the deploy's env with the build's comment runtime env,
// comment values winning.
func (d *Deploy) RuntimeEnv() map[string]string {
	merged := map[string]string{}
	for k, v := range d.Env {
		merged[k] = v
	}
	if d.Build != nil {
		for k, v := range FlattenEnv(d.Build.CommentRuntimeEnv) {
			merged[k] = v
		}
	}
	return merged
}

// InitRuntimeEnv merges the deploy's init env with the build's comment init
// env, comment values winning.
func (d *Deploy) InitRuntimeEnv() map[string]string {
	merged := map[string]string{}
	for k, v := range d.InitEnv {
		merged[k] = v
	}
	if d.Build != nil {
		for k, v := range FlattenEnv(d.Build.CommentInitEnv) {
			merged[k] = v
		}
	}
	return merged
}
