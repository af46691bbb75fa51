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

// Build is one ephemeral environment instance, created when a pull request
// opens and destroyed when it closes or its TTL expires.
type Build struct {
	UUID           string `json:"uuid"`
	Namespace      string `json:"namespace"`
	IsStatic       bool   `json:"isStatic"`
	EnableFullYaml bool   `json:"enableFullYaml"`
	CapacityType   string `json:"capacityType,omitempty"`
	Status         string `json:"status,omitempty"`

	// CommentRuntimeEnv and CommentInitEnv are env overrides edited by users
	// through the PR status comment. Values may be nested objects before
	// flattening; comment values win over the deploy's own env.
	CommentRuntimeEnv map[string]interface{} `json:"commentRuntimeEnv,omitempty"`
	CommentInitEnv    map[string]interface{} `json:"commentInitEnv,omitempty"`
}
