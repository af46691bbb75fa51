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

package manifest

import (
	corev1 "k8s.io/api/core/v1"

	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/constants"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/entity"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/util"
)

// Datadog unified service tagging labels, referenced by field refs from the
// container env.
const (
	ddEnvLabel     = "tags.datadoghq.com/env"
	ddServiceLabel = "tags.datadoghq.com/service"
	ddVersionLabel = "tags.datadoghq.com/version"
)

// mainContainerEnv builds the env of the application container. Precedence,
// lowest first: the fixed __NAMESPACE__ seed, the deploy's env, the build's
// flattened comment runtime env. Field-ref entries are appended after the
// flattened map so they cannot be shadowed, except the DD_* trio which only
// applies when the user did not set them.
func mainContainerEnv(d *entity.Deploy) []corev1.EnvVar {
	merged := map[string]string{"__NAMESPACE__": constants.DefaultNamespaceEnvValue}
	for k, v := range d.Env {
		merged[k] = v
	}
	if d.Build != nil {
		for k, v := range entity.FlattenEnv(d.Build.CommentRuntimeEnv) {
			merged[k] = v
		}
	}

	env := envVarsFromMap(merged)

	env = append(env,
		fieldRefEnv("POD_IP", "status.podIP"),
		fieldRefEnv("DD_AGENT_HOST", "status.hostIP"),
	)
	if _, ok := merged["DD_ENV"]; !ok {
		env = append(env, fieldRefEnv("DD_ENV", "metadata.labels['"+ddEnvLabel+"']"))
	}
	if _, ok := merged["DD_SERVICE"]; !ok {
		env = append(env, fieldRefEnv("DD_SERVICE", "metadata.labels['"+ddServiceLabel+"']"))
	}
	if _, ok := merged["DD_VERSION"]; !ok {
		env = append(env, fieldRefEnv("DD_VERSION", "metadata.labels['"+ddVersionLabel+"']"))
	}
	env = append(env, corev1.EnvVar{Name: "LC_UUID", Value: d.Build.UUID})

	return env
}

// initContainerEnv builds the env of the init container from the deploy's
// init env and the build's comment init env, without the DD_* fallbacks.
func initContainerEnv(d *entity.Deploy) []corev1.EnvVar {
	merged := map[string]string{"__NAMESPACE__": constants.DefaultNamespaceEnvValue}
	for k, v := range d.InitEnv {
		merged[k] = v
	}
	if d.Build != nil {
		for k, v := range entity.FlattenEnv(d.Build.CommentInitEnv) {
			merged[k] = v
		}
	}

	env := envVarsFromMap(merged)
	env = append(env,
		fieldRefEnv("POD_IP", "status.podIP"),
		fieldRefEnv("DD_AGENT_HOST", "status.hostIP"),
		corev1.EnvVar{Name: "LC_UUID", Value: d.Build.UUID},
	)
	return env
}

func envVarsFromMap(m map[string]string) []corev1.EnvVar {
	env := make([]corev1.EnvVar, 0, len(m))
	for _, k := range util.SortKeys(m) {
		env = append(env, corev1.EnvVar{Name: k, Value: m[k]})
	}
	return env
}

func fieldRefEnv(name, fieldPath string) corev1.EnvVar {
	return corev1.EnvVar{
		Name: name,
		ValueFrom: &corev1.EnvVarSource{
			FieldRef: &corev1.ObjectFieldSelector{FieldPath: fieldPath},
		},
	}
}
