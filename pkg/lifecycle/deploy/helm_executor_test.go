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
	"testing"

	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/config"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/constants"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/entity"
	"github.com/Underdog-Inc/lifecycle-sub000/testutil"
)

func executorConfig() *config.Config {
	return &config.Config{
		OrgChartName: "org-app",
		AppDomain:    "env.example.test",
		Charts: map[string]config.ChartConfig{
			"redis": {
				Repo: "https://charts.bitnami.com/bitnami",
			},
		},
		ChartRepositories: map[string]string{
			"bitnami": "https://charts.bitnami.com/bitnami",
		},
		NativeHelm: config.NativeHelm{
			DefaultHelmVersion: "3.12.0",
			DefaultArgs:        []string{"--timeout=10m"},
		},
		ServiceAccount: config.ServiceAccount{Name: "lifecycle-deploy"},
	}
}

func TestHelmScript(t *testing.T) {
	tests := []struct {
		description string
		helm        *entity.HelmConfig
		values      []string
		expected    string
	}{
		{
			description: "org chart from local checkout",
			helm:        &entity.HelmConfig{ChartName: "org-app"},
			values:      []string{"deployment.appImage=registry.test/org/app:v1"},
			expected:    `helm upgrade --install env-1 org-app --namespace env-ns --set 'deployment.appImage=registry.test\/org\/app:v1' --timeout=10m`,
		},
		{
			description: "public chart adds its repository first",
			helm: &entity.HelmConfig{
				ChartName:    "redis",
				ChartVersion: "17.0.1",
			},
			values: []string{"auth.enabled=false"},
			expected: "helm repo add bitnami https://charts.bitnami.com/bitnami && " +
				"helm repo update && " +
				"helm upgrade --install env-1 bitnami/redis --namespace env-ns --version 17.0.1 --set auth.enabled=false --timeout=10m",
		},
		{
			description: "oci chart needs no repo add",
			helm: &entity.HelmConfig{
				ChartName:    "app",
				ChartRepoURL: "oci://registry.test/charts",
			},
			expected: "helm upgrade --install env-1 oci://registry.test/charts/app --namespace env-ns --timeout=10m",
		},
		{
			description: "deployable args override defaults",
			helm: &entity.HelmConfig{
				ChartName: "org-app",
				Args:      []string{"--timeout=30m", "--atomic"},
			},
			expected: "helm upgrade --install env-1 org-app --namespace env-ns --timeout=30m --atomic",
		},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			e := &StandardExecutor{cfg: executorConfig()}
			d := &entity.Deploy{
				UUID:       "Env-1",
				Build:      &entity.Build{Namespace: "env-ns"},
				Deployable: &entity.Deployable{Name: "app", Helm: test.helm},
			}

			script, err := e.helmScript(d, test.values)

			testutil.CheckError(t, false, err)
			testutil.CheckDeepEqual(t, test.expected, script)
		})
	}
}

func TestValidateHelmConfig(t *testing.T) {
	tests := []struct {
		description string
		deploy      *entity.Deploy
		shouldErr   bool
		expected    string
	}{
		{
			description: "explicit helm version wins",
			deploy: &entity.Deploy{
				DockerImage: "img:v1",
				Deployable: &entity.Deployable{
					Helm: &entity.HelmConfig{ChartName: "org-app", HelmVersion: "3.9.4"},
				},
			},
			expected: "3.9.4",
		},
		{
			description: "default helm version fills in",
			deploy: &entity.Deploy{
				DockerImage: "img:v1",
				Deployable: &entity.Deployable{
					Helm: &entity.HelmConfig{ChartName: "org-app"},
				},
			},
			expected: "3.12.0",
		},
		{
			description: "missing chart name",
			deploy: &entity.Deploy{
				Deployable: &entity.Deployable{Helm: &entity.HelmConfig{}},
			},
			shouldErr: true,
		},
		{
			description: "org chart without docker image",
			deploy: &entity.Deploy{
				Deployable: &entity.Deployable{
					Helm: &entity.HelmConfig{ChartName: "org-app"},
				},
			},
			shouldErr: true,
		},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			e := &StandardExecutor{cfg: executorConfig()}

			version, err := e.validateHelmConfig(test.deploy)

			testutil.CheckError(t, test.shouldErr, err)
			if !test.shouldErr {
				testutil.CheckDeepEqual(t, test.expected, version)
			}
		})
	}
}

func TestHelmDeployJob(t *testing.T) {
	old := newJobID
	newJobID = func() string { return "x1y2z3" }
	t.Cleanup(func() { newJobID = old })

	e := &StandardExecutor{cfg: executorConfig()}
	d := &entity.Deploy{
		UUID:        "Env-1",
		SHA:         "0123456789abcdef",
		BranchName:  "feature/thing",
		DockerImage: "registry.test/org/app:v1",
		Build:       &entity.Build{UUID: "build-1", Namespace: "env-ns", IsStatic: true},
		Deployable: &entity.Deployable{
			Name: "app",
			Repo: "goodrx/app",
			Helm: &entity.HelmConfig{ChartName: "org-app"},
		},
	}

	deployJob, err := e.helmDeployJob(d, "3.12.0", nil)

	testutil.CheckError(t, false, err)
	testutil.CheckDeepEqual(t, "env-1-deploy-x1y2z3-0123456", deployJob.Name)
	testutil.CheckDeepEqual(t, "env-1", deployJob.Labels[constants.LabelLCUUID])
	testutil.CheckDeepEqual(t, "native-helm", deployJob.Labels[constants.LabelAppName])
	testutil.CheckDeepEqual(t, "feature-thing", deployJob.Labels[constants.LabelGitBranch])
	testutil.CheckDeepEqual(t, int32(0), *deployJob.Spec.BackoffLimit)
	testutil.CheckDeepEqual(t, int32(86400), *deployJob.Spec.TTLSecondsAfterFinished)
	testutil.CheckDeepEqual(t, "lifecycle-deploy", deployJob.Spec.Template.Spec.ServiceAccountName)
	testutil.CheckDeepEqual(t, "alpine/helm:3.12.0", deployJob.Spec.Template.Spec.Containers[0].Image)

	if len(deployJob.Spec.Template.Spec.InitContainers) != 1 {
		t.Fatalf("expected a git init container, got %d", len(deployJob.Spec.Template.Spec.InitContainers))
	}
	testutil.CheckDeepEqual(t, "alpine/git", deployJob.Spec.Template.Spec.InitContainers[0].Image)
}

func TestNeedsGitCheckout(t *testing.T) {
	cfg := executorConfig()
	tests := []struct {
		description string
		deploy      *entity.Deploy
		expected    bool
	}{
		{
			description: "org chart with repo clones",
			deploy: &entity.Deploy{
				BranchName: "main",
				Deployable: &entity.Deployable{
					Repo: "goodrx/app",
					Helm: &entity.HelmConfig{ChartName: "org-app"},
				},
			},
			expected: true,
		},
		{
			description: "public chart without value files skips the clone",
			deploy: &entity.Deploy{
				BranchName: "main",
				Deployable: &entity.Deployable{
					Repo: "goodrx/app",
					Helm: &entity.HelmConfig{ChartName: "redis"},
				},
			},
			expected: false,
		},
		{
			description: "public chart with value files clones",
			deploy: &entity.Deploy{
				BranchName: "main",
				Deployable: &entity.Deployable{
					Repo: "goodrx/app",
					Helm: &entity.HelmConfig{ChartName: "redis", ValueFiles: []string{"values/redis.yaml"}},
				},
			},
			expected: true,
		},
		{
			description: "no repo never clones",
			deploy: &entity.Deploy{
				BranchName: "main",
				Deployable: &entity.Deployable{
					Helm: &entity.HelmConfig{ChartName: "org-app"},
				},
			},
			expected: false,
		},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			testutil.CheckDeepEqual(t, test.expected, needsGitCheckout(cfg, test.deploy))
		})
	}
}
