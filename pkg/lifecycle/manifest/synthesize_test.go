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
	"strings"
	"testing"

	appsv1 "k8s.io/api/apps/v1"

	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/config"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/entity"
	"github.com/Underdog-Inc/lifecycle-sub000/testutil"
)

func testConfig() *config.Config {
	return &config.Config{
		GRPCDomain:          "grpc.example.test",
		DefaultCapacityType: "ON_DEMAND",
	}
}

func testDeploy() *entity.Deploy {
	return &entity.Deploy{
		UUID:        "Env-123",
		DockerImage: "registry.test/org/app:abc1234",
		SHA:         "0123456789abcdef",
		Build:       &entity.Build{UUID: "build-1", Namespace: "env-ns"},
		Deployable: &entity.Deployable{
			Name:  "app",
			Type:  entity.TypeDocker,
			Ports: "8080, 9090",
		},
	}
}

func TestSynthesizeBasicDeploy(t *testing.T) {
	out, err := NewSynthesizer(testConfig()).Synthesize(testDeploy())

	testutil.CheckError(t, false, err)
	testutil.CheckError(t, false, Validate(out))
	testutil.CheckContains(t, "kind: Deployment", out)
	testutil.CheckContains(t, "kind: Service", out)
	testutil.CheckContains(t, "name: env-123", out)
	testutil.CheckContains(t, "name: internal-lb-env-123", out)
	testutil.CheckContains(t, "deploy_uuid: Env-123", out)
	testutil.CheckContains(t, "lc_uuid: build-1", out)

	if strings.Contains(out, "kind: PersistentVolumeClaim") {
		t.Error("no disks were declared, no claim expected")
	}
	if strings.Contains(out, "kind: Mapping") {
		t.Error("grpc is off, no mapping expected")
	}
}

func TestSynthesizeWithPersistentDisk(t *testing.T) {
	d := testDeploy()
	d.Deployable.ServiceDisksYaml = `
- mountPath: /data
  medium: EBS
  storage: 10Gi
`

	out, err := NewSynthesizer(testConfig()).Synthesize(d)

	testutil.CheckError(t, false, err)
	testutil.CheckContains(t, "kind: PersistentVolumeClaim", out)
	testutil.CheckContains(t, "name: env-123-disk-0", out)
	testutil.CheckContains(t, "storage: 10Gi", out)
	// exclusive attachment forces the Recreate strategy
	testutil.CheckContains(t, "type: Recreate", out)
}

func TestSynthesizeGRPCAndCname(t *testing.T) {
	d := testDeploy()
	d.Deployable.GRPC = true
	d.Deployable.Cname = "legacy.example.test"

	out, err := NewSynthesizer(testConfig()).Synthesize(d)

	testutil.CheckError(t, false, err)
	testutil.CheckContains(t, "kind: Mapping", out)
	testutil.CheckContains(t, "hostname: env-123.grpc.example.test:443", out)
	testutil.CheckContains(t, "service: env-123:8080", out)
	testutil.CheckContains(t, "kind: Service", out)
	testutil.CheckContains(t, "externalName: legacy.example.test", out)
}

func TestSynthesizeRequiresBuildAndDeployable(t *testing.T) {
	_, err := NewSynthesizer(testConfig()).Synthesize(&entity.Deploy{UUID: "env-1"})

	testutil.CheckError(t, true, err)
}

func TestDeploymentStrategyAndAffinity(t *testing.T) {
	tests := []struct {
		description  string
		deploy       func() *entity.Deploy
		wantStrategy appsv1.DeploymentStrategyType
		wantSpot     bool
	}{
		{
			description:  "default rolling update on demand",
			deploy:       testDeploy,
			wantStrategy: appsv1.RollingUpdateDeploymentStrategyType,
		},
		{
			description: "spot capacity is a soft preference",
			deploy: func() *entity.Deploy {
				d := testDeploy()
				d.Deployable.CapacityType = "SPOT"
				return d
			},
			wantStrategy: appsv1.RollingUpdateDeploymentStrategyType,
			wantSpot:     true,
		},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			d := test.deploy()
			s := NewSynthesizer(testConfig())

			deployment, err := s.deployment(d, nil)

			testutil.CheckError(t, false, err)
			testutil.CheckDeepEqual(t, test.wantStrategy, deployment.Spec.Strategy.Type)

			affinity := deployment.Spec.Template.Spec.Affinity.NodeAffinity
			if test.wantSpot {
				if affinity.PreferredDuringSchedulingIgnoredDuringExecution == nil {
					t.Error("expected a preferred scheduling term for spot capacity")
				}
			} else {
				if affinity.RequiredDuringSchedulingIgnoredDuringExecution == nil {
					t.Error("expected a required scheduling term")
				}
			}
		})
	}
}

func TestDeploymentStaticBuild(t *testing.T) {
	d := testDeploy()
	d.Build.IsStatic = true

	deployment, err := NewSynthesizer(testConfig()).deployment(d, nil)

	testutil.CheckError(t, false, err)

	tolerations := deployment.Spec.Template.Spec.Tolerations
	if len(tolerations) != 1 || tolerations[0].Key != "static_env" {
		t.Errorf("expected the static_env toleration, got %v", tolerations)
	}

	terms := deployment.Spec.Template.Spec.Affinity.NodeAffinity.RequiredDuringSchedulingIgnoredDuringExecution.NodeSelectorTerms
	found := false
	for _, req := range terms[0].MatchExpressions {
		if req.Key == "app-long" && req.Values[0] == "lifecycle-static-env" {
			found = true
		}
	}
	if !found {
		t.Error("expected the static-env node group requirement")
	}
}

func TestMainContainerEnv(t *testing.T) {
	d := testDeploy()
	d.Env = map[string]string{"DATABASE_URL": "postgres://default", "DD_ENV": "custom"}
	d.Build.CommentRuntimeEnv = map[string]interface{}{"DATABASE_URL": "postgres://override"}

	env := mainContainerEnv(d)

	byName := map[string]string{}
	var fieldRefs []string
	for _, e := range env {
		if e.ValueFrom != nil {
			fieldRefs = append(fieldRefs, e.Name)
			continue
		}
		byName[e.Name] = e.Value
	}

	testutil.CheckDeepEqual(t, "postgres://override", byName["DATABASE_URL"])
	testutil.CheckDeepEqual(t, "lifecycle", byName["__NAMESPACE__"])
	testutil.CheckDeepEqual(t, "build-1", byName["LC_UUID"])
	// user-set DD_ENV suppresses the field-ref fallback
	testutil.CheckDeepEqual(t, "custom", byName["DD_ENV"])
	testutil.CheckDeepEqual(t, []string{"POD_IP", "DD_AGENT_HOST", "DD_SERVICE", "DD_VERSION"}, fieldRefs)
}

func TestParseDisks(t *testing.T) {
	disks, err := ParseDisks(`
- name: data
  mountPath: /data
  storage: 5Gi
- mountPath: /scratch
  medium: MEMORY
  storage: 1Gi
`)

	testutil.CheckError(t, false, err)
	testutil.CheckDeepEqual(t, 2, len(disks))
	testutil.CheckDeepEqual(t, "data", disks[0].Name)
	// unnamed disks get positional names
	testutil.CheckDeepEqual(t, "disk-1", disks[1].Name)

	testutil.CheckDeepEqual(t, true, isPersistentMedium(disks[0].Medium))
	testutil.CheckDeepEqual(t, false, isPersistentMedium(disks[1].Medium))
}

func TestParsePorts(t *testing.T) {
	testutil.CheckDeepEqual(t, []int32{8080, 9090}, parsePorts("8080, 9090"))
	testutil.CheckDeepEqual(t, []int32{8080}, parsePorts("8080,not-a-port"))
	if parsePorts("") != nil {
		t.Error("expected no ports for an empty list")
	}
}
