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
	"fmt"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"

	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/constants"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/entity"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/util"
)

const configMountPath = "/config"

func commonLabels(d *entity.Deploy) map[string]string {
	return map[string]string{
		"name":                    strings.ToLower(d.UUID),
		constants.LabelBuildUUID:  d.Build.UUID,
		constants.LabelDeployUUID: d.UUID,
	}
}

// deployment synthesizes the application Deployment.
func (s *Synthesizer) deployment(d *entity.Deploy, disks []entity.Disk) (*appsv1.Deployment, error) {
	deployable := d.Deployable
	name := strings.ToLower(d.UUID)

	replicas := int32(1)
	if d.ReplicaCount > 0 {
		replicas = int32(d.ReplicaCount)
	}

	podLabels := commonLabels(d)
	podLabels[ddEnvLabel] = "lifecycle-" + d.Build.UUID
	podLabels[ddServiceLabel] = deployable.Name
	podLabels[ddVersionLabel] = version(d)

	container, err := s.mainContainer(d, disks)
	if err != nil {
		return nil, err
	}

	podSpec := corev1.PodSpec{
		Containers:         []corev1.Container{*container},
		Volumes:            volumes(d, disks),
		Affinity:           s.affinity(d),
		EnableServiceLinks: util.Ptr(false),
		SecurityContext: &corev1.PodSecurityContext{
			FSGroup: util.Ptr[int64](2000),
		},
	}
	if d.InitDockerImage != "" {
		podSpec.InitContainers = []corev1.Container{initContainer(d)}
	}
	if d.Build.IsStatic {
		podSpec.Tolerations = []corev1.Toleration{{
			Key:      constants.StaticEnvToleration,
			Operator: corev1.TolerationOpEqual,
			Value:    "yes",
			Effect:   corev1.TaintEffectNoSchedule,
		}}
	}

	return &appsv1.Deployment{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "apps/v1",
			Kind:       "Deployment",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: d.Build.Namespace,
			Labels:    commonLabels(d),
		},
		Spec: appsv1.DeploymentSpec{
			Replicas:             &replicas,
			RevisionHistoryLimit: util.Ptr[int32](5),
			Selector: &metav1.LabelSelector{
				MatchLabels: map[string]string{"name": name},
			},
			Strategy: strategy(disks),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: podLabels,
				},
				Spec: podSpec,
			},
		},
	}, nil
}

// strategy keeps the deployment available through rollouts unless a
// persistent disk forces exclusive attachment.
func strategy(disks []entity.Disk) appsv1.DeploymentStrategy {
	for _, disk := range disks {
		if m := strings.ToUpper(disk.Medium); m == "DISK" || m == "EBS" {
			return appsv1.DeploymentStrategy{Type: appsv1.RecreateDeploymentStrategyType}
		}
	}
	return appsv1.DeploymentStrategy{
		Type: appsv1.RollingUpdateDeploymentStrategyType,
		RollingUpdate: &appsv1.RollingUpdateDeployment{
			MaxUnavailable: util.Ptr(intstr.FromString("0%")),
		},
	}
}

func (s *Synthesizer) mainContainer(d *entity.Deploy, disks []entity.Disk) (*corev1.Container, error) {
	deployable := d.Deployable

	resources, err := resourceRequirements(deployable)
	if err != nil {
		return nil, err
	}

	container := corev1.Container{
		Name:         deployable.Name,
		Image:        d.DockerImage,
		Env:          mainContainerEnv(d),
		Ports:        containerPorts(deployable.Ports),
		Resources:    resources,
		VolumeMounts: volumeMounts(d, disks),
	}
	if p := probe(deployable.ReadinessProbe); p != nil {
		container.ReadinessProbe = p
	}
	if p := probe(deployable.LivenessProbe); p != nil {
		container.LivenessProbe = p
	}
	return &container, nil
}

func initContainer(d *entity.Deploy) corev1.Container {
	return corev1.Container{
		Name:  "init-" + d.Deployable.Name,
		Image: d.InitDockerImage,
		Env:   initContainerEnv(d),
		VolumeMounts: []corev1.VolumeMount{{
			Name:      "config",
			MountPath: configMountPath,
		}},
	}
}

func volumes(d *entity.Deploy, disks []entity.Disk) []corev1.Volume {
	vols := []corev1.Volume{{
		Name: "config",
		VolumeSource: corev1.VolumeSource{
			EmptyDir: &corev1.EmptyDirVolumeSource{},
		},
	}}
	for _, disk := range disks {
		if !isPersistentMedium(disk.Medium) {
			vols = append(vols, corev1.Volume{
				Name: disk.Name,
				VolumeSource: corev1.VolumeSource{
					EmptyDir: &corev1.EmptyDirVolumeSource{},
				},
			})
			continue
		}
		vols = append(vols, corev1.Volume{
			Name: disk.Name,
			VolumeSource: corev1.VolumeSource{
				PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{
					ClaimName: claimName(d, disk),
				},
			},
		})
	}
	return vols
}

func volumeMounts(d *entity.Deploy, disks []entity.Disk) []corev1.VolumeMount {
	mounts := []corev1.VolumeMount{{
		Name:      "config",
		MountPath: configMountPath,
	}}
	for _, disk := range disks {
		mounts = append(mounts, corev1.VolumeMount{
			Name:      disk.Name,
			MountPath: disk.MountPath,
		})
	}
	return mounts
}

// affinity pins pods by capacity type. Spot capacity is a soft preference;
// anything else is a hard requirement, plus the static-env node group when
// the build is static.
func (s *Synthesizer) affinity(d *entity.Deploy) *corev1.Affinity {
	capacityType := d.Deployable.CapacityType
	if capacityType == "" {
		capacityType = d.Build.CapacityType
	}
	if capacityType == "" {
		capacityType = s.cfg.DefaultCapacityType
	}

	if strings.EqualFold(capacityType, "SPOT") {
		return &corev1.Affinity{
			NodeAffinity: &corev1.NodeAffinity{
				PreferredDuringSchedulingIgnoredDuringExecution: []corev1.PreferredSchedulingTerm{{
					Weight: 1,
					Preference: corev1.NodeSelectorTerm{
						MatchExpressions: []corev1.NodeSelectorRequirement{{
							Key:      constants.CapacityTypeLabel,
							Operator: corev1.NodeSelectorOpIn,
							Values:   []string{"SPOT"},
						}},
					},
				}},
			},
		}
	}

	matches := []corev1.NodeSelectorRequirement{{
		Key:      constants.CapacityTypeLabel,
		Operator: corev1.NodeSelectorOpIn,
		Values:   []string{capacityType},
	}}
	if d.Build.IsStatic {
		matches = append(matches, corev1.NodeSelectorRequirement{
			Key:      "app-long",
			Operator: corev1.NodeSelectorOpIn,
			Values:   []string{constants.StaticEnvNodeGroup},
		})
	}
	return &corev1.Affinity{
		NodeAffinity: &corev1.NodeAffinity{
			RequiredDuringSchedulingIgnoredDuringExecution: &corev1.NodeSelector{
				NodeSelectorTerms: []corev1.NodeSelectorTerm{{
					MatchExpressions: matches,
				}},
			},
		},
	}
}

func resourceRequirements(deployable *entity.Deployable) (corev1.ResourceRequirements, error) {
	requirements := corev1.ResourceRequirements{}

	requests, err := resourceList(deployable.Requests)
	if err != nil {
		return requirements, fmt.Errorf("resource requests: %w", err)
	}
	limits, err := resourceList(deployable.Limits)
	if err != nil {
		return requirements, fmt.Errorf("resource limits: %w", err)
	}

	requirements.Requests = requests
	requirements.Limits = limits
	return requirements, nil
}

func resourceList(rl entity.ResourceList) (corev1.ResourceList, error) {
	if rl.CPU == "" && rl.Memory == "" {
		return nil, nil
	}
	list := corev1.ResourceList{}
	if rl.CPU != "" {
		q, err := resource.ParseQuantity(rl.CPU)
		if err != nil {
			return nil, fmt.Errorf("cpu %q: %w", rl.CPU, err)
		}
		list[corev1.ResourceCPU] = q
	}
	if rl.Memory != "" {
		q, err := resource.ParseQuantity(rl.Memory)
		if err != nil {
			return nil, fmt.Errorf("memory %q: %w", rl.Memory, err)
		}
		list[corev1.ResourceMemory] = q
	}
	return list, nil
}

func probe(p *entity.Probe) *corev1.Probe {
	if p == nil {
		return nil
	}
	probe := &corev1.Probe{
		InitialDelaySeconds: p.InitialDelaySeconds,
		PeriodSeconds:       p.PeriodSeconds,
		TimeoutSeconds:      p.TimeoutSeconds,
		SuccessThreshold:    p.SuccessThreshold,
		FailureThreshold:    p.FailureThreshold,
	}
	switch {
	case p.HTTPGetPath != "":
		probe.HTTPGet = &corev1.HTTPGetAction{
			Path: p.HTTPGetPath,
			Port: intstr.FromInt(p.HTTPGetPort),
		}
	case p.TCPSocketPort != 0:
		probe.TCPSocket = &corev1.TCPSocketAction{
			Port: intstr.FromInt(p.TCPSocketPort),
		}
	default:
		return nil
	}
	return probe
}

func version(d *entity.Deploy) string {
	if len(d.SHA) >= 7 {
		return d.SHA[:7]
	}
	if d.SHA != "" {
		return d.SHA
	}
	return d.BranchName
}
