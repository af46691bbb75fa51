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

package job

import (
	"context"
	"strings"
	"testing"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/constants"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/entity"
	"github.com/Underdog-Inc/lifecycle-sub000/testutil"
)

func doneJob(condition batchv1.JobConditionType, annotations map[string]string) *batchv1.Job {
	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:        "env-1-deploy-x1y2z3-0123456",
			Namespace:   "env-ns",
			Annotations: annotations,
		},
		Status: batchv1.JobStatus{
			Conditions: []batchv1.JobCondition{{
				Type:   condition,
				Status: corev1.ConditionTrue,
			}},
		},
	}
}

func runningPod() *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "env-1-deploy-x1y2z3-0123456-abcde",
			Namespace: "env-ns",
			Labels:    map[string]string{constants.LabelJobName: "env-1-deploy-x1y2z3-0123456"},
		},
		Spec: corev1.PodSpec{
			InitContainers: []corev1.Container{{Name: "git-checkout"}},
			Containers:     []corev1.Container{{Name: "helm"}},
		},
		Status: corev1.PodStatus{
			InitContainerStatuses: []corev1.ContainerStatus{{
				Name:  "git-checkout",
				State: corev1.ContainerState{Terminated: &corev1.ContainerStateTerminated{ExitCode: 0}},
			}},
			ContainerStatuses: []corev1.ContainerStatus{{
				Name:  "helm",
				State: corev1.ContainerState{Running: &corev1.ContainerStateRunning{}},
			}},
		},
	}
}

func monitorOptions() Options {
	return Options{
		JobName:   "env-1-deploy-x1y2z3-0123456",
		Namespace: "env-ns",
		LogPrefix: "helm-deploy",
		Timeout:   5 * time.Second,
	}
}

func TestRunSucceededJob(t *testing.T) {
	client := fake.NewSimpleClientset(doneJob(batchv1.JobComplete, nil), runningPod())

	result := NewMonitor(client).Run(context.Background(), monitorOptions())

	testutil.CheckDeepEqual(t, true, result.Success)
	testutil.CheckDeepEqual(t, entity.JobSucceeded, result.Status)
	testutil.CheckContains(t, "helm-deploy [git-checkout]", result.Logs)
	testutil.CheckContains(t, "helm-deploy [helm]", result.Logs)
	testutil.CheckContains(t, "fake logs", result.Logs)
}

func TestRunFailedJob(t *testing.T) {
	client := fake.NewSimpleClientset(doneJob(batchv1.JobFailed, nil), runningPod())

	result := NewMonitor(client).Run(context.Background(), monitorOptions())

	testutil.CheckDeepEqual(t, false, result.Success)
	testutil.CheckDeepEqual(t, entity.JobFailed, result.Status)
}

func TestRunSupersededJobIsNotAFailure(t *testing.T) {
	annotations := map[string]string{
		constants.AnnotationTerminationReason: constants.TerminationReasonSuperseded,
	}
	client := fake.NewSimpleClientset(doneJob(batchv1.JobFailed, annotations), runningPod())

	result := NewMonitor(client).Run(context.Background(), monitorOptions())

	testutil.CheckDeepEqual(t, true, result.Success)
	testutil.CheckDeepEqual(t, entity.JobSuperseded, result.Status)
}

func TestRunOtherTerminationReasonStillFails(t *testing.T) {
	annotations := map[string]string{
		constants.AnnotationTerminationReason: "manual-cleanup",
	}
	client := fake.NewSimpleClientset(doneJob(batchv1.JobFailed, annotations), runningPod())

	result := NewMonitor(client).Run(context.Background(), monitorOptions())

	testutil.CheckDeepEqual(t, false, result.Success)
	testutil.CheckDeepEqual(t, entity.JobFailed, result.Status)
}

func TestRunNoPodAppears(t *testing.T) {
	client := fake.NewSimpleClientset(doneJob(batchv1.JobComplete, nil))

	opts := monitorOptions()
	opts.Timeout = 50 * time.Millisecond
	result := NewMonitor(client).Run(context.Background(), opts)

	testutil.CheckDeepEqual(t, false, result.Success)
	testutil.CheckContains(t, "no pod appeared", result.Logs)
}

func TestRunContainerFilters(t *testing.T) {
	pod := runningPod()
	pod.Spec.Containers = append(pod.Spec.Containers, corev1.Container{Name: "sidecar"})
	pod.Status.ContainerStatuses = append(pod.Status.ContainerStatuses, corev1.ContainerStatus{
		Name:  "sidecar",
		State: corev1.ContainerState{Running: &corev1.ContainerStateRunning{}},
	})
	client := fake.NewSimpleClientset(doneJob(batchv1.JobComplete, nil), pod)

	opts := monitorOptions()
	opts.ContainerFilters = []string{"helm"}
	result := NewMonitor(client).Run(context.Background(), opts)

	testutil.CheckDeepEqual(t, true, result.Success)
	testutil.CheckContains(t, "helm-deploy [helm]", result.Logs)
	if strings.Contains(result.Logs, "[sidecar]") {
		t.Error("sidecar logs should be filtered out")
	}
	if strings.Contains(result.Logs, "[git-checkout]") {
		t.Error("init container logs should be filtered out")
	}
}
