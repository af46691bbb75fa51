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
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/constants"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/entity"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/job"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/manifest"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/output/log"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/rbac"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/util"
)

const (
	kubectlImage = "bitnami/kubectl"

	podAppearAttempts = 60
	podReadyAttempts  = 180
)

// rawPollInterval is shortened in tests.
var rawPollInterval = 5 * time.Second

// deployRaw applies the deploy's kubernetes manifest through an in-cluster
// job, then waits for the application pods to become ready.
func (e *StandardExecutor) deployRaw(ctx context.Context, d *entity.Deploy) error {
	rendered, err := e.resolveManifest(d)
	if err != nil {
		return err
	}

	e.transition(ctx, d, entity.StatusDeploying, "Applying manifest")

	namespace := d.Build.Namespace
	if err := e.rbac.Ensure(ctx, namespace, e.cfg.ServiceAccount.Name, e.cfg.ServiceAccount.Role, rbac.ProfileDeploy); err != nil {
		return errors.Wrap(err, "ensuring deploy rbac")
	}

	applyJob := e.manifestApplyJob(d, rendered)
	if err := e.applyJob(ctx, d, applyJob); err != nil {
		return errors.Wrapf(err, "applying deploy job %s", applyJob.Name)
	}

	result := e.monitor.Run(ctx, job.Options{
		JobName:   applyJob.Name,
		Namespace: namespace,
		Timeout:   time.Duration(e.jobTimeoutSeconds()) * time.Second,
		LogPrefix: "manifest-apply",
	})
	e.saveBuildOutput(ctx, d, result.Logs)

	if !result.Success {
		return errors.Errorf("manifest apply job %s failed: see build output", applyJob.Name)
	}
	if result.Status == entity.JobSuperseded {
		log.Entry(ctx).Infof("deploy %s superseded by a newer attempt", d.Name())
		return nil
	}

	e.transition(ctx, d, entity.StatusDeploying, "Waiting for pods to be ready")
	return e.awaitPodsReady(ctx, d)
}

// resolveManifest returns the manifest to apply. Builds that hand in their
// own full YAML must actually do so; otherwise the manifest is synthesized.
func (e *StandardExecutor) resolveManifest(d *entity.Deploy) (string, error) {
	if d.Manifest != "" {
		if err := manifest.Validate(d.Manifest); err != nil {
			return "", errors.Wrapf(err, "manifest of deploy %s", d.Name())
		}
		return d.Manifest, nil
	}
	if d.Build.EnableFullYaml {
		return "", errors.Errorf("deploy %s has no manifest", d.Name())
	}
	return manifest.NewSynthesizer(e.cfg).Synthesize(d)
}

// manifestApplyJob synthesizes the job that applies the manifest from inside
// the cluster, under the environment's service account.
func (e *StandardExecutor) manifestApplyJob(d *entity.Deploy, rendered string) *batchv1.Job {
	name := jobName(d, newJobID())
	labels := map[string]string{
		constants.LabelLCUUID:       d.ReleaseName(),
		constants.LabelService:      d.Deployable.Name,
		constants.LabelGitSHA:       labelSafe(d.SHA),
		constants.LabelGitBranch:    labelSafe(d.BranchName),
		constants.LabelDeployID:     strings.ToLower(d.UUID),
		constants.LabelDeployableID: labelSafe(d.Deployable.Name),
	}

	script := fmt.Sprintf("kubectl apply -f - <<'EOF'\n%s\nEOF", rendered)

	return &batchv1.Job{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "batch/v1",
			Kind:       "Job",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: d.Build.Namespace,
			Labels:    labels,
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:          util.Ptr[int32](0),
			ActiveDeadlineSeconds: util.Ptr(e.jobTimeoutSeconds()),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					ServiceAccountName: e.cfg.ServiceAccount.Name,
					RestartPolicy:      corev1.RestartPolicyNever,
					Containers: []corev1.Container{{
						Name:    "kubectl",
						Image:   kubectlImage,
						Command: []string{"sh", "-c", script},
						Resources: corev1.ResourceRequirements{
							Requests: corev1.ResourceList{
								corev1.ResourceCPU:    resource.MustParse("200m"),
								corev1.ResourceMemory: resource.MustParse("256Mi"),
							},
							Limits: corev1.ResourceList{
								corev1.ResourceCPU:    resource.MustParse("1000m"),
								corev1.ResourceMemory: resource.MustParse("1Gi"),
							},
						},
					}},
					Tolerations: []corev1.Toleration{{
						Key:      constants.BuilderTolerationKey,
						Operator: corev1.TolerationOpEqual,
						Value:    "yes",
						Effect:   corev1.TaintEffectNoSchedule,
					}},
				},
			},
		},
	}
}

// awaitPodsReady waits for the application pods of the deploy. Deploy-job
// pods match the label selector too and are skipped by name.
func (e *StandardExecutor) awaitPodsReady(ctx context.Context, d *entity.Deploy) error {
	selector := constants.LabelDeployUUID + "=" + strings.ToLower(d.UUID)

	pods, err := e.pollAppPods(ctx, d, selector, podAppearAttempts, func(items []corev1.Pod) bool {
		return len(items) > 0
	})
	if err != nil {
		return errors.Errorf("no pods of deploy %s appeared", d.Name())
	}
	log.Entry(ctx).Debugf("deploy %s has %d pods", d.Name(), len(pods))

	if _, err := e.pollAppPods(ctx, d, selector, podReadyAttempts, allReady); err != nil {
		return errors.Errorf("pods of deploy %s did not become ready", d.Name())
	}
	return nil
}

// pollAppPods polls the deploy's application pods until done returns true or
// attempts run out.
func (e *StandardExecutor) pollAppPods(ctx context.Context, d *entity.Deploy, selector string, attempts int, done func([]corev1.Pod) bool) ([]corev1.Pod, error) {
	for i := 0; i < attempts; i++ {
		list, err := e.client.CoreV1().Pods(d.Build.Namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
		if err == nil {
			items := appPods(list.Items)
			if done(items) {
				return items, nil
			}
		} else {
			log.Entry(ctx).Debugf("listing pods of %s: %v", d.Name(), err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(rawPollInterval):
		}
	}
	return nil, errors.New("timed out")
}

// appPods filters out the deploy-job pods sharing the selector.
func appPods(items []corev1.Pod) []corev1.Pod {
	var out []corev1.Pod
	for _, pod := range items {
		if strings.Contains(pod.Name, "-deploy-") {
			continue
		}
		out = append(out, pod)
	}
	return out
}

func allReady(items []corev1.Pod) bool {
	if len(items) == 0 {
		return false
	}
	for _, pod := range items {
		ready := false
		for _, cond := range pod.Status.Conditions {
			if cond.Type == corev1.PodReady && cond.Status == corev1.ConditionTrue {
				ready = true
			}
		}
		if !ready {
			return false
		}
	}
	return true
}
