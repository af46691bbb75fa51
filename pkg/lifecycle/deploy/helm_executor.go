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
	"io"
	"strings"
	"time"

	shell "github.com/kballard/go-shellquote"
	"github.com/pkg/errors"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"

	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/config"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/constants"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/entity"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/job"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/output/log"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/rbac"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/util"
)

const (
	gitImage         = "alpine/git"
	helmImageFormat  = "alpine/helm:%s"
	workspacePath    = "/workspace"
	deployJobTimeout = int64(1800)
	staticJobTTL     = int32(86400)

	bannerAnnotation = "nginx.ingress.kubernetes.io/configuration-snippet"
)

// deployHelm installs or upgrades the deploy's helm release through an
// in-cluster job.
func (e *StandardExecutor) deployHelm(ctx context.Context, d *entity.Deploy) error {
	helmVersion, err := e.validateHelmConfig(d)
	if err != nil {
		return err
	}

	e.transition(ctx, d, entity.StatusDeploying, "Deploying helm release")

	scaleToZero := d.Deployable.KedaScaleToZero
	if scaleToZero != nil && scaleToZero.Type == "http" && !d.Build.IsStatic {
		if err := e.applyScaleToZero(ctx, d); err != nil {
			return err
		}
	}

	release := d.ReleaseName()
	namespace := d.Build.Namespace

	reconciler := NewReleaseReconciler(e.client, e.helm)
	if err := reconciler.Reconcile(ctx, io.Discard, release, namespace); err != nil {
		return errors.Wrapf(err, "reconciling release %s", release)
	}

	if err := e.rbac.Ensure(ctx, namespace, e.cfg.ServiceAccount.Name, e.cfg.ServiceAccount.Role, rbac.ProfileDeploy); err != nil {
		return errors.Wrap(err, "ensuring deploy rbac")
	}

	values, err := buildCustomValues(e.cfg, d)
	if err != nil {
		return err
	}

	deployJob, err := e.helmDeployJob(d, helmVersion, values)
	if err != nil {
		return err
	}

	if err := e.applyJob(ctx, d, deployJob); err != nil {
		return errors.Wrapf(err, "applying deploy job %s", deployJob.Name)
	}

	result := e.monitor.Run(ctx, job.Options{
		JobName:   deployJob.Name,
		Namespace: namespace,
		Timeout:   time.Duration(e.jobTimeoutSeconds()) * time.Second,
		LogPrefix: "helm-deploy",
	})
	e.saveBuildOutput(ctx, d, result.Logs)

	if !result.Success {
		return errors.Errorf("helm deploy job %s failed: see build output", deployJob.Name)
	}
	if result.Status == entity.JobSuperseded {
		log.Entry(ctx).Infof("deploy %s superseded by a newer attempt", d.Name())
		return nil
	}

	// best-effort: never fails the deploy
	e.patchIngressBanner(ctx, d)

	if scaleToZero != nil && scaleToZero.Type == "http" && !d.Build.IsStatic {
		if err := e.awaitPublicURL(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// validateHelmConfig checks the deployable's helm block and resolves the
// helm binary version for the deploy job.
func (e *StandardExecutor) validateHelmConfig(d *entity.Deploy) (string, error) {
	h := d.Deployable.Helm
	if h == nil || h.ChartName == "" {
		return "", errors.New("configuration validation failed: helm chart name is required")
	}

	version := h.HelmVersion
	if version == "" {
		version = e.cfg.NativeHelm.DefaultHelmVersion
	}
	if version == "" {
		return "", errors.New("configuration validation failed: no helm version configured")
	}

	if e.cfg.IsOrgChart(h.ChartName) && d.DockerImage == "" {
		return "", errors.New("configuration validation failed: docker image is required for the org chart")
	}
	if e.cfg.IsBlockedChart(h.ChartName) {
		return "", errors.Errorf("configuration validation failed: chart %s is not allowed", h.ChartName)
	}
	return version, nil
}

// helmDeployJob synthesizes the in-cluster job running the helm install.
func (e *StandardExecutor) helmDeployJob(d *entity.Deploy, helmVersion string, values []string) (*batchv1.Job, error) {
	namespace := d.Build.Namespace

	script, err := e.helmScript(d, values)
	if err != nil {
		return nil, err
	}

	name := jobName(d, newJobID())
	labels := map[string]string{
		constants.LabelLCUUID:       d.ReleaseName(),
		constants.LabelAppName:      constants.NativeHelmAppName,
		constants.LabelService:      d.Deployable.Name,
		constants.LabelGitSHA:       labelSafe(d.SHA),
		constants.LabelGitBranch:    labelSafe(d.BranchName),
		constants.LabelDeployID:     strings.ToLower(d.UUID),
		constants.LabelDeployableID: labelSafe(d.Deployable.Name),
	}

	helmContainer := corev1.Container{
		Name:       "helm",
		Image:      fmt.Sprintf(helmImageFormat, helmVersion),
		Command:    []string{"sh", "-c", script},
		WorkingDir: workspacePath,
		VolumeMounts: []corev1.VolumeMount{{
			Name:      "workspace",
			MountPath: workspacePath,
		}},
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
	}

	podSpec := corev1.PodSpec{
		ServiceAccountName: e.cfg.ServiceAccount.Name,
		RestartPolicy:      corev1.RestartPolicyNever,
		Containers:         []corev1.Container{helmContainer},
		Volumes: []corev1.Volume{{
			Name: "workspace",
			VolumeSource: corev1.VolumeSource{
				EmptyDir: &corev1.EmptyDirVolumeSource{},
			},
		}},
		Tolerations: []corev1.Toleration{{
			Key:      constants.BuilderTolerationKey,
			Operator: corev1.TolerationOpEqual,
			Value:    "yes",
			Effect:   corev1.TaintEffectNoSchedule,
		}},
	}

	if needsGitCheckout(e.cfg, d) {
		podSpec.InitContainers = []corev1.Container{gitInitContainer(d)}
	}

	jobSpec := batchv1.JobSpec{
		BackoffLimit:          util.Ptr[int32](0),
		ActiveDeadlineSeconds: util.Ptr(e.jobTimeoutSeconds()),
		Template: corev1.PodTemplateSpec{
			ObjectMeta: metav1.ObjectMeta{Labels: labels},
			Spec:       podSpec,
		},
	}
	if d.Build.IsStatic {
		jobSpec.TTLSecondsAfterFinished = util.Ptr(staticJobTTL)
	}

	return &batchv1.Job{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "batch/v1",
			Kind:       "Job",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    labels,
		},
		Spec: jobSpec,
	}, nil
}

// needsGitCheckout reports whether the deploy job clones the repository
// first. Public charts skip the clone unless value files come from the repo.
func needsGitCheckout(cfg *config.Config, d *entity.Deploy) bool {
	if d.Deployable.Repo == "" || d.BranchName == "" {
		return false
	}
	h := d.Deployable.Helm
	if variantOf(cfg, h) != chartPublic {
		return true
	}
	return len(h.ValueFiles) > 0
}

func gitInitContainer(d *entity.Deploy) corev1.Container {
	clone := fmt.Sprintf("git clone --branch %s https://github.com/%s.git %s",
		shell.Join(d.BranchName), shell.Join(d.Deployable.Repo), workspacePath)
	if d.SHA != "" {
		clone = fmt.Sprintf("%s && cd %s && git checkout %s", clone, workspacePath, shell.Join(d.SHA))
	}
	return corev1.Container{
		Name:    "git-checkout",
		Image:   gitImage,
		Command: []string{"sh", "-c", clone},
		VolumeMounts: []corev1.VolumeMount{{
			Name:      "workspace",
			MountPath: workspacePath,
		}},
	}
}

// helmScript builds the shell script of the helm container: repo setup when
// the chart comes from a non-OCI repository, then the upgrade --install.
func (e *StandardExecutor) helmScript(d *entity.Deploy, values []string) (string, error) {
	h := d.Deployable.Helm
	release := d.ReleaseName()

	chartRef, repoCmds := e.chartReference(h)

	args := []string{"helm", "upgrade", "--install", release, chartRef, "--namespace", d.Build.Namespace}
	if h.ChartVersion != "" {
		args = append(args, "--version", h.ChartVersion)
	}
	for _, entry := range values {
		key, val := splitValue(entry)
		args = append(args, "--set", fmt.Sprintf("%s=%s", key, util.EscapeSlashes(val)))
	}
	for _, f := range h.ValueFiles {
		args = append(args, "-f", f)
	}
	args = append(args, config.MergeFlagArgs(e.cfg.HelmDefaults.DefaultArgs, e.cfg.NativeHelm.DefaultArgs, h.Args)...)

	script := shell.Join(args...)
	if len(repoCmds) > 0 {
		script = strings.Join(append(repoCmds, script), " && ")
	}
	return script, nil
}

// chartReference resolves the chart argument of helm upgrade and any repo
// add commands needed first.
func (e *StandardExecutor) chartReference(h *entity.HelmConfig) (string, []string) {
	repoURL := h.ChartRepoURL
	if repoURL == "" {
		repoURL = e.cfg.ChartDefaults(h.ChartName).Repo
	}

	switch {
	case repoURL == "":
		// local chart path inside the checked-out repository
		return h.ChartName, nil
	case strings.HasPrefix(repoURL, "oci://"):
		return strings.TrimSuffix(repoURL, "/") + "/" + h.ChartName, nil
	default:
		alias := e.repoAlias(repoURL, h.ChartName)
		repoCmds := []string{
			shell.Join("helm", "repo", "add", alias, repoURL),
			shell.Join("helm", "repo", "update"),
		}
		return alias + "/" + h.ChartName, repoCmds
	}
}

// repoAlias finds the configured alias of a repository URL, falling back to
// a name derived from the chart.
func (e *StandardExecutor) repoAlias(repoURL, chartName string) string {
	for alias, url := range e.cfg.ChartRepositories {
		if strings.TrimSuffix(url, "/") == strings.TrimSuffix(repoURL, "/") {
			return alias
		}
	}
	return strings.ToLower(strings.ReplaceAll(chartName, "/", "-")) + "-repo"
}

// applyJob applies the synthesized job manifest.
func (e *StandardExecutor) applyJob(ctx context.Context, d *entity.Deploy, deployJob *batchv1.Job) error {
	b, err := yaml.Marshal(deployJob)
	if err != nil {
		return errors.Wrap(err, "marshaling deploy job")
	}
	return e.kubectlFor(d).Apply(ctx, io.Discard, string(b))
}

// patchIngressBanner merges the environment banner snippet into the deploy's
// ingress. Failures are logged and never abort the deploy.
func (e *StandardExecutor) patchIngressBanner(ctx context.Context, d *entity.Deploy) {
	if e.cfg.BannerSnippet == "" {
		return
	}
	name := d.ReleaseName()
	ingresses := e.client.NetworkingV1().Ingresses(d.Build.Namespace)

	ingress, err := ingresses.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		log.Entry(ctx).Warnf("ingress %s not patched with banner: %v", name, err)
		return
	}
	if ingress.Annotations == nil {
		ingress.Annotations = map[string]string{}
	}
	snippet := ingress.Annotations[bannerAnnotation]
	if !strings.Contains(snippet, e.cfg.BannerSnippet) {
		if snippet != "" {
			snippet += "\n"
		}
		snippet += e.cfg.BannerSnippet
	}
	ingress.Annotations[bannerAnnotation] = snippet
	if _, err := ingresses.Update(ctx, ingress, metav1.UpdateOptions{}); err != nil {
		log.Entry(ctx).Warnf("ingress %s not patched with banner: %v", name, err)
	}
}

func (e *StandardExecutor) jobTimeoutSeconds() int64 {
	if e.cfg.NativeHelm.JobTimeoutSeconds > 0 {
		return e.cfg.NativeHelm.JobTimeoutSeconds
	}
	return deployJobTimeout
}

func splitValue(entry string) (string, string) {
	if i := strings.Index(entry, "="); i >= 0 {
		return entry[:i], entry[i+1:]
	}
	return entry, ""
}

func labelSafe(v string) string {
	v = strings.NewReplacer("/", "-", ":", "-", "@", "-", " ", "-").Replace(v)
	if len(v) > constants.MaxResourceNameLength {
		v = v[:constants.MaxResourceNameLength]
	}
	return strings.Trim(v, "-_.")
}
