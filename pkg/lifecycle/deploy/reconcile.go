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
	"time"

	"github.com/pkg/errors"
	apierrs "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/constants"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/entity"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/helm"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/output/log"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/util"
)

// Shortened in tests.
var (
	// settleDelay lets the API server observe the forced deletions before a
	// fresh install starts.
	settleDelay = 2 * time.Second

	uninstallWait     = 30 * time.Second
	uninstallInterval = 2 * time.Second
)

// releaseStatus is swapped in tests.
var releaseStatus = func(ctx context.Context, h *helm.CLI, release, namespace string) (entity.ReleaseState, error) {
	return h.Status(ctx, release, namespace)
}

// ReleaseReconciler ensures a fresh helm install can proceed for a release:
// stale deploy jobs are superseded and force-deleted, and a release stuck in
// a pending state is uninstalled first.
type ReleaseReconciler struct {
	client kubernetes.Interface
	helm   *helm.CLI
}

func NewReleaseReconciler(client kubernetes.Interface, h *helm.CLI) *ReleaseReconciler {
	return &ReleaseReconciler{client: client, helm: h}
}

// Reconcile prepares the namespace for a new install of the release.
func (r *ReleaseReconciler) Reconcile(ctx context.Context, out io.Writer, release, namespace string) error {
	ctx = log.WithEventContext(ctx, constants.Reconcile, release)

	if err := r.supersedeStaleJobs(ctx, release, namespace); err != nil {
		return err
	}
	time.Sleep(settleDelay)

	state, err := releaseStatus(ctx, r.helm, release, namespace)
	if err != nil {
		return err
	}
	log.Entry(ctx).Debugf("release %s is %s", release, state.Status)

	if !state.Status.Pending() {
		return nil
	}

	log.Entry(ctx).Infof("release %s is stuck in %s; uninstalling", release, state.Status)
	if err := r.helm.Uninstall(ctx, out, release, namespace); err != nil {
		return err
	}
	return r.awaitAbsence(ctx, release, namespace)
}

// supersedeStaleJobs annotates every prior deploy job of the release as
// superseded, then force-deletes its pods and the job itself. The annotation
// must land before the deletion so the job monitor of the stale attempt
// classifies it as superseded rather than failed.
func (r *ReleaseReconciler) supersedeStaleJobs(ctx context.Context, release, namespace string) error {
	selector := fmt.Sprintf("%s=%s,%s=%s",
		constants.LabelLCUUID, release,
		constants.LabelAppName, constants.NativeHelmAppName)

	jobs, err := r.client.BatchV1().Jobs(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return errors.Wrap(err, "listing stale deploy jobs")
	}

	for i := range jobs.Items {
		stale := &jobs.Items[i]
		log.Entry(ctx).Infof("superseding stale deploy job %s", stale.Name)

		if stale.Annotations == nil {
			stale.Annotations = map[string]string{}
		}
		stale.Annotations[constants.AnnotationTerminationReason] = constants.TerminationReasonSuperseded
		stale.Annotations[constants.AnnotationTerminationTime] = time.Now().UTC().Format(time.RFC3339)
		if _, err := r.client.BatchV1().Jobs(namespace).Update(ctx, stale, metav1.UpdateOptions{}); err != nil && !apierrs.IsNotFound(err) {
			return errors.Wrapf(err, "annotating stale job %s", stale.Name)
		}

		if err := r.forceDeleteJobPods(ctx, stale.Name, namespace); err != nil {
			return err
		}

		if err := r.client.BatchV1().Jobs(namespace).Delete(ctx, stale.Name, forceDelete()); err != nil && !apierrs.IsNotFound(err) {
			return errors.Wrapf(err, "deleting stale job %s", stale.Name)
		}
	}
	return nil
}

func (r *ReleaseReconciler) forceDeleteJobPods(ctx context.Context, jobName, namespace string) error {
	pods, err := r.client.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: constants.LabelJobName + "=" + jobName,
	})
	if err != nil {
		return errors.Wrapf(err, "listing pods of stale job %s", jobName)
	}
	for _, pod := range pods.Items {
		if err := r.client.CoreV1().Pods(namespace).Delete(ctx, pod.Name, forceDelete()); err != nil && !apierrs.IsNotFound(err) {
			return errors.Wrapf(err, "deleting pod %s", pod.Name)
		}
	}
	return nil
}

// awaitAbsence polls the release status until helm reports it gone.
func (r *ReleaseReconciler) awaitAbsence(ctx context.Context, release, namespace string) error {
	deadline := time.Now().Add(uninstallWait)
	for time.Now().Before(deadline) {
		state, err := releaseStatus(ctx, r.helm, release, namespace)
		if err == nil && state.Status == entity.ReleaseAbsent {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(uninstallInterval):
		}
	}
	return errors.Errorf("release %s still present %s after uninstall", release, uninstallWait)
}

func forceDelete() metav1.DeleteOptions {
	return metav1.DeleteOptions{
		GracePeriodSeconds: util.Ptr[int64](0),
		PropagationPolicy:  util.Ptr(metav1.DeletePropagationBackground),
	}
}
