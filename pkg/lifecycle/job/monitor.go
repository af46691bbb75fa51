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

// Package job watches one kubernetes Job through its pod lifecycle and
// collects its logs. The monitor never returns an error to its caller; every
// outcome is folded into the JobResult.
package job

import (
	"context"
	"fmt"
	"strings"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/constants"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/entity"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/output/log"
)

const (
	// DefaultTimeout bounds one monitoring call end to end.
	DefaultTimeout = 30 * time.Minute

	pollInterval = 2 * time.Second

	// maxWaitingObservations stops the main-container wait after this many
	// consecutive observations without progress.
	maxWaitingObservations = 30
)

// Options configures one monitoring call.
type Options struct {
	JobName   string
	Namespace string

	// Timeout is the shared wall-clock deadline for every wait. Zero means
	// DefaultTimeout.
	Timeout time.Duration

	// LogPrefix is prepended to each collected log section header.
	LogPrefix string

	// ContainerFilters restricts log collection to the named containers.
	ContainerFilters []string
}

// Monitor polls jobs and their pods to completion.
type Monitor struct {
	client kubernetes.Interface
}

func NewMonitor(client kubernetes.Interface) *Monitor {
	return &Monitor{client: client}
}

// Run watches the job to a terminal condition and returns its logs and
// classification. Errors never propagate; they classify the result as failed
// with a diagnostic line appended to the partial logs.
func (m *Monitor) Run(ctx context.Context, opts Options) entity.JobResult {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var logs strings.Builder

	pod, err := m.awaitPod(ctx, opts)
	if err != nil {
		return failed(&logs, fmt.Sprintf("no pod appeared for job %s: %v", opts.JobName, err))
	}

	if err := m.awaitInitContainers(ctx, opts, pod.Name); err != nil {
		return failed(&logs, fmt.Sprintf("init containers of %s did not settle: %v", pod.Name, err))
	}
	m.collectLogs(ctx, opts, pod, true, &logs)

	if err := m.awaitMainContainers(ctx, opts, pod.Name); err != nil {
		m.collectLogs(ctx, opts, pod, false, &logs)
		return failed(&logs, fmt.Sprintf("containers of %s did not start: %v", pod.Name, err))
	}
	m.collectLogs(ctx, opts, pod, false, &logs)

	job, err := m.awaitJobCompletion(ctx, opts)
	if err != nil {
		return failed(&logs, fmt.Sprintf("job %s did not complete: %v", opts.JobName, err))
	}

	return m.classify(ctx, job, &logs)
}

// awaitPod lists pods carrying the job-name label until one shows up; the
// first one found becomes the target for the rest of the call.
func (m *Monitor) awaitPod(ctx context.Context, opts Options) (*corev1.Pod, error) {
	for {
		pods, err := m.client.CoreV1().Pods(opts.Namespace).List(ctx, metav1.ListOptions{
			LabelSelector: constants.LabelJobName + "=" + opts.JobName,
		})
		if err == nil && len(pods.Items) > 0 {
			return &pods.Items[0], nil
		}
		if err != nil {
			log.Entry(ctx).Debugf("listing pods of job %s: %v", opts.JobName, err)
		}
		if err := sleep(ctx); err != nil {
			return nil, err
		}
	}
}

func (m *Monitor) awaitInitContainers(ctx context.Context, opts Options, podName string) error {
	for {
		pod, err := m.client.CoreV1().Pods(opts.Namespace).Get(ctx, podName, metav1.GetOptions{})
		if err == nil {
			settled := true
			for _, cs := range pod.Status.InitContainerStatuses {
				if !cs.Ready && cs.State.Terminated == nil {
					settled = false
					break
				}
			}
			if settled {
				return nil
			}
		}
		if err := sleep(ctx); err != nil {
			return err
		}
	}
}

// awaitMainContainers waits until every main container is running or
// terminated, logging each waiting reason transition. It gives up after 30
// consecutive observations without any container leaving the waiting state.
func (m *Monitor) awaitMainContainers(ctx context.Context, opts Options, podName string) error {
	lastReasons := map[string]string{}
	unsuccessful := 0

	for {
		pod, err := m.client.CoreV1().Pods(opts.Namespace).Get(ctx, podName, metav1.GetOptions{})
		if err == nil {
			started := true
			for _, cs := range pod.Status.ContainerStatuses {
				if cs.State.Running != nil || cs.State.Terminated != nil {
					continue
				}
				started = false
				if w := cs.State.Waiting; w != nil && w.Reason != lastReasons[cs.Name] {
					lastReasons[cs.Name] = w.Reason
					log.Entry(ctx).Infof("container %s waiting: %s", cs.Name, w.Reason)
				}
			}
			if started {
				return nil
			}
			unsuccessful++
			if unsuccessful >= maxWaitingObservations {
				return fmt.Errorf("containers still waiting after %d observations", unsuccessful)
			}
		}
		if err := sleep(ctx); err != nil {
			return err
		}
	}
}

func (m *Monitor) awaitJobCompletion(ctx context.Context, opts Options) (*batchv1.Job, error) {
	for {
		job, err := m.client.BatchV1().Jobs(opts.Namespace).Get(ctx, opts.JobName, metav1.GetOptions{})
		if err == nil {
			for _, cond := range job.Status.Conditions {
				if (cond.Type == batchv1.JobComplete || cond.Type == batchv1.JobFailed) && cond.Status == corev1.ConditionTrue {
					return job, nil
				}
			}
		} else {
			// transient API errors re-poll until the deadline
			log.Entry(ctx).Debugf("reading job %s: %v", opts.JobName, err)
		}
		if err := sleep(ctx); err != nil {
			return nil, err
		}
	}
}

func (m *Monitor) classify(ctx context.Context, job *batchv1.Job, logs *strings.Builder) entity.JobResult {
	for _, cond := range job.Status.Conditions {
		if cond.Status != corev1.ConditionTrue {
			continue
		}
		switch cond.Type {
		case batchv1.JobComplete:
			return entity.JobResult{Success: true, Status: entity.JobSucceeded, Logs: logs.String()}
		case batchv1.JobFailed:
			if job.Annotations[constants.AnnotationTerminationReason] == constants.TerminationReasonSuperseded {
				log.Entry(ctx).Infof("job %s was superseded by a newer deploy attempt", job.Name)
				return entity.JobResult{Success: true, Status: entity.JobSuperseded, Logs: logs.String()}
			}
			return entity.JobResult{Success: false, Status: entity.JobFailed, Logs: logs.String()}
		}
	}
	return failed(logs, fmt.Sprintf("job %s reached no terminal condition", job.Name))
}

// collectLogs appends the logs of the pod's init or main containers,
// honoring the container filters.
func (m *Monitor) collectLogs(ctx context.Context, opts Options, pod *corev1.Pod, init bool, logs *strings.Builder) {
	containers := pod.Spec.Containers
	if init {
		containers = pod.Spec.InitContainers
	}
	for _, c := range containers {
		if !containerSelected(opts.ContainerFilters, c.Name) {
			continue
		}
		raw, err := m.client.CoreV1().Pods(opts.Namespace).
			GetLogs(pod.Name, &corev1.PodLogOptions{Container: c.Name}).
			DoRaw(ctx)
		if err != nil {
			log.Entry(ctx).Warnf("collecting logs of %s/%s: %v", pod.Name, c.Name, err)
			continue
		}
		if opts.LogPrefix != "" {
			fmt.Fprintf(logs, "%s [%s]\n", opts.LogPrefix, c.Name)
		}
		logs.Write(raw)
		if len(raw) > 0 && raw[len(raw)-1] != '\n' {
			logs.WriteByte('\n')
		}
	}
}

func containerSelected(filters []string, name string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if f == name {
			return true
		}
	}
	return false
}

func failed(logs *strings.Builder, diagnostic string) entity.JobResult {
	if logs.Len() > 0 {
		logs.WriteByte('\n')
	}
	logs.WriteString(diagnostic)
	return entity.JobResult{Success: false, Status: entity.JobFailed, Logs: logs.String()}
}

func sleep(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(pollInterval):
		return nil
	}
}
