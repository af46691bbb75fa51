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
	"net/http"
	"strconv"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"

	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/entity"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/output/log"
)

const (
	kedaInterceptorHost = "keda-add-ons-http-interceptor-proxy.keda.svc.cluster.local"

	defaultScaledownPeriod    = 300
	defaultTargetPendingCount = 100
	defaultURLPollRetries     = 20
)

// httpGet is swapped in tests.
var httpGet = http.Get

// httpScaledObject mirrors keda's http-add-on CRD closely enough to apply it
// without a generated client.
type httpScaledObject struct {
	APIVersion string               `json:"apiVersion"`
	Kind       string               `json:"kind"`
	Metadata   metav1.ObjectMeta    `json:"metadata"`
	Spec       httpScaledObjectSpec `json:"spec"`
}

type httpScaledObjectSpec struct {
	Hosts                 []string       `json:"hosts"`
	ScaleTargetRef        scaleTargetRef `json:"scaleTargetRef"`
	Replicas              replicaBounds  `json:"replicas"`
	ScaledownPeriod       int            `json:"scaledownPeriod,omitempty"`
	TargetPendingRequests int            `json:"targetPendingRequests,omitempty"`
}

type scaleTargetRef struct {
	Deployment string `json:"deployment"`
	Service    string `json:"service"`
	Port       int    `json:"port"`
}

type replicaBounds struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// applyScaleToZero applies the HTTPScaledObject routing the environment's
// public hostname through keda's interceptor, plus the ExternalName service
// the ingress resolves to while the workload is scaled down.
func (e *StandardExecutor) applyScaleToZero(ctx context.Context, d *entity.Deploy) error {
	k := d.Deployable.KedaScaleToZero
	release := d.ReleaseName()
	host := e.publicHost(d)

	minReplicas := k.MinReplicas
	maxReplicas := k.MaxReplicas
	if maxReplicas == 0 {
		maxReplicas = 1
	}
	scaledown := k.ScaledownPeriod
	if scaledown == 0 {
		scaledown = defaultScaledownPeriod
	}
	pending := k.TargetPendingCount
	if pending == 0 {
		pending = defaultTargetPendingCount
	}

	scaled := httpScaledObject{
		APIVersion: "http.keda.sh/v1alpha1",
		Kind:       "HTTPScaledObject",
		Metadata: metav1.ObjectMeta{
			Name:      release,
			Namespace: d.Build.Namespace,
		},
		Spec: httpScaledObjectSpec{
			Hosts: []string{host},
			ScaleTargetRef: scaleTargetRef{
				Deployment: release,
				Service:    release,
				Port:       firstPort(d),
			},
			Replicas:              replicaBounds{Min: minReplicas, Max: maxReplicas},
			ScaledownPeriod:       scaledown,
			TargetPendingRequests: pending,
		},
	}

	interceptor := corev1.Service{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Service"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      release + "-keda-interceptor",
			Namespace: d.Build.Namespace,
		},
		Spec: corev1.ServiceSpec{
			Type:         corev1.ServiceTypeExternalName,
			ExternalName: kedaInterceptorHost,
		},
	}

	docs := make([]string, 0, 2)
	for _, obj := range []interface{}{scaled, interceptor} {
		b, err := yaml.Marshal(obj)
		if err != nil {
			return errors.Wrap(err, "marshaling scale-to-zero objects")
		}
		docs = append(docs, string(b))
	}

	manifest := docs[0] + "\n---\n" + docs[1]
	if err := e.kubectlFor(d).Apply(ctx, io.Discard, manifest); err != nil {
		return errors.Wrap(err, "applying scale-to-zero objects")
	}
	return nil
}

// awaitPublicURL polls the environment's public URL until keda's interceptor
// serves a response, so the first real request doesn't eat the cold start.
func (e *StandardExecutor) awaitPublicURL(ctx context.Context, d *entity.Deploy) error {
	k := d.Deployable.KedaScaleToZero
	retries := k.MaxRetries
	if retries == 0 {
		retries = defaultURLPollRetries
	}

	url := "https://" + e.publicHost(d)
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(retries)),
		ctx,
	)

	return backoff.Retry(func() error {
		resp, err := httpGet(url)
		if err != nil {
			log.Entry(ctx).Debugf("probing %s: %v", url, err)
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= http.StatusInternalServerError {
			return errors.Errorf("probing %s: status %d", url, resp.StatusCode)
		}
		return nil
	}, policy)
}

func (e *StandardExecutor) publicHost(d *entity.Deploy) string {
	return fmt.Sprintf("%s.%s", d.ReleaseName(), e.cfg.AppDomain)
}

// firstPort returns the first declared container port, defaulting to 80.
func firstPort(d *entity.Deploy) int {
	for _, p := range strings.Split(d.Deployable.Ports, ",") {
		if port, err := strconv.Atoi(strings.TrimSpace(p)); err == nil {
			return port
		}
	}
	return 80
}
