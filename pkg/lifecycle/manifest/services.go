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
	"strconv"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"

	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/entity"
)

// parsePorts splits the deployable's CSV port list. Unparseable entries are
// skipped.
func parsePorts(csv string) []int32 {
	var ports []int32
	for _, raw := range strings.Split(csv, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		p, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		ports = append(ports, int32(p))
	}
	return ports
}

func containerPorts(csv string) []corev1.ContainerPort {
	var out []corev1.ContainerPort
	for _, p := range parsePorts(csv) {
		out = append(out, corev1.ContainerPort{ContainerPort: p})
	}
	return out
}

func servicePorts(csv string) []corev1.ServicePort {
	var out []corev1.ServicePort
	for _, p := range parsePorts(csv) {
		out = append(out, corev1.ServicePort{
			Name:       fmt.Sprintf("port-%d", p),
			Port:       p,
			TargetPort: intstr.FromInt(int(p)),
		})
	}
	return out
}

// nodePortService synthesizes the service fronting the application pods.
func nodePortService(d *entity.Deploy) *corev1.Service {
	name := strings.ToLower(d.UUID)
	return &corev1.Service{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "v1",
			Kind:       "Service",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: d.Build.Namespace,
			Labels:    commonLabels(d),
		},
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeNodePort,
			Selector: map[string]string{"name": name},
			Ports:    servicePorts(d.Deployable.Ports),
		},
	}
}

// internalLBService exposes the same ports through an internal load
// balancer for traffic from peered networks.
func internalLBService(d *entity.Deploy) *corev1.Service {
	name := strings.ToLower(d.UUID)
	return &corev1.Service{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "v1",
			Kind:       "Service",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      "internal-lb-" + name,
			Namespace: d.Build.Namespace,
			Labels:    commonLabels(d),
			Annotations: map[string]string{
				"service.beta.kubernetes.io/aws-load-balancer-internal": "true",
			},
		},
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeLoadBalancer,
			Selector: map[string]string{"name": name},
			Ports:    servicePorts(d.Deployable.Ports),
		},
	}
}

// externalNameService aliases the deployable's name to an external host.
func externalNameService(d *entity.Deploy) *corev1.Service {
	return &corev1.Service{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "v1",
			Kind:       "Service",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      d.Deployable.Name,
			Namespace: d.Build.Namespace,
			Labels:    commonLabels(d),
		},
		Spec: corev1.ServiceSpec{
			Type:         corev1.ServiceTypeExternalName,
			ExternalName: d.Deployable.Cname,
		},
	}
}

// ambassadorMapping routes a grpc host to the deploy's service. Emitted as a
// plain document since Mapping is a CRD.
type ambassadorMapping struct {
	APIVersion string                 `json:"apiVersion"`
	Kind       string                 `json:"kind"`
	Metadata   mappingMetadata        `json:"metadata"`
	Spec       map[string]interface{} `json:"spec"`
}

type mappingMetadata struct {
	Name      string            `json:"name"`
	Namespace string            `json:"namespace"`
	Labels    map[string]string `json:"labels,omitempty"`
}

func (s *Synthesizer) grpcMapping(d *entity.Deploy) *ambassadorMapping {
	name := strings.ToLower(d.UUID)
	ports := parsePorts(d.Deployable.Ports)
	var port int32
	if len(ports) > 0 {
		port = ports[0]
	}
	return &ambassadorMapping{
		APIVersion: "getambassador.io/v2",
		Kind:       "Mapping",
		Metadata: mappingMetadata{
			Name:      name,
			Namespace: d.Build.Namespace,
			Labels:    commonLabels(d),
		},
		Spec: map[string]interface{}{
			"hostname":   fmt.Sprintf("%s.%s:443", name, s.cfg.GRPCDomain),
			"prefix":     "/",
			"service":    fmt.Sprintf("%s:%d", name, port),
			"grpc":       true,
			"timeout_ms": 20000,
		},
	}
}
