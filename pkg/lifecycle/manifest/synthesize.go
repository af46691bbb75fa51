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

// Package manifest synthesizes the kubernetes object YAML for raw-manifest
// deploys: claims, the application deployment, its services and the optional
// grpc mapping.
package manifest

import (
	"strings"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/config"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/entity"
)

// Synthesizer renders deploys into multi-document YAML.
type Synthesizer struct {
	cfg *config.Config
}

func NewSynthesizer(cfg *config.Config) *Synthesizer {
	return &Synthesizer{cfg: cfg}
}

// Synthesize produces the full manifest for one deploy, one YAML document
// per object, "---" delimited.
func (s *Synthesizer) Synthesize(d *entity.Deploy) (string, error) {
	if d.Build == nil || d.Deployable == nil {
		return "", errors.Errorf("deploy %s has no build or deployable attached", d.UUID)
	}

	disks, err := ParseDisks(d.Deployable.ServiceDisksYaml)
	if err != nil {
		return "", err
	}

	var docs []interface{}

	for _, disk := range disks {
		if !isPersistentMedium(disk.Medium) {
			continue
		}
		pvc, err := persistentVolumeClaim(d, disk)
		if err != nil {
			return "", err
		}
		docs = append(docs, pvc)
	}

	deployment, err := s.deployment(d, disks)
	if err != nil {
		return "", err
	}
	docs = append(docs, deployment)

	docs = append(docs, nodePortService(d))

	if d.Deployable.GRPC {
		docs = append(docs, s.grpcMapping(d))
	}

	docs = append(docs, internalLBService(d))

	if d.Deployable.Cname != "" {
		docs = append(docs, externalNameService(d))
	}

	return marshalDocs(docs)
}

func marshalDocs(docs []interface{}) (string, error) {
	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		b, err := yaml.Marshal(doc)
		if err != nil {
			return "", errors.Wrap(err, "marshaling manifest document")
		}
		parts = append(parts, strings.TrimSpace(string(b)))
	}
	return strings.Join(parts, "\n---\n") + "\n", nil
}
