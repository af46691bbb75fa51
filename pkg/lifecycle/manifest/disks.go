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

	"github.com/pkg/errors"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"

	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/entity"
)

// persistentMedia are the disk media that get a PersistentVolumeClaim. An
// unspecified medium defaults to a persistent disk.
func isPersistentMedium(medium string) bool {
	switch strings.ToUpper(medium) {
	case "", "DISK", "EBS":
		return true
	}
	return false
}

// ParseDisks decodes the deployable's serviceDisksYaml block.
func ParseDisks(disksYaml string) ([]entity.Disk, error) {
	if strings.TrimSpace(disksYaml) == "" {
		return nil, nil
	}
	var disks []entity.Disk
	if err := yaml.Unmarshal([]byte(disksYaml), &disks); err != nil {
		return nil, errors.Wrap(err, "parsing service disks")
	}
	for i := range disks {
		if disks[i].Name == "" {
			disks[i].Name = fmt.Sprintf("disk-%d", i)
		}
	}
	return disks, nil
}

// persistentVolumeClaim synthesizes one PVC for a persistent disk.
func persistentVolumeClaim(d *entity.Deploy, disk entity.Disk) (*corev1.PersistentVolumeClaim, error) {
	storage, err := resource.ParseQuantity(disk.Storage)
	if err != nil {
		return nil, errors.Wrapf(err, "disk %s storage %q", disk.Name, disk.Storage)
	}

	accessMode := corev1.ReadWriteOnce
	if disk.AccessMode != "" {
		accessMode = corev1.PersistentVolumeAccessMode(disk.AccessMode)
	}

	return &corev1.PersistentVolumeClaim{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "v1",
			Kind:       "PersistentVolumeClaim",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      claimName(d, disk),
			Namespace: d.Build.Namespace,
			Labels:    commonLabels(d),
		},
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes: []corev1.PersistentVolumeAccessMode{accessMode},
			Resources: corev1.ResourceRequirements{
				Requests: corev1.ResourceList{
					corev1.ResourceStorage: storage,
				},
			},
		},
	}, nil
}

func claimName(d *entity.Deploy, disk entity.Disk) string {
	return fmt.Sprintf("%s-%s", strings.ToLower(d.UUID), disk.Name)
}
