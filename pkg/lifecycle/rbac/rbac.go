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

// Package rbac ensures the service account, role and role binding used by
// deploy jobs exist with the correct permission profile.
package rbac

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	apierrs "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"

	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/constants"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/output/log"
)

// Profile selects the permission set granted to a job's service account.
type Profile string

const (
	// ProfileBuild grants job management plus pod log reads.
	ProfileBuild Profile = "build"
	// ProfileDeploy grants everything in the namespace; deploy jobs apply
	// arbitrary chart content.
	ProfileDeploy Profile = "deploy"
	// ProfileFull is an alias kept distinct for future narrowing.
	ProfileFull Profile = "full"
)

const (
	defaultAccountWait     = 120 * time.Second
	defaultAccountInterval = 2 * time.Second
)

// Provisioner creates or patches RBAC objects in a namespace.
type Provisioner struct {
	client kubernetes.Interface
}

func NewProvisioner(client kubernetes.Interface) *Provisioner {
	return &Provisioner{client: client}
}

// Ensure makes sure the named service account exists in the namespace, is
// annotated with its IAM role and bound to a role carrying the profile's
// rules.
func (p *Provisioner) Ensure(ctx context.Context, namespace, name, iamRole string, profile Profile) error {
	if err := p.ensureServiceAccount(ctx, namespace, name, iamRole); err != nil {
		return err
	}
	if err := p.ensureRole(ctx, namespace, name, profile); err != nil {
		return err
	}
	return p.ensureBinding(ctx, namespace, name)
}

func (p *Provisioner) ensureServiceAccount(ctx context.Context, namespace, name, iamRole string) error {
	sas := p.client.CoreV1().ServiceAccounts(namespace)

	sa := &corev1.ServiceAccount{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
		},
	}
	if iamRole != "" {
		sa.Annotations = map[string]string{constants.IAMRoleAnnotation: iamRole}
	}

	if name == "default" {
		// The cluster creates the default account asynchronously on
		// namespace creation; wait for it before patching.
		if err := wait.PollUntilContextTimeout(ctx, defaultAccountInterval, defaultAccountWait, true, func(ctx context.Context) (bool, error) {
			_, err := sas.Get(ctx, name, metav1.GetOptions{})
			if apierrs.IsNotFound(err) {
				return false, nil
			}
			return err == nil, nil
		}); err != nil {
			return fmt.Errorf("waiting for default service account in %s: %w", namespace, err)
		}
		return p.patchServiceAccount(ctx, namespace, sa)
	}

	_, err := sas.Create(ctx, sa, metav1.CreateOptions{})
	if apierrs.IsAlreadyExists(err) {
		return p.patchServiceAccount(ctx, namespace, sa)
	}
	return err
}

func (p *Provisioner) patchServiceAccount(ctx context.Context, namespace string, sa *corev1.ServiceAccount) error {
	sas := p.client.CoreV1().ServiceAccounts(namespace)
	existing, err := sas.Get(ctx, sa.Name, metav1.GetOptions{})
	if err != nil {
		return err
	}
	if existing.Annotations == nil {
		existing.Annotations = map[string]string{}
	}
	for k, v := range sa.Annotations {
		existing.Annotations[k] = v
	}
	_, err = sas.Update(ctx, existing, metav1.UpdateOptions{})
	return err
}

func (p *Provisioner) ensureRole(ctx context.Context, namespace, name string, profile Profile) error {
	role := &rbacv1.Role{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name + "-role",
			Namespace: namespace,
		},
		Rules: RulesFor(profile),
	}

	roles := p.client.RbacV1().Roles(namespace)
	_, err := roles.Create(ctx, role, metav1.CreateOptions{})
	if apierrs.IsAlreadyExists(err) {
		_, err = roles.Update(ctx, role, metav1.UpdateOptions{})
	}
	return err
}

func (p *Provisioner) ensureBinding(ctx context.Context, namespace, name string) error {
	binding := &rbacv1.RoleBinding{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name + "-binding",
			Namespace: namespace,
		},
		Subjects: []rbacv1.Subject{{
			Kind:      rbacv1.ServiceAccountKind,
			Name:      name,
			Namespace: namespace,
		}},
		RoleRef: rbacv1.RoleRef{
			APIGroup: rbacv1.GroupName,
			Kind:     "Role",
			Name:     name + "-role",
		},
	}

	_, err := p.client.RbacV1().RoleBindings(namespace).Create(ctx, binding, metav1.CreateOptions{})
	if apierrs.IsAlreadyExists(err) {
		// RoleRef is immutable; an existing binding is good enough.
		log.Entry(ctx).Debugf("role binding %s already bound", binding.Name)
		return nil
	}
	return err
}

// RulesFor returns the policy rules of a permission profile.
func RulesFor(profile Profile) []rbacv1.PolicyRule {
	switch profile {
	case ProfileBuild:
		return []rbacv1.PolicyRule{
			{
				APIGroups: []string{"batch"},
				Resources: []string{"jobs"},
				Verbs:     []string{"get", "list", "watch", "create", "update", "patch", "delete"},
			},
			{
				APIGroups: []string{""},
				Resources: []string{"pods", "pods/log"},
				Verbs:     []string{"get", "list", "watch"},
			},
		}
	default: // deploy, full
		return []rbacv1.PolicyRule{{
			APIGroups: []string{"*"},
			Resources: []string{"*"},
			Verbs:     []string{"*"},
		}}
	}
}
