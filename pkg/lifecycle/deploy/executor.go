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

	"k8s.io/client-go/kubernetes"

	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/activity"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/config"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/constants"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/entity"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/helm"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/job"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/kubectl"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/output/log"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/rbac"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/store"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/util"
)

// deployKind is the tagged union over deploy paths.
type deployKind int

const (
	kindNoop deployKind = iota
	kindHelm
	kindRaw
)

// kindOf maps a deployable type onto its deploy path. External, config and
// unknown types are no-ops at this layer.
func kindOf(d *entity.Deploy) deployKind {
	if d.Deployable == nil {
		return kindNoop
	}
	switch d.Deployable.Type {
	case entity.TypeHelm:
		return kindHelm
	case entity.TypeGithub, entity.TypeDocker, entity.TypeCLI, entity.TypeCodefresh:
		return kindRaw
	default:
		return kindNoop
	}
}

// StandardExecutor executes one deploy against the cluster. It owns the
// deploy row for the duration of the attempt.
type StandardExecutor struct {
	cfg     *config.Config
	client  kubernetes.Interface
	store   store.DeployStore
	feed    activity.Feed
	helm    *helm.CLI
	monitor *job.Monitor
	rbac    *rbac.Provisioner
}

// NewExecutor wires an executor with its collaborators.
func NewExecutor(cfg *config.Config, client kubernetes.Interface, st store.DeployStore, feed activity.Feed) *StandardExecutor {
	return &StandardExecutor{
		cfg:     cfg,
		client:  client,
		store:   st,
		feed:    feed,
		helm:    &helm.CLI{},
		monitor: job.NewMonitor(client),
		rbac:    rbac.NewProvisioner(client),
	}
}

// Execute runs one deploy to a terminal status. Every error is caught here,
// folded into a DEPLOY_FAILED status on the deploy row, and re-raised to the
// wave aggregator.
func (e *StandardExecutor) Execute(ctx context.Context, d *entity.Deploy) error {
	ctx = log.WithEventContext(ctx, constants.Deploy, d.Name())

	var err error
	switch kindOf(d) {
	case kindHelm:
		err = e.deployHelm(ctx, d)
	case kindRaw:
		err = e.deployRaw(ctx, d)
	default:
		log.Entry(ctx).Debugf("deploy %s is a no-op", d.Name())
		return nil
	}

	if err != nil {
		e.transition(ctx, d, entity.StatusDeployFailed, err.Error())
		return err
	}
	e.transition(ctx, d, entity.StatusReady, "")
	return nil
}

// transition patches the deploy row and pushes the change to the activity
// feed.
func (e *StandardExecutor) transition(ctx context.Context, d *entity.Deploy, status entity.DeployStatus, message string) {
	d.Status = status
	d.StatusMessage = message
	if e.store != nil {
		if err := e.store.PatchDeploy(ctx, d.UUID, store.DeployPatch{
			Status:        &status,
			StatusMessage: util.Ptr(message),
		}); err != nil {
			log.Entry(ctx).Warnf("patching deploy %s: %v", d.UUID, err)
		}
	}
	if e.feed != nil {
		e.feed.Push(ctx, activity.Event{
			DeployUUID: d.UUID,
			RunUUID:    d.RunUUID,
			Status:     status,
			Message:    message,
		})
	}
}

// saveBuildOutput persists the deploy job's log blob.
func (e *StandardExecutor) saveBuildOutput(ctx context.Context, d *entity.Deploy, logs string) {
	d.BuildOutput = logs
	if e.store == nil {
		return
	}
	if err := e.store.PatchDeploy(ctx, d.UUID, store.DeployPatch{
		BuildOutput: util.Ptr(logs),
	}); err != nil {
		log.Entry(ctx).Warnf("saving build output of %s: %v", d.UUID, err)
	}
}

func (e *StandardExecutor) kubectlFor(d *entity.Deploy) *kubectl.CLI {
	return kubectl.NewCLI(d.Build.Namespace)
}
