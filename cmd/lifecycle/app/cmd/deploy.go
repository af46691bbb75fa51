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

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/activity"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/config"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/deploy"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/entity"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/kubernetes"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/store"
)

// buildFile is the on-disk description of one build and its deploys.
type buildFile struct {
	Build   entity.Build     `json:"build"`
	Deploys []*entity.Deploy `json:"deploys"`
}

// NewCmdDeploy runs every deploy of a build file to a terminal status.
func NewCmdDeploy(out io.Writer) *cobra.Command {
	var buildPath string

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy every deployable of a build, wave by wave",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(cmd, out, buildPath)
		},
	}
	cmd.Flags().StringVarP(&buildPath, "filename", "f", "build.yaml", "path to the build file")
	return cmd
}

func runDeploy(cmd *cobra.Command, out io.Writer, buildPath string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	bf, err := loadBuildFile(buildPath)
	if err != nil {
		return err
	}
	runUUID := uuid.NewString()
	for _, d := range bf.Deploys {
		if d.Build == nil {
			d.Build = &bf.Build
		}
		if d.RunUUID == "" {
			d.RunUUID = runUUID
		}
	}

	client, err := kubernetes.Client()
	if err != nil {
		return errors.Wrap(err, "creating kubernetes client")
	}

	st := store.NewInMemory(bf.Deploys...)
	feed := activity.NewLogFeed()
	executor := deploy.NewExecutor(cfg, client, st, feed)
	manager := deploy.NewManager(ctx, bf.Deploys, executor, st, cfg.DeployConcurrency)

	if err := manager.Deploy(ctx); err != nil {
		return err
	}

	for _, d := range bf.Deploys {
		fmt.Fprintf(out, "%s\t%s\n", d.Name(), d.Status)
	}
	return nil
}

func loadBuildFile(path string) (*buildFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading build file")
	}
	var bf buildFile
	if err := yaml.Unmarshal(b, &bf); err != nil {
		return nil, errors.Wrap(err, "parsing build file")
	}
	if len(bf.Deploys) == 0 {
		return nil, errors.Errorf("build file %s has no deploys", path)
	}
	return &bf, nil
}
