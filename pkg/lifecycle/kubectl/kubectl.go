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

// Package kubectl shells out to the kubectl binary. Typed reads and writes
// go through client-go; kubectl is kept for applying multi-document YAML,
// which the native client has no good equivalent for.
package kubectl

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/util"
)

// CLI holds parameters to run kubectl.
type CLI struct {
	KubeContext string
	Namespace   string
}

// NewCLI returns a kubectl runner bound to a namespace.
func NewCLI(namespace string) *CLI {
	return &CLI{Namespace: namespace}
}

func (c *CLI) args(command string, arg ...string) []string {
	args := []string{}
	if c.KubeContext != "" {
		args = append(args, "--context", c.KubeContext)
	}
	if c.Namespace != "" {
		args = append(args, "--namespace", c.Namespace)
	}
	args = append(args, command)
	args = append(args, arg...)
	return args
}

// Run runs a kubectl command with the given input and output.
func (c *CLI) Run(ctx context.Context, in io.Reader, out io.Writer, command string, arg ...string) error {
	cmd := exec.CommandContext(ctx, "kubectl", c.args(command, arg...)...)
	cmd.Stdin = in
	cmd.Stdout = out
	cmd.Stderr = out
	return util.RunCmd(ctx, cmd)
}

// RunOut runs a kubectl command and returns its stdout.
func (c *CLI) RunOut(ctx context.Context, command string, arg ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "kubectl", c.args(command, arg...)...)
	return util.RunCmdOut(ctx, cmd)
}

// Apply applies a multi-document YAML manifest via stdin.
func (c *CLI) Apply(ctx context.Context, out io.Writer, manifest string) error {
	if err := c.Run(ctx, strings.NewReader(manifest), out, "apply", "-f", "-"); err != nil {
		return fmt.Errorf("kubectl apply: %w", err)
	}
	return nil
}

// Delete deletes the objects of a multi-document YAML manifest.
func (c *CLI) Delete(ctx context.Context, out io.Writer, manifest string) error {
	if err := c.Run(ctx, strings.NewReader(manifest), out, "delete", "--ignore-not-found=true", "-f", "-"); err != nil {
		return fmt.Errorf("kubectl delete: %w", err)
	}
	return nil
}
