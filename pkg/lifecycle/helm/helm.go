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

// Package helm drives the helm binary for release inspection and teardown.
// Installs and upgrades run inside cluster jobs instead; see the deploy
// package.
package helm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strings"

	"github.com/blang/semver"

	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/entity"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/util"
)

// versionRegex extracts version from "helm version", for instance: "v3.12.0"
var versionRegex = regexp.MustCompile(`v?(\d[\w.\-]+)`)

// CLI holds parameters to run helm.
type CLI struct {
	KubeContext string

	bV semver.Version
}

// Exec executes the helm command, writing combined stdout/stderr to the
// provided writer.
func (h *CLI) Exec(ctx context.Context, out io.Writer, args ...string) error {
	cmd := h.command(ctx, args...)
	cmd.Stdout = out
	cmd.Stderr = out
	return util.RunCmd(ctx, cmd)
}

// ExecOut executes the helm command and returns its stdout.
func (h *CLI) ExecOut(ctx context.Context, args ...string) ([]byte, error) {
	return util.RunCmdOut(ctx, h.command(ctx, args...))
}

func (h *CLI) command(ctx context.Context, args ...string) *exec.Cmd {
	if len(args) > 0 && args[0] != "version" && h.KubeContext != "" {
		args = append([]string{"--kube-context", h.KubeContext}, args...)
	}
	return exec.CommandContext(ctx, "helm", args...)
}

// BinVer returns the version of the helm binary found in PATH. May be cached.
func (h *CLI) BinVer(ctx context.Context) (semver.Version, error) {
	if h.bV.Major != 0 || h.bV.Minor != 0 {
		return h.bV, nil
	}

	b, err := h.ExecOut(ctx, "version")
	if err != nil {
		return semver.Version{}, fmt.Errorf("helm version command failed %q: %w", string(b), err)
	}
	matches := versionRegex.FindStringSubmatch(string(b))
	if len(matches) == 0 {
		return semver.Version{}, fmt.Errorf("unable to parse output: %q", string(b))
	}

	v, err := semver.ParseTolerant(matches[1])
	if err != nil {
		return semver.Version{}, fmt.Errorf("semver make %q: %w", matches[1], err)
	}

	h.bV = v
	return h.bV, nil
}

// releaseInfo mirrors the fields of `helm status -o json` the core reads.
type releaseInfo struct {
	Name string `json:"name"`
	Info struct {
		Status      string `json:"status"`
		Description string `json:"description"`
	} `json:"info"`
	Version int `json:"version"`
}

// Status returns the observed state of a release. A missing release is
// reported as absent, not as an error.
func (h *CLI) Status(ctx context.Context, release, namespace string) (entity.ReleaseState, error) {
	out, err := h.ExecOut(ctx, "status", release, "--namespace", namespace, "-o", "json")
	if err != nil {
		if isNotFound(out, err) {
			return entity.ReleaseState{Status: entity.ReleaseAbsent}, nil
		}
		return entity.ReleaseState{Status: entity.ReleaseUnknown}, fmt.Errorf("helm status %s: %w", release, err)
	}

	var info releaseInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return entity.ReleaseState{Status: entity.ReleaseUnknown}, fmt.Errorf("parsing helm status for %s: %w", release, err)
	}

	state := entity.ReleaseState{
		Status:      entity.ReleaseStatus(info.Info.Status),
		Revision:    info.Version,
		Description: info.Info.Description,
	}
	switch state.Status {
	case entity.ReleaseDeployed, entity.ReleasePendingInstall, entity.ReleasePendingUpgrade,
		entity.ReleasePendingRollback, entity.ReleaseFailed:
	default:
		state.Status = entity.ReleaseUnknown
	}
	return state, nil
}

// Uninstall removes a release, waiting for its resources to be deleted.
func (h *CLI) Uninstall(ctx context.Context, out io.Writer, release, namespace string) error {
	if err := h.Exec(ctx, out, "uninstall", release, "--namespace", namespace, "--wait", "--timeout", "5m"); err != nil {
		return fmt.Errorf("helm uninstall %s: %w", release, err)
	}
	return nil
}

func isNotFound(out []byte, err error) bool {
	msg := strings.ToLower(string(out) + " " + err.Error())
	return strings.Contains(msg, "release: not found") || strings.Contains(msg, "not found")
}
