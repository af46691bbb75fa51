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

package helm

import (
	"context"
	"io"
	"testing"

	"github.com/pkg/errors"

	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/entity"
	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/util"
	"github.com/Underdog-Inc/lifecycle-sub000/testutil"
)

func fakeCmd(t *testing.T, fake *testutil.FakeCmd) {
	old := util.DefaultExecCommand
	util.DefaultExecCommand = fake.ForTest(t)
	t.Cleanup(func() { util.DefaultExecCommand = old })
}

func TestBinVer(t *testing.T) {
	tests := []struct {
		description string
		output      string
		shouldErr   bool
		expected    string
	}{
		{
			description: "helm 3 template output",
			output:      `version.BuildInfo{Version:"v3.12.0", GitCommit:"c9f554d"}`,
			expected:    "3.12.0",
		},
		{
			description: "plain version",
			output:      "v3.9.4",
			expected:    "3.9.4",
		},
		{
			description: "garbage output",
			output:      "not a version at all",
			shouldErr:   true,
		},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			fakeCmd(t, testutil.CmdRunOut("helm version", test.output))

			h := &CLI{}
			v, err := h.BinVer(context.Background())

			testutil.CheckError(t, test.shouldErr, err)
			if !test.shouldErr {
				testutil.CheckDeepEqual(t, test.expected, v.String())
			}
		})
	}
}

func TestBinVerCaches(t *testing.T) {
	fakeCmd(t, testutil.CmdRunOut("helm version", "v3.12.0"))

	h := &CLI{}
	_, err := h.BinVer(context.Background())
	testutil.CheckError(t, false, err)

	// second call must not shell out again
	v, err := h.BinVer(context.Background())
	testutil.CheckError(t, false, err)
	testutil.CheckDeepEqual(t, "3.12.0", v.String())
}

func TestStatus(t *testing.T) {
	tests := []struct {
		description string
		output      string
		err         error
		shouldErr   bool
		expected    entity.ReleaseState
	}{
		{
			description: "deployed release",
			output:      `{"name":"env-1","info":{"status":"deployed","description":"Upgrade complete"},"version":4}`,
			expected: entity.ReleaseState{
				Status:      entity.ReleaseDeployed,
				Revision:    4,
				Description: "Upgrade complete",
			},
		},
		{
			description: "pending install",
			output:      `{"name":"env-1","info":{"status":"pending-install"},"version":1}`,
			expected:    entity.ReleaseState{Status: entity.ReleasePendingInstall, Revision: 1},
		},
		{
			description: "missing release is absent, not an error",
			output:      "",
			err:         errors.New("Error: release: not found"),
			expected:    entity.ReleaseState{Status: entity.ReleaseAbsent},
		},
		{
			description: "unexpected status maps to unknown",
			output:      `{"name":"env-1","info":{"status":"uninstalling"},"version":2}`,
			expected:    entity.ReleaseState{Status: entity.ReleaseUnknown, Revision: 2},
		},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			fakeCmd(t, testutil.CmdRunOutErr("helm status env-1 --namespace env-ns -o json", test.output, test.err))

			h := &CLI{}
			state, err := h.Status(context.Background(), "env-1", "env-ns")

			testutil.CheckError(t, test.shouldErr, err)
			testutil.CheckDeepEqual(t, test.expected, state)
		})
	}
}

func TestUninstall(t *testing.T) {
	fakeCmd(t, testutil.CmdRun("helm uninstall env-1 --namespace env-ns --wait --timeout 5m"))

	h := &CLI{}
	err := h.Uninstall(context.Background(), io.Discard, "env-1", "env-ns")

	testutil.CheckError(t, false, err)
}

func TestKubeContextSkippedForVersion(t *testing.T) {
	fakeCmd(t, testutil.
		CmdRunOut("helm version", "v3.12.0").
		AndRunOut("helm --kube-context staging status env-1 --namespace env-ns -o json",
			`{"name":"env-1","info":{"status":"deployed"},"version":1}`))

	h := &CLI{KubeContext: "staging"}
	_, err := h.BinVer(context.Background())
	testutil.CheckError(t, false, err)

	_, err = h.Status(context.Background(), "env-1", "env-ns")
	testutil.CheckError(t, false, err)
}
