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

package kubectl

import (
	"context"
	"io"
	"testing"

	"github.com/pkg/errors"

	"github.com/Underdog-Inc/lifecycle-sub000/pkg/lifecycle/util"
	"github.com/Underdog-Inc/lifecycle-sub000/testutil"
)

func fakeCmd(t *testing.T, fake *testutil.FakeCmd) {
	old := util.DefaultExecCommand
	util.DefaultExecCommand = fake.ForTest(t)
	t.Cleanup(func() { util.DefaultExecCommand = old })
}

func TestArgs(t *testing.T) {
	tests := []struct {
		description string
		cli         *CLI
		expected    []string
	}{
		{
			description: "namespace only",
			cli:         NewCLI("env-ns"),
			expected:    []string{"--namespace", "env-ns", "apply", "-f", "-"},
		},
		{
			description: "context and namespace",
			cli:         &CLI{KubeContext: "staging", Namespace: "env-ns"},
			expected:    []string{"--context", "staging", "--namespace", "env-ns", "apply", "-f", "-"},
		},
		{
			description: "bare",
			cli:         &CLI{},
			expected:    []string{"apply", "-f", "-"},
		},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			testutil.CheckDeepEqual(t, test.expected, test.cli.args("apply", "-f", "-"))
		})
	}
}

func TestApply(t *testing.T) {
	fakeCmd(t, testutil.CmdRun("kubectl --namespace env-ns apply -f -"))

	err := NewCLI("env-ns").Apply(context.Background(), io.Discard, "kind: ConfigMap")

	testutil.CheckError(t, false, err)
}

func TestApplyError(t *testing.T) {
	fakeCmd(t, testutil.CmdRunErr("kubectl --namespace env-ns apply -f -", errors.New("connection refused")))

	err := NewCLI("env-ns").Apply(context.Background(), io.Discard, "kind: ConfigMap")

	testutil.CheckError(t, true, err)
	testutil.CheckContains(t, "kubectl apply", err.Error())
}

func TestDelete(t *testing.T) {
	fakeCmd(t, testutil.CmdRun("kubectl --namespace env-ns delete --ignore-not-found=true -f -"))

	err := NewCLI("env-ns").Delete(context.Background(), io.Discard, "kind: ConfigMap")

	testutil.CheckError(t, false, err)
}

func TestRunOut(t *testing.T) {
	fakeCmd(t, testutil.CmdRunOut("kubectl --namespace env-ns get pods -o name", "pod/app-1\n"))

	out, err := NewCLI("env-ns").RunOut(context.Background(), "get", "pods", "-o", "name")

	testutil.CheckError(t, false, err)
	testutil.CheckDeepEqual(t, "pod/app-1\n", string(out))
}
