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

package testutil

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
)

var errUnexpected = errors.New("unexpected command")

type run struct {
	command string
	output  []byte
	err     error
}

// FakeCmd fakes the util.Command interface with an ordered list of expected
// command lines.
type FakeCmd struct {
	t    *testing.T
	runs []run
}

func CmdRun(command string) *FakeCmd {
	return &FakeCmd{runs: []run{{command: command}}}
}

func CmdRunErr(command string, err error) *FakeCmd {
	return &FakeCmd{runs: []run{{command: command, err: err}}}
}

func CmdRunOut(command string, output string) *FakeCmd {
	return &FakeCmd{runs: []run{{command: command, output: []byte(output)}}}
}

func CmdRunOutErr(command string, output string, err error) *FakeCmd {
	return &FakeCmd{runs: []run{{command: command, output: []byte(output), err: err}}}
}

func (c *FakeCmd) AndRun(command string) *FakeCmd {
	c.runs = append(c.runs, run{command: command})
	return c
}

func (c *FakeCmd) AndRunErr(command string, err error) *FakeCmd {
	c.runs = append(c.runs, run{command: command, err: err})
	return c
}

func (c *FakeCmd) AndRunOut(command string, output string) *FakeCmd {
	c.runs = append(c.runs, run{command: command, output: []byte(output)})
	return c
}

func (c *FakeCmd) AndRunOutErr(command string, output string, err error) *FakeCmd {
	c.runs = append(c.runs, run{command: command, output: []byte(output), err: err})
	return c
}

// ForTest binds the fake to a test and verifies every expected command ran.
func (c *FakeCmd) ForTest(t *testing.T) *FakeCmd {
	c.t = t
	t.Cleanup(func() {
		if len(c.runs) > 0 {
			t.Errorf("expected %d more command(s) to be run, first: %q", len(c.runs), c.runs[0].command)
		}
	})
	return c
}

func (c *FakeCmd) popRun(actual string) (run, bool) {
	if len(c.runs) == 0 {
		if c.t != nil {
			c.t.Errorf("unexpected command: %q", actual)
		}
		return run{}, false
	}
	r := c.runs[0]
	c.runs = c.runs[1:]
	if r.command != actual {
		if c.t != nil {
			c.t.Errorf("expected: %q\ngot:      %q", r.command, actual)
		}
		return run{}, false
	}
	return r, true
}

func (c *FakeCmd) RunCmdOut(_ context.Context, cmd *exec.Cmd) ([]byte, error) {
	r, ok := c.popRun(strings.Join(cmd.Args, " "))
	if !ok {
		return nil, errUnexpected
	}
	return r.output, r.err
}

func (c *FakeCmd) RunCmd(_ context.Context, cmd *exec.Cmd) error {
	r, ok := c.popRun(strings.Join(cmd.Args, " "))
	if !ok {
		return errUnexpected
	}
	if len(r.output) > 0 && cmd.Stdout != nil {
		cmd.Stdout.Write(r.output)
	}
	return r.err
}
