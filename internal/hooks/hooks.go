// Package hooks invokes the lifecycle executables described in
// spec.md section 4.7, modeled directly on
// libcontainer/configs.Command/Hooks: fork+exec the hook's path with
// its own args/env, pipe the JSON state document to its stdin, and
// enforce an optional timeout.
package hooks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	cerrors "github.com/greenhandatsjtu/pura/internal/errors"
	"github.com/greenhandatsjtu/pura/internal/oci"
)

// Name identifies a lifecycle point. Only Prestart and CreateRuntime
// are ever passed to Run by the create orchestrator (spec.md section
// 3: "others ignored by the core"); the rest exist so config.json can
// round-trip through Spec without loss.
type Name string

const (
	Prestart        Name = "prestart"
	CreateRuntime   Name = "createRuntime"
	CreateContainer Name = "createContainer"
	StartContainer  Name = "startContainer"
	Poststart       Name = "poststart"
	Poststop        Name = "poststop"
)

// Command is a single executable hook entry.
type Command struct {
	Path    string
	Args    []string
	Env     []string
	Timeout *time.Duration
}

// FromSpec converts the parsed config.json entries of one lifecycle
// point into Commands.
func FromSpec(entries []oci.Hook) []Command {
	cmds := make([]Command, 0, len(entries))
	for _, h := range entries {
		c := Command{Path: h.Path, Args: h.Args, Env: h.Env}
		if h.Timeout != nil {
			d := time.Duration(*h.Timeout) * time.Second
			c.Timeout = &d
		}
		cmds = append(cmds, c)
	}
	return cmds
}

// Run executes c, writing the JSON-serialized state document to its
// stdin, and waits for it to exit. A non-zero exit, a signal
// termination, or an expired timeout is reported as a Runtime error.
func (c *Command) Run(state *oci.State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return cerrors.Wrap(cerrors.Runtime, "marshal hook state", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.Cmd{
		Path:   c.Path,
		Args:   append([]string{c.Path}, c.Args...),
		Env:    c.Env,
		Stdin:  bytes.NewReader(payload),
		Stdout: &stdout,
		Stderr: &stderr,
	}

	if err := cmd.Start(); err != nil {
		return cerrors.Wrap(cerrors.Runtime, "start hook "+c.Path, err)
	}

	errC := make(chan error, 1)
	go func() {
		errC <- cmd.Wait()
	}()

	var timerCh <-chan time.Time
	if c.Timeout != nil {
		timer := time.NewTimer(*c.Timeout)
		defer timer.Stop()
		timerCh = timer.C
	}

	select {
	case err := <-errC:
		if err != nil {
			return cerrors.Wrap(cerrors.Runtime, "hook "+c.Path,
				fmt.Errorf("%w, stdout: %s, stderr: %s", err, stdout.String(), stderr.String()))
		}
		return nil
	case <-timerCh:
		_ = cmd.Process.Kill()
		<-errC
		return cerrors.New(cerrors.Runtime, "hook "+c.Path,
			fmt.Sprintf("ran past timeout of %.1fs", c.Timeout.Seconds()))
	}
}

// Hooks groups the commands parsed for each lifecycle point.
type Hooks struct {
	byName map[Name][]Command
}

// FromConfig builds a Hooks set from the parsed config.json hooks
// block, preserving every lifecycle point for pass-through even though
// only Prestart and CreateRuntime are ever run by the create
// orchestrator.
func FromConfig(h *oci.Hooks) Hooks {
	if h == nil {
		return Hooks{byName: map[Name][]Command{}}
	}
	return Hooks{byName: map[Name][]Command{
		Prestart:        FromSpec(h.Prestart),
		CreateRuntime:   FromSpec(h.CreateRuntime),
		CreateContainer: FromSpec(h.CreateContainer),
		StartContainer:  FromSpec(h.StartContainer),
		Poststart:       FromSpec(h.Poststart),
		Poststop:        FromSpec(h.Poststop),
	}}
}

// Run executes every command registered under name, in order, stopping
// at the first failure.
func (h Hooks) Run(name Name, state *oci.State) error {
	for i, c := range h.byName[name] {
		cmd := c
		if err := cmd.Run(state); err != nil {
			return cerrors.Wrap(cerrors.Runtime, fmt.Sprintf("%s hook #%d", name, i), err)
		}
	}
	return nil
}
