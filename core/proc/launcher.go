package proc

import (
	"time"

	"github.com/josephlewis42/pipesh/core/shell"
)

// LaunchResult describes a single launched command.
type LaunchResult struct {
	Job Job
	// Status is the exit status of a foreground command. It is unset for
	// background commands.
	Status int
}

// AbortsSession reports whether the interactive session must terminate with
// Status. A foreground command that exits with a status greater than one
// ends the session; this is how a failed exec surfaces to the user.
func (r *LaunchResult) AbortsSession() bool {
	return !r.Job.Background && r.Status > 1
}

// Launcher starts single commands.
type Launcher struct {
	stdio    Stdio
	registry *Registry
}

// NewLauncher creates a Launcher whose children share stdio and whose
// background children are tracked in registry.
func NewLauncher(stdio Stdio, registry *Registry) *Launcher {
	return &Launcher{stdio: stdio, registry: registry}
}

// Launch spawns cmd. A foreground launch blocks until the child exits; a
// background launch registers the child and returns immediately.
func (l *Launcher) Launch(cmd *shell.Command, foreground bool) (*LaunchResult, error) {
	pid, err := spawn(cmd, l.stdio.fds())
	if err != nil {
		return nil, &FatalError{Op: "fork", Err: err}
	}

	res := &LaunchResult{
		Job: Job{
			Pid:        pid,
			Argv:       cmd.Argv(),
			Background: !foreground,
			Started:    time.Now(),
		},
	}

	if !foreground {
		l.registry.Register(res.Job)
		return res, nil
	}

	res.Status, err = wait(pid)
	if err != nil {
		return nil, &FatalError{Op: "waitpid", Err: err}
	}
	return res, nil
}
