package proc

import (
	"os"
	"syscall"
	"time"

	"github.com/josephlewis42/pipesh/core/shell"
	"github.com/moby/sys/reexec"
	"golang.org/x/sys/unix"
)

// Stdio holds the files a spawned process receives as descriptors 0, 1 and 2
// when nothing else is bound to them.
type Stdio struct {
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File
}

// OSStdio is the standard streams of the current process.
func OSStdio() Stdio {
	return Stdio{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

func (s Stdio) fds() [3]uintptr {
	return [3]uintptr{s.Stdin.Fd(), s.Stdout.Fd(), s.Stderr.Fd()}
}

// Job is a spawned process.
type Job struct {
	Pid        int
	Argv       []string
	Background bool
	Started    time.Time
}

// spawn starts cmd as a new process whose descriptors 0, 1 and 2 are files.
// The child inherits nothing else: every descriptor the shell opens is
// close-on-exec and the file table below is the only one passed through.
func spawn(cmd *shell.Command, files [3]uintptr) (int, error) {
	return syscall.ForkExec(reexec.Self(), stageArgv(cmd), &syscall.ProcAttr{
		Env:   os.Environ(),
		Files: files[:],
	})
}

// wait blocks until pid terminates and returns its exit status.
func wait(pid int) (int, error) {
	var ws unix.WaitStatus
	for {
		_, err := unix.Wait4(pid, &ws, 0, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return StatusUnknown, err
		}
		return exitStatus(ws), nil
	}
}
