package proc

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/josephlewis42/pipesh/core/shell"
	"github.com/moby/sys/reexec"
	getopt "github.com/pborman/getopt/v2"
	"golang.org/x/sys/unix"
)

// StageName is argv[0] of a process that is about to become a pipeline
// stage. The shell binary dispatches on it through reexec.Init before
// doing anything else.
const StageName = "pipesh-stage"

func init() {
	reexec.Register(StageName, func() {
		os.Exit(RunStage(os.Args, os.Stderr))
	})
}

// stageArgv builds the argument list the stage process is started with.
func stageArgv(cmd *shell.Command) []string {
	argv := []string{StageName}
	if cmd.HasInput() {
		argv = append(argv, "--stdin", cmd.InFile)
	}
	if cmd.HasOutput() {
		argv = append(argv, "--stdout", cmd.OutFile)
	}
	argv = append(argv, "--")
	return append(argv, cmd.Args...)
}

// RunStage runs inside a freshly spawned child. It binds the redirection
// files named in args onto standard input and output, then replaces the
// process image with the target program. It only returns on failure, with
// StatusFailure, after writing a diagnostic to stderr.
func RunStage(args []string, stderr io.Writer) int {
	opts := getopt.New()
	stdin := opts.StringLong("stdin", 'i', "", "bind standard input to `file`")
	stdout := opts.StringLong("stdout", 'o', "", "bind standard output to `file`")

	if err := opts.Getopt(args, nil); err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", StageName, err)
		return StatusFailure
	}

	argv := opts.Args()
	if len(argv) == 0 {
		fmt.Fprintf(stderr, "%s: missing command\n", StageName)
		return StatusFailure
	}

	if *stdin != "" {
		if err := BindInput(*stdin); err != nil {
			fmt.Fprintln(stderr, err)
			return StatusFailure
		}
	}
	if *stdout != "" {
		if err := BindOutput(*stdout); err != nil {
			fmt.Fprintln(stderr, err)
			return StatusFailure
		}
	}

	path, err := exec.LookPath(argv[0])
	if err != nil {
		fmt.Fprintf(stderr, "execvp: %v\n", err)
		return StatusFailure
	}

	err = unix.Exec(path, argv, os.Environ())
	fmt.Fprintf(stderr, "execvp: %s: %v\n", argv[0], err)
	return StatusFailure
}

// BindInput opens path read-only and makes it the process's standard input.
func BindInput(path string) error {
	return bind(path, unix.O_RDONLY, 0, unix.Stdin)
}

// BindOutput creates or truncates path and makes it the process's standard
// output.
func BindOutput(path string) error {
	return bind(path, unix.O_WRONLY|unix.O_CREAT|unix.O_TRUNC, 0644, unix.Stdout)
}

// bind opens path and duplicates it onto target. The opened descriptor is
// always closed afterwards so only target refers to the file.
func bind(path string, flags int, mode uint32, target int) error {
	fd, err := unix.Open(path, flags|unix.O_CLOEXEC, mode)
	if err != nil {
		return &os.PathError{Op: "open", Path: path, Err: err}
	}

	if fd == target {
		// The standard stream was closed and open reused its slot.
		if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, 0); err != nil {
			unix.Close(fd)
			return os.NewSyscallError("fcntl", err)
		}
		return nil
	}

	if err := unix.Dup3(fd, target, 0); err != nil {
		unix.Close(fd)
		return os.NewSyscallError("dup2", err)
	}
	return unix.Close(fd)
}
