package commands

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/josephlewis42/pipesh/core/logger"
	"github.com/pborman/getopt/v2"
)

// AllBuiltins holds a list of all registered shell builtins
var AllBuiltins = make(map[string]ShellBuiltin)

var builtinUsage = make(map[string]string)

type ShellBuiltin interface {
	Main(s *Shell, args []string) int
}

type ShellBuiltinFunc func(s *Shell, args []string) int

func (f ShellBuiltinFunc) Main(s *Shell, args []string) int {
	return f(s, args)
}

var _ ShellBuiltin = (ShellBuiltinFunc)(nil)

func addBuiltin(name, usage string, fn ShellBuiltinFunc) {
	AllBuiltins[name] = fn
	builtinUsage[name] = usage
}

// ListBuiltins returns the builtin names in sorted order.
func ListBuiltins() []string {
	var out []string
	for k := range AllBuiltins {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// BuiltinUsage is the one line usage for a builtin.
func BuiltinUsage(name string) string {
	return builtinUsage[name]
}

// Cd is the cd shell builtin. With no argument it changes to $HOME, "-"
// returns to the directory in effect before the last successful cd.
func Cd(s *Shell, args []string) int {
	var target string
	switch len(args) {
	case 1:
		target = os.Getenv(EnvHome)
		if target == "" {
			fmt.Fprintf(s.errOut, "%s: HOME not set\n", args[0])
			return 1
		}
	case 2:
		target = args[1]
		if target == "-" {
			target = s.prevDir
		}
	default:
		fmt.Fprintf(s.errOut, "%s: too many arguments\n", args[0])
		return 1
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(s.errOut, "%s: %v\n", args[0], err)
		return 1
	}

	if err := os.Chdir(target); err != nil {
		fmt.Fprintf(s.errOut, "%s: %v\n", args[0], err)
		return 1
	}

	s.prevDir = cwd
	newDir, err := os.Getwd()
	if err != nil {
		newDir = target
	}
	os.Setenv(EnvOldPWD, cwd)
	os.Setenv(EnvPWD, newDir)

	s.record(logger.EventChangeDir, logger.Fields{"from": cwd, "to": newDir})
	return 0
}

// Exit quits the shell after saying goodbye. The session ends with the
// optional status argument, 0 by default. Bad arguments leave the shell
// running.
func Exit(s *Shell, args []string) int {
	status := 0
	switch len(args) {
	case 1:
	case 2:
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 0 || n > 255 {
			fmt.Fprintf(s.errOut, "%s: %s: numeric argument in 0-255 required\n", args[0], args[1])
			return 1
		}
		status = n
	default:
		fmt.Fprintf(s.errOut, "%s: too many arguments\n", args[0])
		return 1
	}

	for _, line := range s.cfg.Farewell {
		fmt.Fprintln(s.out, s.colors.farewell.Sprint(line))
	}
	s.exit(status)
	return status
}

// Jobs lists background jobs that haven't been reaped yet.
func Jobs(s *Shell, args []string) int {
	opts := getopt.New()
	pidsOnly := opts.Bool('p', "list process IDs only")
	helpOpt := opts.BoolLong("help", 'h', "show help and exit")

	if err := opts.Getopt(args, nil); err != nil || *helpOpt {
		w := s.out
		if err != nil {
			fmt.Fprintln(w, err)
		}
		fmt.Fprintln(w, "usage: jobs [-p]")
		fmt.Fprintln(w, "Display status of jobs.")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Options:")
		opts.PrintOptions(w)
		if err != nil {
			return 1
		}
		return 0
	}

	for i, job := range s.Jobs() {
		if *pidsOnly {
			fmt.Fprintln(s.out, job.Pid)
			continue
		}
		fmt.Fprintf(s.out, "[%d] %d Running\t%s &\n", i+1, job.Pid, strings.Join(job.Argv, " "))
	}
	return 0
}

// Help lists the builtins.
func Help(s *Shell, args []string) int {
	w := s.out
	fmt.Fprintln(w, "pipesh runs programs with pipes, redirection and background jobs.")
	fmt.Fprintln(w, "Input: name [args...] [< in] [> out] [| name [args...]]... [&]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Builtins:")
	fmt.Fprintln(w)

	for _, name := range ListBuiltins() {
		fmt.Fprintf(w, "  %-6s %s\n", name, BuiltinUsage(name))
	}

	return 0
}

func init() {
	addBuiltin("cd", "cd [DIR|-]: change the working directory", Cd)
	addBuiltin("exit", "exit [N]: leave the shell with status N", Exit)
	addBuiltin("jobs", "jobs [-p]: list running background jobs", Jobs)
	addBuiltin("help", "help: show this list", Help)
}
