package commands

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/abiosoft/readline"
	"github.com/josephlewis42/pipesh/core/config"
	"github.com/josephlewis42/pipesh/core/logger"
	"github.com/josephlewis42/pipesh/core/proc"
	"github.com/josephlewis42/pipesh/core/shell"
)

// Options configures a Shell.
type Options struct {
	// Stdio is used by the shell and inherited by every child.
	Stdio proc.Stdio
	// Config defaults to config.Default().
	Config *config.Configuration
	// Logger receives session events, they're discarded if nil.
	Logger *logger.SessionLogger
	// IsTerminal enables line editing and, in "auto" mode, colors.
	IsTerminal bool
	// Username overrides the user shown in the prompt.
	Username string
}

// Shell is an interactive session.
type Shell struct {
	cfg    *config.Configuration
	log    *logger.SessionLogger
	colors *palette

	Readline *readline.Instance
	out      io.Writer
	errOut   io.Writer

	registry  *proc.Registry
	launcher  *proc.Launcher
	pipelines *proc.Orchestrator

	username   string
	prevDir    string
	now        func() time.Time
	isTerminal bool

	status int
	// Set to true to quit the shell
	Quit bool
}

// NewShell creates a session reading lines from opts.Stdio.Stdin.
func NewShell(opts Options) (*Shell, error) {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger().NewSession()
	}

	cfg := &readline.Config{
		Stdin:        readline.NewCancelableStdin(opts.Stdio.Stdin),
		Stdout:       opts.Stdio.Stdout,
		Stderr:       opts.Stdio.Stderr,
		HistoryLimit: -1,
		FuncIsTerminal: func() bool {
			return opts.IsTerminal
		},
	}
	if !opts.IsTerminal {
		noop := func() error { return nil }
		cfg.FuncMakeRaw = noop
		cfg.FuncExitRaw = noop
		cfg.FuncGetWidth = func() int { return 80 }
	}

	if err := cfg.Init(); err != nil {
		return nil, err
	}

	rl, err := readline.NewEx(cfg)
	if err != nil {
		return nil, err
	}

	username := opts.Username
	if username == "" {
		username = currentUser(opts.Config.Prompt.UserFallback)
	}

	registry := proc.NewRegistry()
	s := &Shell{
		cfg:        opts.Config,
		log:        opts.Logger,
		colors:     newPalette(opts.Config.Prompt.Color, opts.IsTerminal),
		Readline:   rl,
		out:        rl,
		errOut:     opts.Stdio.Stderr,
		registry:   registry,
		launcher:   proc.NewLauncher(opts.Stdio, registry),
		pipelines:  proc.NewOrchestrator(opts.Stdio),
		username:   username,
		now:        time.Now,
		isTerminal: opts.IsTerminal,
	}

	if wd, err := os.Getwd(); err == nil {
		s.prevDir = wd
	}

	return s, nil
}

// Run reads and executes lines until exit, end of input or a fatal error. It
// returns the session's exit status.
func (s *Shell) Run() int {
	defer s.Readline.Close()

	s.record(logger.EventSessionStart, logger.Fields{"user": s.username, "cwd": s.prevDir})

	for !s.Quit {
		s.reap()

		if s.isTerminal {
			s.Readline.SetPrompt(s.prompt())
		} else {
			// readline only draws prompts on terminals.
			fmt.Fprint(s.out, s.prompt())
		}
		line, err := s.Readline.Readline()

		switch {
		case err == io.EOF:
			s.exit(proc.StatusSuccess) // Input closed, quit.
		case err == readline.ErrInterrupt:
			// Interrupt clears line.
			continue
		case err != nil:
			log.Printf("Error readline: %v", err)
			s.exit(proc.StatusFailure)
		default:
			s.RunLine(line)
		}
	}

	s.record(logger.EventSessionExit, logger.Fields{logger.FieldStatus: s.status})
	return s.status
}

// RunLine parses and executes a single line of input.
func (s *Shell) RunLine(line string) {
	p, err := shell.Parse(line)
	switch {
	case errors.Is(err, shell.ErrEmpty):
		return
	case err != nil:
		fmt.Fprintln(s.out, s.cfg.InvalidInputMessage)
		s.record(logger.EventInvalidInput, logger.Fields{"line": line, "error": err.Error()})
		return
	}

	s.execute(p)
}

func (s *Shell) execute(p *shell.Pipeline) {
	first := p.Commands[0]

	// cd takes effect even at the head of a pipeline, other builtins only when
	// they're alone.
	if builtin, ok := AllBuiltins[first.Name()]; ok && (p.Len() == 1 || first.Name() == "cd") {
		builtin.Main(s, first.Argv())
		return
	}

	if p.Len() == 1 {
		s.launch(first)
		return
	}

	s.runPipeline(p)
}

func (s *Shell) launch(cmd *shell.Command) {
	res, err := s.launcher.Launch(cmd, !cmd.Background)
	if err != nil {
		s.fatal(err)
		return
	}

	fields := logger.Fields{
		logger.FieldArgv: logger.Strings(res.Job.Argv),
		logger.FieldPid:  res.Job.Pid,
	}
	if res.Job.Background {
		fields["background"] = true
		s.record(logger.EventJobRegistered, logger.Fields{logger.FieldPid: res.Job.Pid})
		s.record(logger.EventRunCommand, fields)
		return
	}

	fields[logger.FieldStatus] = res.Status
	s.record(logger.EventRunCommand, fields)

	if res.AbortsSession() {
		s.exit(res.Status)
	}
}

func (s *Shell) runPipeline(p *shell.Pipeline) {
	res, err := s.pipelines.Run(p)
	if err != nil {
		s.fatal(err)
		return
	}

	var argvs []interface{}
	for _, job := range res.Jobs {
		argvs = append(argvs, logger.Strings(job.Argv))
	}
	s.record(logger.EventRunPipeline, logger.Fields{
		"stages":             len(res.Jobs),
		"pipes":              res.Pipes,
		"argvs":              argvs,
		"statuses":           logger.Ints(res.Statuses),
		"ignored_background": p.Background(),
	})
}

// reap collects finished background jobs.
func (s *Shell) reap() {
	for _, reaped := range s.registry.ReapAll() {
		s.record(logger.EventJobReaped, logger.Fields{
			logger.FieldPid:    reaped.Job.Pid,
			logger.FieldArgv:   logger.Strings(reaped.Job.Argv),
			logger.FieldStatus: reaped.Status,
			"registered":       reaped.Registered,
		})
	}
}

func (s *Shell) fatal(err error) {
	fmt.Fprintln(s.errOut, err)
	s.record(logger.EventFatal, logger.Fields{"error": err.Error()})

	var fatalErr *proc.FatalError
	if errors.As(err, &fatalErr) {
		s.exit(fatalErr.Status())
		return
	}
	s.exit(proc.StatusFailure)
}

func (s *Shell) exit(status int) {
	s.status = status
	s.Quit = true
}

// Jobs lists background jobs that haven't been reaped.
func (s *Shell) Jobs() []proc.Job {
	return s.registry.Jobs()
}

func (s *Shell) record(event string, fields logger.Fields) {
	if err := s.log.Record(event, fields); err != nil {
		log.Printf("Error recording %s: %v", event, err)
	}
}
