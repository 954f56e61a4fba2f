package proc

import (
	"errors"
	"os"
	"time"

	"github.com/josephlewis42/pipesh/core/shell"
)

var errEmptyPipeline = errors.New("empty pipeline")

// newPipe creates the pipes connecting stages.
var newPipe = os.Pipe

// PipelineResult describes a completed pipeline.
type PipelineResult struct {
	// Jobs holds one entry per stage, in spawn order.
	Jobs []Job
	// Statuses holds the exit status of each stage. They carry no meaning for
	// the session and are kept for logging.
	Statuses []int
	// Pipes is the number of pipes that connected the stages.
	Pipes int
}

// Orchestrator runs pipelines of commands connected by pipes.
type Orchestrator struct {
	stdio Stdio
}

// NewOrchestrator creates an Orchestrator whose first stage reads from
// stdio.Stdin and whose last stage writes to stdio.Stdout.
func NewOrchestrator(stdio Stdio) *Orchestrator {
	return &Orchestrator{stdio: stdio}
}

type pipePair struct {
	r, w *os.File
}

func closePipes(pipes []pipePair) {
	for _, p := range pipes {
		if p.r != nil {
			p.r.Close()
		}
		if p.w != nil {
			p.w.Close()
		}
	}
}

// Run spawns every stage of p and waits for all of them in spawn order.
//
// Stage i reads from pipe i-1 and writes to pipe i; a stage's own file
// redirections are applied after the pipe binding and take precedence.
// Pipelines always run in the foreground.
func (o *Orchestrator) Run(p *shell.Pipeline) (*PipelineResult, error) {
	n := p.Len()
	if n == 0 {
		return nil, errEmptyPipeline
	}

	pipes := make([]pipePair, n-1)
	for i := range pipes {
		r, w, err := newPipe()
		if err != nil {
			closePipes(pipes)
			return nil, &FatalError{Op: "pipe", Err: err}
		}
		pipes[i] = pipePair{r: r, w: w}
	}

	res := &PipelineResult{Pipes: len(pipes)}
	for i, cmd := range p.Commands {
		files := o.stdio.fds()
		if i > 0 {
			files[0] = pipes[i-1].r.Fd()
		}
		if i < n-1 {
			files[1] = pipes[i].w.Fd()
		}

		pid, err := spawn(cmd, files)
		if err != nil {
			closePipes(pipes)
			o.waitAll(res)
			return res, &FatalError{Op: "fork", Err: err}
		}
		res.Jobs = append(res.Jobs, Job{Pid: pid, Argv: cmd.Argv(), Started: time.Now()})
	}

	// Downstream stages only see EOF once every write end is closed here.
	closePipes(pipes)
	o.waitAll(res)
	return res, nil
}

func (o *Orchestrator) waitAll(res *PipelineResult) {
	for _, job := range res.Jobs {
		status, err := wait(job.Pid)
		if err != nil {
			status = StatusUnknown
		}
		res.Statuses = append(res.Statuses, status)
	}
}
