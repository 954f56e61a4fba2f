package shell

import (
	"fmt"
	"strings"
)

// Command is a single program invocation parsed from a line of input.
type Command struct {
	// Args holds the program name followed by its arguments.
	Args []string
	// InFile is the path bound to standard input, empty if none.
	InFile string
	// OutFile is the path bound to standard output, empty if none.
	OutFile string
	// Background is set when the line ended with &.
	Background bool
}

// Name is the executable name, Args[0].
func (c *Command) Name() string {
	if len(c.Args) == 0 {
		return ""
	}
	return c.Args[0]
}

// Argv returns a copy of the argument list.
func (c *Command) Argv() []string {
	out := make([]string, len(c.Args))
	copy(out, c.Args)
	return out
}

// HasInput reports whether standard input is redirected from a file.
func (c *Command) HasInput() bool {
	return c.InFile != ""
}

// HasOutput reports whether standard output is redirected to a file.
func (c *Command) HasOutput() bool {
	return c.OutFile != ""
}

func (c *Command) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%q", c.Args)
	if c.HasInput() {
		fmt.Fprintf(&sb, " <%q", c.InFile)
	}
	if c.HasOutput() {
		fmt.Fprintf(&sb, " >%q", c.OutFile)
	}
	if c.Background {
		sb.WriteString(" &")
	}
	return sb.String()
}

// Pipeline is one or more commands joined by pipes, in execution order.
type Pipeline struct {
	Commands []*Command
}

// Len is the number of stages in the pipeline.
func (p *Pipeline) Len() int {
	return len(p.Commands)
}

// Background reports whether the line asked for detached execution.
func (p *Pipeline) Background() bool {
	if len(p.Commands) == 0 {
		return false
	}
	return p.Commands[len(p.Commands)-1].Background
}

func (p *Pipeline) String() string {
	stages := make([]string, len(p.Commands))
	for i, c := range p.Commands {
		stages[i] = c.String()
	}
	return strings.Join(stages, " | ")
}
