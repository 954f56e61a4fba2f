// Package shell turns a line of input into a Pipeline.
//
// The accepted grammar is a subset of the POSIX shell command language
// (https://pubs.opengroup.org/onlinepubs/9699919799/utilities/V3_chap02.html):
// a single pipeline of simple commands, each with optional < and >
// redirections, optionally followed by &. Words may be quoted, but no
// expansion of any kind is performed.
package shell

import (
	"errors"
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

var (
	// ErrInvalidInput is wrapped by every error returned from Parse.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmpty is returned when the line contains no command.
	ErrEmpty = fmt.Errorf("%w: empty line", ErrInvalidInput)
)

// Parse parses a single line into a Pipeline.
func Parse(line string) (*Pipeline, error) {
	file, err := syntax.NewParser().Parse(strings.NewReader(line), "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	switch len(file.Stmts) {
	case 0:
		return nil, ErrEmpty
	case 1:
	default:
		return nil, unsupported(file.Stmts[1], "multiple statements")
	}

	stmt := file.Stmts[0]
	p := &Pipeline{}
	if err := p.appendStmt(stmt); err != nil {
		return nil, err
	}
	if stmt.Background {
		p.Commands[len(p.Commands)-1].Background = true
	}
	return p, nil
}

func unsupported(node syntax.Node, what string) error {
	return fmt.Errorf("%w: unsupported %s at %s", ErrInvalidInput, what, node.Pos())
}

func (p *Pipeline) appendStmt(stmt *syntax.Stmt) error {
	if stmt.Negated {
		return unsupported(stmt, "negation")
	}
	if stmt.Coprocess {
		return unsupported(stmt, "coprocess")
	}

	switch cmd := stmt.Cmd.(type) {
	case *syntax.BinaryCmd:
		if cmd.Op != syntax.Pipe {
			return unsupported(cmd, "operator "+cmd.Op.String())
		}
		if len(stmt.Redirs) > 0 {
			return unsupported(stmt.Redirs[0], "redirect of a pipeline")
		}
		if err := p.appendStmt(cmd.X); err != nil {
			return err
		}
		return p.appendStmt(cmd.Y)

	case *syntax.CallExpr:
		c, err := parseCall(cmd, stmt.Redirs)
		if err != nil {
			return err
		}
		p.Commands = append(p.Commands, c)
		return nil

	case nil:
		return unsupported(stmt, "statement without a command")

	default:
		return unsupported(stmt, fmt.Sprintf("construct %T", cmd))
	}
}

func parseCall(call *syntax.CallExpr, redirs []*syntax.Redirect) (*Command, error) {
	if len(call.Assigns) > 0 {
		return nil, unsupported(call.Assigns[0], "assignment")
	}
	if len(call.Args) == 0 {
		return nil, unsupported(call, "statement without a command")
	}

	c := &Command{}
	for _, word := range call.Args {
		arg, err := literal(word)
		if err != nil {
			return nil, err
		}
		c.Args = append(c.Args, arg)
	}

	for _, redirect := range redirs {
		if redirect.Word == nil {
			return nil, unsupported(redirect, "redirect "+redirect.Op.String())
		}
		target, err := literal(redirect.Word)
		if err != nil {
			return nil, err
		}
		if target == "" {
			return nil, unsupported(redirect, "empty redirect target")
		}

		switch {
		case redirect.Op == syntax.RdrIn && fdIs(redirect.N, "0"):
			c.InFile = target
		case redirect.Op == syntax.RdrOut && fdIs(redirect.N, "1"):
			c.OutFile = target
		default:
			return nil, unsupported(redirect, "redirect "+redirect.Op.String())
		}
	}

	return c, nil
}

func fdIs(n *syntax.Lit, fd string) bool {
	return n == nil || n.Value == fd
}

// literal removes quoting from a word, rejecting anything that would need
// expansion.
func literal(word *syntax.Word) (string, error) {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch part := part.(type) {
		case *syntax.Lit:
			sb.WriteString(unescape(part.Value, nil))

		case *syntax.SglQuoted:
			if part.Dollar {
				return "", unsupported(part, "$'' quoting")
			}
			sb.WriteString(part.Value)

		case *syntax.DblQuoted:
			if part.Dollar {
				return "", unsupported(part, `$"" quoting`)
			}
			for _, inner := range part.Parts {
				lit, ok := inner.(*syntax.Lit)
				if !ok {
					return "", unsupported(inner, "expansion")
				}
				sb.WriteString(unescape(lit.Value, dblQuoteEscapes))
			}

		default:
			return "", unsupported(part, "expansion")
		}
	}
	return sb.String(), nil
}

// dblQuoteEscapes are the characters a backslash escapes inside "".
var dblQuoteEscapes = map[byte]bool{'$': true, '`': true, '"': true, '\\': true, '\n': true}

// unescape drops backslashes. If only is non-nil, a backslash is dropped
// only when it precedes one of those characters.
func unescape(s string, only map[byte]bool) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			sb.WriteByte(s[i])
			continue
		}
		next := s[i+1]
		if only != nil && !only[next] {
			sb.WriteByte(s[i])
			continue
		}
		i++
		if next != '\n' {
			sb.WriteByte(next)
		}
	}
	return sb.String()
}
