package commands

import (
	"fmt"
	"os"
	"os/user"

	"github.com/fatih/color"
)

const (
	EnvHome   = "HOME"
	EnvPWD    = "PWD"
	EnvOldPWD = "OLDPWD"
	EnvUser   = "USER"
)

// Color modes accepted by the prompt.color setting.
const (
	ColorAlways = "always"
	ColorAuto   = "auto"
	ColorNever  = "never"
)

// palette holds the colors the shell writes with.
type palette struct {
	prompt   *color.Color
	farewell *color.Color
}

func newPalette(mode string, isTerminal bool) *palette {
	p := &palette{
		prompt:   color.New(color.FgYellow),
		farewell: color.New(color.FgRed),
	}

	enabled := mode == ColorAlways || (mode == ColorAuto && isTerminal)
	for _, c := range []*color.Color{p.prompt, p.farewell} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// currentUser resolves the name shown in the prompt.
func currentUser(fallback string) string {
	if name := os.Getenv(EnvUser); name != "" {
		return name
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return fallback
}

func (s *Shell) prompt() string {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "?"
	}

	text := fmt.Sprintf("%s %s:%s$ ", s.now().Format(s.cfg.Prompt.TimeFormat), s.username, cwd)
	return s.colors.prompt.Sprint(text)
}
