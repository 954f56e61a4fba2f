package cmd

import (
	"errors"
	"io"
	"io/fs"
	"log"

	"github.com/josephlewis42/pipesh/commands"
	"github.com/josephlewis42/pipesh/core/config"
	"github.com/josephlewis42/pipesh/core/logger"
	"github.com/josephlewis42/pipesh/core/proc"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var (
	cfgPath string

	// sessionStatus is the exit status of the interactive session.
	sessionStatus int

	// sessionStdio supplies the streams of the interactive session.
	sessionStdio = proc.OSStdio
)

func loadConfig() (*config.Configuration, error) {
	if cfgPath == "" {
		return config.Default(), nil
	}

	configuration, err := config.Load(cfgPath)

	if errors.Is(err, fs.ErrNotExist) {
		log.Println("Couldn't load config: did you run init?")
	}

	return configuration, err
}

// openEventLog returns a logger for the configured event log and a function
// to close it.
func openEventLog(configuration *config.Configuration) (*logger.Logger, func(), error) {
	fd, err := configuration.OpenEventLog()
	if err != nil {
		return nil, nil, err
	}
	if fd == nil {
		return logger.NewNopLogger(), func() {}, nil
	}
	return logger.NewJsonLinesLogRecorder(fd), func() { fd.Close() }, nil
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pipesh",
	Short: "A small interactive shell",
	Long: `An interactive shell that runs programs with < and > redirection,
pipelines and background jobs.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		configuration, err := loadConfig()
		if err != nil {
			return err
		}

		// Diagnostics go to the app log so they don't interleave with programs.
		log.SetOutput(io.Discard)
		if configuration.HasDir() {
			appLog, err := configuration.OpenAppLog()
			if err != nil {
				return err
			}
			defer appLog.Close()
			log.SetOutput(appLog)
		}

		eventLog, closeEventLog, err := openEventLog(configuration)
		if err != nil {
			return err
		}
		defer closeEventLog()

		stdio := sessionStdio()
		sh, err := commands.NewShell(commands.Options{
			Stdio:      stdio,
			Config:     configuration,
			Logger:     eventLog.NewSession(),
			IsTerminal: isatty.IsTerminal(stdio.Stdin.Fd()) && isatty.IsTerminal(stdio.Stdout.Fd()),
		})
		if err != nil {
			return err
		}

		sessionStatus = sh.Run()
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// It returns the process exit status.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return proc.StatusFailure
	}
	return sessionStatus
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config directory, built-in defaults are used if empty")
}
