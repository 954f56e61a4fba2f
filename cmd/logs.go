package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/josephlewis42/pipesh/core/logger"
	"github.com/josephlewis42/pipesh/core/ttylog"
	"github.com/spf13/cobra"
	"google.golang.org/protobuf/types/known/structpb"
	"sigs.k8s.io/yaml"
)

var (
	idleTimeLimit time.Duration
	reportFormat  string
)

var logsCmd = &cobra.Command{
	Use:     "logs",
	Aliases: []string{"log"},
	Short:   "Explore session events and recordings.",
}

// reportCmd summarizes the event log.
var reportCmd = &cobra.Command{
	Use:   "report [EVENTS.log]",
	Short: "Summarize the session event log.",
	Long: `Summarize the session event log. The log in the --config directory is
read if no file is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		var fd io.ReadCloser
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			fd = f
		} else {
			configuration, err := loadConfig()
			if err != nil {
				return err
			}
			f, err := configuration.ReadEventLog()
			if err != nil {
				return err
			}
			fd = f
		}
		defer fd.Close()

		report := &logger.Report{}
		if err := logger.ReadJSONLinesLog(fd, report.Update); err != nil {
			return err
		}

		var out []byte
		var err error
		switch reportFormat {
		case "yaml":
			out, err = yaml.Marshal(report)
		case "json":
			out, err = json.MarshalIndent(report, "", "  ")
			out = append(out, '\n')
		default:
			return fmt.Errorf("unknown format %q, use yaml or json", reportFormat)
		}
		if err != nil {
			return err
		}

		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

// eventsCmd prints the raw events of one session.
var eventsCmd = &cobra.Command{
	Use:   "events SESSION_ID",
	Short: "Print the logged events of a single session.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		configuration, err := loadConfig()
		if err != nil {
			return err
		}
		fd, err := configuration.ReadEventLog()
		if err != nil {
			return err
		}
		defer fd.Close()

		return logger.ReadJSONLinesLog(fd, func(le *structpb.Struct) {
			if le.GetFields()[logger.FieldSessionID].GetStringValue() != args[0] {
				return
			}
			out, err := yaml.Marshal(le.AsMap())
			if err != nil {
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "---\n%s", out)
		})
	},
}

// playCommand replays a session recording in real time.
var playCommand = &cobra.Command{
	Use:   "play RECORDING.cast",
	Short: "Replay a recorded SSH session in the terminal.",
	Long:  `Plays a recorded SSH session back to the current terminal.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		fd, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer fd.Close()

		sink := ttylog.NewClientOutput(cmd.OutOrStdout())
		sink = ttylog.NewRealTimePlayback(idleTimeLimit, sink)
		return ttylog.Replay(ttylog.NewAsciicastLogSource(fd), sink)
	},
}

// catCommand prints a session recording without delays.
var catCommand = &cobra.Command{
	Use:   "cat RECORDING.cast",
	Short: "Print full output of a recorded SSH session.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		fd, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer fd.Close()

		sink := ttylog.NewClientOutput(cmd.OutOrStdout())
		return ttylog.Replay(ttylog.NewAsciicastLogSource(fd), sink)
	},
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.AddCommand(reportCmd)
	logsCmd.AddCommand(eventsCmd)
	logsCmd.AddCommand(playCommand)
	logsCmd.AddCommand(catCommand)

	reportCmd.Flags().StringVarP(&reportFormat, "output", "o", "yaml", "Output format, yaml or json.")

	// cat doesn't allow idle time
	playCommand.Flags().DurationVarP(&idleTimeLimit, "idle-time-limit", "i", 3*time.Second, "Maximum time output can be idle. (e.g. 3s, 2m, 100ms)")
}
