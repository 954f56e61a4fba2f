package cmd

import (
	"context"
	"io"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/josephlewis42/pipesh/core"
	"github.com/moby/sys/reexec"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve shell sessions over SSH.",
	Long: `Serve shell sessions over SSH. Each session runs its own shell with the
same --config directory.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		os.Stdin.Close()
		cmd.SilenceUsage = true
		log.Println("Initializing server...")

		configuration, err := loadConfig()
		if err != nil {
			return err
		}

		configDir, err := filepath.Abs(cfgPath)
		if err != nil {
			return err
		}

		log.Println("Starting logger...")
		appLog, err := configuration.OpenAppLog()
		if err != nil {
			return err
		}
		defer appLog.Close()
		log.SetOutput(io.MultiWriter(cmd.ErrOrStderr(), appLog))

		eventLog, closeEventLog, err := openEventLog(configuration)
		if err != nil {
			return err
		}
		defer closeEventLog()

		server, err := core.NewServer(configuration, eventLog)
		if err != nil {
			return err
		}
		server.Command = func() *exec.Cmd {
			return exec.Command(reexec.Self(), "--config", configDir)
		}

		go func() {
			if err := server.ListenAndServe(); err != nil {
				log.Fatal(err)
			}
		}()

		sigs := make(chan os.Signal, 1)

		log.Println("- Starting interrupt handler")
		signal.Notify(sigs, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigs
		log.Printf("Got signal %q, terminating...", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server shutdown failed: %s", err)
		}
		log.Print("Server exited")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
