package core

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/exec"
	"time"

	"github.com/creack/pty"
	"github.com/gliderlabs/ssh"
	"github.com/josephlewis42/pipesh/core/config"
	"github.com/josephlewis42/pipesh/core/logger"
	"github.com/josephlewis42/pipesh/core/ttylog"
	"github.com/juju/ratelimit"
	"github.com/moby/sys/reexec"
)

// Server serves interactive shell sessions over SSH. Every session gets its
// own shell process so sessions never share a working directory or jobs.
type Server struct {
	configuration *config.Configuration
	logger        *logger.Logger
	sshServer     *ssh.Server

	// Command creates the shell process for a session.
	Command func() *exec.Cmd
}

// NewServer creates a server for configuration, recording events to
// eventLog.
func NewServer(configuration *config.Configuration, eventLog *logger.Logger) (*Server, error) {
	signer, err := configuration.HostSigner()
	if err != nil {
		return nil, err
	}
	if err := configuration.CheckServable(); err != nil {
		return nil, err
	}

	server := &Server{
		configuration: configuration,
		logger:        eventLog,
		Command: func() *exec.Cmd {
			return exec.Command(reexec.Self())
		},
	}

	server.sshServer = &ssh.Server{
		Addr: configuration.SSH.Addr(),
		Handler: func(s ssh.Session) {
			if err := server.HandleSession(s); err != nil {
				log.Printf("Session error: %v", err)
			}
		},
		PasswordHandler: func(ctx ssh.Context, password string) bool {
			return server.CheckPassword(ctx.User(), password)
		},
	}
	server.sshServer.AddHostKey(signer)

	return server, nil
}

// CheckPassword reports whether password is allowed for user.
func (s *Server) CheckPassword(user, password string) bool {
	ok := false
	for _, allowed := range s.configuration.GetPasswords(user) {
		if subtle.ConstantTimeCompare([]byte(password), []byte(allowed)) == 1 {
			ok = true
		}
	}
	return ok
}

// HandleSession runs a shell for the session and exits with its status.
func (s *Server) HandleSession(sess ssh.Session) error {
	sessionLogger := s.logger.NewSession()
	sessionLogger.Record(logger.EventSSHLogin, logger.Fields{
		"user":        sess.User(),
		"remote_addr": sess.RemoteAddr().String(),
		"command":     sess.RawCommand(),
	})

	if sess.RawCommand() != "" {
		fmt.Fprintln(sess.Stderr(), "pipesh: only interactive sessions are supported")
		sess.Exit(1)
		return nil
	}

	ptyInfo, winch, isPTY := sess.Pty()

	recorder, closeRecording, err := s.openRecording(sessionLogger.SessionID(), ptyInfo, isPTY)
	if err != nil {
		sess.Exit(1)
		return err
	}
	defer closeRecording()

	var output io.Writer = sess
	if rate := s.configuration.SSH.OutputBytesPerSecond; rate > 0 {
		output = ratelimit.Writer(output, ratelimit.NewBucketWithRate(float64(rate), rate))
	}
	output = recorder.Writer(ttylog.FD_STDOUT, output)
	input := recorder.Reader(sess)

	cmd := s.Command()
	cmd.Env = append(os.Environ(), sess.Environ()...)
	cmd.Env = append(cmd.Env, "USER="+sess.User())

	if isPTY {
		err = runInPty(cmd, ptyInfo, winch, input, output)
	} else {
		err = runPiped(cmd, input, output, recorder.Writer(ttylog.FD_STDERR, sess.Stderr()))
	}

	status := 0
	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		status = exitErr.ExitCode()
	case err != nil:
		status = 1
		log.Printf("Running session shell: %v", err)
	}

	sessionLogger.Record(logger.EventSSHSessionEnd, logger.Fields{logger.FieldStatus: status})
	return sess.Exit(status)
}

func runInPty(cmd *exec.Cmd, ptyInfo ssh.Pty, winch <-chan ssh.Window, input io.Reader, output io.Writer) error {
	cmd.Env = append(cmd.Env, "TERM="+ptyInfo.Term)

	f, err := pty.StartWithSize(cmd, windowSize(ptyInfo.Window))
	if err != nil {
		return err
	}
	defer f.Close()

	// Watch for window changes.
	go func() {
		for window := range winch {
			pty.Setsize(f, windowSize(window))
		}
	}()

	go io.Copy(f, input)
	// The copy ends with EIO once the shell exits and the tty closes.
	io.Copy(output, f)

	return cmd.Wait()
}

// runPiped runs cmd without a terminal. It returns when cmd exits, even if
// the client never closes its input.
func runPiped(cmd *exec.Cmd, input io.Reader, output, errOutput io.Writer) error {
	cmd.Stdout = output
	cmd.Stderr = errOutput
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	go func() {
		io.Copy(stdin, input)
		stdin.Close()
	}()

	return cmd.Wait()
}

func windowSize(w ssh.Window) *pty.Winsize {
	return &pty.Winsize{Rows: uint16(w.Height), Cols: uint16(w.Width)}
}

// openRecording starts an asciicast recording of the session if the
// configuration asks for one.
func (s *Server) openRecording(sessionID string, ptyInfo ssh.Pty, isPTY bool) (*ttylog.Recorder, func(), error) {
	if !s.configuration.SSH.RecordSessions {
		return ttylog.NewRecorder(func(*ttylog.Entry) error { return nil }), func() {}, nil
	}

	name := fmt.Sprintf("%s-%s.%s", time.Now().UTC().Format("20060102T150405Z"), sessionID, ttylog.AsciicastFileExt)
	fd, err := s.configuration.CreateSessionRecording(name)
	if err != nil {
		return nil, nil, err
	}

	width, height := 80, 24
	if isPTY {
		width, height = ptyInfo.Window.Width, ptyInfo.Window.Height
	}
	sink := ttylog.NewAsciicastLogSink(fd, width, height, "pipesh session "+sessionID)

	return ttylog.NewRecorder(sink), func() { fd.Close() }, nil
}

// Serve accepts connections on l until the server is shut down.
func (s *Server) Serve(l net.Listener) error {
	return s.sshServer.Serve(l)
}

func (s *Server) ListenAndServe() error {
	log.Printf("- Starting SSH server on %s\n", s.sshServer.Addr)
	return s.sshServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.sshServer.Shutdown(ctx)
}
