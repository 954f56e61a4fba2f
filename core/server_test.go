package core

import (
	"bytes"
	"context"
	"errors"
	"io/ioutil"
	"log"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/josephlewis42/pipesh/core/config"
	"github.com/josephlewis42/pipesh/core/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gossh "golang.org/x/crypto/ssh"
	"google.golang.org/protobuf/types/known/structpb"
)

// syncBuffer is a bytes.Buffer shared between the server and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) events(t *testing.T) []map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []map[string]interface{}
	require.NoError(t, logger.ReadJSONLinesLog(bytes.NewReader(b.buf.Bytes()), func(le *structpb.Struct) {
		out = append(out, le.AsMap())
	}))
	return out
}

type testServer struct {
	*Server
	dir    string
	addr   string
	events *syncBuffer
}

func newTestServer(t *testing.T, shellScript string) *testServer {
	t.Helper()

	dir := t.TempDir()
	cfg, err := config.Initialize(dir, log.New(ioutil.Discard, "", 0))
	require.NoError(t, err)
	cfg.SSH.Users = []config.User{{Username: "pipesh", Passwords: []string{"pipesh"}}}

	events := &syncBuffer{}
	srv, err := NewServer(cfg, logger.NewJsonLinesLogRecorder(events))
	require.NoError(t, err)
	srv.Command = func() *exec.Cmd {
		return exec.Command("sh", "-c", shellScript)
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(l)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	return &testServer{Server: srv, dir: dir, addr: l.Addr().String(), events: events}
}

func (s *testServer) dial(user, password string) (*gossh.Client, error) {
	return gossh.Dial("tcp", s.addr, &gossh.ClientConfig{
		User:            user,
		Auth:            []gossh.AuthMethod{gossh.Password(password)},
		HostKeyCallback: gossh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	})
}

func (s *testServer) recordings(t *testing.T) []string {
	matches, err := filepath.Glob(filepath.Join(s.dir, config.LogsDirName, "*.cast"))
	require.NoError(t, err)
	return matches
}

func TestCheckPassword(t *testing.T) {
	cfg := config.Default()
	cfg.SSH.Users = []config.User{{Username: "alice", Passwords: []string{"one", "two"}}}
	srv := &Server{configuration: cfg}

	assert.True(t, srv.CheckPassword("alice", "one"))
	assert.True(t, srv.CheckPassword("alice", "two"))
	assert.False(t, srv.CheckPassword("alice", "three"))
	assert.False(t, srv.CheckPassword("bob", "one"))
	assert.False(t, srv.CheckPassword("alice", ""))
}

func TestNewServerNeedsHostKey(t *testing.T) {
	_, err := NewServer(config.Default(), logger.NewNopLogger())
	assert.True(t, errors.Is(err, config.ErrNoConfigDir))
}

func TestNewServerNeedsUsers(t *testing.T) {
	cfg, err := config.Initialize(t.TempDir(), log.New(ioutil.Discard, "", 0))
	require.NoError(t, err)

	cfg.SSH.Users = nil
	_, err = NewServer(cfg, logger.NewNopLogger())
	assert.True(t, errors.Is(err, config.ErrNoSSHUsers), "got %v", err)
}

func TestServerRejectsInitialDefaults(t *testing.T) {
	cfg, err := config.Initialize(t.TempDir(), log.New(ioutil.Discard, "", 0))
	require.NoError(t, err)

	srv, err := NewServer(cfg, logger.NewNopLogger())
	require.NoError(t, err)
	assert.False(t, srv.CheckPassword(config.InitialSSHUser, "pipesh"))
	assert.False(t, srv.CheckPassword(config.InitialSSHUser, ""))
}

func TestServerRejectsBadPassword(t *testing.T) {
	srv := newTestServer(t, "true")

	_, err := srv.dial("pipesh", "wrong")
	assert.Error(t, err)
}

func TestServerPipedSession(t *testing.T) {
	srv := newTestServer(t, `read line; echo "got:$line as $USER"; echo oops >&2; exit 3`)

	client, err := srv.dial("pipesh", "pipesh")
	require.NoError(t, err)
	defer client.Close()

	session, err := client.NewSession()
	require.NoError(t, err)
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdin = strings.NewReader("hello\n")
	session.Stdout = &stdout
	session.Stderr = &stderr

	require.NoError(t, session.Shell())
	err = session.Wait()

	var exitErr *gossh.ExitError
	require.True(t, errors.As(err, &exitErr), "got %v", err)
	assert.Equal(t, 3, exitErr.ExitStatus())
	assert.Equal(t, "got:hello as pipesh\n", stdout.String())
	assert.Equal(t, "oops\n", stderr.String())

	assert.Eventually(t, func() bool {
		recordings := srv.recordings(t)
		if len(recordings) != 1 {
			return false
		}
		data, err := os.ReadFile(recordings[0])
		return err == nil && strings.Contains(string(data), "got:hello")
	}, 5*time.Second, 10*time.Millisecond)

	events := srv.events.events(t)
	require.Len(t, events, 2)
	assert.Equal(t, logger.EventSSHLogin, events[0][logger.FieldEvent])
	assert.Equal(t, "pipesh", events[0]["user"])
	assert.Equal(t, logger.EventSSHSessionEnd, events[1][logger.FieldEvent])
	assert.Equal(t, float64(3), events[1][logger.FieldStatus])
}

func TestServerRejectsExec(t *testing.T) {
	srv := newTestServer(t, "true")

	client, err := srv.dial("pipesh", "pipesh")
	require.NoError(t, err)
	defer client.Close()

	session, err := client.NewSession()
	require.NoError(t, err)
	defer session.Close()

	var stderr bytes.Buffer
	session.Stderr = &stderr
	err = session.Run("ls")

	var exitErr *gossh.ExitError
	require.True(t, errors.As(err, &exitErr), "got %v", err)
	assert.Equal(t, 1, exitErr.ExitStatus())
	assert.Contains(t, stderr.String(), "only interactive sessions")
}

func TestServerPtySession(t *testing.T) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		t.Skipf("no pty available: %v", err)
	}
	ptmx.Close()
	tty.Close()

	srv := newTestServer(t, `stty size; echo "term=$TERM"`)

	client, err := srv.dial("pipesh", "pipesh")
	require.NoError(t, err)
	defer client.Close()

	session, err := client.NewSession()
	require.NoError(t, err)
	defer session.Close()

	require.NoError(t, session.RequestPty("xterm", 40, 100, gossh.TerminalModes{}))

	var stdout bytes.Buffer
	session.Stdout = &stdout
	require.NoError(t, session.Shell())
	require.NoError(t, session.Wait())

	assert.Contains(t, stdout.String(), "40 100")
	assert.Contains(t, stdout.String(), "term=xterm")
}
