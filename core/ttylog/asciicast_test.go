package ttylog

import (
	"bytes"
	"io"
	"io/ioutil"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeConversions(t *testing.T) {
	cases := map[string]struct {
		microseconds int64
		seconds      float64
	}{
		"precision": {
			microseconds: 1,
			seconds:      1e-6,
		},
		"negative": {
			microseconds: -631119539e6,
			seconds:      -631119539,
		},
		"positive": {
			microseconds: 631119539e6,
			seconds:      631119539,
		},
		"bigprecise": {
			microseconds: 123456789987654,
			seconds:      123456789.987654,
		},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			s2m := secondsToMicroseconds(tc.seconds)
			m2s := microsecondsToSeconds(tc.microseconds)

			// Only allow delta to be to the NS
			assert.InDelta(t, m2s, tc.seconds, float64(time.Nanosecond)/float64(time.Second))
			assert.Equal(t, s2m, tc.microseconds)
		})
	}
}

func TestAsciicastRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	sink := NewAsciicastLogSink(buf, 100, 30, "test session")

	entries := []*Entry{
		{TimestampMicros: 1000000, Fd: FD_STDOUT, Data: []byte("$ ")},
		{TimestampMicros: 1500000, Fd: FD_STDIN, Data: []byte("ls\r")},
		{TimestampMicros: 2000000, Fd: FD_STDERR, Data: []byte("oops\r\n")},
	}
	for _, e := range entries {
		require.NoError(t, sink(e))
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], `"version":2`)
	assert.Contains(t, lines[0], `"width":100`)
	assert.Contains(t, lines[0], `"title":"test session"`)
	assert.Equal(t, `[0,"o","$ "]`, lines[1])
	assert.Equal(t, `[0.5,"i","ls\r"]`, lines[2])

	var got []*Entry
	require.NoError(t, Replay(NewAsciicastLogSource(buf), func(e *Entry) error {
		got = append(got, e)
		return nil
	}))

	require.Len(t, got, 3)
	assert.Equal(t, &Entry{TimestampMicros: 0, Fd: FD_STDOUT, Data: []byte("$ ")}, got[0])
	assert.Equal(t, &Entry{TimestampMicros: 500000, Fd: FD_STDIN, Data: []byte("ls\r")}, got[1])
	// Asciicast has no stderr, it's folded into stdout.
	assert.Equal(t, FD_STDOUT, got[2].Fd)
}

func TestAsciicastSourceSkipsUnknown(t *testing.T) {
	input := "{\"version\": 2}\n\n[0.1, \"m\", \"marker\"]\n[0.2, \"o\", \"hi\"]\n"

	var out bytes.Buffer
	require.NoError(t, Replay(NewAsciicastLogSource(strings.NewReader(input)), NewClientOutput(&out)))
	assert.Equal(t, "hi", out.String())
}

func TestAsciicastSourceMalformed(t *testing.T) {
	input := "{\"version\": 2}\n[0.1, \"o\"]\n"

	err := Replay(NewAsciicastLogSource(strings.NewReader(input)), NewClientOutput(ioutil.Discard))
	assert.Error(t, err)
}

func TestRecorder(t *testing.T) {
	var got []*Entry
	recorder := NewRecorder(func(e *Entry) error {
		got = append(got, e)
		return nil
	})
	recorder.now = func() time.Time { return time.UnixMicro(42) }

	var terminal bytes.Buffer
	stdout := recorder.Writer(FD_STDOUT, &terminal)
	stdin := recorder.Reader(strings.NewReader("echo hi\n"))

	_, err := io.WriteString(stdout, "$ ")
	require.NoError(t, err)
	typed, err := ioutil.ReadAll(stdin)
	require.NoError(t, err)

	assert.Equal(t, "echo hi\n", string(typed))
	assert.Equal(t, "$ ", terminal.String())
	require.Len(t, got, 2)
	assert.Equal(t, &Entry{TimestampMicros: 42, Fd: FD_STDOUT, Data: []byte("$ ")}, got[0])
	assert.Equal(t, &Entry{TimestampMicros: 42, Fd: FD_STDIN, Data: []byte("echo hi\n")}, got[1])
}

func TestClientOutputSkipsStdin(t *testing.T) {
	var out bytes.Buffer
	sink := NewClientOutput(&out)

	require.NoError(t, sink(&Entry{Fd: FD_STDIN, Data: []byte("typed")}))
	require.NoError(t, sink(&Entry{Fd: FD_STDOUT, Data: []byte("shown")}))
	assert.Equal(t, "shown", out.String())
}
