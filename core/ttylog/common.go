package ttylog

import (
	"io"
	"log"
	"sync"
	"time"
)

// FD identifies the stream an entry was captured from.
type FD int

const (
	FD_STDIN FD = iota
	FD_STDOUT
	FD_STDERR
)

// Entry is a single captured terminal event.
type Entry struct {
	TimestampMicros int64
	Fd              FD
	Data            []byte
}

// LogSink receives log events.
type LogSink func(e *Entry) error

// LogSource adapts log readers.
type LogSource interface {
	// Next fetches the next available log entry. It reutrns io.EOF if the source
	// has no more log entries.
	Next() (*Entry, error)
}

// NewRealTimePlayback plays back the results in real-time.
// If maxSleep > 0, it's used as the maximum duration to pause.
func NewRealTimePlayback(maxSleep time.Duration, next LogSink) LogSink {
	var once sync.Once
	var prevTimeMicros int64

	return func(logEntry *Entry) error {
		once.Do(func() {
			prevTimeMicros = logEntry.TimestampMicros
		})

		delta := logEntry.TimestampMicros - prevTimeMicros
		prevTimeMicros = logEntry.TimestampMicros

		if maxSleep > 0 {
			sleepDuration := time.Duration(delta) * time.Microsecond
			if sleepDuration > maxSleep {
				sleepDuration = maxSleep
			}
			time.Sleep(sleepDuration)
		}

		return next(logEntry)
	}
}

// NewClientOutput writes stdout and stderr to the given writer
func NewClientOutput(w io.Writer) LogSink {
	return func(logEntry *Entry) error {
		if logEntry.Fd == FD_STDIN {
			return nil
		}
		_, err := w.Write(logEntry.Data)
		return err
	}
}

// Replay reads a stream of events to a callback.
func Replay(recording LogSource, callback LogSink) (err error) {
	for {
		logEntry, err := recording.Next()
		switch {
		case err == io.EOF:
			return nil
		case err != nil:
			return err
		}

		if err := callback(logEntry); err != nil {
			return err
		}
	}
}

// Recorder tees the streams of a terminal session into a LogSink.
// It's safe to use its reader and writers from different goroutines.
type Recorder struct {
	mutex  sync.Mutex
	output LogSink
	now    func() time.Time
}

// NewRecorder creates a recorder that forwards all events to output.
func NewRecorder(output LogSink) *Recorder {
	return &Recorder{
		output: output,
		now:    time.Now,
	}
}

func (r *Recorder) record(fd FD, data []byte) {
	if len(data) == 0 {
		return
	}

	entry := &Entry{
		TimestampMicros: r.now().UnixMicro(),
		Fd:              fd,
		Data:            append([]byte(nil), data...),
	}

	r.mutex.Lock()
	err := r.output(entry)
	r.mutex.Unlock()
	if err != nil {
		log.Print(err)
	}
}

// Reader records everything read from wrapped as FD_STDIN.
func (r *Recorder) Reader(wrapped io.Reader) io.Reader {
	return &recorderReader{r: r, wrapped: wrapped}
}

// Writer records everything successfully written to wrapped as fd.
func (r *Recorder) Writer(fd FD, wrapped io.Writer) io.Writer {
	return &recorderWriter{r: r, fd: fd, wrapped: wrapped}
}

type recorderReader struct {
	r       *Recorder
	wrapped io.Reader
}

var _ io.Reader = (*recorderReader)(nil)

func (rc *recorderReader) Read(p []byte) (int, error) {
	n, err := rc.wrapped.Read(p)
	rc.r.record(FD_STDIN, p[:n])
	return n, err
}

type recorderWriter struct {
	r       *Recorder
	fd      FD
	wrapped io.Writer
}

var _ io.Writer = (*recorderWriter)(nil)

func (rc *recorderWriter) Write(p []byte) (int, error) {
	n, err := rc.wrapped.Write(p)
	rc.r.record(rc.fd, p[:n])
	return n, err
}
