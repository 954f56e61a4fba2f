package logger

import (
	"fmt"
	"io"
	"math/rand"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Event names recorded by the shell.
const (
	EventSessionStart  = "session_start"
	EventSessionExit   = "session_exit"
	EventRunCommand    = "run_command"
	EventRunPipeline   = "run_pipeline"
	EventJobRegistered = "job_registered"
	EventJobReaped     = "job_reaped"
	EventInvalidInput  = "invalid_input"
	EventChangeDir     = "change_dir"
	EventFatal         = "fatal"
	EventSSHLogin      = "ssh_login"
	EventSSHSessionEnd = "ssh_session_end"
)

// Common field names.
const (
	FieldEvent     = "event"
	FieldSessionID = "session_id"
	FieldTimestamp = "timestamp_micros"
	FieldArgv      = "argv"
	FieldStatus    = "status"
	FieldPid       = "pid"
)

// Fields holds event specific values. Values must be acceptable to
// structpb.NewValue; use Strings for string slices.
type Fields map[string]interface{}

// Strings converts a string slice into a Fields value.
func Strings(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// Ints converts an int slice into a Fields value.
func Ints(values []int) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// LogRecorder is a callback that stores events in an external datastore.
type LogRecorder func(le *structpb.Struct) error

// Logger captures session events.
type Logger struct {
	Record LogRecorder
}

// NewJsonLinesLogRecorder creates a Logger that exports logs in newline
// delimited JSON object format.
func NewJsonLinesLogRecorder(w io.Writer) *Logger {
	return &Logger{
		Record: func(le *structpb.Struct) error {
			entry, err := protojson.Marshal(le)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(w, string(entry))
			return err
		},
	}
}

// NewNopLogger creates a Logger that discards every event.
func NewNopLogger() *Logger {
	return &Logger{
		Record: func(*structpb.Struct) error {
			return nil
		},
	}
}

func (l *Logger) recordEvent(sessionID, event string, fields Fields) error {
	values := make(map[string]interface{}, len(fields)+3)
	for k, v := range fields {
		values[k] = v
	}
	values[FieldEvent] = event
	values[FieldSessionID] = sessionID
	values[FieldTimestamp] = time.Now().UnixMicro()

	le, err := structpb.NewStruct(values)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", event, err)
	}
	return l.Record(le)
}

// NewSession creates a logger with attached session ID.
func (l *Logger) NewSession() *SessionLogger {
	return &SessionLogger{Logger: l, sessionID: fmt.Sprintf("%d", rand.Uint64())}
}

// Sessionless creates a logger with an empty session ID.
func (l *Logger) Sessionless() *SessionLogger {
	return &SessionLogger{Logger: l, sessionID: ""}
}

// SessionLogger logs messages with a shared session ID.
type SessionLogger struct {
	*Logger
	sessionID string
}

// SessionID is the identifier attached to every event.
func (l *SessionLogger) SessionID() string {
	return l.sessionID
}

// Record logs an event.
func (l *SessionLogger) Record(event string, fields Fields) error {
	return l.recordEvent(l.sessionID, event, fields)
}
