package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ReadJSONLinesLog parses a newline delimited JSON log.
func ReadJSONLinesLog(r io.Reader, handler func(le *structpb.Struct)) error {
	decoder := json.NewDecoder(r)
	for decoder.More() {
		var rawEntry json.RawMessage
		if err := decoder.Decode(&rawEntry); err != nil {
			return err
		}

		var logEntry structpb.Struct
		if err := protojson.Unmarshal(rawEntry, &logEntry); err != nil {
			return err
		}

		handler(&logEntry)
	}
	return nil
}

func stringField(le *structpb.Struct, name string) string {
	return le.GetFields()[name].GetStringValue()
}

func numberField(le *structpb.Struct, name string) (float64, bool) {
	v, ok := le.GetFields()[name]
	if !ok {
		return 0, false
	}
	if _, isNumber := v.GetKind().(*structpb.Value_NumberValue); !isNumber {
		return 0, false
	}
	return v.GetNumberValue(), true
}

func argvField(le *structpb.Struct) []string {
	var out []string
	for _, v := range le.GetFields()[FieldArgv].GetListValue().GetValues() {
		out = append(out, v.GetStringValue())
	}
	return out
}

// Report holds statistics about the logged events.
type Report struct {
	LogEntries     int        `json:"log_entries"`
	Sessions       StrCounter `json:"sessions"`
	Events         StrCounter `json:"events"`
	InvalidEntries StrCounter `json:"unknown_log_entries,omitempty"`

	RunCommand    RunCommandReport    `json:"run_command_report"`
	Pipeline      PipelineReport      `json:"pipeline_report"`
	BackgroundJob BackgroundJobReport `json:"background_job_report"`
	InvalidInput  InvalidInputReport  `json:"invalid_input_report"`
}

// Update adds a log entry to the report.
func (r *Report) Update(le *structpb.Struct) {
	r.LogEntries++

	event := stringField(le, FieldEvent)
	r.Events.Increment(event)
	if id := stringField(le, FieldSessionID); id != "" {
		r.Sessions.Increment(id)
	}

	switch event {
	case EventRunCommand:
		r.RunCommand.update(le)
	case EventRunPipeline:
		r.Pipeline.update(le)
	case EventJobRegistered, EventJobReaped:
		r.BackgroundJob.update(event, le)
	case EventInvalidInput:
		r.InvalidInput.update(le)
	case EventSessionStart, EventSessionExit, EventChangeDir, EventFatal,
		EventSSHLogin, EventSSHSessionEnd:
		// Counted in Events only.
	default:
		r.InvalidEntries.Increment(event)
	}
}

// RunCommandReport summarizes single commands.
type RunCommandReport struct {
	// Name of the command
	CommandNames StrCounter `json:"command_names"`
	// Exit statuses of foreground commands.
	ExitStatuses StrCounter `json:"exit_statuses"`
	Background   int        `json:"background"`
}

func (r *RunCommandReport) update(le *structpb.Struct) {
	if argv := argvField(le); len(argv) > 0 {
		r.CommandNames.Increment(argv[0])
	}
	if le.GetFields()["background"].GetBoolValue() {
		r.Background++
		return
	}
	if status, ok := numberField(le, FieldStatus); ok {
		r.ExitStatuses.Increment(fmt.Sprintf("%d", int(status)))
	}
}

// PipelineReport summarizes pipelines.
type PipelineReport struct {
	Count  int        `json:"count"`
	Stages StrCounter `json:"stages"`
}

func (r *PipelineReport) update(le *structpb.Struct) {
	r.Count++
	if stages, ok := numberField(le, "stages"); ok {
		r.Stages.Increment(fmt.Sprintf("%d", int(stages)))
	}
}

// BackgroundJobReport summarizes background jobs.
type BackgroundJobReport struct {
	Registered int `json:"registered"`
	Reaped     int `json:"reaped"`
}

func (r *BackgroundJobReport) update(event string, le *structpb.Struct) {
	switch event {
	case EventJobRegistered:
		r.Registered++
	case EventJobReaped:
		r.Reaped++
	}
}

// InvalidInputReport summarizes rejected input lines.
type InvalidInputReport struct {
	Count int `json:"count"`
	// Lines counts the rejected lines by their first word.
	Lines StrCounter `json:"lines"`
}

func (r *InvalidInputReport) update(le *structpb.Struct) {
	r.Count++
	fields := strings.Fields(stringField(le, "line"))
	if len(fields) > 0 {
		r.Lines.Increment(fields[0])
	}
}

// StrCounter counts the number of strings seen.
type StrCounter struct {
	internal map[string]int
}

// Increment adds one to the given key.
func (s *StrCounter) Increment(toAdd string) {
	if s.internal == nil {
		s.internal = make(map[string]int)
	}

	s.internal[toAdd]++
}

// Get returns the count for key.
func (s *StrCounter) Get(key string) int {
	return s.internal[key]
}

// Keys returns the counted strings in sorted order.
func (s *StrCounter) Keys() []string {
	var out []string
	for k := range s.internal {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON implemnts custom JSON marshaler.
func (s StrCounter) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.internal)
}
