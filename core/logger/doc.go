// Package logger is a standardized event logging framework for shell sessions.
//
// Entries are protobuf Struct messages written as newline delimited JSON.
// Every entry carries the fields "event", "session_id" and
// "timestamp_micros"; the remaining fields depend on the event.
package logger
