// Package ferrors defines the tagged error kinds a task entry can report.
//
// The setup stages in internal/task (client, prefetch, path, puller,
// pusher) wrap whatever the underlying collaborator returned in one of
// these kinds before publishing it on the task's event stream, and the
// engines report pull and write failures with these kinds, so callers can
// errors.As a specific kind off a failure event without string-matching
// messages. An engine that exhausts its retry attempts reports a plain
// wrapped error instead.
package ferrors

import "fmt"

// ClientBuildError is returned when the HTTP client for a task could not
// be constructed (bad proxy URL, invalid TLS configuration, etc).
type ClientBuildError struct{ Err error }

func (e *ClientBuildError) Error() string { return fmt.Sprintf("build http client: %v", e.Err) }
func (e *ClientBuildError) Unwrap() error { return e.Err }

// PrefetchError is returned when the initial probe request failed.
type PrefetchError struct{ Err error }

func (e *PrefetchError) Error() string { return fmt.Sprintf("prefetch: %v", e.Err) }
func (e *PrefetchError) Unwrap() error { return e.Err }

// NoSameFile is returned when a re-run's prefetch resolves to a different
// file identity than a prior run of the same task recorded.
type NoSameFile struct {
	Previous, Current string
}

func (e *NoSameFile) Error() string {
	return fmt.Sprintf("server resource changed: had file id %q, now %q", e.Previous, e.Current)
}

// PathError is returned when the destination path could not be resolved
// or allocated.
type PathError struct{ Err error }

func (e *PathError) Error() string { return fmt.Sprintf("resolve path: %v", e.Err) }
func (e *PathError) Unwrap() error { return e.Err }

// PullerBuildError is returned when a puller clone/rebuild failed.
type PullerBuildError struct{ Err error }

func (e *PullerBuildError) Error() string { return fmt.Sprintf("build puller: %v", e.Err) }
func (e *PullerBuildError) Unwrap() error { return e.Err }

// PusherOpenError is returned when the destination file could not be
// opened or locked for writing.
type PusherOpenError struct{ Err error }

func (e *PusherOpenError) Error() string { return fmt.Sprintf("open destination: %v", e.Err) }
func (e *PusherOpenError) Unwrap() error { return e.Err }

// TransientPullError is a pull failure the engine will retry (network
// blip, timeout, 5xx).
type TransientPullError struct{ Err error }

func (e *TransientPullError) Error() string { return fmt.Sprintf("transient pull error: %v", e.Err) }
func (e *TransientPullError) Unwrap() error { return e.Err }

// PermanentPullError is a pull failure the engine will not retry (4xx,
// unsupported range response, etc).
type PermanentPullError struct{ Err error }

func (e *PermanentPullError) Error() string { return fmt.Sprintf("permanent pull error: %v", e.Err) }
func (e *PermanentPullError) Unwrap() error { return e.Err }

// WriteError is returned when a write to the destination file failed.
type WriteError struct{ Err error }

func (e *WriteError) Error() string { return fmt.Sprintf("write: %v", e.Err) }
func (e *WriteError) Unwrap() error { return e.Err }

// Aborted is returned when a task's context was cancelled by an explicit
// stop/abort rather than by any failure.
type Aborted struct{}

func (e *Aborted) Error() string { return "aborted" }

// MissingField is returned by config resolution if a required field has
// no value after inheriting from both the per-task override and the
// global config and the built-in defaults. Given the default table in
// internal/config, every field always resolves, so this kind exists for
// completeness rather than as something callers should expect to see.
type MissingField struct{ Field string }

func (e *MissingField) Error() string { return fmt.Sprintf("missing required field: %s", e.Field) }
