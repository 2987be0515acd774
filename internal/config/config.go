// Package config implements the three-way configuration inheritance
// described for the download manager: a per-task override inherits from
// a global config, which inherits from a fixed set of defaults. Every
// field is optional until resolution, at which point every field is
// concrete.
//
// This mirrors the teacher's nil-safe getter pattern on RuntimeConfig
// (internal/engine/types) translated from that single flat struct into
// the explicit inherit/resolve pair the Rust source's generated
// DownloadConfig::inherit/default provide via its #[config(...)] derive.
package config

import (
	"time"

	"github.com/fastdown/fastdown/internal/ferrors"
)

func missing(field string) error { return &ferrors.MissingField{Field: field} }

// Header is one ordered name/value pair. Config keeps headers as a slice
// rather than a map so that caller-supplied order survives into the
// outgoing request.
type Header struct {
	Name  string
	Value string
}

// Config is the optional-field form: every field is a pointer (or a nil
// slice for Headers) so that "unset" is distinguishable from "set to the
// zero value".
type Config struct {
	Threads                *int
	Proxy                  *string
	Headers                []Header
	AcceptInvalidCerts     *bool
	AcceptInvalidHostnames *bool
	Multiplexing           *bool
	SaveDir                *string
	WriteQueueCap          *int
	WriteBufferSize        *int
	RetryGap               *time.Duration
	MinChunkSize           *int64
}

// EffectiveConfig is the resolved, fully-concrete form returned by
// Resolve. Every field is safe to read directly.
type EffectiveConfig struct {
	Threads                int
	Proxy                  string
	Headers                []Header
	AcceptInvalidCerts     bool
	AcceptInvalidHostnames bool
	Multiplexing           bool
	SaveDir                string
	WriteQueueCap          int
	WriteBufferSize        int
	RetryGap               time.Duration
	MinChunkSize           int64
}

// Defaults returns the built-in fallback values, ported field-for-field
// from the #[config(default = ...)] attributes on the Rust source's
// DownloadConfig (_examples/original_source/src/downloader/config.rs).
func Defaults() Config {
	threads := 32
	proxy := ""
	accInvCerts := false
	accInvHosts := false
	mux := false
	saveDir := "."
	writeQueueCap := 1024
	writeBufSize := 8 * 1024 * 1024
	retryGap := 500 * time.Millisecond
	minChunk := int64(1024 * 1024)
	return Config{
		Threads:                &threads,
		Proxy:                  &proxy,
		Headers:                nil,
		AcceptInvalidCerts:     &accInvCerts,
		AcceptInvalidHostnames: &accInvHosts,
		Multiplexing:           &mux,
		SaveDir:                &saveDir,
		WriteQueueCap:          &writeQueueCap,
		WriteBufferSize:        &writeBufSize,
		RetryGap:               &retryGap,
		MinChunkSize:           &minChunk,
	}
}

// Inherit returns a new Config with every field of c that is unset
// replaced by the corresponding field of parent. Fields already set on c
// are left untouched: per-field, first-set-wins.
func (c Config) Inherit(parent Config) Config {
	out := c
	if out.Threads == nil {
		out.Threads = parent.Threads
	}
	if out.Proxy == nil {
		out.Proxy = parent.Proxy
	}
	if out.Headers == nil {
		out.Headers = parent.Headers
	}
	if out.AcceptInvalidCerts == nil {
		out.AcceptInvalidCerts = parent.AcceptInvalidCerts
	}
	if out.AcceptInvalidHostnames == nil {
		out.AcceptInvalidHostnames = parent.AcceptInvalidHostnames
	}
	if out.Multiplexing == nil {
		out.Multiplexing = parent.Multiplexing
	}
	if out.SaveDir == nil {
		out.SaveDir = parent.SaveDir
	}
	if out.WriteQueueCap == nil {
		out.WriteQueueCap = parent.WriteQueueCap
	}
	if out.WriteBufferSize == nil {
		out.WriteBufferSize = parent.WriteBufferSize
	}
	if out.RetryGap == nil {
		out.RetryGap = parent.RetryGap
	}
	if out.MinChunkSize == nil {
		out.MinChunkSize = parent.MinChunkSize
	}
	return out
}

// Resolve computes task.Inherit(global).Inherit(Defaults()) and converts
// the result to its fully-concrete form. Because Defaults supplies every
// field, this never fails in practice; the error return exists so a
// caller that constructs a Config bypassing Defaults (e.g. in a test)
// still gets a clear failure instead of a zero value.
func Resolve(task, global Config) (EffectiveConfig, error) {
	merged := task.Inherit(global).Inherit(Defaults())

	var out EffectiveConfig
	switch {
	case merged.Threads == nil:
		return out, missing("threads")
	case merged.Proxy == nil:
		return out, missing("proxy")
	case merged.AcceptInvalidCerts == nil:
		return out, missing("accept_invalid_certs")
	case merged.AcceptInvalidHostnames == nil:
		return out, missing("accept_invalid_hostnames")
	case merged.Multiplexing == nil:
		return out, missing("multiplexing")
	case merged.SaveDir == nil:
		return out, missing("save_dir")
	case merged.WriteQueueCap == nil:
		return out, missing("write_queue_cap")
	case merged.WriteBufferSize == nil:
		return out, missing("write_buffer_size")
	case merged.RetryGap == nil:
		return out, missing("retry_gap")
	case merged.MinChunkSize == nil:
		return out, missing("min_chunk_size")
	}

	out = EffectiveConfig{
		Threads:                *merged.Threads,
		Proxy:                  *merged.Proxy,
		Headers:                merged.Headers,
		AcceptInvalidCerts:     *merged.AcceptInvalidCerts,
		AcceptInvalidHostnames: *merged.AcceptInvalidHostnames,
		Multiplexing:           *merged.Multiplexing,
		SaveDir:                *merged.SaveDir,
		WriteQueueCap:          *merged.WriteQueueCap,
		WriteBufferSize:        *merged.WriteBufferSize,
		RetryGap:               *merged.RetryGap,
		MinChunkSize:           *merged.MinChunkSize,
	}
	return out, nil
}
