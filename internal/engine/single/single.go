// Package single implements the single-stream engine (C6): used when
// the origin server does not support byte ranges, it pulls the whole
// resource over one connection and writes it sequentially, retrying a
// transient failure from the last acknowledged write offset.
//
// Grounded directly on
// _examples/other_examples/6c4de266_teal33t-Surge__internal-engine-single-downloader.go.go
// for the pull→push wiring, retargeted onto this repository's shared
// Puller/FilePusher/events contracts, and on download_single in
// _examples/original_source/src/downloader/entry.rs for the retry-gap
// loop the teacher's own SingleDownloader never implemented.
package single

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fastdown/fastdown/internal/engine/events"
	"github.com/fastdown/fastdown/internal/ferrors"
	"github.com/fastdown/fastdown/internal/pusher"
	"github.com/fastdown/fastdown/internal/transport"
)

// maxAttempts bounds how many pulls Run makes in total (the first attempt
// plus retries after transient failures) before giving up and publishing
// an error that wraps the last failure.
const maxAttempts = 5

// Options configures a single-stream run.
type Options struct {
	RetryGap time.Duration
}

// Run pulls the whole resource sequentially through puller and writes it
// through fp, publishing a Connected event once, Progress events as
// bytes land, and a terminal Done/Error event. On a transient transport
// error it waits opts.RetryGap and retries from the last acknowledged
// write offset if the server honors a resume Range request on the same
// URL (see transport.Puller.SeqPull), or restarts from offset zero
// otherwise. A permanent error or context cancellation ends the run
// immediately; cancellation is reported to the caller as *ferrors.Aborted
// so internal/task can tell it apart from a real failure.
func Run(ctx context.Context, puller *transport.Puller, fp *pusher.FilePusher, opts Options, pub func(events.Event)) error {
	w := &pushWriter{fp: fp, pub: pub}
	pub(events.Event{Kind: events.KindConnected})

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			pub(events.Event{Kind: events.KindRetry, Err: lastErr})
			select {
			case <-ctx.Done():
				return &ferrors.Aborted{}
			case <-time.After(opts.RetryGap):
			}
		}

		err := puller.SeqPull(ctx, w, w.offset)
		if err == nil {
			pub(events.Event{Kind: events.KindDone})
			return nil
		}

		if ctx.Err() != nil {
			return &ferrors.Aborted{}
		}

		var perm *ferrors.PermanentPullError
		if errors.As(err, &perm) {
			pub(events.Event{Kind: events.KindError, Err: err})
			return err
		}

		if errors.Is(err, transport.ErrRangeNotHonored) {
			w.offset = 0
		}
		lastErr = err
	}

	finalErr := fmt.Errorf("exceeded retry attempts for single-stream download: %w", lastErr)
	pub(events.Event{Kind: events.KindError, Err: finalErr})
	return finalErr
}

// pushWriter adapts FilePusher.Push (positional writes) to io.Writer
// (sequential writes), tracking the current offset and publishing a
// KindProgress event for every chunk handed off. offset survives across
// retries so a resumed pull picks up exactly where the last one stopped.
type pushWriter struct {
	fp     *pusher.FilePusher
	pub    func(events.Event)
	offset int64
}

func (w *pushWriter) Write(p []byte) (int, error) {
	if err := w.fp.Push(w.offset, p); err != nil {
		return 0, err
	}
	start := w.offset
	w.offset += int64(len(p))
	w.pub(events.Event{Kind: events.KindProgress, ProgressStart: start, ProgressEnd: w.offset})
	return len(p), nil
}
