// Package multi implements the multi-range engine (C7): split the
// outstanding byte ranges of a task across `concurrency` workers, retry
// a worker's unwritten suffix on transient failure, and rebalance queued
// work by splitting the largest remaining chunk when a worker goes idle.
//
// Grounded on the teacher's internal/engine/concurrent package
// (downloader.go's balancer goroutine, worker.go's retry/resume loop,
// task_queue.go's work-stealing queue, task.go's split-on-steal),
// retargeted from a flat whole-file chunk plan onto the gaps the
// progress set's Invert (internal/ranges) reports still need fetching,
// and from raw os.File/http.Client onto this repository's shared
// Puller/FilePusher/events contracts.
package multi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fastdown/fastdown/internal/engine/events"
	"github.com/fastdown/fastdown/internal/ferrors"
	"github.com/fastdown/fastdown/internal/pusher"
	"github.com/fastdown/fastdown/internal/transport"
)

const (
	maxAttemptsPerChunk = 5
	balanceInterval      = 500 * time.Millisecond
)

// Options configures a multi-range run.
type Options struct {
	Concurrency  int
	MinChunkSize int64
	RetryGap     time.Duration
}

// Run downloads every gap in gaps concurrently across opts.Concurrency
// workers, writing through fp and publishing progress/terminal events on
// pub. It returns once every gap has been fully written or a permanent
// error (or context cancellation) stops the run.
func Run(ctx context.Context, puller *transport.Puller, fp *pusher.FilePusher, gaps []Gap, opts Options, pub func(events.Event)) error {
	chunks := BuildChunks(gaps, opts.Concurrency, opts.MinChunkSize)
	if len(chunks) == 0 {
		pub(events.Event{Kind: events.KindDone})
		return nil
	}

	queue := newChunkQueue()
	queue.PushMultiple(chunks)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var pubMu sync.Mutex
	safePub := func(ev events.Event) {
		pubMu.Lock()
		defer pubMu.Unlock()
		pub(ev)
	}

	g, gCtx := errgroup.WithContext(runCtx)

	stopBalancer := make(chan struct{})
	var balancerWG sync.WaitGroup
	balancerWG.Add(1)
	go func() {
		defer balancerWG.Done()
		runBalancer(stopBalancer, queue, opts.Concurrency, opts.MinChunkSize)
	}()

	for i := 0; i < opts.Concurrency; i++ {
		puller := puller.Clone()
		g.Go(func() error {
			return worker(gCtx, puller, fp, queue, opts, safePub)
		})
	}

	err := g.Wait()
	close(stopBalancer)
	balancerWG.Wait()

	if err != nil {
		safePub(events.Event{Kind: events.KindError, Err: err})
		return err
	}
	safePub(events.Event{Kind: events.KindDone})
	return nil
}

func runBalancer(stop <-chan struct{}, queue *chunkQueue, concurrency int, minChunkSize int64) {
	ticker := time.NewTicker(balanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if queue.IdleWorkers() > 0 && queue.Len() < concurrency {
				queue.SplitLargestIfNeeded(minChunkSize)
			}
		}
	}
}

func worker(ctx context.Context, puller *transport.Puller, fp *pusher.FilePusher, queue *chunkQueue, opts Options, pub func(events.Event)) error {
	for {
		chunk, ok := queue.Pop()
		if !ok {
			return nil
		}
		if err := pullChunk(ctx, puller, fp, chunk, opts, pub); err != nil {
			// Stop handing out further work to sibling workers; one
			// permanent failure or abort ends the whole run.
			queue.Close()
			return err
		}
		queue.Complete()
	}
}

// pullChunk pulls chunk, retrying only the unwritten suffix on transient
// failure: the teacher's worker.go resumes with
// `task = types.Task{Offset: current, Length: ...}` after a failed
// attempt instead of re-requesting bytes already durably written.
func pullChunk(ctx context.Context, puller *transport.Puller, fp *pusher.FilePusher, chunk Chunk, opts Options, pub func(events.Event)) error {
	current := chunk.Start
	for attempt := 0; attempt < maxAttemptsPerChunk; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return &ferrors.Aborted{}
			case <-time.After(opts.RetryGap):
			}
		}

		w := &chunkWriter{fp: fp, pub: pub, offset: current}
		err := puller.RandPull(ctx, w, current, chunk.End)
		current = w.offset
		if err == nil {
			return nil
		}

		if ctx.Err() != nil {
			return &ferrors.Aborted{}
		}

		var perm *ferrors.PermanentPullError
		if asPermanent(err, &perm) {
			return err
		}
		// transient: loop and retry from `current`
	}
	return fmt.Errorf("exceeded retry attempts for range [%d,%d)", current, chunk.End)
}

func asPermanent(err error, target **ferrors.PermanentPullError) bool {
	p, ok := err.(*ferrors.PermanentPullError)
	if ok {
		*target = p
	}
	return ok
}

// chunkWriter adapts FilePusher.Push to io.Writer for one chunk pull,
// tracking how much of the chunk has actually landed on disk so a retry
// after a partial failure resumes from the unwritten suffix rather than
// re-fetching bytes already durable.
type chunkWriter struct {
	fp     *pusher.FilePusher
	pub    func(events.Event)
	offset int64
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	if err := w.fp.Push(w.offset, p); err != nil {
		return 0, err
	}
	start := w.offset
	w.offset += int64(len(p))
	w.pub(events.Event{Kind: events.KindProgress, ProgressStart: start, ProgressEnd: w.offset})
	return len(p), nil
}
