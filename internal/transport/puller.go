package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/fastdown/fastdown/internal/config"
	"github.com/fastdown/fastdown/internal/ferrors"
)

// ErrRangeNotHonored indicates a resume request (Range: bytes=N-) came
// back as a plain 200 instead of a 206, meaning the server ignored the
// Range header and is sending the whole body again from the start — a
// retry can't resume past offset N and must restart from zero.
var ErrRangeNotHonored = errors.New("server did not honor resume range")

// capturedResponse is a live HTTP response consumed at most once, by
// whichever pull call asks for the byte range it actually covers
// (always starting at Start). Shared across Puller clones so whichever
// worker pulls first wins it.
type capturedResponse struct {
	resp  *http.Response
	peek  []byte
	start int64
}

func (c *capturedResponse) reader() io.Reader {
	if len(c.peek) == 0 {
		return c.resp.Body
	}
	return io.MultiReader(bytes.NewReader(c.peek), c.resp.Body)
}

func (c *capturedResponse) Close() error { return c.resp.Body.Close() }

// sharedCapture lets every clone of a Puller see the same at-most-once
// captured response: the first pull call whose start offset matches
// takes it; every other caller (and a mismatched offset) falls through
// to a fresh request.
type sharedCapture struct {
	mu   sync.Mutex
	resp *capturedResponse
}

func (s *sharedCapture) take(start int64) *capturedResponse {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resp == nil || s.resp.start != start {
		return nil
	}
	r := s.resp
	s.resp = nil
	return r
}

func (s *sharedCapture) discard() {
	if s == nil {
		return
	}
	s.mu.Lock()
	r := s.resp
	s.resp = nil
	s.mu.Unlock()
	if r != nil {
		r.Close()
	}
}

// Puller performs the actual byte transfer for a task, either a single
// byte range (RandPull, used by the multi-range engine) or the whole
// body sequentially (SeqPull, used by the single-stream engine). One
// type satisfies both capabilities, per Design Notes in SPEC_FULL.md
// rather than splitting them into two interfaces — mirroring
// FastDownPuller in the original Rust source implementing both
// RandPuller and SeqPuller.
type Puller struct {
	client   *http.Client
	url      string
	eff      config.EffectiveConfig
	captured *sharedCapture
}

// NewPuller builds a Puller from a resolved config, constructing a
// fresh *http.Client via NewClient. captured, if non-nil, is the
// response prefetch's own probe request already received; the first
// pull call whose requested range starts at captured.Start consumes it
// directly instead of issuing a duplicate request. Pass nil when there
// is nothing to hand off (e.g. prefetch resolved via HEAD).
func NewPuller(url string, eff config.EffectiveConfig, captured *CapturedResponse) (*Puller, error) {
	client, err := NewClient(eff)
	if err != nil {
		captured.Close()
		return nil, err
	}
	sc := &sharedCapture{}
	if captured != nil {
		sc.resp = &capturedResponse{resp: captured.Resp, peek: captured.Peek, start: captured.Start}
	}
	return &Puller{client: client, url: url, eff: eff, captured: sc}, nil
}

// Clone returns a Puller for the same URL/config. When multiplexing is
// disabled, it attempts to build an entirely fresh http.Client (and so a
// fresh connection pool) for the clone; if that succeeds, the clone is
// independent. If multiplexing is enabled, or if building a fresh client
// fails, the clone shares this Puller's client instead. This is a direct
// port of `impl Clone for FastDownPuller` in
// _examples/original_source/src/downloader/puller.rs. Every clone shares
// the same captured response, mirroring the Rust source's Arc-shared
// resp: whichever clone pulls first wins it.
func (p *Puller) Clone() *Puller {
	if !p.eff.Multiplexing {
		if fresh, err := NewClient(p.eff); err == nil {
			return &Puller{client: fresh, url: p.url, eff: p.eff, captured: p.captured}
		}
	}
	return &Puller{client: p.client, url: p.url, eff: p.eff, captured: p.captured}
}

// DiscardCaptured releases this Puller's captured prefetch response, if
// any, without consuming it. Callers use this when they hold a freshly
// built Puller but abandon it before ever pulling (e.g. a pusher.Open
// failure), so the captured response's body doesn't leak.
func (p *Puller) DiscardCaptured() {
	p.captured.discard()
}

func (p *Puller) newRequest(ctx context.Context) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", DefaultUserAgent)
	for _, h := range p.eff.Headers {
		req.Header.Set(h.Name, h.Value)
	}
	return req, nil
}

// RandPull fetches the half-open byte range [start,end) and copies it
// into w. If a captured prefetch response is still available and starts
// at exactly `start`, it is consumed instead of issuing a new request.
// Returns a *ferrors.PermanentPullError for any status other than 206
// below 500 (a plain 200 included, since it means the range was ignored),
// and a *ferrors.TransientPullError for a 5xx status, a network error, or
// a body that fails mid-copy.
func (p *Puller) RandPull(ctx context.Context, w io.Writer, start, end int64) error {
	if cr := p.captured.take(start); cr != nil {
		defer cr.Close()
		want := end - start
		n, err := io.Copy(w, io.LimitReader(cr.reader(), want))
		if err != nil {
			return &ferrors.TransientPullError{Err: err}
		}
		if n < want {
			return &ferrors.TransientPullError{Err: fmt.Errorf("captured prefetch response ended early")}
		}
		return nil
	}

	req, err := p.newRequest(ctx)
	if err != nil {
		return &ferrors.TransientPullError{Err: err}
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end-1))

	resp, err := p.client.Do(req)
	if err != nil {
		return &ferrors.TransientPullError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		if resp.StatusCode >= 500 {
			return &ferrors.TransientPullError{Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
		}
		return &ferrors.PermanentPullError{Err: fmt.Errorf("unexpected status %d for ranged request", resp.StatusCode)}
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return &ferrors.TransientPullError{Err: err}
	}
	return nil
}

// SeqPull fetches the resource sequentially starting at offset and
// copies it into w, used when the server does not support byte ranges
// (or range support is unconfirmed). offset is non-zero only on a retry
// resuming past bytes already durably written; if the server answers
// with a plain 200 instead of honoring the Range header, SeqPull returns
// an error wrapping ErrRangeNotHonored so the caller knows it must
// restart from zero. If a captured prefetch response is still available
// and offset is 0, it is consumed instead of issuing a new request.
func (p *Puller) SeqPull(ctx context.Context, w io.Writer, offset int64) error {
	if offset == 0 {
		if cr := p.captured.take(0); cr != nil {
			defer cr.Close()
			if _, err := io.Copy(w, cr.reader()); err != nil {
				return &ferrors.TransientPullError{Err: err}
			}
			return nil
		}
	}

	req, err := p.newRequest(ctx)
	if err != nil {
		return &ferrors.TransientPullError{Err: err}
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return &ferrors.TransientPullError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusPartialContent:
	case resp.StatusCode == http.StatusOK && offset == 0:
	case resp.StatusCode == http.StatusOK:
		return &ferrors.TransientPullError{Err: ErrRangeNotHonored}
	case resp.StatusCode >= 500:
		return &ferrors.TransientPullError{Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	default:
		return &ferrors.PermanentPullError{Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return &ferrors.TransientPullError{Err: err}
	}
	return nil
}
