package transport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/vfaronov/httpheader"

	"github.com/fastdown/fastdown/internal/ferrors"
	"github.com/fastdown/fastdown/internal/pathalloc"
)

// UrlInfo is the resolved metadata about a remote resource, captured
// once at prefetch time and reused for the lifetime of a task.
type UrlInfo struct {
	FileID        string
	Size          int64
	SupportsRange bool
	Filename      string
	ContentType   string
	// FastDownload mirrors the Rust source's info.fast_download: true
	// when the server both supports byte ranges and reported a size, so
	// the multi-range engine can be used.
	FastDownload bool
}

// CapturedResponse is the live HTTP response prefetch's own fallback GET
// request received, handed onward (via NewPuller) so a task's first pull
// can consume it directly instead of paying for a second, duplicate
// request against the same resource — the behavior §4.4 calls for.
// Peek holds whatever bytes were already read off the body for filename
// sniffing before the rest is handed to the puller. Start is the byte
// offset the response body begins at; prefetch only ever probes from the
// start of the resource, so this is always 0.
type CapturedResponse struct {
	Resp  *http.Response
	Peek  []byte
	Start int64
}

// Close releases the underlying response body. Safe to call on a nil
// receiver so callers don't need to nil-check before an early return.
func (c *CapturedResponse) Close() error {
	if c == nil || c.Resp == nil {
		return nil
	}
	return c.Resp.Body.Close()
}

const (
	probeTimeout = 15 * time.Second
	probeRetries = 3
)

// Prefetch discovers a remote resource's size, range support, identity,
// and filename with a conditional HEAD-or-GET the way §6 describes: HEAD
// is tried first since it carries no response body to manage or discard;
// when HEAD doesn't yield a usable Content-Length (the method is
// rejected, or the server simply omits the header on HEAD), Prefetch
// falls back to a GET from the start of the resource and captures that
// response so the caller can avoid a second request for the first pull.
func Prefetch(ctx context.Context, client *http.Client, rawurl, filenameHint string) (*UrlInfo, *CapturedResponse, error) {
	if info, err := prefetchHead(ctx, client, rawurl, filenameHint); err == nil {
		return info, nil, nil
	}
	return prefetchGet(ctx, client, rawurl, filenameHint)
}

func prefetchHead(ctx context.Context, client *http.Client, rawurl, filenameHint string) (*UrlInfo, error) {
	resp, err := doProbe(ctx, client, http.MethodHead, rawurl, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HEAD returned status %d", resp.StatusCode)
	}
	cl := resp.Header.Get("Content-Length")
	if cl == "" {
		return nil, fmt.Errorf("HEAD response carried no Content-Length")
	}
	size, err := strconv.ParseInt(cl, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("HEAD response carried an unparseable Content-Length: %w", err)
	}

	info := &UrlInfo{Size: size}
	info.SupportsRange = strings.EqualFold(resp.Header.Get("Accept-Ranges"), "bytes")
	info.FastDownload = info.SupportsRange && info.Size > 0
	info.ContentType = resp.Header.Get("Content-Type")
	info.FileID = fileID(resp)
	info.Filename = filenameHint
	if info.Filename == "" {
		info.Filename = filenameFromHeaders(rawurl, resp, nil)
	}
	return info, nil
}

// prefetchGet is the fallback path when HEAD didn't pan out: a ranged GET
// from the start of the resource, both to discover the same metadata HEAD
// would have and to capture a live response the first pull can consume.
func prefetchGet(ctx context.Context, client *http.Client, rawurl, filenameHint string) (*UrlInfo, *CapturedResponse, error) {
	resp, err := doProbe(ctx, client, http.MethodGet, rawurl, "bytes=0-")
	if err != nil {
		return nil, nil, &ferrors.PrefetchError{Err: err}
	}

	info := &UrlInfo{}
	switch resp.StatusCode {
	case http.StatusPartialContent:
		info.SupportsRange = true
		if cr := resp.Header.Get("Content-Range"); cr != "" {
			if idx := strings.LastIndex(cr, "/"); idx != -1 {
				sizeStr := cr[idx+1:]
				if sizeStr != "*" {
					info.Size, _ = strconv.ParseInt(sizeStr, 10, 64)
				}
			}
		}
	case http.StatusOK:
		info.SupportsRange = false
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			info.Size, _ = strconv.ParseInt(cl, 10, 64)
		}
	default:
		resp.Body.Close()
		return nil, nil, &ferrors.PrefetchError{Err: fmt.Errorf("unexpected probe status: %d", resp.StatusCode)}
	}

	info.FastDownload = info.SupportsRange && info.Size > 0
	info.ContentType = resp.Header.Get("Content-Type")
	info.FileID = fileID(resp)

	peek := make([]byte, 512)
	n, _ := io.ReadFull(resp.Body, peek)
	peek = peek[:n]

	info.Filename = filenameHint
	if info.Filename == "" {
		info.Filename = filenameFromHeaders(rawurl, resp, peek)
	}

	return info, &CapturedResponse{Resp: resp, Peek: peek, Start: 0}, nil
}

func doProbe(ctx context.Context, client *http.Client, method, rawurl, rangeHeader string) (*http.Response, error) {
	var resp *http.Response
	var err error
	for attempt := 0; attempt < probeRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Second):
			}
		}

		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		req, reqErr := http.NewRequestWithContext(probeCtx, method, rawurl, nil)
		if reqErr != nil {
			cancel()
			return nil, reqErr
		}
		if rangeHeader != "" {
			req.Header.Set("Range", rangeHeader)
		}
		req.Header.Set("User-Agent", DefaultUserAgent)

		resp, err = client.Do(req)
		cancel()
		if err == nil {
			return resp, nil
		}
	}
	return nil, err
}

// fileID hashes ETag|Last-Modified|size into a short opaque identity
// used to detect that a re-run's URL now points at different content
// than a prior run saw.
func fileID(resp *http.Response) string {
	etag := resp.Header.Get("ETag")
	lastMod := resp.Header.Get("Last-Modified")
	size := resp.Header.Get("Content-Range")
	if size == "" {
		size = resp.Header.Get("Content-Length")
	}
	sum := sha256.Sum256([]byte(etag + "|" + lastMod + "|" + size))
	return hex.EncodeToString(sum[:])[:32]
}

func filenameFromHeaders(rawurl string, resp *http.Response, peek []byte) string {
	if _, name, err := httpheader.ContentDisposition(resp.Header); err == nil && name != "" {
		return pathalloc.Sanitize(name)
	}

	if u, err := parseURLQuery(rawurl); err == nil {
		if name := u.Get("filename"); name != "" {
			return pathalloc.Sanitize(name)
		}
		if name := u.Get("file"); name != "" {
			return pathalloc.Sanitize(name)
		}
	}

	if len(peek) > 0 {
		if kind, _ := filetype.Match(peek); kind != filetype.Unknown {
			if name := pathFilename(rawurl); name != "" && name != "." && name != "/" {
				if hasNoExt(name) {
					return name + "." + kind.Extension
				}
				return name
			}
			return "download." + kind.Extension
		}
	}

	if name := pathFilename(rawurl); name != "" && name != "." && name != "/" {
		return pathalloc.Sanitize(name)
	}
	return "download.bin"
}
