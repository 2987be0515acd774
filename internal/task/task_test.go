package task

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastdown/fastdown/internal/config"
	"github.com/fastdown/fastdown/internal/engine/events"
)

// rangedServer serves body from a fixed ETag, answering HEAD with the
// full size and Accept-Ranges so Prefetch resolves via HEAD alone, and
// GET with whatever byte range was requested (defaulting to the whole
// body when no Range header is present).
func rangedServer(body []byte, etag string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", etag)
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", itoa(len(body)))
			w.Header().Set("Accept-Ranges", "bytes")
			w.WriteHeader(http.StatusOK)
			return
		}

		start, end := int64(0), int64(len(body)-1)
		if rng := r.Header.Get("Range"); rng != "" {
			spec := strings.TrimPrefix(rng, "bytes=")
			parts := strings.SplitN(spec, "-", 2)
			start, _ = strconv.ParseInt(parts[0], 10, 64)
			if len(parts) > 1 && parts[1] != "" {
				end, _ = strconv.ParseInt(parts[1], 10, 64)
			}
		}
		w.Header().Set("Content-Range", "bytes "+itoa(int(start))+"-"+itoa(int(end))+"/"+itoa(len(body)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(body[start : end+1])
	}))
}

func TestRunDownloadsRangedResourceToSavedDir(t *testing.T) {
	body := []byte("hello from the origin server, this is the body")
	srv := rangedServer(body, `"v1"`)
	defer srv.Close()

	dir := t.TempDir()
	saveDir := dir
	cfg := config.Config{SaveDir: &saveDir}
	g := NewGid()
	tk := New(g, srv.URL+"/report.txt", cfg, nil)

	var sawDone bool
	var path string
	go func() {
		for {
			ev, ok := tk.Events().Next()
			if !ok {
				return
			}
			switch ev.Kind {
			case events.KindFilePath:
				path = ev.Path
			case events.KindDone:
				sawDone = true
				tk.Events().Close()
			case events.KindError, events.KindNoSameFile, events.KindPathError,
				events.KindClientBuildError, events.KindPullerBuildError, events.KindPusherOpenError:
				t.Errorf("unexpected failure event: kind=%v err=%v", ev.Kind, ev.Err)
				tk.Events().Close()
			}
		}
	}()

	err := tk.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, sawDone)
	assert.Equal(t, StateDone, tk.State())

	require.NotEmpty(t, path)
	data, err := os.ReadFile(filepath.Join(saveDir, filepath.Base(path)))
	require.NoError(t, err)
	assert.Equal(t, body, data)
}

func TestNoSameFileGuardOnFileIdentityDrift(t *testing.T) {
	body := []byte("0123456789")
	etag := `"v1"`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", etag)
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", itoa(len(body)))
			w.Header().Set("Accept-Ranges", "bytes")
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Range", "bytes 0-"+itoa(len(body)-1)+"/"+itoa(len(body)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(body)
	}))
	defer srv.Close()

	dir := t.TempDir()
	cfg := config.Config{SaveDir: &dir}
	tk := New(NewGid(), srv.URL+"/f.bin", cfg, nil)

	go drain(tk)
	_ = tk.Run(context.Background())

	etag = `"v2"`
	err := tk.Run(context.Background())
	require.Error(t, err)
}

// TestResumeOnlyFetchesOutstandingBytes exercises the headline resume
// invariant: stopping a task mid-download and re-running it must fetch
// only the bytes Invert(progress, size) still reports missing, and the
// file on disk must end up byte-identical to the full server body.
func TestResumeOnlyFetchesOutstandingBytes(t *testing.T) {
	body := make([]byte, 4096)
	for i := range body {
		body[i] = byte(i % 256)
	}
	const stallAt = 256

	var mu sync.Mutex
	var rangesSeen []string
	var savedPath string
	firstGETDone := make(chan struct{})
	var firstGETOnce sync.Once

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", itoa(len(body)))
			w.Header().Set("Accept-Ranges", "bytes")
			w.Header().Set("ETag", `"stable"`)
			w.WriteHeader(http.StatusOK)
			return
		}

		rng := r.Header.Get("Range")
		mu.Lock()
		rangesSeen = append(rangesSeen, rng)
		mu.Unlock()

		start, end := int64(0), int64(len(body)-1)
		if rng != "" {
			spec := strings.TrimPrefix(rng, "bytes=")
			parts := strings.SplitN(spec, "-", 2)
			start, _ = strconv.ParseInt(parts[0], 10, 64)
			if len(parts) > 1 && parts[1] != "" {
				end, _ = strconv.ParseInt(parts[1], 10, 64)
			}
		}
		w.Header().Set("Content-Range", "bytes "+itoa(int(start))+"-"+itoa(int(end))+"/"+itoa(len(body)))
		w.WriteHeader(http.StatusPartialContent)

		if start == 0 {
			flusher, _ := w.(http.Flusher)
			w.Write(body[:stallAt])
			if flusher != nil {
				flusher.Flush()
			}
			firstGETOnce.Do(func() { close(firstGETDone) })
			<-r.Context().Done()
			return
		}
		w.Write(body[start : end+1])
	}))
	defer srv.Close()

	dir := t.TempDir()
	threads := 1
	minChunk := int64(len(body))
	cfg := config.Config{SaveDir: &dir, Threads: &threads, MinChunkSize: &minChunk}
	tk := New(NewGid(), srv.URL+"/big.bin", cfg, nil)

	runCtx, cancel := context.WithCancel(context.Background())
	go func() {
		<-firstGETDone
		cancel()
	}()
	go drainCapturingPath(tk, &mu, &savedPath)

	err := tk.Run(runCtx)
	require.Error(t, err)
	require.Equal(t, StateAborted, tk.State())

	covered := tk.ProgressCovered()
	require.Greater(t, covered, int64(0))
	require.Less(t, covered, int64(len(body)))

	mu.Lock()
	rangesSeen = nil
	mu.Unlock()

	err = tk.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateDone, tk.State())

	mu.Lock()
	finalRanges := append([]string(nil), rangesSeen...)
	mu.Unlock()
	require.NotEmpty(t, finalRanges)
	for _, rng := range finalRanges {
		spec := strings.TrimPrefix(rng, "bytes=")
		parts := strings.SplitN(spec, "-", 2)
		start, _ := strconv.ParseInt(parts[0], 10, 64)
		assert.GreaterOrEqualf(t, start, covered, "second run re-requested already-covered byte %d (range %q)", start, rng)
	}

	mu.Lock()
	path := savedPath
	mu.Unlock()
	require.NotEmpty(t, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, body, data)
}

func drainCapturingPath(tk *Task, mu *sync.Mutex, path *string) {
	for {
		ev, ok := tk.Events().Next()
		if !ok {
			return
		}
		if ev.Kind == events.KindFilePath {
			mu.Lock()
			*path = ev.Path
			mu.Unlock()
		}
	}
}

func drain(tk *Task) {
	for {
		_, ok := tk.Events().Next()
		if !ok {
			return
		}
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
