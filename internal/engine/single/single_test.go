package single

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastdown/fastdown/internal/config"
	"github.com/fastdown/fastdown/internal/engine/events"
	"github.com/fastdown/fastdown/internal/pusher"
	"github.com/fastdown/fastdown/internal/transport"
)

func TestRunWritesFullBodySequentially(t *testing.T) {
	body := "the quick brown fox"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	eff, err := config.Resolve(config.Config{}, config.Config{})
	require.NoError(t, err)
	puller, err := transport.NewPuller(srv.URL, eff, nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out.bin")
	fp, err := pusher.Open(path, true, 4, 8)
	require.NoError(t, err)

	var kinds []events.Kind
	opts := Options{RetryGap: time.Millisecond}
	err = Run(context.Background(), puller, fp, opts, func(ev events.Event) { kinds = append(kinds, ev.Kind) })
	require.NoError(t, err)
	require.NoError(t, fp.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, body, string(data))
	assert.Contains(t, kinds, events.KindConnected)
	assert.Contains(t, kinds, events.KindDone)
	assert.Contains(t, kinds, events.KindProgress)
}

func TestRunRetriesTransientFailureFromLastOffset(t *testing.T) {
	body := "the quick brown fox jumps over the lazy dog"
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			// Write a partial body, then sever the connection before
			// finishing, simulating a mid-stream transient failure.
			w.Header().Set("Content-Length", fmt.Sprint(len(body)))
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(body[:10]))
			hj, _ := w.(http.Hijacker)
			conn, _, _ := hj.Hijack()
			conn.Close()
			return
		}

		rng := r.Header.Get("Range")
		require.Equal(t, "bytes=10-", rng)
		w.Header().Set("Content-Range", fmt.Sprintf("bytes 10-%d/%d", len(body)-1, len(body)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte(body[10:]))
	}))
	defer srv.Close()

	eff, err := config.Resolve(config.Config{}, config.Config{})
	require.NoError(t, err)
	puller, err := transport.NewPuller(srv.URL, eff, nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out.bin")
	fp, err := pusher.Open(path, true, 4, 8)
	require.NoError(t, err)

	opts := Options{RetryGap: time.Millisecond}
	err = Run(context.Background(), puller, fp, opts, func(events.Event) {})
	require.NoError(t, err)
	require.NoError(t, fp.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, body, string(data))
}
