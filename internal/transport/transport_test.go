package transport

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastdown/fastdown/internal/config"
)

func effDefaults(t *testing.T) config.EffectiveConfig {
	t.Helper()
	eff, err := config.Resolve(config.Config{}, config.Config{})
	require.NoError(t, err)
	return eff
}

func TestPrefetchRangeSupported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "bytes 0-0/1000")
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	client, err := NewClient(effDefaults(t))
	require.NoError(t, err)

	info, captured, err := Prefetch(context.Background(), client, srv.URL+"/file.bin", "")
	require.NoError(t, err)
	defer captured.Close()
	assert.True(t, info.SupportsRange)
	assert.Equal(t, int64(1000), info.Size)
	assert.True(t, info.FastDownload)
	assert.NotEmpty(t, info.FileID)
}

func TestPrefetchRangeNotSupported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "500")
		w.WriteHeader(http.StatusOK)
		w.Write(bytes.Repeat([]byte("a"), 500))
	}))
	defer srv.Close()

	client, err := NewClient(effDefaults(t))
	require.NoError(t, err)

	info, captured, err := Prefetch(context.Background(), client, srv.URL+"/file.bin", "")
	require.NoError(t, err)
	defer captured.Close()
	assert.False(t, info.SupportsRange)
	assert.False(t, info.FastDownload)
}

func TestRandPullFetchesExactRange(t *testing.T) {
	body := []byte("0123456789")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "bytes 2-5/10")
		w.WriteHeader(http.StatusPartialContent)
		w.Write(body[2:6])
	}))
	defer srv.Close()

	puller, err := NewPuller(srv.URL, effDefaults(t), nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, puller.RandPull(context.Background(), &buf, 2, 6))
	assert.Equal(t, "2345", buf.String())
}

func TestClonePreservesURLAndConfig(t *testing.T) {
	eff := effDefaults(t)
	puller, err := NewPuller("http://example.com/file", eff, nil)
	require.NoError(t, err)

	clone := puller.Clone()
	assert.Equal(t, puller.url, clone.url)
	assert.Equal(t, puller.eff, clone.eff)
}

func TestSeqPullConsumesCapturedPrefetchResponse(t *testing.T) {
	body := []byte("abcdefghij")
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Range", fmt.Sprintf("bytes 0-%d/%d", len(body)-1, len(body)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(body)
	}))
	defer srv.Close()

	client, err := NewClient(effDefaults(t))
	require.NoError(t, err)

	info, captured, err := Prefetch(context.Background(), client, srv.URL+"/f.bin", "")
	require.NoError(t, err)
	require.NotNil(t, captured)
	assert.Equal(t, int64(len(body)), info.Size)

	puller, err := NewPuller(srv.URL+"/f.bin", effDefaults(t), captured)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, puller.SeqPull(context.Background(), &buf, 0))
	assert.Equal(t, body, buf.Bytes())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "SeqPull should reuse the captured prefetch response instead of issuing a new request")
}

func TestCloneSharesClientWhenMultiplexing(t *testing.T) {
	eff := effDefaults(t)
	eff.Multiplexing = true
	puller, err := NewPuller("http://example.com/file", eff, nil)
	require.NoError(t, err)

	clone := puller.Clone()
	assert.Same(t, puller.client, clone.client)
}
