package manager

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastdown/fastdown/internal/config"
)

func slowServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rng := r.Header.Get("Range")
		if rng == "bytes=0-0" {
			w.Header().Set("Content-Range", "bytes 0-0/20")
			w.WriteHeader(http.StatusPartialContent)
			w.Write([]byte("x"))
			return
		}
		time.Sleep(50 * time.Millisecond)
		w.Header().Set("Content-Range", "bytes 0-19/20")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("01234567890123456789"))
	}))
}

func TestParallelismCeilingLimitsConcurrentRuns(t *testing.T) {
	srv := slowServer(t)
	defer srv.Close()

	dir := t.TempDir()
	global := config.Config{SaveDir: &dir}

	mgr := New(context.Background(), 2, global)
	for i := 0; i < 5; i++ {
		mgr.Add(srv.URL+"/f", config.Config{})
	}

	time.Sleep(20 * time.Millisecond)
	assert.LessOrEqual(t, mgr.RunningCount(), 2)
}

func TestSetParallelismPromotesWaitingTasks(t *testing.T) {
	srv := slowServer(t)
	defer srv.Close()

	dir := t.TempDir()
	global := config.Config{SaveDir: &dir}

	mgr := New(context.Background(), 1, global)
	for i := 0; i < 3; i++ {
		mgr.Add(srv.URL+"/f", config.Config{})
	}

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, mgr.RunningCount())

	mgr.SetParallelism(3)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 3, mgr.RunningCount())
}

func TestStopDemotesToTailAndPromotesNext(t *testing.T) {
	srv := slowServer(t)
	defer srv.Close()

	dir := t.TempDir()
	global := config.Config{SaveDir: &dir}
	mgr := New(context.Background(), 1, global)

	first := mgr.Add(srv.URL+"/f", config.Config{})
	second := mgr.Add(srv.URL+"/f", config.Config{})
	third := mgr.Add(srv.URL+"/f", config.Config{})

	time.Sleep(10 * time.Millisecond)
	require.Equal(t, 1, mgr.RunningCount())

	require.NoError(t, mgr.Stop(first.Gid))
	time.Sleep(60 * time.Millisecond)

	rows := mgr.Table()
	require.Len(t, rows, 3)
	assert.Equal(t, second.Gid, rows[0].Gid)
	assert.Equal(t, third.Gid, rows[1].Gid)
	assert.Equal(t, first.Gid, rows[2].Gid)
	assert.True(t, rows[0].Running, "second task should now be running")
	assert.False(t, rows[2].Running, "stopped task must not be running")
}

func TestRemoveAbortsAndDropsTask(t *testing.T) {
	srv := slowServer(t)
	defer srv.Close()

	dir := t.TempDir()
	global := config.Config{SaveDir: &dir}
	mgr := New(context.Background(), 1, global)
	tk := mgr.Add(srv.URL+"/f", config.Config{})

	require.NoError(t, mgr.Remove(tk.Gid))
	assert.Empty(t, mgr.Table())
}
