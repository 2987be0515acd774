// Package cmd is the illustrative control surface around the download
// manager core: a cobra CLI whose subcommands drive one in-process
// internal/manager.Manager, plus an optional HTTP/WebSocket front end
// (serve.go) and a small terminal progress view (watch.go).
//
// Command shapes (Use/Aliases/Short/Long/Run, package-level command
// vars registered from init()) are grounded directly on the teacher's
// own cmd/{add,rm,pause,resume,ls}.go.
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fastdown/fastdown/internal/config"
	"github.com/fastdown/fastdown/internal/engine/events"
	"github.com/fastdown/fastdown/internal/logging"
	"github.com/fastdown/fastdown/internal/manager"
)

var (
	flagSaveDir      string
	flagThreads      int
	flagProxy        string
	flagMultiplexing bool
	flagParallelism  int

	mgr *manager.Manager
)

var rootCmd = &cobra.Command{
	Use:   "fastdown [url]...",
	Short: "A concurrent HTTP(S) file downloader manager",
	Long: `fastdown manages concurrent, resumable HTTP(S) downloads: it probes each
URL for range support, splits range-capable downloads across multiple
connections, and falls back to a single stream otherwise.

Run with one or more URLs to download them in the foreground; use the
add/rm/stop/resume/ls/parallelism subcommands to drive a longer-lived
manager (see 'serve' for an HTTP/WebSocket front end, 'watch' for a
terminal progress view).`,
	SilenceUsage: true,
	Args:         cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return runForeground(args)
	},
}

// runForeground adds each url to the shared manager in turn and blocks
// until that task reaches a terminal state, printing the task's gid when
// it is added and one line when it finishes or fails — the
// "fastdown <url>" quick path the teacher's own root command supports
// alongside its daemon mode.
func runForeground(urls []string) error {
	m := sharedManager()
	for _, u := range urls {
		t := m.Add(u, globalConfig())
		fmt.Printf("%s  %s\n", t.Gid, u)
		for {
			ev, ok := t.Events().Next()
			if !ok {
				break
			}
			prefetchFailed := ev.Kind == events.KindPrefetch && ev.Err != nil
			if !isTerminal(ev.Kind) && !prefetchFailed {
				continue
			}
			if ev.Err != nil {
				fmt.Fprintf(os.Stderr, "%s failed: %v\n", t.Gid, ev.Err)
			} else {
				fmt.Printf("%s done\n", t.Gid)
			}
			t.Events().Close()
			break
		}
	}
	return nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagSaveDir, "save-dir", ".", "default destination directory")
	rootCmd.PersistentFlags().IntVar(&flagThreads, "threads", 0, "default connections per download (0 = library default)")
	rootCmd.PersistentFlags().StringVar(&flagProxy, "proxy", "", "default proxy URL (http(s):// or socks5://)")
	rootCmd.PersistentFlags().BoolVar(&flagMultiplexing, "multiplex", false, "share one connection pool across a task's retries/clones")
	rootCmd.PersistentFlags().IntVar(&flagParallelism, "parallelism", 4, "maximum number of downloads running at once")

	logDir := filepath.Join(os.TempDir(), "fastdown", "logs")
	logging.Configure(logDir)
}

func globalConfig() config.Config {
	cfg := config.Config{SaveDir: &flagSaveDir, Multiplexing: &flagMultiplexing}
	if flagThreads > 0 {
		cfg.Threads = &flagThreads
	}
	if flagProxy != "" {
		cfg.Proxy = &flagProxy
	}
	return cfg
}

// sharedManager lazily constructs the process-wide manager that CLI
// subcommands not run under `serve` operate on directly.
func sharedManager() *manager.Manager {
	if mgr == nil {
		mgr = manager.New(context.Background(), flagParallelism, globalConfig())
	}
	return mgr
}
