package cmd

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	fdclip "github.com/fastdown/fastdown/internal/clipboard"
	"github.com/fastdown/fastdown/internal/config"
	"github.com/fastdown/fastdown/internal/manager"
)

var addCmd = &cobra.Command{
	Use:     "add [url]...",
	Aliases: []string{"get"},
	Short:   "Add one or more downloads to the manager",
	Long:    `Add one or more URLs to the download manager's task table.`,
	Run: func(cmd *cobra.Command, args []string) {
		batchFile, _ := cmd.Flags().GetString("batch")
		watchClipboard, _ := cmd.Flags().GetBool("watch-clipboard")

		var urls []string
		urls = append(urls, args...)

		if batchFile != "" {
			fileURLs, err := readURLsFromFile(batchFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading batch file: %v\n", err)
				os.Exit(1)
			}
			urls = append(urls, fileURLs...)
		}

		m := sharedManager()
		for _, u := range urls {
			t := m.Add(u, config.Config{})
			fmt.Printf("added %s (%s)\n", t.Gid, u)
		}

		if watchClipboard {
			watchClipboardLoop(m)
			return
		}

		if len(urls) == 0 {
			cmd.Help()
		}
	},
}

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().StringP("batch", "b", "", "file containing URLs to add, one per line")
	addCmd.Flags().Bool("watch-clipboard", false, "poll the clipboard and add any URL that appears in it")
}

func readURLsFromFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}

// watchClipboardLoop polls the clipboard for new URLs and adds each one
// to the manager, blocking until interrupted (Ctrl-C). Adapted from the
// teacher's internal/clipboard/validator.go — that package is kept
// nearly as-is, a small self-contained URL sniffer — wired here into an
// active add loop instead of the teacher's notification-on-paste TUI
// hook.
func watchClipboardLoop(m *manager.Manager) {
	fmt.Println("watching clipboard for downloadable URLs (Ctrl-C to stop)...")
	seen := make(map[string]bool)
	for {
		if u := fdclip.ReadURL(); u != "" && !seen[u] {
			seen[u] = true
			t := m.Add(u, config.Config{})
			fmt.Printf("added %s (%s)\n", t.Gid, u)
		}
		time.Sleep(time.Second)
	}
}
