package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fastdown/fastdown/internal/task"
)

var lsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List every download in the manager's task table",
	Run: func(cmd *cobra.Command, args []string) {
		m := sharedManager()
		rows := m.Table()
		if len(rows) == 0 {
			fmt.Println("no downloads")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
		fmt.Fprintln(w, "GID\tSTATE\tRUNNING\tURL")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", r.Gid, stateName(r.State), r.Running, r.URL)
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)
}

func stateName(s task.State) string {
	switch s {
	case task.StateIdle:
		return "idle"
	case task.StateConnecting:
		return "connecting"
	case task.StatePrefetching:
		return "prefetching"
	case task.StateOpening:
		return "opening"
	case task.StateDownloading:
		return "downloading"
	case task.StateDone:
		return "done"
	case task.StateFailed:
		return "failed"
	case task.StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}
