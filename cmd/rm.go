package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fastdown/fastdown/internal/task"
)

var rmCmd = &cobra.Command{
	Use:     "rm [gid]...",
	Aliases: []string{"remove", "cancel"},
	Short:   "Remove one or more downloads from the manager",
	Args:    cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		m := sharedManager()
		for _, raw := range args {
			gid, err := parseGid(raw)
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid gid %q: %v\n", raw, err)
				continue
			}
			if err := m.Remove(gid); err != nil {
				fmt.Fprintf(os.Stderr, "%v\n", err)
				continue
			}
			fmt.Printf("removed %s\n", raw)
		}
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
}

func parseGid(s string) (task.Gid, error) {
	var g task.Gid
	if len(s) != len(g)*2 {
		return g, fmt.Errorf("expected %d hex characters, got %d", len(g)*2, len(s))
	}
	for i := range g {
		var b byte
		if _, err := fmt.Sscanf(s[i*2:i*2+2], "%02x", &b); err != nil {
			return g, err
		}
		g[i] = b
	}
	return g, nil
}
