package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:     "stop [gid]...",
	Aliases: []string{"pause"},
	Short:   "Stop one or more running downloads, demoting them to the back of the queue",
	Args:    cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		m := sharedManager()
		for _, raw := range args {
			gid, err := parseGid(raw)
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid gid %q: %v\n", raw, err)
				continue
			}
			if err := m.Stop(gid); err != nil {
				fmt.Fprintf(os.Stderr, "%v\n", err)
				continue
			}
			fmt.Printf("stopped %s\n", raw)
		}
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
