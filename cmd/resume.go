package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume [gid]...",
	Short: "Resume one or more stopped downloads",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		m := sharedManager()
		for _, raw := range args {
			gid, err := parseGid(raw)
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid gid %q: %v\n", raw, err)
				continue
			}
			if err := m.Resume(gid); err != nil {
				fmt.Fprintf(os.Stderr, "%v\n", err)
				continue
			}
			fmt.Printf("resumed %s\n", raw)
		}
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}
