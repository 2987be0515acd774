package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var parallelismCmd = &cobra.Command{
	Use:   "parallelism [n]",
	Short: "Get or set the maximum number of downloads running at once",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		m := sharedManager()
		if len(args) == 0 {
			fmt.Println(flagParallelism)
			return
		}
		var n int
		if _, err := fmt.Sscanf(args[0], "%d", &n); err != nil || n < 1 {
			fmt.Println("parallelism must be a positive integer")
			return
		}
		flagParallelism = n
		m.SetParallelism(n)
		fmt.Printf("parallelism set to %d\n", n)
	},
}

func init() {
	rootCmd.AddCommand(parallelismCmd)
}
