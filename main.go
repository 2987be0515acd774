// Command fastdown is the CLI entry point: it just delegates to the
// cobra root command in package cmd.
package main

import "github.com/fastdown/fastdown/cmd"

func main() {
	cmd.Execute()
}
