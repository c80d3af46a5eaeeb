// Command bizsync keeps local business records in step with a remote service.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/bizsync/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	cmd.SilenceErrors = true
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
