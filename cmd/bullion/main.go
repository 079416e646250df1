// Command bullion manages jewellery inventory rollups in a local SQLite file.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/bullion/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		// Commands that use OutputFormatter have already reported the error.
		if !cli.Reported(err) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
