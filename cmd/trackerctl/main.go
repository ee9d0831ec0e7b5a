package main

import (
	"fmt"
	"os"

	"expensetracker/internal/cli"
)

func main() {
	ctx, stop := cli.SignalContext()
	defer stop()

	cmd, closeApp := cli.NewRootCommand(nil)
	err := cmd.ExecuteContext(ctx)
	if cerr := closeApp(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
