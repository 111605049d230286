package main

import (
	"os"

	"github.com/pthm-cable/slime/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:], os.Stdout, cli.Modes{
		Window:   runWindow,
		Term:     runTerm,
		Headless: runHeadless,
		Serve:    runServe,
	}))
}
