package main

import (
	"fmt"
	"os"

	"github.com/livelist/livelist/server/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "livelist:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
