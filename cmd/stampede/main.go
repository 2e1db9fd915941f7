package main

import (
	"fmt"
	"os"

	"github.com/wesleyorama2/stampede/internal/cli"
)

// Main is the entry point for the application
// It's exported to make it testable
func Main(args []string) int {
	cmd := cli.NewRootCmd()
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return cli.ExitCode(err)
}

func main() {
	os.Exit(Main(os.Args[1:]))
}
