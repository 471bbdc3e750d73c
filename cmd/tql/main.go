// Command tql compiles and runs TQL scripts.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/tql/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err == nil {
		return
	}
	// Commands report their own failures; anything else is a usage error.
	var exitErr *cli.ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(cli.ExitCommandError)
}
