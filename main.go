package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/temirov/gerrit-bridge/cmd/cli"
	"github.com/temirov/gerrit-bridge/internal/bridge"
)

const (
	exitErrorTemplateConstant = "%v\n"
)

// main executes the gerrit-bridge command-line application. Synchronization
// failures carry the exit code of the failing subprocess so schedulers observe
// the original git failure.
func main() {
	if executionError := cli.Execute(); executionError != nil {
		fmt.Fprintf(os.Stderr, exitErrorTemplateConstant, executionError)

		runFailure := bridge.RunFailureError{}
		if errors.As(executionError, &runFailure) && runFailure.ExitCode > 0 {
			os.Exit(runFailure.ExitCode)
		}
		os.Exit(1)
	}
}
