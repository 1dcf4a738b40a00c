package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for different failure modes
const (
	ExitSuccess          = 0 // Output passed validation or scoring
	ExitValidationFailed = 1 // Contract violations or tasks below the pass score
	ExitError            = 2 // Usage, configuration or runtime error
)

// ValidationFailedError indicates that the command ran successfully but the
// output it checked did not pass.
type ValidationFailedError struct {
	Message string
}

func (e *ValidationFailedError) Error() string {
	return e.Message
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		var failed *ValidationFailedError
		if errors.As(err, &failed) {
			os.Exit(ExitValidationFailed)
		}
		os.Exit(ExitError)
	}
}
