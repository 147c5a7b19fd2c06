// jobsift runs the tiered job-posting analysis pipeline: an HTTP control
// API, scheduled overnight tier runs, and one-shot CLI runs.
package main

import (
	"errors"
	"fmt"
	"os"
)

// usageError marks failures that are the operator's input rather than the
// pipeline's fault. They exit 2; runtime failures exit 1.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var usage usageError
		if errors.As(err, &usage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
