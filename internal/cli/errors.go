package cli

import (
	"fmt"
	"os"

	boarderrors "github.com/randalmurphal/taskboard/internal/errors"
)

// PrintError prints an error to stderr with appropriate formatting.
// If the error is a BoardError, it uses the user-friendly format.
// Otherwise, it prints a simple error message.
func PrintError(err error) {
	if be := boarderrors.AsBoardError(err); be != nil {
		fmt.Fprintln(os.Stderr, be.UserMessage())
		if verbose {
			fmt.Fprintf(os.Stderr, "\nCode: %s\n", be.Code)
			if be.Cause != nil {
				fmt.Fprintf(os.Stderr, "Cause: %v\n", be.Cause)
			}
		}
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}
