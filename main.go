package main

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/DbyProsper/Fort-Hare-Tutors-Hub-sub000/internal/application"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var verr *application.ValidationError
		if errors.As(err, &verr) {
			printValidationError(verr)
			os.Exit(1)
		}

		exitOnError(err)
	}
}

// printValidationError lists every failing field, one per line.
func printValidationError(verr *application.ValidationError) {
	names := make([]string, 0, len(verr.Fields))
	for name := range verr.Fields {
		names = append(names, name)
	}

	sort.Strings(names)

	fmt.Fprintln(os.Stderr, "Error: application is incomplete:")

	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %s: %s\n", name, verr.Fields[name])
	}
}
