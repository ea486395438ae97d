// Command paychain runs the settlement engine: one-shot operations against the
// configured database, and serve for the HTTP API with outbox delivery.
package main

import (
	"fmt"
	"os"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

var version = "dev"

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, describeError(err))
		os.Exit(1)
	}
}

// describeError appends the text code and field errors of service errors.
func describeError(err error) string {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich == nil {
		return err.Error()
	}
	var b strings.Builder
	b.WriteString(rich.Message)
	if rich.TextCode != "" {
		fmt.Fprintf(&b, " [%s]", rich.TextCode)
	}
	for _, field := range rich.ValidationErrors {
		fmt.Fprintf(&b, "\n  %s: %s", field.Field, field.Message)
	}
	return b.String()
}
