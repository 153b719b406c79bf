// Package main implements the cloudysetup binary, which turns plain-English
// resource requests into AWS Cloud Control operations and follows them to
// completion.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// Process exit codes.
const (
	exitOK           = 0
	exitError        = 1
	exitInconclusive = 2
	exitFailed       = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command line in args and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := &cliApp{stdout: stdout, stderr: stderr}
	return exitCode(app.rootCmd().Run(ctx, args), stderr)
}

// exitCode reports err on stderr and maps it to a process exit code.
func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return exitOK
	}
	var ec *exitCodeError
	if errors.As(err, &ec) {
		if ec.msg != "" {
			fmt.Fprintf(stderr, "cloudysetup: %s\n", ec.msg)
		}
		return ec.code
	}
	fmt.Fprintf(stderr, "cloudysetup: %v\n", err)
	return exitError
}

// exitCodeError ends the process with a specific exit code.
type exitCodeError struct {
	code int
	msg  string
}

func (e *exitCodeError) Error() string { return e.msg }
