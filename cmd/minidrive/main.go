// Command minidrive is a terminal client for the MiniDrive file-storage API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	minidrive "github.com/MrEthical07/minidrive"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{}
	cmd := newRootCommand(a)
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if cerr := a.teardown(); err == nil {
		err = cerr
	}
	switch {
	case err == nil:
		return 0
	case minidrive.IsUnauthorized(err):
		fmt.Fprintln(stderr, "session expired, please log in again")
	case errors.Is(err, minidrive.ErrNotAuthenticated):
		fmt.Fprintln(stderr, "not logged in, run: minidrive login <email>")
	default:
		fmt.Fprintf(stderr, "error: %v\n", err)
	}
	return 1
}
