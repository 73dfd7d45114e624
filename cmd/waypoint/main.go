package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

// Exit codes
const (
	ExitSuccess       = 0
	ExitMissionFailed = 1
	ExitError         = 2
)

// errMissionFailed marks a mission or route that ran but did not succeed
var errMissionFailed = errors.New("mission failed")

func main() {
	if err := Execute(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
	os.Exit(ExitSuccess)
}

// Execute runs the root command with signal handling
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return newRootCmd().ExecuteContext(ctx)
}

func exitCode(err error) int {
	if errors.Is(err, errMissionFailed) {
		return ExitMissionFailed
	}
	return ExitError
}
