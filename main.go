package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tphakala/certmigrate/cmd"
	"github.com/tphakala/certmigrate/internal/app"
	"github.com/tphakala/certmigrate/internal/buildinfo"
	"github.com/tphakala/certmigrate/internal/errors"
	"github.com/tphakala/certmigrate/internal/runner"
)

// buildDate and version are set at build time with -ldflags
var (
	buildDate string
	version   string
)

// Exit codes
const (
	exitOK         = 0
	exitError      = 1
	exitIncomplete = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCtx := app.NewContext(&buildinfo.Context{Version: version, BuildDate: buildDate})
	defer appCtx.Close()

	err := cmd.RootCommand(appCtx).ExecuteContext(ctx)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, runner.ErrIncomplete):
		fmt.Fprintf(os.Stderr, "migration stopped before completion: %v\n", err)
		return exitIncomplete
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitError
	}
}
