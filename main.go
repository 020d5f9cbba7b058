package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tphakala/shmaudio/cmd"
	"github.com/tphakala/shmaudio/internal/app"
	"github.com/tphakala/shmaudio/internal/buildinfo"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=...".
var (
	version   string
	buildDate string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	appCtx := app.NewContext(buildinfo.NewContext(version, buildDate))
	rootCmd := cmd.RootCommand(appCtx)
	err := rootCmd.ExecuteContext(ctx)

	stop()
	_ = appCtx.Close()
	if err != nil {
		os.Exit(1)
	}
}
