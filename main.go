package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tvroute/cmd"
	applog "tvroute/internal/log"
	"tvroute/pkg/build"
)

// main wires build information, signal handling and the command line. The
// engine itself runs inside the "run" command:
//
//  1. Startup: build flags, config, hardware backend, transports
//  2. Event phase: the script drives the engine until it ends or, with
//     --serve, until SIGINT/SIGTERM
//  3. Shutdown: the engine releases its patch before hardware closes
func main() {
	if err := build.Initialize(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		applog.Errorf("%v", err)
		stop()
		os.Exit(1)
	}
}
