// Command pipegraph runs, validates and plans pipeline definitions.
//
// Exit codes:
//
//	0  the pipeline succeeded (or the definition is valid)
//	1  the pipeline failed
//	2  the definition or the command line is invalid
//	3  configuration or infrastructure error
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
