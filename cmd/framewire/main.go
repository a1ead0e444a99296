// SPDX-License-Identifier: GPL-3.0-or-later

// Command framewire runs protocol probes from the command line, serves
// them over an HTTP/JSON API, and serves the RFC simple services locally.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "framewire:", err)
		os.Exit(1)
	}
}
