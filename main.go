// deskbridge - native IPC bridge between a desktop host and its
// renderer windows.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"deskbridge/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "deskbridge: %v\n", err)
		os.Exit(1)
	}
}
