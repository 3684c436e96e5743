// Command wsrpc is a runnable example of the session-go transport and RPC
// layers: a "serve" side registering an echo method, and a "call" side
// issuing one request against it.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/selimaj-dev/session-go/cmd/wsrpc/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		os.Exit(1)
	}
}
