// Package cli provides the wsrpc command-line interface.
package cli

import (
	"context"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

var dev bool

// Execute runs the wsrpc CLI with the given context.
func Execute(ctx context.Context) error {
	root := &cobra.Command{
		Use:           "wsrpc",
		Short:         "Session-oriented RPC over a minimal WebSocket transport",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVar(&dev, "dev", false, "enable debug logging")
	root.AddCommand(newServeCmd(), newCallCmd())

	return fang.Execute(ctx, root,
		fang.WithVersion(Version),
		fang.WithCommit(Commit),
	)
}
