package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/selimaj-dev/session-go/rpc"
)

func newCallCmd() *cobra.Command {
	var (
		addr string
		text string
	)

	cmd := &cobra.Command{
		Use:   "call",
		Short: "Issue one data request against a running wsrpc serve instance",
		Example: `  wsrpc call --addr localhost:8080 --text "hello"
  wsrpc call --addr localhost:8080 --text invalid_data`,
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.SetDefault(newLogger())

			session, err := rpc.Connect(addr, "/")
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer session.Close()
			session.StartReceiver()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()

			res, err := rpc.Request(ctx, session, dataMethod, text)
			var rpcErr *rpc.RPCError[string]
			if errors.As(err, &rpcErr) {
				fmt.Println("error:", rpcErr.Value)
				return nil
			}
			if err != nil {
				return fmt.Errorf("request: %w", err)
			}

			fmt.Println("result:", res)
			return nil
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "localhost:8080", "server address (host:port)")
	cmd.Flags().StringVarP(&text, "text", "t", "hello", "data payload to send")
	return cmd
}
