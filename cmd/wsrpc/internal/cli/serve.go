package cli

import (
	"context"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/selimaj-dev/session-go/rpc"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept websocket RPC sessions and echo the data method",
		Example: `  wsrpc serve
  wsrpc serve --addr :9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := newLogger()
			slog.SetDefault(logger)

			ln, err := rpc.Bind(addr)
			if err != nil {
				return err
			}
			defer ln.Close()

			logger.Info("listening", "addr", ln.Addr().String())

			return ln.SessionLoop(ctx, func(s *rpc.Session, peer net.Addr) error {
				logger.Info("session opened", "peer", peer.String())
				s.OnClose(func() {
					logger.Info("session closed", "peer", peer.String())
				})

				rpc.OnRequest(s, dataMethod, func(ctx context.Context, id uint32, req string) (string, *string, bool) {
					if req == "invalid_data" {
						msg := "Invalid data"
						return "", &msg, true
					}
					return "Hello from server", nil, true
				})

				s.StartPing(20*time.Second, 5*time.Second)
				select {
				case <-ctx.Done():
				case <-s.Done():
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "listen address (host:port)")
	return cmd
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if dev {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
