package main

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/comtradebench/greenbench/internal/jsonrpc"
)

func newRPCCommand(a *app) *cobra.Command {
	var tcpAddr string
	var tcpAllowRemote bool

	cmd := &cobra.Command{
		Use:   "rpc",
		Short: "Serve the A2A JSON-RPC methods over stdio or TCP",
		Long: `Serve the green agent's JSON-RPC 2.0 methods without the HTTP service.

By default, the server communicates over stdin/stdout using newline-delimited JSON.
Use --tcp to start a TCP server instead (useful for debugging).
TCP defaults to loopback (127.0.0.1). Use --tcp-allow-remote to bind
to all interfaces.

Supported methods:
  tasks/send           Assess a task (params.task.input.content.task_id)
  tasks/get            Get an assessment task
  tasks/cancel         Cancel a running assessment
  tasks/sendSubscribe  Not supported
  message/send         Assess via message parts, or acknowledge a battle config`,
		RunE: func(cmd *cobra.Command, args []string) error {
			server := newRPCServer(a, newService(a, nil))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if tcpAddr != "" {
				tcpAddr = resolveTCPAddr(tcpAddr, tcpAllowRemote, a.logger)

				listener, err := jsonrpc.NewTCPListener(tcpAddr, server)
				if err != nil {
					return fmt.Errorf("failed to start TCP server: %w", err)
				}
				defer listener.Close() //nolint:errcheck
				fmt.Fprintf(cmd.ErrOrStderr(), "JSON-RPC server listening on %s\n", listener.Addr()) //nolint:errcheck
				return listener.Serve(ctx)
			}

			fmt.Fprintln(cmd.ErrOrStderr(), "JSON-RPC server running on stdio") //nolint:errcheck
			server.ServeStdio(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
			return nil
		},
	}

	cmd.Flags().StringVar(&tcpAddr, "tcp", "", "TCP address to listen on (e.g., :9000)")
	cmd.Flags().BoolVar(&tcpAllowRemote, "tcp-allow-remote", false,
		"Allow binding to non-loopback addresses (WARNING: exposes the server to the network with no authentication)")
	return cmd
}

// resolveTCPAddr ensures TCP addresses default to loopback unless --tcp-allow-remote is set.
func resolveTCPAddr(addr string, allowRemote bool, logger *slog.Logger) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		// a bare port like "9000"
		host = ""
		port = addr
	}

	if allowRemote {
		logger.Warn("TCP server binding to all interfaces without authentication", "address", addr)
		return addr
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		logger.Info("JSON-RPC server listening on TCP (local only)")
		return net.JoinHostPort("127.0.0.1", port)
	}
	return addr
}
