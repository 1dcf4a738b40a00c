package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/comtradebench/greenbench/internal/faults"
	"github.com/comtradebench/greenbench/internal/mockapi"
	"github.com/comtradebench/greenbench/internal/paging"
	"github.com/comtradebench/greenbench/internal/webserver"
)

func newMockCommand(a *app) *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "mock",
		Short: "Run the fault-injecting mock trade API",
		Long: `Run the mock trade API that purple agents fetch from.

Endpoints:
  POST /configure   reset a task's fault schedule and pagination session
  GET  /records     one page of records, or an injected 429/500
  GET  /stats       session counters of a task
  GET  /healthz     liveness`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("port") {
				port = a.cfg.Mock.Port
			}
			if !cmd.Flags().Changed("host") {
				host = a.cfg.Server.Host
			}

			pager := paging.New(faults.NewEngine(), a.fixtureSource())
			srv := webserver.New(webserver.Config{
				Name:   "mock",
				Host:   host,
				Port:   port,
				Logger: a.logger,
			}, mockapi.NewHandler(pager, a.logger))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Host to bind (default from config)")
	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on (default from config, 8000)")
	return cmd
}
