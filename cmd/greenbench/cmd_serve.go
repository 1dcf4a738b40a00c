package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/comtradebench/greenbench/internal/assess"
	"github.com/comtradebench/greenbench/internal/jsonrpc"
	"github.com/comtradebench/greenbench/internal/scoring"
	"github.com/comtradebench/greenbench/internal/staging"
	"github.com/comtradebench/greenbench/internal/webapi"
	"github.com/comtradebench/greenbench/internal/webserver"
)

// newService builds the assessment pipeline from the configuration. The
// store may be nil.
func newService(a *app, store assess.Store) *assess.Service {
	return assess.NewService(
		assess.Config{
			OutputRoot:   a.cfg.Paths.PurpleOutputRoot,
			StageTimeout: a.cfg.StageTimeout(),
			ScoreTimeout: a.cfg.ScoreTimeout(),
			Logger:       a.logger,
		},
		assess.NewHTTPConfigurer(a.cfg.Mock.URL),
		staging.New(staging.Config{Root: a.cfg.Paths.StagingDir, Logger: a.logger}),
		scoring.NewJudge(a.fixtureSource(), a.logger),
		store,
	)
}

// newRPCServer registers the A2A methods over svc.
func newRPCServer(a *app, svc jsonrpc.Assessor) *jsonrpc.Server {
	registry := jsonrpc.NewMethodRegistry()
	jsonrpc.RegisterHandlers(registry, jsonrpc.NewHandlerContext(svc, a.logger))
	return jsonrpc.NewServer(registry, a.logger)
}

func newServeCommand(a *app) *cobra.Command {
	var host, publicURL string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the green agent HTTP service",
		Long: `Run the green agent: POST /assess, A2A JSON-RPC on /a2a/rpc, agent cards
and the stored assessment results under /api/assessments.

Each assessment configures the mock API, stages the purple output from the
purple output root and scores it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("host") {
				host = a.cfg.Server.Host
			}
			if !cmd.Flags().Changed("port") {
				port = a.cfg.Server.Port
			}
			if !cmd.Flags().Changed("public-url") {
				publicURL = a.cfg.Server.PublicURL
			}

			store := webapi.NewFileStore(a.cfg.Paths.ResultsDir)
			svc := newService(a, store)
			handler := webapi.NewHandler(webapi.Config{
				Assessor: svc,
				Store:    store,
				RPC:      newRPCServer(a, svc),
				Card:     webapi.NewAgentCard(publicURL),
				Logger:   a.logger,
			}, a.cfg.Server.CORSOrigins...)

			srv := webserver.New(webserver.Config{
				Name:   "green-agent",
				Host:   host,
				Port:   port,
				Logger: a.logger,
			}, handler)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Host to bind (default from config)")
	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on (default from config, 9009)")
	cmd.Flags().StringVar(&publicURL, "public-url", "", "JSON-RPC URL advertised in the agent card")
	return cmd
}
