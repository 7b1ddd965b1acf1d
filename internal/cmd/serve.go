package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/ossbrowse/internal/config"
	"github.com/3leaps/ossbrowse/internal/observability"
	"github.com/3leaps/ossbrowse/internal/server"
	"github.com/3leaps/ossbrowse/internal/server/handlers"
	"github.com/3leaps/ossbrowse/pkg/engine"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the bucket over an HTTP API",
	Long: `Start an HTTP server exposing the selected credential's bucket.

Endpoints:
  GET    /health, /health/live, /health/ready
  GET    /version
  GET    /v1/nodes?prefix=&files=
  GET    /v1/objects/head?key=
  GET    /v1/objects/url?key=
  POST   /v1/folders          {"prefix": "..."}
  DELETE /v1/objects          {"keys": [...], "prefixes": [...], "confirm": bool}`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg := config.GetConfig(); cfg != nil {
		if err := observability.InitServerLogger(cfg.Logging.Level, cfg.Logging.Profile); err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid logging configuration", err)
		}
	}

	s, err := openSession(cmd, engine.WithLogger(observability.ServerLogger))
	if err != nil {
		return err
	}
	defer s.Close()

	host, port := s.cfg.Server.Host, s.cfg.Server.Port
	if serveHost != "" {
		host = serveHost
	}
	if servePort != 0 {
		port = servePort
	}

	handlers.InitHealthManager(versionInfo.Version)
	handlers.GetHealthManager().RegisterChecker("bucket", handlers.HealthCheckerFunc(s.engine.TestConnection))

	srv := server.New(host, port,
		server.WithBrowser(s.engine),
		server.WithVersion(handlers.VersionInfo{
			Version:   versionInfo.Version,
			Commit:    versionInfo.Commit,
			BuildDate: versionInfo.BuildDate,
		}),
		server.WithTimeouts(s.cfg.Server.ReadTimeout, s.cfg.Server.WriteTimeout,
			s.cfg.Server.IdleTimeout, s.cfg.Server.ShutdownTimeout),
	)

	observability.ServerLogger.Info("Starting server",
		zap.String("addr", srv.Addr()),
		zap.String("credential", s.cred.ID),
		zap.String("bucket", s.cred.Bucket))
	if err := srv.Start(ctx); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, fmt.Sprintf("Server on %s failed", srv.Addr()), err)
	}
	return nil
}
