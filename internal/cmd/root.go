// Package cmd implements the ossbrowse command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/ossbrowse/internal/config"
	"github.com/3leaps/ossbrowse/internal/observability"
	"github.com/3leaps/ossbrowse/pkg/credential"
	"github.com/3leaps/ossbrowse/pkg/engine"
	"github.com/3leaps/ossbrowse/pkg/output"
)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "unknown",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata for the version command and server.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var (
	cfgFile        string
	credentialFlag string
	logLevel       string
	jsonOutput     bool
)

var rootCmd = &cobra.Command{
	Use:   "ossbrowse",
	Short: "Browse and transfer objects in an S3-compatible bucket",
	Long: `ossbrowse lists, uploads, downloads, and deletes objects in a single
S3-compatible bucket per configured credential.

Credentials live in the config file ($XDG_CONFIG_HOME/ossbrowse/config.yaml).
Secrets are read from the configured secret store, by default the
OSSBROWSE_SECRET_<ID> environment variables.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initialize,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default $XDG_CONFIG_HOME/ossbrowse/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&credentialFlag, "credential", "c", "", "Credential id or name")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Write JSONL records to stdout")
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func initialize(cmd *cobra.Command, args []string) error {
	config.SetConfigFile(cfgFile)

	overrides := map[string]any{}
	if logLevel != "" {
		overrides["logging"] = map[string]any{"level": logLevel}
	}
	cfg, err := config.Load(cmd.Context(), overrides)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to load configuration", err)
	}

	if err := observability.InitCLILogger(cfg.Logging.Level, jsonOutput); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid log level", err)
	}
	observability.CLILogger.Debug("Configuration loaded",
		zap.Int("credentials", len(cfg.Credentials)),
		zap.String("secrets_backend", cfg.Secrets.Backend))
	return nil
}

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return fmt.Errorf("%s: %w (exit code %d)", message, err, code)
}

// session bundles what a command needs to talk to the bucket.
type session struct {
	cfg    *config.Config
	cred   credential.Credential
	engine *engine.Engine
	out    output.Writer
}

func (s *session) Close() {
	_ = s.out.Close()
	_ = s.engine.Close()
}

// openSession resolves the selected credential and builds an engine whose
// records go to stdout when --json is set.
func openSession(cmd *cobra.Command, opts ...engine.Option) (*session, error) {
	cfg := config.GetConfig()
	if cfg == nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Configuration not loaded", errors.New("initialize did not run"))
	}

	cred, err := cfg.Credential(credentialFlag)
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "No usable credential", err)
	}
	secrets, err := cfg.SecretStore()
	if err != nil {
		return nil, exitError(foundry.ExitFileReadError, "Failed to open secret store", err)
	}

	var out output.Writer = output.Discard
	if jsonOutput {
		out = output.NewJSONLWriter(cmd.OutOrStdout(), uuid.New().String(), cred.ID)
	}

	base := []engine.Option{
		engine.WithLogger(observability.CLILogger),
		engine.WithWriter(out),
		engine.WithSecretStore(secrets),
		engine.WithConcurrency(cfg.Transfer.Concurrency),
		engine.WithListRateLimit(cfg.Transfer.ListRPS, cfg.Transfer.ListBurst),
	}
	e, err := engine.New(cred, append(base, opts...)...)
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid credential", err)
	}
	return &session{cfg: cfg, cred: cred, engine: e, out: out}, nil
}

// failed converts an engine error into a CLI error. Cancellation exits with
// the interrupt code and no error output.
func failed(message string, err error) error {
	switch engine.KindOf(err) {
	case engine.KindNone:
		return nil
	case engine.KindCanceled:
		observability.CLILogger.Info("Canceled", zap.String("op", message))
		return exitError(foundry.ExitSignalInt, "Canceled", err)
	case engine.KindDomain:
		return exitError(foundry.ExitInvalidArgument, message, err)
	default:
		return exitError(foundry.ExitExternalServiceUnavailable, message, err)
	}
}

// textOut returns where human-readable results go: stdout, unless --json
// owns it.
func textOut(cmd *cobra.Command) io.Writer {
	if jsonOutput {
		return io.Discard
	}
	return cmd.OutOrStdout()
}

// ExitCode extracts the code embedded by exitError, or 1.
func ExitCode(err error) int {
	var code int
	msg := err.Error()
	for i := len(msg) - 1; i >= 0; i-- {
		if msg[i] == '(' {
			if _, scanErr := fmt.Sscanf(msg[i:], "(exit code %d)", &code); scanErr == nil {
				return code
			}
			break
		}
	}
	return 1
}

// Quiet reports whether err ends the process without an error message.
func Quiet(err error) bool {
	return ExitCode(err) == foundry.ExitSignalInt
}

func stderrIsTerminal() bool {
	info, err := os.Stderr.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
