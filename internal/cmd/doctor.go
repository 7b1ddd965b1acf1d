package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	appconfig "github.com/3leaps/ossbrowse/internal/config"
	"github.com/3leaps/ossbrowse/internal/observability"
	"github.com/3leaps/ossbrowse/pkg/credential"
)

var doctorTimeout time.Duration

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the environment and the selected credential,
then test the connection to its bucket.

Examples:
  ossbrowse doctor
  ossbrowse doctor -c prod`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().DurationVar(&doctorTimeout, "timeout", 15*time.Second, "Connection test timeout")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	log := observability.CLILogger
	log.Info("=== ossbrowse doctor ===")
	log.Info("Running diagnostic checks...")

	const totalChecks = 5
	checkNum := 1

	// Check 1: Go version
	goVersion := runtime.Version()
	log.Info(fmt.Sprintf("[%d/%d] Checking Go runtime... ✅ %s %s/%s", checkNum, totalChecks, goVersion, runtime.GOOS, runtime.GOARCH),
		zap.String("go_version", goVersion))
	checkNum++

	// Check 2: Config file
	path := cfgFile
	if path == "" {
		path = appconfig.DefaultConfigFile()
	}
	if _, err := os.Stat(path); err != nil {
		log.Warn(fmt.Sprintf("[%d/%d] Checking config file... ⚠️  %s not found", checkNum, totalChecks, path))
	} else {
		log.Info(fmt.Sprintf("[%d/%d] Checking config file... ✅ %s", checkNum, totalChecks, path))
	}
	checkNum++

	// Check 3: Credential
	cfg := appconfig.GetConfig()
	cred, err := cfg.Credential(credentialFlag)
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking credential... ❌ %v", checkNum, totalChecks, err))
		printCredentialHelp()
		return exitError(foundry.ExitInvalidArgument, "No usable credential", err)
	}
	log.Info(fmt.Sprintf("[%d/%d] Checking credential... ✅ %s", checkNum, totalChecks, cred.Label()),
		zap.String("bucket", cred.Bucket),
		zap.String("endpoint", cred.Endpoint))
	checkNum++

	// Check 4: Secret
	if err := checkSecret(cmd.Context(), cfg, cred); err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking secret... ❌ %v", checkNum, totalChecks, err))
		printCredentialHelp()
		return exitError(foundry.ExitInvalidArgument, "Secret unavailable", err)
	}
	log.Info(fmt.Sprintf("[%d/%d] Checking secret... ✅ available", checkNum, totalChecks),
		zap.String("access_key", maskAccessKey(cred.AccessKeyID)))
	checkNum++

	// Check 5: Connection
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), doctorTimeout)
	defer cancel()
	if err := s.engine.TestConnection(ctx); err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Testing connection... ❌ %v", checkNum, totalChecks, err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Connection test failed", err)
	}
	log.Info(fmt.Sprintf("[%d/%d] Testing connection... ✅ bucket %s reachable", checkNum, totalChecks, cred.Bucket))

	log.Info("✅ All checks passed!")
	return nil
}

// checkSecret verifies the secret for cred can be read. Credentials without
// an access key fall back to the AWS default chain, which is checked instead.
func checkSecret(ctx context.Context, cfg *appconfig.Config, cred credential.Credential) error {
	if credential.IsLocal(cred.Endpoint) {
		return nil
	}
	if cred.AccessKeyID == "" {
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("load AWS config: %w", err)
		}
		if _, err := awsCfg.Credentials.Retrieve(ctx); err != nil {
			return fmt.Errorf("no access_key_id configured and the AWS default chain has none: %w", err)
		}
		return nil
	}
	store, err := cfg.SecretStore()
	if err != nil {
		return err
	}
	secret, err := store.Secret(cred.ID)
	if err != nil {
		return err
	}
	if secret == "" {
		return errors.New("secret is empty")
	}
	return nil
}

// maskAccessKey masks all but the last 4 characters of an access key.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

func printCredentialHelp() {
	log := observability.CLILogger
	log.Info("")
	log.Info("To configure a credential, add it to the config file:")
	log.Info("  credentials:")
	log.Info("    - id: prod")
	log.Info("      endpoint: https://s3.example.com")
	log.Info("      access_key_id: AKIA...")
	log.Info("      bucket: my-bucket")
	log.Info("      region: us-east-1")
	log.Info("")
	log.Info("and provide its secret as " + credential.EnvKey("prod") + " (or via secrets.backend).")
}
