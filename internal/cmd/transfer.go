package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/ossbrowse/pkg/deletion"
	"github.com/3leaps/ossbrowse/pkg/engine"
	"github.com/3leaps/ossbrowse/pkg/match"
	"github.com/3leaps/ossbrowse/pkg/node"
	"github.com/3leaps/ossbrowse/pkg/transfer"
)

var (
	putTo          string
	putOnConflict  string
	putExcludes    []string
	putSkipHidden  bool
	putConcurrency int

	getTo          string
	getOnConflict  string
	getConcurrency int

	rmYes bool

	noProgress bool
)

var putCmd = &cobra.Command{
	Use:   "put <local>... --to <prefix>",
	Short: "Upload files and directories",
	Long: `Upload local files and directories under a bucket prefix. A directory
keeps its own name: "put photos --to backup/" writes backup/photos/....

When a destination already exists, --on-conflict decides once for the
whole batch: ask (default), overwrite, rename, skip, or cancel.

Examples:
  ossbrowse put report.pdf --to docs/
  ossbrowse put ./site --to www/ --exclude '*.map' --on-conflict overwrite`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPut,
}

var getCmd = &cobra.Command{
	Use:   "get <key-or-prefix/>... --to <dir>",
	Short: "Download objects and folders",
	Long: `Download objects and folders into a local directory. Arguments ending
in "/" are folders and are downloaded with their structure.

Examples:
  ossbrowse get docs/report.pdf --to .
  ossbrowse get photos/2024/ --to ~/Pictures --on-conflict rename`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGet,
}

var rmCmd = &cobra.Command{
	Use:   "rm <key-or-prefix/>...",
	Short: "Delete objects and folders",
	Long: `Delete objects and whole folders. Deletes that reach the credential's
delete_threshold (default 50 objects) ask for confirmation unless --yes is
given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRm,
}

func init() {
	rootCmd.AddCommand(putCmd, getCmd, rmCmd)

	putCmd.Flags().StringVar(&putTo, "to", "", "Destination prefix (default bucket root)")
	putCmd.Flags().StringVar(&putOnConflict, "on-conflict", "ask", "ask|overwrite|rename|skip|cancel")
	putCmd.Flags().StringArrayVar(&putExcludes, "exclude", nil, "Exclude glob pattern (repeatable)")
	putCmd.Flags().BoolVar(&putSkipHidden, "skip-hidden", false, "Skip files and directories starting with '.'")
	putCmd.Flags().IntVar(&putConcurrency, "concurrency", 0, "Parallel uploads (default from config)")
	putCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")

	getCmd.Flags().StringVar(&getTo, "to", ".", "Target directory")
	getCmd.Flags().StringVar(&getOnConflict, "on-conflict", "ask", "ask|overwrite|rename|skip|cancel")
	getCmd.Flags().IntVar(&getConcurrency, "concurrency", 0, "Parallel downloads (default from config)")
	getCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")

	rmCmd.Flags().BoolVarP(&rmYes, "yes", "y", false, "Confirm large deletes without asking")
	rmCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")
}

func showProgress() bool {
	return !noProgress && !jsonOutput && stderrIsTerminal()
}

func concurrencyOption(n int) ([]engine.Option, error) {
	if n == 0 {
		return nil, nil
	}
	if n < 1 {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid --concurrency value", fmt.Errorf("concurrency must be >= 1"))
	}
	return []engine.Option{engine.WithConcurrency(n)}, nil
}

func runPut(cmd *cobra.Command, args []string) error {
	prompter, err := conflictPrompter(putOnConflict, newTerminal(cmd.InOrStdin(), cmd.ErrOrStderr()))
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid --on-conflict value", err)
	}
	matcher, err := match.New(match.Config{Excludes: putExcludes, SkipHidden: putSkipHidden})
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid --exclude pattern", err)
	}
	opts, err := concurrencyOption(putConcurrency)
	if err != nil {
		return err
	}

	s, err := openSession(cmd, opts...)
	if err != nil {
		return err
	}
	defer s.Close()

	bar := newProgress(showProgress(), "uploading", cmd.ErrOrStderr())
	topts := []transfer.Option{transfer.WithExcludes(matcher)}
	if bar != nil {
		topts = append(topts, transfer.WithProgress(bar.transfer))
	}
	res, err := s.engine.UploadFiles(cmd.Context(), args, putTo, prompter, topts...)
	bar.finish()
	report(cmd, "Uploaded", res)
	return failed("Upload failed", err)
}

func runGet(cmd *cobra.Command, args []string) error {
	prompter, err := conflictPrompter(getOnConflict, newTerminal(cmd.InOrStdin(), cmd.ErrOrStderr()))
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid --on-conflict value", err)
	}
	opts, err := concurrencyOption(getConcurrency)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(getTo, 0o755); err != nil {
		return exitError(foundry.ExitFileWriteError, "Cannot create target directory", err)
	}

	s, err := openSession(cmd, opts...)
	if err != nil {
		return err
	}
	defer s.Close()

	bar := newProgress(showProgress(), "downloading", cmd.ErrOrStderr())
	var topts []transfer.Option
	if bar != nil {
		topts = append(topts, transfer.WithProgress(bar.transfer))
	}
	res, err := s.engine.DownloadNodes(cmd.Context(), argNodes(args), getTo, prompter, topts...)
	bar.finish()
	report(cmd, "Downloaded", res)
	return failed("Download failed", err)
}

func runRm(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	var confirmer deletion.Confirmer = newTerminal(cmd.InOrStdin(), cmd.ErrOrStderr())
	if rmYes {
		confirmer = deletion.Always(true)
	}
	bar := newProgress(showProgress(), "deleting", cmd.ErrOrStderr())
	dopts := []deletion.Option{deletion.WithBatchSize(s.cfg.Delete.BatchSize)}
	if bar != nil {
		dopts = append(dopts, deletion.WithProgress(bar.deletion))
	}

	n, err := s.engine.DeleteNodes(cmd.Context(), argNodes(args), confirmer, dopts...)
	bar.finish()
	if n > 0 || err == nil {
		fmt.Fprintf(textOut(cmd), "Deleted %d objects\n", n)
	}
	return failed("Delete failed", err)
}

// argNodes maps command arguments to nodes: a trailing "/" names a folder.
func argNodes(args []string) []node.Node {
	nodes := make([]node.Node, 0, len(args))
	for _, a := range args {
		a = strings.TrimLeft(a, "/")
		if a == "" {
			nodes = append(nodes, node.NewRoot(""))
			continue
		}
		nodes = append(nodes, node.FromPath(a))
	}
	return nodes
}

func report(cmd *cobra.Command, verb string, res transfer.Result) {
	if res.Total == 0 && res.Skipped == 0 {
		return
	}
	msg := fmt.Sprintf("%s %d of %d", verb, res.Completed, res.Total)
	if res.Skipped > 0 {
		msg += fmt.Sprintf(" (%d skipped)", res.Skipped)
	}
	fmt.Fprintln(textOut(cmd), msg)
}
