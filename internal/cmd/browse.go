package cmd

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/3leaps/ossbrowse/pkg/node"
	"github.com/3leaps/ossbrowse/pkg/output"
)

var lsFoldersOnly bool

var lsCmd = &cobra.Command{
	Use:   "ls [prefix]",
	Short: "List one level of the bucket",
	Long: `List the folders and files directly under a prefix.

Examples:
  ossbrowse ls
  ossbrowse ls photos/2024/
  ossbrowse ls photos --folders-only`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLs,
}

var treeCmd = &cobra.Command{
	Use:   "tree [prefix]",
	Short: "List every key under a prefix",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTree,
}

var headCmd = &cobra.Command{
	Use:   "head <key>",
	Short: "Show object metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runHead,
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <prefix>",
	Short: "Create an empty folder",
	Args:  cobra.ExactArgs(1),
	RunE:  runMkdir,
}

var urlCmd = &cobra.Command{
	Use:   "url <key>",
	Short: "Print a shareable link to an object",
	Long: `Print a link to an object: the CDN URL when the credential has a
cdn_base_url, otherwise a presigned GET URL.`,
	Args: cobra.ExactArgs(1),
	RunE: runURL,
}

func init() {
	rootCmd.AddCommand(lsCmd, treeCmd, headCmd, mkdirCmd, urlCmd)
	lsCmd.Flags().BoolVar(&lsFoldersOnly, "folders-only", false, "Omit files")
}

// folderArg normalizes an optional prefix argument to "" or "a/b/".
func folderArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	p := strings.TrimLeft(args[0], "/")
	if p != "" && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

func runLs(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := cmd.Context()

	prefix := folderArg(args)
	children, err := s.engine.Children(ctx, prefix, !lsFoldersOnly)
	if err != nil {
		return failed("List failed", err)
	}

	tw := tabwriter.NewWriter(textOut(cmd), 0, 0, 2, ' ', 0)
	for _, c := range children {
		p, _ := node.Path(c)
		if err := s.out.WriteNode(ctx, &output.NodeRecord{Kind: string(c.Kind()), Name: c.DisplayName(), Path: p}); err != nil {
			return err
		}
		name := c.DisplayName()
		if c.Kind() == node.KindFolder {
			name += "/"
		}
		fmt.Fprintf(tw, "%s\t%s\n", c.Kind(), name)
	}
	return tw.Flush()
}

func runTree(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := cmd.Context()

	keys, err := s.engine.Keys(ctx, folderArg(args))
	if err != nil {
		return failed("Listing failed", err)
	}
	sort.Strings(keys)

	w := textOut(cmd)
	for _, k := range keys {
		kind := node.KindFile
		if strings.HasSuffix(k, "/") {
			kind = node.KindFolder
		}
		if err := s.out.WriteNode(ctx, &output.NodeRecord{Kind: string(kind), Name: node.Name(k), Path: k}); err != nil {
			return err
		}
		fmt.Fprintln(w, k)
	}
	return nil
}

func runHead(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := cmd.Context()

	meta, err := s.engine.Head(ctx, node.NewFile(strings.TrimLeft(args[0], "/")))
	if err != nil {
		return failed("Head failed", err)
	}
	rec := &output.ObjectRecord{
		Key:          meta.Key,
		Size:         meta.Size,
		ETag:         meta.ETag,
		LastModified: meta.LastModified,
		ContentType:  meta.ContentType,
		StorageClass: meta.StorageClass,
		Metadata:     meta.Metadata,
	}
	if err := s.out.WriteObject(ctx, rec); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(textOut(cmd), 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Key:\t%s\n", rec.Key)
	fmt.Fprintf(tw, "Size:\t%d\n", rec.Size)
	fmt.Fprintf(tw, "ETag:\t%s\n", rec.ETag)
	fmt.Fprintf(tw, "Last-Modified:\t%s\n", rec.LastModified.Format(time.RFC3339))
	if rec.ContentType != "" {
		fmt.Fprintf(tw, "Content-Type:\t%s\n", rec.ContentType)
	}
	if rec.StorageClass != "" {
		fmt.Fprintf(tw, "Storage-Class:\t%s\n", rec.StorageClass)
	}
	keys := make([]string, 0, len(rec.Metadata))
	for k := range rec.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(tw, "x-amz-meta-%s:\t%s\n", k, rec.Metadata[k])
	}
	return tw.Flush()
}

func runMkdir(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := cmd.Context()

	f, err := s.engine.CreateFolder(ctx, args[0])
	if err != nil {
		return failed("Create folder failed", err)
	}
	if err := s.out.WriteNode(ctx, &output.NodeRecord{Kind: string(f.Kind()), Name: f.DisplayName(), Path: f.Prefix()}); err != nil {
		return err
	}
	fmt.Fprintf(textOut(cmd), "Created %s\n", f.Prefix())
	return nil
}

func runURL(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := cmd.Context()

	key := strings.TrimLeft(args[0], "/")
	link, presigned, err := s.engine.URL(ctx, key)
	if err != nil {
		return failed("URL failed", err)
	}
	rec := &output.URLRecord{Key: key, URL: link, Presigned: presigned}
	if presigned {
		rec.ExpiresIn = s.cred.Expiry().String()
	}
	if err := s.out.WriteURL(ctx, rec); err != nil {
		return err
	}
	fmt.Fprintln(textOut(cmd), link)
	return nil
}
