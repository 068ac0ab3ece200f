package cmd

import (
	"fmt"
	"os"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"
	"github.com/tanq16/oglauncher/internal/output"
	"github.com/tanq16/oglauncher/internal/publish"
	"github.com/tanq16/oglauncher/internal/utils"
)

func newPublishCmd() *cobra.Command {
	var version string
	var repoDir string

	cmd := &cobra.Command{
		Use:   "publish [BUNDLE_DIR]",
		Short: "Upload a release bundle and its latest.json manifest",
		Long: `Upload every file in BUNDLE_DIR to the configured S3-compatible bucket, then
write <prefix>/latest.json pointing the updater at the signed bundle.

The version comes from --version, then publish.version in the config, then the
git tag at HEAD of --repo.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.ValidatePublish(); err != nil {
				return err
			}
			info, err := os.Stat(args[0])
			if err != nil || !info.IsDir() {
				return fmt.Errorf("bundle directory %s not found", args[0])
			}
			resolved, err := publish.ResolveVersion(version, cfg.Publish.Version, repoDir)
			if err != nil {
				return err
			}
			uploader, err := publish.NewS3Uploader(cmd.Context(), cfg.Publish)
			if err != nil {
				return err
			}
			p := publish.New(osfs.New(args[0]), uploader, publish.Options{
				Bucket:      cfg.Publish.Bucket,
				Prefix:      cfg.Publish.Prefix,
				BaseURL:     cfg.Publish.BaseURL,
				BundleGlob:  cfg.Publish.BundleGlob,
				Platform:    cfg.Publish.Platform,
				Version:     resolved,
				Concurrency: cfg.Publish.Concurrency,
			})
			output.PrintHeader(fmt.Sprintf("Publishing %s %s", resolved, output.StyleSymbols["arrow"]+" "+cfg.Publish.Bucket))
			res, err := p.Publish(cmd.Context())
			if err != nil {
				output.PrintError("Publish failed")
				return err
			}
			output.PrintSuccess(fmt.Sprintf("%s Uploaded %d files (%s)", output.StyleSymbols["pass"], res.Files, utils.FormatBytes(uint64(res.Bytes))))
			output.PrintDetail(res.Manifest.Platforms[cfg.Publish.Platform].URL)
			return nil
		},
	}

	cmd.Flags().StringVar(&version, "version", "", "Release version (overrides config and git tag)")
	cmd.Flags().StringVar(&repoDir, "repo", ".", "Repository whose HEAD tag supplies the version")
	return cmd
}
