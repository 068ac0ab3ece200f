package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/tanq16/oglauncher/internal/output"
	"github.com/tanq16/oglauncher/internal/scheduler"
	"github.com/tanq16/oglauncher/internal/transfer"
	"github.com/tanq16/oglauncher/internal/utils"
)

// runTransfers drives reqs through the engine with a live terminal display.
func runTransfers(ctx context.Context, reqs []transfer.Request) ([]scheduler.Result, error) {
	mgr := output.NewManager(os.Stdout)
	engine := transfer.NewEngine(utils.NewLauncherHTTPClient(cfg.HTTPClientConfig()), mgr)
	mgr.StartDisplay()
	results, err := scheduler.Run(ctx, engine, mgr, reqs)
	mgr.StopDisplay()
	return results, err
}

// parseItem splits "url=path"; the last "=" separates them so query strings survive.
func parseItem(item string) (string, string, error) {
	i := strings.LastIndex(item, "=")
	if i <= 0 || i == len(item)-1 {
		return "", "", fmt.Errorf("invalid item %q, expected URL=PATH", item)
	}
	return item[:i], item[i+1:], nil
}

func newDownloadCmd() *cobra.Command {
	var outputPath string
	var id string
	var items []string

	cmd := &cobra.Command{
		Use:   "download [URL] [--output OUTPUT_PATH]",
		Short: "Download files over HTTP/HTTPS with progress",
		Long: `Download one URL to --output, or several with repeated --item URL=PATH.
All downloads run at the same time.

Examples:
  oglauncher download https://cdn.example.com/game.pak -o game.pak
  oglauncher download --item https://cdn.example.com/a.pak=a.pak --item https://cdn.example.com/b.pak=b.pak`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var reqs []transfer.Request
			if len(args) == 1 {
				if outputPath == "" {
					return fmt.Errorf("--output is required with a URL argument")
				}
				if id == "" {
					id = uuid.NewString()
				}
				reqs = append(reqs, transfer.Request{CorrelationID: id, Direction: transfer.Download, RemoteURL: args[0], LocalPath: outputPath})
			}
			for _, item := range items {
				url, path, err := parseItem(item)
				if err != nil {
					return err
				}
				reqs = append(reqs, transfer.Request{CorrelationID: uuid.NewString(), Direction: transfer.Download, RemoteURL: url, LocalPath: path})
			}
			if len(reqs) == 0 {
				return fmt.Errorf("no URL or --item provided")
			}
			_, err := runTransfers(cmd.Context(), reqs)
			if err != nil {
				output.PrintError("Encountered failed operation(s)")
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path")
	cmd.Flags().StringVar(&id, "id", "", "Correlation id for progress events (random if not provided)")
	cmd.Flags().StringArrayVar(&items, "item", []string{}, "Additional URL=PATH pair; can be specified multiple times")
	return cmd
}

func newUploadCmd() *cobra.Command {
	var id string
	var headers []string

	cmd := &cobra.Command{
		Use:   "upload [URL] [FILE]",
		Short: "Upload a file with HTTP PUT and print the response body",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				id = uuid.NewString()
			}
			req := transfer.Request{
				CorrelationID: id,
				Direction:     transfer.Upload,
				RemoteURL:     args[0],
				LocalPath:     args[1],
				Headers:       utils.ParseHeaderArgs(headers),
			}
			results, err := runTransfers(cmd.Context(), []transfer.Request{req})
			if err != nil {
				output.PrintError("Upload failed")
				return err
			}
			fmt.Println(results[0].Body)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Correlation id for progress events (random if not provided)")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'X-Auth: abc'); can be specified multiple times")
	return cmd
}
