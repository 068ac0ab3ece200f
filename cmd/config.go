package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tanq16/oglauncher/internal/config"
	"github.com/tanq16/oglauncher/internal/output"
	"github.com/tanq16/oglauncher/internal/utils"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the launcher configuration file",
		// the file may not exist yet, so skip loading it
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			utils.InitLogger(debug)
			return nil
		},
	}

	var path string
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = cfgFile
			}
			if path == "" {
				var err error
				if path, err = config.DefaultPath(); err != nil {
					return err
				}
			}
			if err := config.WriteDefault(path, force); err != nil {
				return err
			}
			output.PrintSuccess("Wrote " + path)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&path, "output", "o", "", "Where to write the file (default is --config or $HOME/.oglauncher.yaml)")
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")

	cmd.AddCommand(initCmd)
	return cmd
}
