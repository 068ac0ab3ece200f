package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tanq16/oglauncher/internal/game"
	"golang.org/x/oauth2"
)

func newLaunchCmd() *cobra.Command {
	var accessToken string
	var refreshToken string

	cmd := &cobra.Command{
		Use:   "launch [EXE]",
		Short: "Start the game with a session token pair and wait for it to exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := game.Launch(cmd.Context(), args[0], &oauth2.Token{
				AccessToken:  accessToken,
				RefreshToken: refreshToken,
			})
			if err != nil {
				return err
			}
			fmt.Println(res)
			return nil
		},
	}

	cmd.Flags().StringVar(&accessToken, "access-token", "", "Session access token")
	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "Session refresh token")
	return cmd
}
