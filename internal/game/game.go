// Package game starts the game executable with the player's session tokens.
package game

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// AuthProvider is the first argument the game expects before the token pair.
const AuthProvider = "Firebase"

// LaunchResult is returned once the game process has exited.
const LaunchResult = "OK"

// Args builds the game command line arguments for tok.
func Args(tok *oauth2.Token) []string {
	if tok == nil {
		tok = &oauth2.Token{}
	}
	return []string{AuthProvider, tok.AccessToken, tok.RefreshToken}
}

// Launch runs exe with the session tokens and waits for it to exit. The exit
// status and output of the game are not surfaced; only a failure to start the
// process is an error.
func Launch(ctx context.Context, exe string, tok *oauth2.Token) (string, error) {
	if exe == "" {
		return "", errors.New("error launching game: empty executable path")
	}
	cmd := exec.CommandContext(ctx, exe, Args(tok)...)
	log.Info().Str("op", "game/launch").Str("exe", exe).Msg("starting game")
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", fmt.Errorf("error launching game %s: %v", exe, err)
		}
		log.Debug().Str("op", "game/launch").Int("code", exitErr.ExitCode()).Msg("game exited with non-zero status")
	}
	log.Debug().Str("op", "game/launch").Int("output_bytes", len(out)).Msg("game process finished")
	return LaunchResult, nil
}
