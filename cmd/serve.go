package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/oglauncher/internal/bridge"
	"github.com/tanq16/oglauncher/internal/desktop"
	"github.com/tanq16/oglauncher/internal/fsutil"
	"github.com/tanq16/oglauncher/internal/game"
	"github.com/tanq16/oglauncher/internal/instance"
	"github.com/tanq16/oglauncher/internal/progress"
	"github.com/tanq16/oglauncher/internal/transfer"
	"github.com/tanq16/oglauncher/internal/utils"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the launcher core (default when no command is given)",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	coordinator := &instance.Coordinator{
		Options: instance.Options{Name: cfg.Instance.Name, Dir: cfg.Instance.LockDir},
		Primary: runPrimary,
	}
	role, err := coordinator.Run(ctx, instance.CurrentSignal())
	if err != nil {
		log.Error().Str("op", "cmd/serve").Str("role", role.String()).Err(err).Msg("launcher startup failed")
		return err
	}
	return nil
}

// runPrimary builds everything a secondary launch never constructs.
func runPrimary(ctx context.Context, claim *instance.Claim) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hub := progress.NewHub()
	defer hub.Close()
	engine := transfer.NewEngine(utils.NewLauncherHTTPClient(cfg.HTTPClientConfig()), hub)
	window := desktop.NewHeadlessWindow()
	tray := desktop.NewDispatcher(window, func(code int) {
		log.Info().Str("op", "cmd/serve").Int("code", code).Msg("shutting down")
		cancel()
	})

	if err := claim.Listen(ctx, func(instance.Signal) { desktop.Activate(window) }); err != nil {
		return err
	}

	server := bridge.New(cfg.Bridge.Addr, bridge.Deps{
		Transfers: engine,
		Files:     fsutil.NewOS(),
		Hub:       hub,
		Tray:      tray,
		Launch:    game.Launch,
		Origins:   cfg.Bridge.AllowedOrigins,
	})
	tokenPath := filepath.Join(cfg.Instance.LockDir, cfg.Instance.Name+".token")
	if err := server.WriteToken(tokenPath); err != nil {
		return err
	}
	defer os.Remove(tokenPath)
	log.Info().Str("op", "cmd/serve").Str("token_file", tokenPath).Msg("bridge token written")

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Debug().Str("op", "cmd/serve").Err(err).Msg("bridge shutdown")
	}
	return serveErr
}
