package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/oglauncher/internal/config"
	"github.com/tanq16/oglauncher/internal/utils"
)

var (
	cfgFile   string
	debug     bool
	timeout   time.Duration
	kaTimeout time.Duration
	userAgent string
	proxyURL  string
	cfg       *config.Config
)

var LauncherVersion = "dev"

var rootCmd = &cobra.Command{
	Use:   "oglauncher",
	Short: "Open game launcher background service and transfer tool",
	Long: `Runs the launcher core: the single-instance guard, the transfer engine and the
loopback bridge the launcher frontend talks to. A second launch hands its
arguments to the running instance and exits.`,
	Version:       LauncherVersion,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("debug") {
			loaded.Log.Debug = debug
		}
		if flags.Changed("timeout") {
			loaded.HTTP.Timeout = timeout
		}
		if flags.Changed("keep-alive-timeout") {
			loaded.HTTP.KeepAliveTimeout = kaTimeout
		}
		if flags.Changed("user-agent") {
			loaded.HTTP.UserAgent = userAgent
		}
		if flags.Changed("proxy") {
			loaded.HTTP.Proxy = proxyURL
		}
		utils.InitLogger(loaded.Log.Debug)
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %v", err)
		}
		cfg = loaded
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default is $HOME/.oglauncher.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 0, "HTTP request timeout, 0 for none (eg. 5s, 10m)")
	rootCmd.PersistentFlags().DurationVarP(&kaTimeout, "keep-alive-timeout", "k", 90*time.Second, "Keep-alive timeout for client (eg. 10s, 1m, 80s)")
	rootCmd.PersistentFlags().StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent")
	rootCmd.PersistentFlags().StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newDownloadCmd())
	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newLaunchCmd())
	rootCmd.AddCommand(newPublishCmd())
	rootCmd.AddCommand(newConfigCmd())
}
