package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"relay/internal/config"
	"relay/internal/credential"
	"relay/internal/gatewayhttp"
	"relay/internal/legacyapi"
	"relay/internal/logging"
	"relay/internal/nativeapi"
	"relay/internal/quota"
	"relay/internal/router"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Local Anthropic-compatible API gateway",
	Long: `Relay is a local gateway that accepts Anthropic Messages API
requests and routes them to a native Anthropic-wire upstream, a
legacy OpenAI-wire upstream, or both in hybrid mode with automatic
quota-exhaustion failover.`,
	Example: `
  # Start the gateway with the configured default mode
  relay

  # Force hybrid mode and a custom port
  relay --mode hybrid --http-port 8080

  # Check credential status
  relay auth status

  # Check quota ledger status
  relay quota status
  `,
	RunE: func(cmd *cobra.Command, args []string) error {
		debug, _ := cmd.Flags().GetBool("debug")
		cwd, _ := cmd.Flags().GetString("cwd")
		explicitConfig, _ := cmd.Flags().GetString("config")
		httpPort, _ := cmd.Flags().GetInt("http-port")
		httpHost, _ := cmd.Flags().GetString("http-host")
		modeOverride, _ := cmd.Flags().GetString("mode")

		if cwd != "" {
			if err := os.Chdir(cwd); err != nil {
				return fmt.Errorf("failed to change directory: %w", err)
			}
		}

		logging.SetDebug(debug)

		cfg, err := config.Load(explicitConfig)
		if err != nil {
			return err
		}
		if httpPort > 0 {
			cfg.HTTP.Port = httpPort
		}
		if httpHost != "" {
			cfg.HTTP.Host = httpHost
		}
		if modeOverride != "" {
			cfg.Mode = config.Mode(modeOverride)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return runGateway(ctx, cfg)
	},
}

// runGateway wires every backend the router depends on and blocks
// serving HTTP until ctx is cancelled (spec.md §5 "SIGINT ⇒ stop
// accepting, drain in-flight by connection close").
func runGateway(ctx context.Context, cfg *config.Config) error {
	dataDir, err := config.DataDir()
	if err != nil {
		return err
	}

	credStore := credential.NewStore()
	key, err := credential.Load(credentialSources(cfg, dataDir))
	if err != nil {
		return fmt.Errorf("loading credential: %w", err)
	}
	if key == nil {
		return fmt.Errorf("no credential source yielded a key; mode %q requires one (spec.md §6 fatal startup)", cfg.Mode)
	}
	credStore.SetIfNewer(*key)

	ledger, err := quota.NewLedger(cfg.Quota.StatePath)
	if err != nil {
		return fmt.Errorf("opening quota ledger: %w", err)
	}

	var nativeClient *nativeapi.Passthrough
	var tokenCounter *nativeapi.TokenCounter
	if cfg.Native.BaseURL != "" {
		nativeClient = nativeapi.New(cfg.Native.BaseURL, cfg.Native.Headers)
		token := ""
		if key != nil {
			token = key.AccessToken
		}
		tokenCounter = nativeapi.NewTokenCounter(cfg.Native.BaseURL, token, cfg.Native.Headers)
	} else {
		tokenCounter = nativeapi.NewTokenCounter("", "", nil)
	}

	var legacyClient *legacyapi.Client
	if cfg.Legacy.BaseURL != "" {
		legacyClient = legacyapi.New(cfg.Legacy.BaseURL, cfg.Legacy.Headers)
	}

	if cfg.Mode == config.ModeNative && nativeClient == nil {
		return fmt.Errorf("mode native requires native.baseURL to be configured")
	}
	if cfg.Mode == config.ModeLegacy && legacyClient == nil {
		return fmt.Errorf("mode legacy requires legacy.baseURL to be configured")
	}
	if cfg.Mode == config.ModeHybrid && (nativeClient == nil || legacyClient == nil) {
		return fmt.Errorf("mode hybrid requires both native.baseURL and legacy.baseURL to be configured")
	}

	rt := router.New(cfg, credStore, ledger, nativeClient, tokenCounter, legacyClient)

	watcher := credential.NewFileWatcher(credentialSources(cfg, dataDir).CredentialFile, credStore)
	go watcher.Run(ctx)

	if key != nil && !key.IsStatic() && cfg.OAuth.RefreshURL != "" {
		refreshClient := credential.NewRefreshClient(cfg.OAuth.RefreshURL)
		refresher := credential.NewRefresher(credStore, refreshClient, cfg.OAuth.CredentialFile)
		go refresher.Run(ctx)
	}

	server := gatewayhttp.New(cfg, rt, ledger, tokenCounter)
	return server.Run(ctx)
}

// credentialSources translates cfg's OAuth section into the
// precedence-ordered lookup spec.md §6 describes.
func credentialSources(cfg *config.Config, dataDir string) credential.Sources {
	credFile := cfg.OAuth.CredentialFile
	if credFile == "" {
		credFile = dataDir + "/credentials.json"
	}
	return credential.Sources{
		EnvVar:             cfg.OAuth.EnvAccessToken,
		GitCredentialsFile: cfg.OAuth.GitCredentialsFile,
		CredentialFile:     credFile,
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug logging")
	rootCmd.PersistentFlags().StringP("cwd", "c", "", "Working directory")
	rootCmd.PersistentFlags().String("config", "", "Explicit config file path")
	rootCmd.Flags().Int("http-port", 0, "HTTP listen port (0 = use config default)")
	rootCmd.Flags().String("http-host", "", "HTTP listen host (empty = use config default)")
	rootCmd.Flags().String("mode", "", "Upstream mode: native, legacy, or hybrid (empty = use config default)")

	rootCmd.RegisterFlagCompletionFunc("mode", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"native", "legacy", "hybrid"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(quotaCmd)
}
