package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"relay/internal/config"
	"relay/internal/credential"

	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage upstream OAuth credentials",
	Long: `Manage the OAuth credential relay uses to authenticate against
its upstream backends.

Relay holds exactly one active credential at a time (spec.md §3
OAuthKey), sourced with this precedence:
  1. an environment variable holding a static access token
  2. a git-credentials file entry
  3. a JSON config file with {accessToken, refreshToken, expiresAt}

Only the third source supports background refresh.`,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active credential's status",
	RunE:  handleAuthStatus,
}

var authAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Write a dynamic OAuth credential to the conventional config file",
	Long: `Prompts for an access token, refresh token, and expiry, then
writes them to the JSON config file this relay instance watches
(spec.md §4.3 CredentialFileWatcher picks it up on the next poll).

Leave the refresh token blank to store a static key (spec.md §3: a
static key's expires_at is always recorded as 0 and is never
refreshed).`,
	RunE: handleAuthAdd,
}

func handleAuthStatus(cmd *cobra.Command, args []string) error {
	cfg, dataDir, err := loadConfigForCLI(cmd)
	if err != nil {
		return err
	}

	path := cfg.OAuth.CredentialFile
	if path == "" {
		path = dataDir + "/credentials.json"
	}

	fmt.Println("Credential Status:")
	fmt.Println("==================")

	key, err := credential.LoadFile(path)
	if err != nil {
		fmt.Printf("❌ Error reading %s: %v\n", path, err)
		return nil
	}
	if key == nil {
		fmt.Printf("❌ No dynamic credential file at %s\n", path)
		fmt.Println()
		fmt.Println("Checked sources, in precedence order:")
		if cfg.OAuth.EnvAccessToken != "" {
			if os.Getenv(cfg.OAuth.EnvAccessToken) != "" {
				fmt.Printf("  ✅ env var %s is set (static)\n", cfg.OAuth.EnvAccessToken)
			} else {
				fmt.Printf("  ❌ env var %s is not set\n", cfg.OAuth.EnvAccessToken)
			}
		}
		if cfg.OAuth.GitCredentialsFile != "" {
			fmt.Printf("  - git-credentials file: %s\n", cfg.OAuth.GitCredentialsFile)
		}
		fmt.Printf("  - config file: %s\n", path)
		return nil
	}

	if key.IsStatic() {
		fmt.Printf("✅ Static key loaded from %s (no refresh)\n", path)
		return nil
	}

	expires := time.UnixMilli(key.ExpiresAt)
	remaining := time.Until(expires)
	if remaining <= 0 {
		fmt.Printf("⚠️  Key loaded from %s: expired %s ago, refresh needed\n", path, -remaining.Round(time.Second))
	} else {
		fmt.Printf("✅ Key loaded from %s: expires in ~%.0f minutes\n", path, remaining.Minutes())
	}
	return nil
}

func handleAuthAdd(cmd *cobra.Command, args []string) error {
	cfg, dataDir, err := loadConfigForCLI(cmd)
	if err != nil {
		return err
	}
	path := cfg.OAuth.CredentialFile
	if path == "" {
		path = dataDir + "/credentials.json"
	}

	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Access token: ")
	accessToken, err := readLine(reader)
	if err != nil {
		return err
	}
	if accessToken == "" {
		return fmt.Errorf("access token is required")
	}

	fmt.Print("Refresh token (blank for a static key): ")
	refreshToken, err := readLine(reader)
	if err != nil {
		return err
	}

	var expiresAt int64
	if refreshToken != "" {
		fmt.Print("Expires in seconds from now: ")
		raw, err := readLine(reader)
		if err != nil {
			return err
		}
		seconds, parseErr := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if parseErr != nil {
			return fmt.Errorf("invalid expiry: %w", parseErr)
		}
		expiresAt = time.Now().Add(time.Duration(seconds) * time.Second).UnixMilli()
	}

	key := credential.OAuthKey{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		ClientID:     cfg.OAuth.ClientID,
	}
	if err := credential.SaveFile(path, key); err != nil {
		return fmt.Errorf("writing credential file: %w", err)
	}

	fmt.Println()
	fmt.Println("🎉 Credential saved!")
	fmt.Printf("   📁 %s\n", path)
	if key.IsStatic() {
		fmt.Println("   🔒 Static key — automatic refresh disabled")
	} else {
		fmt.Println("   🔄 Automatic refresh enabled")
	}
	fmt.Println()
	fmt.Println("A running relay instance's CredentialFileWatcher will pick this up")
	fmt.Println("within its poll interval (default 5s); no restart required.")

	return nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// loadConfigForCLI loads config the way rootCmd's RunE does, for
// subcommands that need it but don't boot the gateway server.
func loadConfigForCLI(cmd *cobra.Command) (*config.Config, string, error) {
	explicitConfig, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(explicitConfig)
	if err != nil {
		return nil, "", err
	}
	dataDir, err := config.DataDir()
	if err != nil {
		return nil, "", err
	}
	return cfg, dataDir, nil
}

func init() {
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authAddCmd)
}
