package cmd

import (
	"fmt"
	"time"

	"relay/internal/quota"

	"github.com/spf13/cobra"
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Inspect or reset the native-upstream weekly quota ledger",
	Long: `Mirrors the gateway's GET /v1/quota and POST /v1/quota/reset
endpoints for use without a running request — useful for scripting
around scheduled failover windows.`,
}

var quotaStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the quota ledger's current state",
	RunE:  handleQuotaStatus,
}

var quotaResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Manually clear the native-upstream exhausted flag",
	RunE:  handleQuotaReset,
}

func openLedgerForCLI(cmd *cobra.Command) (*quota.Ledger, error) {
	cfg, _, err := loadConfigForCLI(cmd)
	if err != nil {
		return nil, err
	}
	return quota.NewLedger(cfg.Quota.StatePath)
}

func handleQuotaStatus(cmd *cobra.Command, args []string) error {
	ledger, err := openLedgerForCLI(cmd)
	if err != nil {
		return fmt.Errorf("opening quota ledger: %w", err)
	}
	printQuotaState(ledger.Status())
	return nil
}

func handleQuotaReset(cmd *cobra.Command, args []string) error {
	ledger, err := openLedgerForCLI(cmd)
	if err != nil {
		return fmt.Errorf("opening quota ledger: %w", err)
	}
	if err := ledger.ResetNative(); err != nil {
		return fmt.Errorf("resetting quota: %w", err)
	}
	fmt.Println("🔄 Quota ledger reset.")
	printQuotaState(ledger.Status())
	return nil
}

func printQuotaState(state quota.State) {
	fmt.Println("Quota Ledger:")
	fmt.Println("=============")
	if state.Exhausted {
		fmt.Printf("⚠️  Native upstream exhausted since %s\n", state.ExhaustedAt.Format(time.RFC3339))
		fmt.Printf("   Resets at %s\n", state.ResetAt.Format(time.RFC3339))
	} else {
		fmt.Println("✅ Native upstream available")
	}
	fmt.Printf("   Requests served: %d\n", state.RequestCount)
	if !state.LastRequestAt.IsZero() {
		fmt.Printf("   Last request:    %s\n", state.LastRequestAt.Format(time.RFC3339))
	}
}

func init() {
	quotaCmd.AddCommand(quotaStatusCmd)
	quotaCmd.AddCommand(quotaResetCmd)
}
