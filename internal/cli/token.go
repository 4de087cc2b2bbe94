package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// tokenCmd exchanges the configured refresh token
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Exchange the configured refresh token for an access token",
	Long: `Call the TikTok token endpoint with TIKTOK_REFRESH_TOKEN and print the
provider response unchanged.

Example:
  TIKTOK_REFRESH_TOKEN=... captioncast token`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

func init() {
	RootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a := newApp(cfg, newLogger(cfg), false)
	defer a.drainNoticesFor(noticeDrainTimeout)
	resp, err := a.broker.AccessToken(context.Background())
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(resp.Raw))
	if resp.ProviderError() {
		return fmt.Errorf("provider returned status %d", resp.StatusCode)
	}
	return nil
}
