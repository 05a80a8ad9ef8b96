package cmd

import (
	"context"
	"fmt"
	"time"

	"walletbot/pkg/balance"
	"walletbot/pkg/config"
	"walletbot/pkg/wallet"

	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Fetch all wallet balances and print the report",
	Long:  "Runs one balance sweep over the configured wallets and prints the report to stdout. The scheduled in-chat report runs inside the gateway.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		path := cfg.Wallets.File
		if path == "" {
			path = "wallets.json"
		}
		store := wallet.NewStore(path, nil)

		wallets, err := store.List()
		if err != nil {
			return err
		}
		if len(wallets) == 0 {
			fmt.Println("no wallets configured")
			return nil
		}

		client := balance.NewClient(balance.Options{
			APIKey:       cfg.Tron.APIKey,
			Endpoints:    cfg.Tron.Endpoints,
			USDTContract: cfg.Tron.USDTContract,
		}, nil)

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		balances := client.FetchAll(ctx, wallets)

		var total float64
		for _, b := range balances {
			if b.Err != nil {
				fmt.Printf("%-16s %-24s fetch failed: %v\n", b.Company, b.WalletName, b.Err)
				continue
			}
			total += b.USDT
			fmt.Printf("%-16s %-24s %14.2f USDT %14.2f TRX\n", b.Company, b.WalletName, b.USDT, b.TRX)
		}
		fmt.Printf("%-16s %-24s %14.2f USDT\n", "", "TOTAL", total)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
}
