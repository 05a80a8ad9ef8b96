package cmd

import (
	"fmt"

	"walletbot/pkg/config"
	"walletbot/pkg/wallet"

	"github.com/spf13/cobra"
)

var walletsCmd = &cobra.Command{
	Use:   "wallets",
	Short: "Manage the wallet registry from the command line",
}

var walletsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print all configured wallets",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}

		wallets, err := store.List()
		if err != nil {
			return err
		}
		if len(wallets) == 0 {
			fmt.Println("no wallets configured")
			return nil
		}

		for _, w := range wallets {
			fmt.Printf("%-16s %-24s %s\n", w.Company, w.Name, w.Address)
		}
		return nil
	},
}

var walletsAddCmd = &cobra.Command{
	Use:   "add <company> <name> <address>",
	Short: "Register a wallet",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}

		w := wallet.Wallet{Company: args[0], Name: args[1], Address: args[2]}
		if err := store.Add(w); err != nil {
			return err
		}

		fmt.Printf("added %s (%s)\n", w.Name, w.Address)
		return nil
	},
}

var walletsRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a wallet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}

		removed, err := store.Remove(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("removed %s (%s)\n", removed.Name, removed.Address)
		return nil
	},
}

func init() {
	walletsCmd.AddCommand(walletsListCmd)
	walletsCmd.AddCommand(walletsAddCmd)
	walletsCmd.AddCommand(walletsRemoveCmd)
	rootCmd.AddCommand(walletsCmd)
}

func openStore() (*wallet.Store, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	path := cfg.Wallets.File
	if path == "" {
		path = "wallets.json"
	}
	return wallet.NewStore(path, nil), nil
}
