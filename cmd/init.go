package cmd

import (
	"fmt"

	"walletbot/pkg/home"

	"github.com/spf13/cobra"
)

var initDataDir string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the data directory with a starter config",
	Long:  "Creates the walletbot data directory (default ~/.walletbot) and writes a starter config.json and an empty wallet registry. Existing files are kept.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		root, err := home.Resolve(initDataDir)
		if err != nil {
			return err
		}
		if err := home.Scaffold(root); err != nil {
			return err
		}

		fmt.Printf("initialized %s\n", root)
		fmt.Printf("edit %s and set your channel credentials\n", home.ConfigPath(root))
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initDataDir, "dir", "", "data directory (default ~/.walletbot)")
	rootCmd.AddCommand(initCmd)
}
