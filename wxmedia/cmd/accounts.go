package cmd

import (
	"fmt"

	"github.com/YoshihikoAbe/wxmedia/account"
	"github.com/spf13/cobra"
)

// accountsCmd represents the accounts command
var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List decrypted accounts",
	Run: func(cmd *cobra.Command, args []string) {
		names, err := account.List(cfg.OutputDir)
		if err != nil {
			fatal(err)
		}
		for _, name := range names {
			fmt.Println(name)
		}
	},
}

func init() {
	rootCmd.AddCommand(accountsCmd)
}
