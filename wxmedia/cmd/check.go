package cmd

import (
	"encoding/json"
	"os"

	"github.com/YoshihikoAbe/wxmedia/account"
	"github.com/YoshihikoAbe/wxmedia/resource"
	"github.com/spf13/cobra"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Audit the account's resource directory",
	Run:   runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) {
	a, err := account.Open(cfg.OutputDir, cfg.Account)
	if err != nil {
		fatal(err)
	}

	result, err := resource.New(a.ResourceDir()).Check()
	if err != nil {
		fatal(err)
	}
	b, err := json.MarshalIndent(result, "", " ")
	if err != nil {
		fatal(err)
	}
	os.Stdout.Write(b)
}
