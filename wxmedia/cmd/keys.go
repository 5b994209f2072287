package cmd

import (
	"context"
	"encoding/json"
	"os"

	"github.com/YoshihikoAbe/wxmedia/keyring"
	"github.com/spf13/cobra"
)

// keysCmd represents the keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Recover the account's media keys and save them to " + keyring.KeyFileName,
	Run:   runKeys,
}

func init() {
	rootCmd.AddCommand(keysCmd)

	keysCmd.Flags().String("aes-key", "", "Known AES key. It is validated against a V2 template before being saved")
}

type keysOutput struct {
	XOR *int   `json:"xor"`
	AES string `json:"aes,omitempty"`
}

func runKeys(cmd *cobra.Command, args []string) {
	aesKey, _ := cmd.Flags().GetString("aes-key")
	s := openService(aesKey)
	defer s.Close()

	m := s.Keys.Material(context.Background())
	out := keysOutput{AES: string(m.AES)}
	if m.HasXOR {
		xor := int(m.XOR)
		out.XOR = &xor
	}
	b, err := json.MarshalIndent(out, "", " ")
	if err != nil {
		fatal(err)
	}
	os.Stdout.Write(append(b, '\n'))
}
