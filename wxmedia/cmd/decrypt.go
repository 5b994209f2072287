package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/YoshihikoAbe/wxmedia/account"
	"github.com/YoshihikoAbe/wxmedia/media"
	"github.com/YoshihikoAbe/wxmedia/resource"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// decryptCmd represents the decrypt command
var decryptCmd = &cobra.Command{
	Use:   "decrypt FILES...",
	Short: "Decrypt loose .dat files, writing FILE.<ext> next to each",
	Args:  cobra.MinimumNArgs(1),
	Run:   runDecrypt,
}

func init() {
	rootCmd.AddCommand(decryptCmd)

	decryptCmd.Flags().StringP("root", "r", "", "Data directory holding the template files keys are recovered from. Defaults to the account's")
	decryptCmd.Flags().String("aes-key", "", "AES key of V2 containers. By default it is read from the key file or recovered from process memory")
}

func runDecrypt(cmd *cobra.Command, args []string) {
	root, _ := cmd.Flags().GetString("root")
	aesKey, _ := cmd.Flags().GetString("aes-key")

	a, err := account.Open(cfg.OutputDir, cfg.Account)
	if err != nil {
		log.Debug().Err(err).Msg("decrypting without an account")
	}
	s, err := media.New(serviceOptions(a, root, aesKey))
	if err != nil {
		fatal(err)
	}
	defer s.Close()

	ctx := context.Background()
	noDec := 0
	for _, name := range args {
		enc, err := os.ReadFile(name)
		if err != nil {
			fatal(err)
		}

		res, err := s.Decode(ctx, enc, name)
		if err != nil {
			fmt.Fprintln(os.Stderr, name+": decrypt failed:", err)
			continue
		}

		outName := name + "." + resource.Extension(res.MediaType, name)
		if err := os.WriteFile(outName, res.Data, 0644); err != nil {
			fatal(err)
		}
		noDec++
		fmt.Println(name, "->", outName, "("+res.Descriptor.Generation.String()+")")
	}
	fmt.Printf("decrypted %d/%d files\n", noDec, len(args))
}
