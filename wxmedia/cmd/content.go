package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/YoshihikoAbe/wxmedia/msgcodec"
	"github.com/spf13/cobra"
)

// contentCmd represents the content command
var contentCmd = &cobra.Command{
	Use:   "content [FILE]",
	Short: "Decode message content, reading raw bytes from FILE or standard input",
	Args:  cobra.MaximumNArgs(1),
	Run:   runContent,
}

func init() {
	rootCmd.AddCommand(contentCmd)

	contentCmd.Flags().String("hex", "", "Hex encoded content")
}

func runContent(cmd *cobra.Command, args []string) {
	if h, _ := cmd.Flags().GetString("hex"); h != "" {
		text, err := msgcodec.DecodeHex(h)
		if err != nil {
			fatal(err)
		}
		fmt.Println(text)
		return
	}

	var (
		b   []byte
		err error
	)
	if len(args) > 0 {
		b, err = os.ReadFile(args[0])
	} else {
		b, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		fatal(err)
	}
	fmt.Println(msgcodec.Decode(nil, b))
}
