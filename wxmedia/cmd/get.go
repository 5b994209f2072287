package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/YoshihikoAbe/wxmedia/media"
	"github.com/YoshihikoAbe/wxmedia/resolve"
	"github.com/spf13/cobra"
)

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Resolve, decrypt and cache one media item",
	Run:   runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
	addRequestFlags(getCmd)

	getCmd.Flags().StringP("out", "O", "", "Write the media to this file instead of printing its cached path")
	getCmd.Flags().String("aes-key", "", "AES key of V2 containers")
}

func addRequestFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("kind", "k", "image", "Media kind: image, emoji, video, video_thumb or file")
	cmd.Flags().String("md5", "", "Content hash")
	cmd.Flags().String("file-id", "", "File identifier, used when no content hash is known")
	cmd.Flags().StringP("username", "u", "", "Conversation the media was sent in")
}

func requestFromFlags(cmd *cobra.Command) resolve.Request {
	kindName, _ := cmd.Flags().GetString("kind")
	kind, err := resolve.ParseKind(kindName)
	if err != nil {
		fatal(err)
	}
	md5, _ := cmd.Flags().GetString("md5")
	fileID, _ := cmd.Flags().GetString("file-id")
	username, _ := cmd.Flags().GetString("username")
	return resolve.Request{
		Kind:     kind,
		MD5:      md5,
		FileID:   fileID,
		Username: username,
	}
}

func runGet(cmd *cobra.Command, args []string) {
	out, _ := cmd.Flags().GetString("out")
	aesKey, _ := cmd.Flags().GetString("aes-key")
	req := requestFromFlags(cmd)

	s := openService(aesKey)
	defer s.Close()

	res, err := s.Open(context.Background(), req)
	if err != nil {
		if res == nil || !media.IsUnavailable(err) {
			fatal(err)
		}
		fmt.Fprintln(os.Stderr, "serving source bytes:", err)
	}

	if out == "" {
		fmt.Println(res.Path, res.MediaType, res.Via)
		return
	}
	if err := os.WriteFile(out, res.Data, 0644); err != nil {
		fatal(err)
	}
	fmt.Println(res.Path, "->", out)
}
