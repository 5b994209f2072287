package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// resolveCmd represents the resolve command
var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Print the file a media item is stored in",
	Run: func(cmd *cobra.Command, args []string) {
		req := requestFromFlags(cmd)
		s := openService("")
		defer s.Close()

		res, err := s.Resolver.Resolve(context.Background(), req)
		if err != nil {
			fatal(err)
		}
		fmt.Println(res.Path, res.Via)
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
	addRequestFlags(resolveCmd)
}
