package cmd

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/YoshihikoAbe/wxmedia/media"
	"github.com/YoshihikoAbe/wxmedia/resolve"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Decrypt every collected .dat file of the account into its resource directory",
	Run:   runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().IntP("workers", "w", 0, "Number of workers. Specify a value less than one, and the number of logical CPUs available to the process will be used")
	exportCmd.Flags().String("aes-key", "", "AES key of V2 containers")
}

func runExport(cmd *cobra.Command, args []string) {
	aesKey, _ := cmd.Flags().GetString("aes-key")
	workers := cfg.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}

	s := openService(aesKey)
	defer s.Close()
	if s.Account.DataDir == "" {
		fatal(fmt.Errorf("no data directory found for account %s", s.Account.Name))
	}

	ctx := context.Background()
	// keys are recovered before the workers start
	s.Keys.Material(ctx)

	start := time.Now()
	ch, err := resolve.Collect(ctx, s.Account.DataDir)
	if err != nil {
		fatal(err)
	}

	var total, exported, failed atomic.Int64
	wg := sync.WaitGroup{}
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for file := range ch {
				total.Add(1)
				if _, err := s.Export(ctx, file); err != nil {
					failed.Add(1)
					if media.IsUnavailable(err) {
						log.Debug().Err(err).Str("path", file.Path).Msg("not exported")
					} else {
						log.Error().Err(err).Str("path", file.Path).Msg("export failed")
					}
					continue
				}
				exported.Add(1)
			}
		}()
	}
	wg.Wait()

	fmt.Printf("exported %d/%d files (%d failed)\n", exported.Load(), total.Load(), failed.Load())
	log.Info().Dur("elapsed", time.Since(start)).Msg("export done")
}
