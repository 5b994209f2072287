package cmd

import (
	"os"
	"time"

	"github.com/YoshihikoAbe/wxmedia/account"
	"github.com/YoshihikoAbe/wxmedia/config"
	"github.com/YoshihikoAbe/wxmedia/keyring"
	"github.com/YoshihikoAbe/wxmedia/media"
	"github.com/YoshihikoAbe/wxmedia/wxgf"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	quiet   bool

	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wxmedia",
	Short: "Decrypt and resolve media stored by the desktop messaging client",

	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
			With().Timestamp().Logger()

		var err error
		if cfg, err = config.Load(cfgFile, cmd.Flags()); err != nil {
			fatal(err)
		}
		level := cfg.Level()
		switch {
		case verbose:
			level = zerolog.DebugLevel
		case quiet:
			level = zerolog.WarnLevel
		}
		zerolog.SetGlobalLevel(level)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file. By default wxmedia.yaml is searched for in ., ./config and $HOME/.wxmedia")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Directory holding the decrypted accounts")
	rootCmd.PersistentFlags().StringP("account", "a", "", "Account name. The first account is used if empty")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log every fallback step")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only log warnings and errors")
}

func fatal(err error) {
	log.Fatal().Err(err).Send()
}

// openService opens the configured account. aesKey, when set, replaces the
// process memory scan as the source of the AES key.
func openService(aesKey string) *media.Service {
	a, err := account.Open(cfg.OutputDir, cfg.Account)
	if err != nil {
		fatal(err)
	}
	s, err := media.New(serviceOptions(a, "", aesKey))
	if err != nil {
		fatal(err)
	}
	return s
}

func serviceOptions(a *account.Account, root, aesKey string) media.Options {
	var ks keyring.KeySource = cfg.Scanner()
	if aesKey != "" {
		ks = keyring.MemoryKeySource{Key: aesKey}
	}

	opts := media.Options{
		Account:      a,
		Root:         root,
		KeySource:    ks,
		MemoCapacity: cfg.MemoCapacity,
	}
	if cfg.WxgfDLL != "" {
		d, err := wxgf.Load(cfg.WxgfDLL)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.WxgfDLL).Msg("vendor image decoder not loaded")
		} else {
			opts.Wxgf = d
		}
	}
	return opts
}
