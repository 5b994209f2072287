// Package config loads the settings of the wxmedia command from a YAML file,
// WXMEDIA_* environment variables and command line flags.
package config

import (
	"errors"
	"fmt"

	"github.com/YoshihikoAbe/wxmedia/memscan"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	OutputDir string `mapstructure:"output_dir"`
	Account   string `mapstructure:"account"`
	// Workers is the number of export workers. Values below one mean the
	// number of CPUs.
	Workers int `mapstructure:"workers"`

	ScanWorkers     int      `mapstructure:"scan_workers"`
	ScanMaxRegionMB int      `mapstructure:"scan_max_region_mb"`
	ScanChunkMB     int      `mapstructure:"scan_chunk_mb"`
	ProcessNames    []string `mapstructure:"process_names"`

	WxgfDLL      string `mapstructure:"wxgf_dll"`
	MemoCapacity int64  `mapstructure:"memo_capacity"`
	LogLevel     string `mapstructure:"log_level"`
}

// flag names bound to config keys
var flagKeys = map[string]string{
	"output_dir": "output",
	"account":    "account",
	"workers":    "workers",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("output_dir", "output/databases")
	v.SetDefault("account", "")
	v.SetDefault("workers", 0)
	v.SetDefault("scan_workers", memscan.MaxWorkers)
	v.SetDefault("scan_max_region_mb", memscan.DefaultMaxRegion>>20)
	v.SetDefault("scan_chunk_mb", memscan.DefaultChunkSize>>20)
	v.SetDefault("process_names", memscan.DefaultNames)
	v.SetDefault("wxgf_dll", "")
	v.SetDefault("memo_capacity", 4096)
	v.SetDefault("log_level", "info")
}

// Load reads the configuration. file names an explicit config file; when
// empty, wxmedia.yaml is looked up in the usual places and may be absent.
// Flags that were set on the command line take precedence.
func Load(file string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("wxmedia")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.wxmedia")
	}
	setDefaults(v)

	v.SetEnvPrefix("WXMEDIA")
	v.AutomaticEnv()

	if flags != nil {
		for key, name := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("wxmedia/config: read config file: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("wxmedia/config: unmarshal config: %w", err)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return nil, fmt.Errorf("wxmedia/config: log_level: %w", err)
	}
	return &c, nil
}

func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// Scanner returns a memory scanner using the configured limits.
func (c *Config) Scanner() *memscan.Scanner {
	s := memscan.New()
	if len(c.ProcessNames) > 0 {
		s.Names = c.ProcessNames
	}
	if c.ScanMaxRegionMB > 0 {
		s.MaxRegion = uint64(c.ScanMaxRegionMB) << 20
	}
	if c.ScanChunkMB > 0 {
		s.ChunkSize = c.ScanChunkMB << 20
	}
	s.Workers = c.ScanWorkers
	return s
}
