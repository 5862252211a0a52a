// Package cli provides the command-line interface for the covers engine.
package cli

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/g1mliii/compact-games-sub000/internal/config"
	"github.com/g1mliii/compact-games-sub000/internal/cover"
	"github.com/g1mliii/compact-games-sub000/internal/cover/catalog"
	"github.com/g1mliii/compact-games-sub000/internal/cover/diskcache"
	"github.com/g1mliii/compact-games-sub000/internal/cover/scanner"
	"github.com/g1mliii/compact-games-sub000/internal/logging"
)

// CLI wires the configured resolver and its tiers for the commands.
type CLI struct {
	Config   *config.Config
	Resolver *cover.Resolver
	Log      zerolog.Logger
}

// NewCLI loads configuration and assembles the resolution cascade.
func NewCLI() (*CLI, error) {
	if err := config.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize configuration: %w", err)
	}
	cfg := config.Get()

	log := logging.New(loggingConfig(cfg))

	disk, err := diskcache.New(cfg.Cache.Dir, diskcache.Options{
		TTL:        time.Duration(cfg.Cache.TTLDays) * 24 * time.Hour,
		MaxEntries: cfg.Cache.MaxEntries,
		Slack:      cfg.Cache.Slack,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cover cache: %w", err)
	}

	local := scanner.New(scanner.Options{
		MaxDepth: cfg.Scanner.MaxDepth,
		MaxFiles: cfg.Scanner.MaxFiles,
	})

	remote := catalog.New(catalog.Options{
		BaseURL:       cfg.Catalog.BaseURL,
		MaxConcurrent: cfg.Catalog.MaxConcurrent,
		MaxQueued:     cfg.Catalog.MaxQueued,
		PermitWait:    cfg.Catalog.PermitWait,
		Timeout:       cfg.Catalog.Timeout,
	})

	resolver := cover.NewResolver(disk, local, remote, cover.Config{
		ResultCapacity: cfg.Resolver.ResultCapacity,
		MaxInFlight:    cfg.Resolver.MaxInFlight,
	})

	lastCredential := cfg.Catalog.Credential
	config.OnConfigChange(func(updated *config.Config) {
		if lastCredential == "" && updated.Catalog.Credential != "" {
			dropped := resolver.RefreshPlaceholders()
			log.Info().Int("dropped", dropped).Msg("catalog credential configured, cached misses invalidated")
		}
		lastCredential = updated.Catalog.Credential
	})
	if err := config.Watch(); err != nil {
		log.Warn().Err(err).Msg("config file watching unavailable")
	}

	return &CLI{
		Config:   cfg,
		Resolver: resolver,
		Log:      log,
	}, nil
}

func loggingConfig(cfg *config.Config) logging.Config {
	lc := logging.DefaultConfig()
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil && cfg.Logging.Level != "" {
		lc.Level = level
	}
	switch cfg.Logging.Format {
	case "json", "console":
		lc.Format = cfg.Logging.Format
	}
	return lc
}

// NewRootCmd creates the root command for covers.
func NewRootCmd(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "covers",
		Short: "Cover-art resolution and caching for installed games",
		Long: `Resolves a representative cover image per game through a tiered cascade:
disk cache, platform library caches, launcher folders, a scored scan of the
install directory, and finally a remote image catalog.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("covers %s\n", version)
			fmt.Printf("commit: %s\n", commit)
			fmt.Printf("built: %s\n", buildDate)
		},
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(NewResolveCmd())
	rootCmd.AddCommand(NewCacheCmd())

	return rootCmd
}
