package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewCacheCmd creates the cache maintenance command group.
func NewCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the disk cover cache",
	}

	cacheCmd.AddCommand(newCacheStatsCmd())
	cacheCmd.AddCommand(newCacheEvictCmd())

	return cacheCmd
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show disk cache statistics",
		RunE: func(_ *cobra.Command, _ []string) error {
			cli, err := NewCLI()
			if err != nil {
				return err
			}

			disk := cli.Resolver.DiskCache()
			stats := disk.Stats()

			oldest := "-"
			if !stats.Oldest.IsZero() {
				oldest = humanize.Time(stats.Oldest)
			}

			tw := table.NewWriter()
			tw.SetStyle(table.StyleRounded)
			tw.AppendRow(table.Row{"Directory", disk.Dir()})
			tw.AppendRow(table.Row{"Entries", stats.Entries})
			tw.AppendRow(table.Row{"Total size", humanize.IBytes(uint64(stats.TotalBytes))})
			tw.AppendRow(table.Row{"Oldest entry", oldest})
			tw.AppendRow(table.Row{"Entry cap", cli.Config.Cache.MaxEntries})
			tw.AppendRow(table.Row{"TTL", fmt.Sprintf("%d days", cli.Config.Cache.TTLDays)})
			fmt.Println(tw.Render())
			return nil
		},
	}
}

func newCacheEvictCmd() *cobra.Command {
	var purge bool

	cmd := &cobra.Command{
		Use:   "evict",
		Short: "Run a cache eviction pass now",
		Long:  "Deletes the oldest cached covers until the cache is back under its entry cap. With --purge, deletes every cached cover.",
		RunE: func(_ *cobra.Command, _ []string) error {
			cli, err := NewCLI()
			if err != nil {
				return err
			}

			disk := cli.Resolver.DiskCache()
			before := disk.Stats()
			if purge {
				disk.Purge()
			} else {
				disk.Evict()
			}
			after := disk.Stats()

			fmt.Printf("removed %d of %d entries, %s freed\n",
				before.Entries-after.Entries,
				before.Entries,
				humanize.IBytes(uint64(before.TotalBytes-after.TotalBytes)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&purge, "purge", false, "Delete every cached cover, not just the excess")

	return cmd
}
