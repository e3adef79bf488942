package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/pharpack/internal/cache"
	"github.com/Norgate-AV/pharpack/internal/config"
	"github.com/Norgate-AV/pharpack/internal/ui"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the minify cache and build history",
}

var cacheStatsCmd = &cobra.Command{
	Use:          "stats",
	Short:        "Show cache statistics",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(cmd, func(c *cache.Cache) error {
			return printCacheStats(cmd.OutOrStdout(), c)
		})
	},
}

var cacheClearCmd = &cobra.Command{
	Use:          "clear",
	Short:        "Remove all cached sources and build records",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(cmd, func(c *cache.Cache) error {
			if err := c.Clear(); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), ui.Green.Render("Cache cleared."))

			return nil
		})
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func withCache(cmd *cobra.Command, fn func(c *cache.Cache) error) error {
	cfg, err := config.NewLoader().LoadForCommand(cmd)
	if err != nil {
		return err
	}

	c, err := cache.New(cfg.CacheDir)
	if err != nil {
		return err
	}
	defer c.Close()

	return fn(c)
}

func printCacheStats(w io.Writer, c *cache.Cache) error {
	stats, err := c.Stats()
	if err != nil {
		return fmt.Errorf("failed to read cache statistics: %w", err)
	}

	fmt.Fprintln(w, ui.Summary("Cache statistics", []ui.Row{
		{Label: "Directory", Value: c.Dir()},
		{Label: "Minified sources", Value: strconv.Itoa(stats.Minified)},
		{Label: "Recorded builds", Value: strconv.Itoa(stats.Builds)},
		{Label: "Database size", Value: ui.HumanSize(stats.Size)},
	}))

	return nil
}
