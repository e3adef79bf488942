package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/pharpack/internal/cache"
	"github.com/Norgate-AV/pharpack/internal/config"
	"github.com/Norgate-AV/pharpack/internal/ui"
)

var historyCmd = &cobra.Command{
	Use:          "history",
	Short:        "List recorded builds",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := config.NewLoader().LoadForCommand(cmd)
		if err != nil {
			return err
		}

		c, err := cache.New(cfg.CacheDir)
		if err != nil {
			return err
		}
		defer c.Close()

		return printHistory(cmd.OutOrStdout(), c, limit)
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 10, "Number of builds to show (0 for all)")
	rootCmd.AddCommand(historyCmd)
}

func printHistory(w io.Writer, c *cache.Cache, limit int) error {
	records, err := c.History(limit)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Fprintln(w, ui.Yellow.Render("No builds recorded yet."))
		return nil
	}

	for _, r := range records {
		digest := r.Digest
		if len(digest) > 12 {
			digest = digest[:12]
		}

		fmt.Fprintf(w, "%s  %-10s %5d entries  %10s  %s %s  %s\n",
			r.Timestamp.Local().Format(ui.TimeFormat),
			r.Version,
			r.Entries,
			ui.HumanSize(r.Size),
			r.Signature,
			digest,
			r.Output,
		)
	}

	return nil
}
