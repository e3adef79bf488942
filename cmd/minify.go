package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/pharpack/internal/minify"
	"github.com/Norgate-AV/pharpack/internal/ui"
)

var minifyCmd = &cobra.Command{
	Use:   "minify FILE...",
	Short: "Print minified PHP source",
	Long: `Strip comments and redundant whitespace from PHP files the same way
archive entries are minified. Line numbers are preserved. Use - for stdin.`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		color, _ := cmd.Flags().GetBool("color")
		stats, _ := cmd.Flags().GetBool("stats")
		theme, _ := cmd.Flags().GetString("theme")

		return minifyFiles(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), args, minifyOptions{
			color: color,
			stats: stats,
			theme: theme,
		})
	},
}

func init() {
	minifyCmd.Flags().Bool("color", false, "Highlight the output")
	minifyCmd.Flags().Bool("stats", false, "Print size savings to stderr")
	minifyCmd.Flags().String("theme", ui.DefaultTheme, "Highlight theme")
	rootCmd.AddCommand(minifyCmd)
}

type minifyOptions struct {
	color bool
	stats bool
	theme string
}

func minifyFiles(in io.Reader, out, errOut io.Writer, files []string, opts minifyOptions) error {
	for i, name := range files {
		src, err := readSource(in, name)
		if err != nil {
			return err
		}

		stripped := minify.Minify(string(src))

		if len(files) > 1 {
			if i > 0 {
				fmt.Fprintln(out)
			}

			fmt.Fprintf(out, "==> %s <==\n", name)
		}

		if opts.color {
			if err := ui.Highlight(out, stripped, opts.theme); err != nil {
				return fmt.Errorf("failed to highlight %s: %w", name, err)
			}
		} else {
			if _, err := io.WriteString(out, stripped); err != nil {
				return err
			}
		}

		if opts.stats {
			fmt.Fprintln(errOut, sizeStats(name, len(src), len(stripped)))
		}
	}

	return nil
}

func readSource(in io.Reader, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(in)
	}

	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}

	return data, nil
}

func sizeStats(name string, before, after int) string {
	saved := 0.0
	if before > 0 {
		saved = float64(before-after) / float64(before) * 100
	}

	return fmt.Sprintf("%s: %s -> %s (%.1f%% smaller)",
		name, ui.HumanSize(int64(before)), ui.HumanSize(int64(after)), saved)
}
