package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/pharpack/internal/failure"
	"github.com/Norgate-AV/pharpack/internal/ui"
	"github.com/Norgate-AV/pharpack/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "pharpack [TAG]",
	Short: "Package PHP releases as phar archives",
	Long: `Clone a tagged release of a PHP project, install its dependencies with
Composer and pack it into a single self-executing phar archive.`,
	RunE:          runBuild,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.MaximumNArgs(1),
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, ui.Red.Render("Error: "+err.Error()))
		stop()
		os.Exit(failure.ExitCode(err))
	}
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (%s) %s", version.Version, version.Commit, version.BuildTime)
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("config", "", "Config file (default: nearest .pharpack.{yml,yaml,json,toml})")
	rootCmd.PersistentFlags().String("cache-dir", "", "Cache directory (default: .pharpack-cache)")
	rootCmd.PersistentFlags().Bool("no-cache", false, "Disable the minify cache and build history")
	addBuildFlags(rootCmd)
	rootCmd.AddCommand(buildCmd)
}
