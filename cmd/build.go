package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/pharpack/internal/assembler"
	"github.com/Norgate-AV/pharpack/internal/cache"
	"github.com/Norgate-AV/pharpack/internal/config"
	"github.com/Norgate-AV/pharpack/internal/phplint"
	"github.com/Norgate-AV/pharpack/internal/pipeline"
	"github.com/Norgate-AV/pharpack/internal/ui"
)

var buildCmd = &cobra.Command{
	Use:   "build [TAG]",
	Short: "Build a phar archive",
	Long: `Clone the repository, check out the release tag, install dependencies
and write a minified, signed phar archive to the dist directory.`,
	RunE:         runBuild,
	SilenceUsage: true,
	Args:         cobra.MaximumNArgs(1),
}

func init() {
	addBuildFlags(buildCmd)
}

func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("tag", "t", "", "Release tag to package (default: 0.12.4)")
	cmd.Flags().String("repository", "", "Git repository to clone")
	cmd.Flags().String("build-dir", "", "Working directory for the clone (default: build)")
	cmd.Flags().String("dist-dir", "", "Output directory (default: dist)")
	cmd.Flags().StringP("output", "o", "", "Archive file name (default: phinx.phar)")
	cmd.Flags().String("signature", "", "Signature algorithm: md5, sha1, sha256 or sha512")
	cmd.Flags().Bool("raw-dependencies", false, "Store dependencies without minifying them")
	cmd.Flags().Bool("keep-build", false, "Keep the build directory after packaging")
	cmd.Flags().Bool("lint", false, "Check that minified sources still parse")
}

// newRunner creates the command runner; verbose runs echo tool output to w
var newRunner = func(cfg *config.Config, w io.Writer) pipeline.Runner {
	r := pipeline.NewExecRunner()
	if cfg.Verbose {
		r.Stdout = w
		r.Stderr = w
	}

	return r
}

func runBuild(cmd *cobra.Command, args []string) error {
	// load config
	cfg, err := config.NewLoader().LoadForBuild(cmd, args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	logger := ui.NewLogger(out, cfg.Verbose)

	logger.Debug("Configuration",
		logger.Args("repository", cfg.Repository, "version", cfg.Version, "build", cfg.BuildDir, "dist", cfg.DistDir))

	opts := []pipeline.Option{
		pipeline.WithRunner(newRunner(cfg, cmd.ErrOrStderr())),
		pipeline.WithLogger(logger),
	}

	if !cfg.NoCache {
		c, err := cache.New(cfg.CacheDir)
		if err != nil {
			logger.Warn("Cache disabled", logger.Args("error", err))
		} else {
			defer c.Close()
			opts = append(opts, pipeline.WithCache(c))
		}
	}

	if cfg.Lint {
		l := phplint.New()
		defer l.Close()
		opts = append(opts, pipeline.WithLinter(l))
	}

	result, err := pipeline.New(cfg, opts...).Compile(commandContext(cmd))
	if err != nil {
		return err
	}

	fmt.Fprintln(out, buildSummary(cfg, result))

	return nil
}

func buildSummary(cfg *config.Config, result *assembler.Result) string {
	rows := []ui.Row{
		{Label: "Archive", Value: result.Output},
		{Label: "Version", Value: cfg.Version},
		{Label: "Entries", Value: strconv.Itoa(result.Entries)},
		{Label: "Size", Value: ui.HumanSize(result.Size)},
		{Label: "Minified", Value: fmt.Sprintf("%d files, %s saved", result.Minified, ui.HumanSize(result.Saved))},
		{Label: "Signature", Value: result.Signature + " " + result.Digest},
	}

	if !cfg.NoCache {
		rows = append(rows, ui.Row{Label: "Cache hits", Value: strconv.Itoa(result.CacheHits)})
	}

	return ui.Summary("Build complete", rows)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}

	return context.Background()
}
