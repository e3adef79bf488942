// Package pipeline runs a complete packaging job: it prepares the working
// directories, fetches the release with git, installs dependencies with
// composer and assembles the archive.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/afero"

	"github.com/Norgate-AV/pharpack/internal/assembler"
	"github.com/Norgate-AV/pharpack/internal/cache"
	"github.com/Norgate-AV/pharpack/internal/codes"
	"github.com/Norgate-AV/pharpack/internal/collector"
	"github.com/Norgate-AV/pharpack/internal/config"
	"github.com/Norgate-AV/pharpack/internal/failure"
	"github.com/Norgate-AV/pharpack/internal/minify"
	"github.com/Norgate-AV/pharpack/internal/ui"
)

// Pipeline packages one release
type Pipeline struct {
	cfg    *config.Config
	runner Runner
	fs     afero.Fs
	logger *pterm.Logger
	cache  *cache.Cache
	linter assembler.Linter
	now    func() time.Time
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithRunner sets the command runner (ExecRunner by default)
func WithRunner(r Runner) Option {
	return func(p *Pipeline) {
		p.runner = r
	}
}

// WithFs sets the filesystem for the build and dist directories
func WithFs(fs afero.Fs) Option {
	return func(p *Pipeline) {
		p.fs = fs
	}
}

// WithLogger sets the progress logger
func WithLogger(l *pterm.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithCache memoizes minification and records finished builds
func WithCache(c *cache.Cache) Option {
	return func(p *Pipeline) {
		p.cache = c
	}
}

// WithLinter checks minified sources
func WithLinter(l assembler.Linter) Option {
	return func(p *Pipeline) {
		p.linter = l
	}
}

// New creates a pipeline for cfg
func New(cfg *config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:    cfg,
		runner: NewExecRunner(),
		fs:     afero.NewOsFs(),
		logger: ui.Discard(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Compile runs every step in order and stops at the first failure.
// The build directory is removed after assembly, successful or not, unless
// KeepBuild is set. Earlier failures leave it as the failing tool left it.
func (p *Pipeline) Compile(ctx context.Context) (*assembler.Result, error) {
	start := p.now()

	if err := p.ClearDist(); err != nil {
		return nil, err
	}

	if err := p.ClearBuild(); err != nil {
		return nil, err
	}

	if err := p.Clone(ctx); err != nil {
		return nil, err
	}

	if err := p.Checkout(ctx); err != nil {
		return nil, err
	}

	if err := p.InstallDeps(ctx); err != nil {
		return nil, err
	}

	result, err := p.assembleAndClean(ctx)
	if err != nil {
		return nil, err
	}

	p.record(result, start)

	return result, nil
}

// ClearDist empties the dist directory
func (p *Pipeline) ClearDist() error {
	return p.reset("clear dist", p.cfg.DistDir)
}

// ClearBuild empties the build directory
func (p *Pipeline) ClearBuild() error {
	return p.reset("clear build", p.cfg.BuildDir)
}

// Clone clones the repository into the build directory
func (p *Pipeline) Clone(ctx context.Context) error {
	p.logger.Info("Cloning the repository...", p.logger.Args("repository", p.cfg.Repository))

	if err := p.run(ctx, failure.ErrSourceControl, "clone", codes.Git, CloneCommand(p.cfg)); err != nil {
		return err
	}

	p.logger.Info("Cloning has been completed.")

	return nil
}

// Checkout switches the clone to the configured release tag
func (p *Pipeline) Checkout(ctx context.Context) error {
	if err := p.run(ctx, failure.ErrSourceControl, "checkout", codes.Git, CheckoutCommand(p.cfg)); err != nil {
		return err
	}

	p.logger.Info("Switched to " + p.cfg.Version)

	return nil
}

// InstallDeps installs dependencies with composer
func (p *Pipeline) InstallDeps(ctx context.Context) error {
	p.logger.Info("Installing dependencies...")

	if err := p.run(ctx, failure.ErrDependency, "install", codes.Composer, InstallCommand(p.cfg)); err != nil {
		return err
	}

	p.logger.Info("Dependency installation completed.")

	return nil
}

// Assemble collects the build tree and writes the archive
func (p *Pipeline) Assemble(ctx context.Context) (*assembler.Result, error) {
	p.logger.Info("Compilation...")

	files, err := collector.New(p.fs, p.Layout()).Collect(p.cfg.BuildDir)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("Collected files", p.logger.Args("count", len(files)))

	minifier := minify.Bytes
	hitsBefore := 0

	if p.cache != nil {
		minifier = p.cache.Memoize(minify.Bytes, func(err error) {
			p.logger.Warn("Minify cache unavailable", p.logger.Args("error", err))
		})
		hitsBefore = p.cache.Hits()
	}

	asm := assembler.New(p.fs, assembler.Options{
		Alias:      p.cfg.Alias,
		EntryPoint: p.cfg.EntryPoint,
		Signature:  p.cfg.SignatureAlgorithm(),
		ModTime:    p.cfg.ModTime(),
		Minify:     minifier,
		Linter:     p.linter,
	}, p.logger)

	result, err := asm.Assemble(ctx, files, p.cfg.OutputPath())
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		result.CacheHits = p.cache.Hits() - hitsBefore
	}

	p.logger.Info("Successful compilation. File: " + result.Output)

	return result, nil
}

// Layout derives the collector layout from the configuration
func (p *Pipeline) Layout() collector.Layout {
	layout := collector.DefaultLayout()

	layout.SourceDir = "src/" + p.cfg.Project
	layout.Exclude = p.cfg.Exclude
	layout.RawDependencies = p.cfg.RawDependencies

	if len(p.cfg.Templates) > 0 {
		layout.TemplatePatterns = p.cfg.Templates
	}

	if len(p.cfg.Singletons) > 0 {
		layout.Singletons = p.cfg.Singletons
	}

	if p.cfg.License != "" {
		layout.License = p.cfg.License
	}

	return layout
}

func (p *Pipeline) assembleAndClean(ctx context.Context) (*assembler.Result, error) {
	defer func() {
		if p.cfg.KeepBuild {
			p.logger.Debug("Keeping build directory", p.logger.Args("path", p.cfg.BuildDir))
			return
		}

		if err := p.ClearBuild(); err != nil {
			p.logger.Warn("Failed to clean build directory", p.logger.Args("error", err))
		}
	}()

	return p.Assemble(ctx)
}

// reset removes dir and recreates it empty
func (p *Pipeline) reset(op, dir string) error {
	p.logger.Debug("Clearing directory", p.logger.Args("path", dir))

	if err := p.fs.RemoveAll(dir); err != nil {
		return failure.Wrap(failure.ErrWrite, op, err)
	}

	if err := p.fs.MkdirAll(dir, 0o755); err != nil {
		return failure.Wrap(failure.ErrWrite, op, err)
	}

	return nil
}

// run executes c in the build directory, mapping failures to kind
func (p *Pipeline) run(ctx context.Context, kind error, op, tool string, c ShellCommand) error {
	p.logger.Debug("Running", p.logger.Args("command", c.String(), "dir", p.cfg.BuildDir))

	res, err := p.runner.Run(ctx, p.cfg.BuildDir, c.Path, c.Args...)
	if err != nil {
		return failure.Wrap(kind, op, err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if !codes.IsSuccess(res.ExitCode) {
		msg := fmt.Sprintf("%s exited with code %d (%s)", c.Path, res.ExitCode, codes.GetErrorMessage(tool, res.ExitCode))
		if stderr := strings.TrimSpace(res.Stderr); stderr != "" {
			msg += ": " + stderr
		}

		return failure.New(kind, op, "%s", msg)
	}

	return nil
}

// record appends the build to the history; failures only warn
func (p *Pipeline) record(result *assembler.Result, start time.Time) {
	if p.cache == nil {
		return
	}

	end := p.now()

	_, err := p.cache.Append(cache.Record{
		Version:    p.cfg.Version,
		Repository: p.cfg.Repository,
		Output:     result.Output,
		Signature:  result.Signature,
		Digest:     result.Digest,
		Entries:    result.Entries,
		Size:       result.Size,
		Timestamp:  end,
		Duration:   end.Sub(start),
	})
	if err != nil {
		p.logger.Warn("Failed to record build", p.logger.Args("error", err))
	}
}
