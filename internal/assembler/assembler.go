// Package assembler turns a collected file list into a signed phar archive.
package assembler

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/afero"

	"github.com/Norgate-AV/pharpack/internal/collector"
	"github.com/Norgate-AV/pharpack/internal/failure"
	"github.com/Norgate-AV/pharpack/internal/minify"
	"github.com/Norgate-AV/pharpack/internal/phar"
	"github.com/Norgate-AV/pharpack/internal/phplint"
	"github.com/Norgate-AV/pharpack/internal/ui"
)

// Linter reports syntax errors in PHP source
type Linter interface {
	Check(ctx context.Context, src []byte) (phplint.Report, error)
}

// Options configures an Assembler
type Options struct {
	Alias      string
	EntryPoint string
	Signature  phar.SignatureAlgorithm

	// ModTime is stamped on every entry. Zero means now.
	ModTime time.Time

	// Minify transforms files flagged for minification. Defaults to minify.Bytes.
	Minify func([]byte) []byte

	// Linter, when set, rejects files that stop parsing after minification
	Linter Linter
}

// Result describes a finished archive
type Result struct {
	Output    string
	Entries   int
	Size      int64
	Signature string
	Digest    string

	// Minified is the number of entries that went through the minifier
	Minified int
	// Saved is the number of bytes removed by minification
	Saved int64
	// CacheHits is filled in by callers that memoize the minifier
	CacheHits int
}

// Assembler writes archives
type Assembler struct {
	fs     afero.Fs
	opts   Options
	logger *pterm.Logger
}

// New creates an assembler reading sources from and writing the archive to fs
func New(fs afero.Fs, opts Options, logger *pterm.Logger) *Assembler {
	if opts.Minify == nil {
		opts.Minify = minify.Bytes
	}

	if opts.Signature == 0 {
		opts.Signature = phar.SHA1
	}

	if opts.ModTime.IsZero() {
		opts.ModTime = time.Now()
	}

	if logger == nil {
		logger = ui.Discard()
	}

	return &Assembler{
		fs:     fs,
		opts:   opts,
		logger: logger,
	}
}

// Stub returns the bootstrap code that maps the archive and runs its entry point
func Stub(alias, entryPoint string) string {
	return fmt.Sprintf("#!/usr/bin/env php\n<?php\nPhar::mapPhar('%s');\nrequire 'phar://%s/%s';\n__HALT_COMPILER();",
		alias, alias, entryPoint)
}

// Assemble writes files to outputPath.
//
// Files flagged for minification are added first, then the stub is set, then
// the remaining files are added verbatim. The archive only appears at
// outputPath once it has been completely written.
func (a *Assembler) Assemble(ctx context.Context, files []collector.SourceFile, outputPath string) (*Result, error) {
	w := phar.NewWriter(a.opts.Alias,
		phar.WithSignature(a.opts.Signature),
		phar.WithModTime(a.opts.ModTime),
		phar.WithFs(a.fs),
	)

	result := &Result{Output: outputPath}

	a.logger.Info("Minifying sources", a.logger.Args("files", countMinify(files, true)))

	for _, f := range files {
		if !f.Minify {
			continue
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := a.read(f)
		if err != nil {
			return nil, err
		}

		out := a.opts.Minify(data)

		if err := a.verify(ctx, f, data, out); err != nil {
			return nil, err
		}

		if err := w.Add(f.Name, out); err != nil {
			return nil, failure.Wrap(failure.ErrWrite, "add", err)
		}

		result.Minified++
		result.Saved += int64(len(data) - len(out))

		a.logger.Trace("Added", a.logger.Args("name", f.Name, "group", f.Group, "bytes", len(out)))
	}

	if err := w.SetStub(Stub(a.opts.Alias, a.opts.EntryPoint)); err != nil {
		return nil, failure.Wrap(failure.ErrWrite, "stub", err)
	}

	a.logger.Info("Adding verbatim files", a.logger.Args("files", countMinify(files, false)))

	for _, f := range files {
		if f.Minify {
			continue
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := a.read(f)
		if err != nil {
			return nil, err
		}

		if err := w.Add(f.Name, data); err != nil {
			return nil, failure.Wrap(failure.ErrWrite, "add", err)
		}

		a.logger.Trace("Added", a.logger.Args("name", f.Name, "group", f.Group, "bytes", len(data)))
	}

	if err := a.fs.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, failure.Wrap(failure.ErrWrite, "mkdir", err)
	}

	a.logger.Info("Writing archive", a.logger.Args("path", outputPath, "signature", a.opts.Signature.String()))

	summary, err := w.Commit(outputPath)
	if err != nil {
		return nil, err
	}

	result.Entries = summary.Entries
	result.Size = summary.Size
	result.Signature = summary.Signature.String()
	result.Digest = summary.Digest

	return result, nil
}

func (a *Assembler) read(f collector.SourceFile) ([]byte, error) {
	data, err := afero.ReadFile(a.fs, f.Path)
	if err != nil {
		return nil, failure.Wrap(failure.ErrWrite, "read", err)
	}

	return data, nil
}

// verify fails when minification turned a clean file into one that no longer parses
func (a *Assembler) verify(ctx context.Context, f collector.SourceFile, before, after []byte) error {
	if a.opts.Linter == nil {
		return nil
	}

	original, err := a.opts.Linter.Check(ctx, before)
	if err != nil {
		return failure.Wrap(failure.ErrVerify, "lint", err)
	}

	if original.HasError {
		a.logger.Debug("Source does not parse, skipping lint", a.logger.Args("name", f.Name, "error", original.String()))
		return nil
	}

	minified, err := a.opts.Linter.Check(ctx, after)
	if err != nil {
		return failure.Wrap(failure.ErrVerify, "lint", err)
	}

	if minified.HasError {
		return failure.New(failure.ErrVerify, "lint", "%s: minified source has %s", f.Name, minified)
	}

	return nil
}

func countMinify(files []collector.SourceFile, flag bool) int {
	n := 0
	for _, f := range files {
		if f.Minify == flag {
			n++
		}
	}

	return n
}
