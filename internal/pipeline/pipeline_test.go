package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Norgate-AV/pharpack/internal/cache"
	"github.com/Norgate-AV/pharpack/internal/config"
	"github.com/Norgate-AV/pharpack/internal/failure"
	"github.com/Norgate-AV/pharpack/internal/phar"
)

const (
	buildDir = "/work/build"
	distDir  = "/work/dist"
)

// upstream is what a clone of the release produces
var upstream = map[string]string{
	"data/phinx.yml.dist":                       "paths:\n  migrations: db\n",
	"src/Phinx/Console/PhinxApplication.php":    "<?php\n// app\nclass PhinxApplication {}\n",
	"src/Phinx/Migration/AbstractMigration.php": "<?php\n/* base */\nabstract class AbstractMigration {}\n",
	"src/composer_autoloader.php":               "<?php\nreturn require 'vendor/autoload.php';\n",
	"app/phinx.php":                             "<?php\n$app = require 'src/composer_autoloader.php';\n",
	"bin/phinx":                                 "#!/usr/bin/env php\n<?php\nrequire 'app/phinx.php';\n",
	"composer.json":                             "{\"name\": \"robmorgan/phinx\"}\n",
	"LICENSE":                                   "The MIT License\n",
	".git/HEAD":                                 "ref: refs/heads/master\n",
}

// installed is what composer adds
var installed = map[string]string{
	"vendor/autoload.php":                      "<?php\n// autoload\nreturn 1;\n",
	"vendor/symfony/console/Application.php":   "<?php\n\tclass Application {}\n",
	"vendor/symfony/console/Tests/AppTest.php": "<?php\nclass AppTest {}\n",
	"vendor/symfony/yaml/tests/Fixtures/a.php": "<?php\n",
}

type call struct {
	Dir  string
	Name string
	Args []string
}

// fakeRunner simulates git and composer against an afero filesystem
type fakeRunner struct {
	fs      afero.Fs
	calls   []call
	results map[string]Result
	errs    map[string]error
}

func newFakeRunner(fs afero.Fs) *fakeRunner {
	return &fakeRunner{
		fs:      fs,
		results: map[string]Result{},
		errs:    map[string]error{},
	}
}

func (f *fakeRunner) Run(_ context.Context, dir, name string, args ...string) (Result, error) {
	f.calls = append(f.calls, call{Dir: dir, Name: name, Args: args})

	key := name + " " + args[0]
	if err, ok := f.errs[key]; ok {
		return Result{ExitCode: -1}, err
	}

	if res, ok := f.results[key]; ok && res.ExitCode != 0 {
		return res, nil
	}

	switch key {
	case "git clone":
		writeTree(f.fs, dir, upstream)
	case "composer update":
		writeTree(f.fs, dir, installed)
	}

	return Result{}, nil
}

func (f *fakeRunner) commands() []string {
	var out []string
	for _, c := range f.calls {
		out = append(out, strings.TrimSpace(c.Name+" "+strings.Join(c.Args, " ")))
	}

	return out
}

func writeTree(fs afero.Fs, root string, files map[string]string) {
	for name, body := range files {
		_ = afero.WriteFile(fs, filepath.Join(root, name), []byte(body), 0o644)
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Repository:      config.DefaultRepository,
		Version:         "0.12.4",
		BuildDir:        buildDir,
		DistDir:         distDir,
		Output:          "phinx.phar",
		Alias:           "phinx.phar",
		EntryPoint:      "bin/phinx",
		Project:         "Phinx",
		Signature:       "sha1",
		Templates:       config.DefaultTemplates,
		Singletons:      config.DefaultSingletons,
		License:         "LICENSE",
		Exclude:         "tests",
		GitPath:         "git",
		ComposerPath:    "composer",
		SourceDateEpoch: 1600000000,
	}
}

func isEmptyDir(t *testing.T, fs afero.Fs, dir string) bool {
	t.Helper()

	entries, err := afero.ReadDir(fs, dir)
	require.NoError(t, err)

	return len(entries) == 0
}

func TestPipeline_Compile(t *testing.T) {
	fs := afero.NewMemMapFs()
	runner := newFakeRunner(fs)

	result, err := New(testConfig(), WithFs(fs), WithRunner(runner)).Compile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"git clone https://github.com/cakephp/phinx.git .",
		"git checkout tags/0.12.4",
		"composer update",
	}, runner.commands())

	for _, c := range runner.calls {
		assert.Equal(t, buildDir, c.Dir)
	}

	assert.Equal(t, "/work/dist/phinx.phar", result.Output)
	assert.Equal(t, "SHA-1", result.Signature)

	archive, err := phar.Open(fs, "/work/dist/phinx.phar")
	require.NoError(t, err)

	var names []string
	for _, e := range archive.Entries {
		names = append(names, e.Name)
		assert.True(t, time.Unix(1600000000, 0).Equal(e.ModTime))
	}

	assert.Equal(t, []string{
		"data/phinx.yml.dist",
		"vendor/autoload.php",
		"vendor/symfony/console/Application.php",
		"src/Phinx/Console/PhinxApplication.php",
		"src/Phinx/Migration/AbstractMigration.php",
		"src/composer_autoloader.php",
		"app/phinx.php",
		"bin/phinx",
		"composer.json",
		"LICENSE",
	}, names)
	assert.Equal(t, len(names), result.Entries)

	app, ok := archive.Entry("vendor/symfony/console/Application.php")
	require.True(t, ok)
	assert.Equal(t, "<?php\n class Application {}\n", string(app.Data))

	// Build directory is cleaned up after assembly
	assert.True(t, isEmptyDir(t, fs, buildDir))
}

func TestPipeline_ClearsStaleOutput(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(fs, distDir, map[string]string{"old.phar": "stale"})
	writeTree(fs, buildDir, map[string]string{"leftover.php": "<?php"})

	_, err := New(testConfig(), WithFs(fs), WithRunner(newFakeRunner(fs))).Compile(context.Background())
	require.NoError(t, err)

	exists, _ := afero.Exists(fs, filepath.Join(distDir, "old.phar"))
	assert.False(t, exists, "dist should be wiped before the run")
}

func TestPipeline_ToolFailures(t *testing.T) {
	tests := []struct {
		name         string
		setup        func(r *fakeRunner)
		kind         error
		wantCommands int
		errContains  []string
	}{
		{
			name: "unreachable repository",
			setup: func(r *fakeRunner) {
				r.results["git clone"] = Result{ExitCode: 128, Stderr: "fatal: repository 'https://invalid/' not found\n"}
			},
			kind:         failure.ErrSourceControl,
			wantCommands: 1,
			errContains:  []string{"clone", "128", "Fatal error", "repository 'https://invalid/' not found"},
		},
		{
			name: "unknown tag",
			setup: func(r *fakeRunner) {
				r.results["git checkout"] = Result{ExitCode: 1, Stderr: "error: pathspec 'tags/9.9.9' did not match"}
			},
			kind:         failure.ErrSourceControl,
			wantCommands: 2,
			errContains:  []string{"checkout", "pathspec"},
		},
		{
			name: "dependency resolution fails",
			setup: func(r *fakeRunner) {
				r.results["composer update"] = Result{ExitCode: 2, Stderr: "Your requirements could not be resolved"}
			},
			kind:         failure.ErrDependency,
			wantCommands: 3,
			errContains:  []string{"install", "Dependency solving error", "could not be resolved"},
		},
		{
			name: "git missing",
			setup: func(r *fakeRunner) {
				r.errs["git clone"] = errors.New(`exec: "git": executable file not found in $PATH`)
			},
			kind:         failure.ErrSourceControl,
			wantCommands: 1,
			errContains:  []string{"executable file not found"},
		},
		{
			name: "composer missing",
			setup: func(r *fakeRunner) {
				r.results["composer update"] = Result{ExitCode: 127}
			},
			kind:         failure.ErrDependency,
			wantCommands: 3,
			errContains:  []string{"Command not found"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			runner := newFakeRunner(fs)
			tt.setup(runner)

			_, err := New(testConfig(), WithFs(fs), WithRunner(runner)).Compile(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)

			for _, s := range tt.errContains {
				assert.Contains(t, err.Error(), s)
			}

			assert.Len(t, runner.calls, tt.wantCommands, "no step may run after a failure")

			exists, _ := afero.Exists(fs, "/work/dist/phinx.phar")
			assert.False(t, exists)

			// dist was prepared before the failure
			assert.True(t, isEmptyDir(t, fs, distDir))
		})
	}
}

func TestPipeline_InstallFailureKeepsBuildDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	runner := newFakeRunner(fs)
	runner.results["composer update"] = Result{ExitCode: 1}

	_, err := New(testConfig(), WithFs(fs), WithRunner(runner)).Compile(context.Background())
	require.Error(t, err)

	// The clone is left for inspection
	exists, _ := afero.Exists(fs, filepath.Join(buildDir, "composer.json"))
	assert.True(t, exists)
}

func TestPipeline_AssembleFailureCleansBuildDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	runner := newFakeRunner(fs)

	cfg := testConfig()
	cfg.License = "LICENSE.md"

	_, err := New(cfg, WithFs(fs), WithRunner(runner)).Compile(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrNotFound)
	assert.Contains(t, err.Error(), "LICENSE.md")

	assert.True(t, isEmptyDir(t, fs, buildDir))
}

func TestPipeline_KeepBuild(t *testing.T) {
	fs := afero.NewMemMapFs()

	cfg := testConfig()
	cfg.KeepBuild = true

	_, err := New(cfg, WithFs(fs), WithRunner(newFakeRunner(fs))).Compile(context.Background())
	require.NoError(t, err)

	exists, _ := afero.Exists(fs, filepath.Join(buildDir, "vendor", "autoload.php"))
	assert.True(t, exists)
}

func TestPipeline_RawDependencies(t *testing.T) {
	fs := afero.NewMemMapFs()

	cfg := testConfig()
	cfg.RawDependencies = true

	result, err := New(cfg, WithFs(fs), WithRunner(newFakeRunner(fs))).Compile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, result.Minified)

	archive, err := phar.Open(fs, result.Output)
	require.NoError(t, err)

	autoload, ok := archive.Entry("vendor/autoload.php")
	require.True(t, ok)
	assert.Equal(t, installed["vendor/autoload.php"], string(autoload.Data))
}

func TestPipeline_ComposerFlags(t *testing.T) {
	fs := afero.NewMemMapFs()
	runner := newFakeRunner(fs)

	cfg := testConfig()
	cfg.ComposerFlags = []string{"--no-dev", "", "--no-interaction"}

	_, err := New(cfg, WithFs(fs), WithRunner(runner)).Compile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "composer update --no-dev --no-interaction", runner.commands()[2])
}

func TestPipeline_WithCache(t *testing.T) {
	c, err := cache.New(t.TempDir())
	require.NoError(t, err)
	defer c.Close()

	fs := afero.NewMemMapFs()
	p := New(testConfig(), WithFs(fs), WithRunner(newFakeRunner(fs)), WithCache(c))

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	first, err := p.Compile(context.Background())
	require.NoError(t, err)
	assert.Zero(t, first.CacheHits)

	second, err := p.Compile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, second.Minified, second.CacheHits, "Unchanged sources should be served from cache")
	assert.Equal(t, first.Digest, second.Digest, "Cached output must be identical")

	records, err := c.History(0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "0.12.4", records[0].Version)
	assert.Equal(t, second.Digest, records[0].Digest)
	assert.Equal(t, second.Entries, records[0].Entries)
}

func TestPipeline_Layout(t *testing.T) {
	cfg := testConfig()
	cfg.Project = "Acme"
	cfg.Exclude = "fixtures"
	cfg.Templates = []string{"*.dist"}

	layout := New(cfg).Layout()

	assert.Equal(t, "src/Acme", layout.SourceDir)
	assert.Equal(t, "fixtures", layout.Exclude)
	assert.Equal(t, []string{"*.dist"}, layout.TemplatePatterns)
	assert.Equal(t, "vendor", layout.VendorDir)
	assert.Equal(t, "LICENSE", layout.License)
}

func TestPipeline_ClearFailure(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())

	_, err := New(testConfig(), WithFs(fs), WithRunner(newFakeRunner(fs))).Compile(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrWrite)
}

func TestCommands(t *testing.T) {
	cfg := testConfig()
	cfg.GitPath = "/usr/bin/git"
	cfg.ComposerFlags = []string{"--prefer-dist"}

	assert.Equal(t, "/usr/bin/git clone https://github.com/cakephp/phinx.git .", CloneCommand(cfg).String())
	assert.Equal(t, "/usr/bin/git checkout tags/0.12.4", CheckoutCommand(cfg).String())
	assert.Equal(t, ShellCommand{Path: "composer", Args: []string{"update", "--prefer-dist"}}, InstallCommand(cfg))
}
