package assembler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Norgate-AV/pharpack/internal/collector"
	"github.com/Norgate-AV/pharpack/internal/failure"
	"github.com/Norgate-AV/pharpack/internal/phar"
	"github.com/Norgate-AV/pharpack/internal/phplint"
)

var epoch = time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)

func testOptions() Options {
	return Options{
		Alias:      "phinx.phar",
		EntryPoint: "bin/phinx",
		Signature:  phar.SHA1,
		ModTime:    epoch,
	}
}

// setup writes the build tree and returns the matching file list
func setup(t *testing.T) (afero.Fs, []collector.SourceFile) {
	t.Helper()

	fs := afero.NewMemMapFs()
	contents := map[string]string{
		"/build/data/phinx.yml.dist":       "paths:\n  migrations: db\n",
		"/build/vendor/a/Lib.php":          "<?php\n// helper\nfunction a() {\n\treturn 1;\n}\n",
		"/build/src/Phinx/Console/App.php": "<?php\n/** doc */\nclass App {}\n",
		"/build/bin/phinx":                 "#!/usr/bin/env php\n<?php\nrequire 'app/phinx.php';\n",
		"/build/LICENSE":                   "The MIT License\n\n  indented  text\n",
	}

	for path, body := range contents {
		require.NoError(t, afero.WriteFile(fs, path, []byte(body), 0o644))
	}

	files := []collector.SourceFile{
		{Path: "/build/data/phinx.yml.dist", Name: "data/phinx.yml.dist", Group: collector.GroupTemplates, Minify: true},
		{Path: "/build/vendor/a/Lib.php", Name: "vendor/a/Lib.php", Group: collector.GroupDependencies, Minify: true},
		{Path: "/build/src/Phinx/Console/App.php", Name: "src/Phinx/Console/App.php", Group: collector.GroupSources, Minify: true},
		{Path: "/build/bin/phinx", Name: "bin/phinx", Group: collector.GroupSingletons, Minify: true},
		{Path: "/build/LICENSE", Name: "LICENSE", Group: collector.GroupLicense, Minify: false},
	}

	return fs, files
}

func TestStub(t *testing.T) {
	stub := Stub("phinx.phar", "bin/phinx")

	assert.Equal(t, "#!/usr/bin/env php\n<?php\nPhar::mapPhar('phinx.phar');\nrequire 'phar://phinx.phar/bin/phinx';\n__HALT_COMPILER();", stub)
}

func TestAssemble(t *testing.T) {
	fs, files := setup(t)

	result, err := New(fs, testOptions(), nil).Assemble(context.Background(), files, "/dist/phinx.phar")
	require.NoError(t, err)

	assert.Equal(t, "/dist/phinx.phar", result.Output)
	assert.Equal(t, 5, result.Entries)
	assert.Equal(t, 4, result.Minified)
	assert.Positive(t, result.Saved)
	assert.Equal(t, "SHA-1", result.Signature)
	assert.Len(t, result.Digest, 40)

	archive, err := phar.Open(fs, "/dist/phinx.phar")
	require.NoError(t, err)

	assert.Equal(t, Stub("phinx.phar", "bin/phinx"), archive.Stub)
	assert.Equal(t, "phinx.phar", archive.Alias)
	assert.Equal(t, result.Digest, archive.Digest)

	var names []string
	for _, e := range archive.Entries {
		names = append(names, e.Name)
		assert.True(t, epoch.Equal(e.ModTime), e.Name)
	}

	assert.Equal(t, []string{
		"data/phinx.yml.dist",
		"vendor/a/Lib.php",
		"src/Phinx/Console/App.php",
		"bin/phinx",
		"LICENSE",
	}, names)

	lib, ok := archive.Entry("vendor/a/Lib.php")
	require.True(t, ok)
	assert.Equal(t, "<?php\n\nfunction a() {\nreturn 1;\n}\n", string(lib.Data))

	app, ok := archive.Entry("src/Phinx/Console/App.php")
	require.True(t, ok)
	assert.Equal(t, "<?php\n\nclass App {}\n", string(app.Data))

	// Non-PHP templates pass through the minifier untouched
	tpl, ok := archive.Entry("data/phinx.yml.dist")
	require.True(t, ok)
	assert.Equal(t, "paths:\n  migrations: db\n", string(tpl.Data))

	// License is stored verbatim
	license, ok := archive.Entry("LICENSE")
	require.True(t, ok)
	assert.Equal(t, "The MIT License\n\n  indented  text\n", string(license.Data))
}

func TestAssemble_RawDependencies(t *testing.T) {
	fs, files := setup(t)
	files[1].Minify = false

	result, err := New(fs, testOptions(), nil).Assemble(context.Background(), files, "/dist/phinx.phar")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Minified)

	archive, err := phar.Open(fs, "/dist/phinx.phar")
	require.NoError(t, err)

	// Verbatim files follow the minified ones
	require.Len(t, archive.Entries, 5)
	assert.Equal(t, "vendor/a/Lib.php", archive.Entries[3].Name)
	assert.Equal(t, "LICENSE", archive.Entries[4].Name)
	assert.Contains(t, string(archive.Entries[3].Data), "// helper")
}

func TestAssemble_CustomMinifier(t *testing.T) {
	fs, files := setup(t)

	opts := testOptions()
	calls := 0
	opts.Minify = func(b []byte) []byte {
		calls++
		return []byte(strings.ToUpper(string(b)))
	}

	_, err := New(fs, opts, nil).Assemble(context.Background(), files, "/dist/phinx.phar")
	require.NoError(t, err)
	assert.Equal(t, 4, calls)

	archive, err := phar.Open(fs, "/dist/phinx.phar")
	require.NoError(t, err)

	bin, ok := archive.Entry("bin/phinx")
	require.True(t, ok)
	assert.Contains(t, string(bin.Data), "REQUIRE")
}

func TestAssemble_Errors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(fs afero.Fs, files []collector.SourceFile) []collector.SourceFile
		kind   error
	}{
		{
			name: "unreadable source",
			modify: func(fs afero.Fs, files []collector.SourceFile) []collector.SourceFile {
				_ = fs.Remove("/build/vendor/a/Lib.php")
				return files
			},
			kind: failure.ErrWrite,
		},
		{
			name: "unreadable license",
			modify: func(fs afero.Fs, files []collector.SourceFile) []collector.SourceFile {
				_ = fs.Remove("/build/LICENSE")
				return files
			},
			kind: failure.ErrWrite,
		},
		{
			name: "duplicate name",
			modify: func(fs afero.Fs, files []collector.SourceFile) []collector.SourceFile {
				return append(files, collector.SourceFile{Path: "/build/bin/phinx", Name: "bin/phinx", Minify: true})
			},
			kind: phar.ErrDuplicateEntry,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, files := setup(t)
			files = tt.modify(fs, files)

			_, err := New(fs, testOptions(), nil).Assemble(context.Background(), files, "/dist/phinx.phar")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
			assert.ErrorIs(t, err, failure.ErrWrite)

			exists, _ := afero.Exists(fs, "/dist/phinx.phar")
			assert.False(t, exists, "No archive should be left behind")
		})
	}
}

func TestAssemble_ReadOnlyOutput(t *testing.T) {
	fs, files := setup(t)
	require.NoError(t, fs.MkdirAll("/dist", 0o755))

	_, err := New(afero.NewReadOnlyFs(fs), testOptions(), nil).Assemble(context.Background(), files, "/dist/phinx.phar")
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrWrite)
}

func TestAssemble_Cancelled(t *testing.T) {
	fs, files := setup(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(fs, testOptions(), nil).Assemble(ctx, files, "/dist/phinx.phar")
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeLinter struct {
	broken map[string]bool
	err    error
}

func (f *fakeLinter) Check(_ context.Context, src []byte) (phplint.Report, error) {
	if f.err != nil {
		return phplint.Report{}, f.err
	}

	if f.broken[string(src)] {
		return phplint.Report{HasError: true, Line: 1, Column: 1, Node: "ERROR"}, nil
	}

	return phplint.Report{}, nil
}

func TestAssemble_LintRegression(t *testing.T) {
	fs, files := setup(t)

	opts := testOptions()
	opts.Minify = func(b []byte) []byte { return append([]byte("BROKEN"), b...) }
	opts.Linter = &fakeLinter{broken: map[string]bool{
		"BROKEN<?php\n/** doc */\nclass App {}\n": true,
	}}

	_, err := New(fs, opts, nil).Assemble(context.Background(), files, "/dist/phinx.phar")
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrVerify)
	assert.Contains(t, err.Error(), "src/Phinx/Console/App.php")
}

func TestAssemble_LintSkipsBrokenOriginal(t *testing.T) {
	fs, files := setup(t)

	src := "<?php\n// helper\nfunction a() {\n\treturn 1;\n}\n"
	min := "<?php\n\nfunction a() {\nreturn 1;\n}\n"

	opts := testOptions()
	opts.Linter = &fakeLinter{broken: map[string]bool{src: true, min: true}}

	_, err := New(fs, opts, nil).Assemble(context.Background(), files, "/dist/phinx.phar")
	assert.NoError(t, err)
}

func TestAssemble_LintFailure(t *testing.T) {
	fs, files := setup(t)

	opts := testOptions()
	opts.Linter = &fakeLinter{err: errors.New("parser crashed")}

	_, err := New(fs, opts, nil).Assemble(context.Background(), files, "/dist/phinx.phar")
	assert.ErrorIs(t, err, failure.ErrVerify)
}

func TestAssemble_RealLinter(t *testing.T) {
	fs, files := setup(t)

	l := phplint.New()
	defer l.Close()

	opts := testOptions()
	opts.Linter = l

	_, err := New(fs, opts, nil).Assemble(context.Background(), files, "/dist/phinx.phar")
	assert.NoError(t, err)
}
