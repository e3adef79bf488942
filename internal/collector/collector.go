// Package collector enumerates the files of a built upstream checkout that
// belong in the archive, in a deterministic order.
package collector

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"

	"github.com/Norgate-AV/pharpack/internal/failure"
	"github.com/Norgate-AV/pharpack/internal/utils"
)

// Group is one of the logical file sets collected from the build root.
type Group int

const (
	GroupTemplates Group = iota
	GroupDependencies
	GroupSources
	GroupSingletons
	GroupLicense
)

func (g Group) String() string {
	switch g {
	case GroupTemplates:
		return "templates"
	case GroupDependencies:
		return "dependencies"
	case GroupSources:
		return "sources"
	case GroupSingletons:
		return "singletons"
	case GroupLicense:
		return "license"
	default:
		return fmt.Sprintf("group(%d)", int(g))
	}
}

// SourceFile is a file selected for the archive
type SourceFile struct {
	// Absolute path on the build filesystem
	Path string

	// Name inside the archive, relative to the build root with forward slashes
	Name string

	Group Group

	// Minify is false for files stored verbatim
	Minify bool
}

// vcsDirs are never descended into
var vcsDirs = map[string]bool{
	".git":         true,
	".svn":         true,
	"_svn":         true,
	".hg":          true,
	".bzr":         true,
	"CVS":          true,
	"_darcs":       true,
	".arch-params": true,
	".monotone":    true,
}

// Collector walks a build root according to a Layout
type Collector struct {
	fs     afero.Fs
	layout Layout
}

// New creates a collector reading from fs
func New(fs afero.Fs, layout Layout) *Collector {
	return &Collector{fs: fs, layout: layout}
}

// Collect returns the archive files under buildRoot: templates, dependencies,
// sources, singletons, then the license.
func (c *Collector) Collect(buildRoot string) ([]SourceFile, error) {
	root, err := filepath.Abs(buildRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve build root: %w", err)
	}

	if ok, _ := afero.DirExists(c.fs, root); !ok {
		return nil, failure.New(failure.ErrNotFound, "collect", "build root %s does not exist", root)
	}

	l := c.layout

	templates, err := c.find(root, l.TemplatesDir, l.TemplatePatterns, "", GroupTemplates, true)
	if err != nil {
		return nil, err
	}

	deps, err := c.find(root, l.VendorDir, []string{l.PHPPattern}, l.Exclude, GroupDependencies, !l.RawDependencies)
	if err != nil {
		return nil, err
	}

	sources, err := c.find(root, l.SourceDir, []string{l.PHPPattern}, "", GroupSources, true)
	if err != nil {
		return nil, err
	}

	files := make([]SourceFile, 0, len(templates)+len(deps)+len(sources)+len(l.Singletons)+1)
	files = append(files, templates...)
	files = append(files, deps...)
	files = append(files, sources...)

	for _, name := range l.Singletons {
		f, err := c.single(root, name, GroupSingletons, true)
		if err != nil {
			return nil, err
		}

		files = append(files, f)
	}

	if l.License != "" {
		f, err := c.single(root, l.License, GroupLicense, false)
		if err != nil {
			return nil, err
		}

		files = append(files, f)
	}

	return files, nil
}

// find walks root/dir for files whose base name matches one of patterns,
// dropping those whose relative path contains exclude (case-insensitive).
func (c *Collector) find(root, dir string, patterns []string, exclude string, group Group, minify bool) ([]SourceFile, error) {
	base := filepath.Join(root, filepath.FromSlash(dir))
	if ok, _ := afero.DirExists(c.fs, base); !ok {
		return nil, failure.New(failure.ErrNotFound, "collect", "%s directory %s does not exist", group, base)
	}

	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid %s pattern %q: %w", group, p, doublestar.ErrBadPattern)
		}
	}

	var files []SourceFile

	err := afero.Walk(c.fs, base, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		name := info.Name()
		if info.IsDir() {
			if path != base && (vcsDirs[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}

			return nil
		}

		if strings.HasPrefix(name, ".") || !matchAny(patterns, name) {
			return nil
		}

		rel := utils.TrimRoot(root, path)
		if exclude != "" && utils.ContainsFold(rel, exclude) {
			return nil
		}

		files = append(files, SourceFile{
			Path:   path,
			Name:   rel,
			Group:  group,
			Minify: minify,
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", base, err)
	}

	sort.SliceStable(files, func(i, j int) bool {
		return utils.ComparePaths(files[i].Path, files[j].Path) < 0
	})

	return files, nil
}

func (c *Collector) single(root, name string, group Group, minify bool) (SourceFile, error) {
	path := filepath.Join(root, filepath.FromSlash(name))

	info, err := c.fs.Stat(path)
	if err != nil {
		return SourceFile{}, failure.Wrap(failure.ErrNotFound, "collect", err)
	}

	if info.IsDir() {
		return SourceFile{}, failure.New(failure.ErrNotFound, "collect", "%s is a directory, expected a file", path)
	}

	return SourceFile{
		Path:   path,
		Name:   utils.TrimRoot(root, path),
		Group:  group,
		Minify: minify,
	}, nil
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}

	return false
}
