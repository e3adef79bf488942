package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Norgate-AV/pharpack/internal/phar"
)

// Default configuration values
const (
	DefaultRepository = "https://github.com/cakephp/phinx.git"
	DefaultVersion    = "0.12.4"
	DefaultBuildDir   = "build"
	DefaultDistDir    = "dist"
	DefaultOutput     = "phinx.phar"
	DefaultAlias      = "phinx.phar"
	DefaultEntryPoint = "bin/phinx"
	DefaultProject    = "Phinx"
	DefaultSignature  = "sha1"
	DefaultLicense    = "LICENSE"
	DefaultExclude    = "tests"
	DefaultGitPath    = "git"
	DefaultComposer   = "composer"
	DefaultCacheDir   = ".pharpack-cache"
	DefaultVerbose    = false
)

var (
	DefaultTemplates  = []string{"phinx.*.dist", "phinx.dist.*"}
	DefaultSingletons = []string{"src/composer_autoloader.php", "app/phinx.php", "bin/phinx", "composer.json"}
)

// Holds the configuration options for pharpack
type Config struct {
	// Upstream git repository
	Repository string

	// Release tag to package, checked out as tags/<Version>
	Version string

	// Working directory for the clone; wiped before and after each run
	BuildDir string

	// Output directory; wiped at the start of each run
	DistDir string

	// Archive file name inside DistDir
	Output string

	// Alias the archive maps itself under
	Alias string

	// Archive-relative script the stub requires
	EntryPoint string

	// Upstream source directory name under src/
	Project string

	// Signature algorithm name (md5, sha1, sha256, sha512)
	Signature string

	// File name patterns for data/ templates
	Templates []string

	// Build-root-relative files added in order after the sources
	Singletons []string

	// License file added verbatim at the end
	License string

	// Dependencies whose relative path contains this are skipped
	Exclude string

	// Store dependencies verbatim instead of minifying them
	RawDependencies bool

	// External tools
	GitPath       string
	ComposerPath  string
	ComposerFlags []string

	// Leave the build directory in place after the run
	KeepBuild bool

	// Check that minified sources still parse
	Lint bool

	// Minify cache and build history
	NoCache  bool
	CacheDir string

	// Enable verbose output
	Verbose bool

	// Unix time stamped on archive entries; zero means now
	SourceDateEpoch int64
}

func Load() (*Config, error) {
	cfg := &Config{
		Repository:      viper.GetString("repository"),
		Version:         viper.GetString("version"),
		BuildDir:        viper.GetString("build_dir"),
		DistDir:         viper.GetString("dist_dir"),
		Output:          viper.GetString("output"),
		Alias:           viper.GetString("alias"),
		EntryPoint:      viper.GetString("entry_point"),
		Project:         viper.GetString("project"),
		Signature:       viper.GetString("signature"),
		Templates:       viper.GetStringSlice("templates"),
		Singletons:      viper.GetStringSlice("singletons"),
		License:         viper.GetString("license"),
		Exclude:         viper.GetString("exclude"),
		RawDependencies: viper.GetBool("raw_dependencies"),
		GitPath:         viper.GetString("git_path"),
		ComposerPath:    viper.GetString("composer_path"),
		ComposerFlags:   viper.GetStringSlice("composer_flags"),
		KeepBuild:       viper.GetBool("keep_build"),
		Lint:            viper.GetBool("lint"),
		NoCache:         viper.GetBool("no_cache"),
		CacheDir:        viper.GetString("cache_dir"),
		Verbose:         viper.GetBool("verbose"),
		SourceDateEpoch: viper.GetInt64("source_date_epoch"),
	}

	// Apply defaults if not set
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}

	if cfg.Signature == "" {
		cfg.Signature = DefaultSignature
	}

	if len(cfg.Templates) == 0 {
		cfg.Templates = DefaultTemplates
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Repository) == "" {
		return fmt.Errorf("repository must not be empty")
	}

	if strings.TrimSpace(c.Version) == "" {
		return fmt.Errorf("version must not be empty")
	}

	if c.Output == "" || strings.ContainsAny(c.Output, `/\`) {
		return fmt.Errorf("invalid output file name: %q", c.Output)
	}

	if c.Alias == "" {
		return fmt.Errorf("alias must not be empty")
	}

	if c.EntryPoint == "" {
		return fmt.Errorf("entry point must not be empty")
	}

	if _, err := phar.ParseSignatureAlgorithm(c.Signature); err != nil {
		return err
	}

	if c.SourceDateEpoch < 0 {
		return fmt.Errorf("invalid source date epoch: %d", c.SourceDateEpoch)
	}

	// Resolve directories
	for _, dir := range []*string{&c.BuildDir, &c.DistDir, &c.CacheDir} {
		if *dir == "" {
			continue
		}

		abs, err := filepath.Abs(*dir)
		if err != nil {
			return fmt.Errorf("invalid directory path: %v", err)
		}

		*dir = abs
	}

	if c.BuildDir == "" || c.DistDir == "" {
		return fmt.Errorf("build and dist directories must be set")
	}

	// The build directory is wiped, so it must not contain the output
	if c.BuildDir == c.DistDir || isWithin(c.DistDir, c.BuildDir) {
		return fmt.Errorf("dist directory %s must not be inside build directory %s", c.DistDir, c.BuildDir)
	}

	return nil
}

// OutputPath returns the absolute path of the archive
func (c *Config) OutputPath() string {
	return filepath.Join(c.DistDir, c.Output)
}

// SignatureAlgorithm returns the parsed signature algorithm
func (c *Config) SignatureAlgorithm() phar.SignatureAlgorithm {
	alg, err := phar.ParseSignatureAlgorithm(c.Signature)
	if err != nil {
		return phar.SHA1
	}

	return alg
}

// ModTime returns the timestamp for archive entries; zero means now
func (c *Config) ModTime() time.Time {
	if c.SourceDateEpoch == 0 {
		return time.Time{}
	}

	return time.Unix(c.SourceDateEpoch, 0).UTC()
}

func isWithin(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
