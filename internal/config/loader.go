package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// flagKeys maps command flags to configuration keys
var flagKeys = map[string]string{
	"tag":              "version",
	"repository":       "repository",
	"build-dir":        "build_dir",
	"dist-dir":         "dist_dir",
	"output":           "output",
	"signature":        "signature",
	"raw-dependencies": "raw_dependencies",
	"keep-build":       "keep_build",
	"lint":             "lint",
	"no-cache":         "no_cache",
	"cache-dir":        "cache_dir",
	"verbose":          "verbose",
}

// Loader handles configuration loading from various sources
type Loader struct {
	configDir func() (string, error)
	workDir   func() (string, error)
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		configDir: os.UserConfigDir,
		workDir:   os.Getwd,
	}
}

// LoadForBuild loads configuration specifically for build operations.
// A positional argument selects the release tag.
func (l *Loader) LoadForBuild(cmd *cobra.Command, args []string) (*Config, error) {
	l.setupViperDefaults()
	l.loadGlobalConfig()
	l.loadLocalConfig(cmd)
	l.bindCommandFlags(cmd)

	if len(args) > 0 && args[0] != "" {
		viper.Set("version", args[0])
	}

	return Load()
}

// LoadForCommand loads configuration for commands that do not build
func (l *Loader) LoadForCommand(cmd *cobra.Command) (*Config, error) {
	return l.LoadForBuild(cmd, nil)
}

// setupViperDefaults sets up default values for viper
func (l *Loader) setupViperDefaults() {
	viper.SetDefault("repository", DefaultRepository)
	viper.SetDefault("version", DefaultVersion)
	viper.SetDefault("build_dir", DefaultBuildDir)
	viper.SetDefault("dist_dir", DefaultDistDir)
	viper.SetDefault("output", DefaultOutput)
	viper.SetDefault("alias", DefaultAlias)
	viper.SetDefault("entry_point", DefaultEntryPoint)
	viper.SetDefault("project", DefaultProject)
	viper.SetDefault("signature", DefaultSignature)
	viper.SetDefault("templates", DefaultTemplates)
	viper.SetDefault("singletons", DefaultSingletons)
	viper.SetDefault("license", DefaultLicense)
	viper.SetDefault("exclude", DefaultExclude)
	viper.SetDefault("raw_dependencies", false)
	viper.SetDefault("git_path", DefaultGitPath)
	viper.SetDefault("composer_path", DefaultComposer)
	viper.SetDefault("composer_flags", []string{})
	viper.SetDefault("keep_build", false)
	viper.SetDefault("lint", false)
	viper.SetDefault("no_cache", false)
	viper.SetDefault("cache_dir", DefaultCacheDir)
	viper.SetDefault("verbose", DefaultVerbose)
	viper.SetDefault("source_date_epoch", 0)

	_ = viper.BindEnv("source_date_epoch", "SOURCE_DATE_EPOCH")
}

// loadGlobalConfig loads global configuration from the user config directory
func (l *Loader) loadGlobalConfig() {
	base, err := l.configDir()
	if err != nil || base == "" {
		return
	}

	globalDir := filepath.Join(base, "pharpack")

	for _, ext := range []string{"yml", "yaml", "json", "toml"} {
		globalPath := filepath.Join(globalDir, "config."+ext)

		if _, err := os.Stat(globalPath); err == nil {
			viper.SetConfigFile(globalPath)

			if err := viper.MergeInConfig(); err == nil {
				break
			}
		}
	}
}

// loadLocalConfig loads the --config file, or the nearest project config
// found by walking up from the working directory
func (l *Loader) loadLocalConfig(cmd *cobra.Command) {
	localPath := ""

	if cmd != nil {
		if f := cmd.Flags().Lookup("config"); f != nil {
			localPath = f.Value.String()
		}
	}

	if localPath == "" {
		dir, err := l.workDir()
		if err != nil {
			return // silently ignore, defaults and global config still apply
		}

		localPath = FindLocalConfig(dir)
	}

	if localPath != "" {
		viper.SetConfigFile(localPath)
		_ = viper.MergeInConfig()
	}
}

// bindCommandFlags binds command flags to viper
func (l *Loader) bindCommandFlags(cmd *cobra.Command) {
	if cmd == nil {
		return
	}

	for flag, key := range flagKeys {
		if f := cmd.Flags().Lookup(flag); f != nil {
			_ = viper.BindPFlag(key, f)
		}
	}
}
