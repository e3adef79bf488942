package collector

// Layout describes where each group lives inside the build root.
// Directory and file names use forward slashes.
type Layout struct {
	TemplatesDir     string
	TemplatePatterns []string

	VendorDir string
	SourceDir string

	// Base name pattern for dependency and source files
	PHPPattern string

	// Dependency paths containing this substring (any case) are skipped
	Exclude string

	// Individually named files, appended in order
	Singletons []string

	// Stored verbatim after the stub is set
	License string

	// Store dependency files verbatim instead of minified
	RawDependencies bool
}

// DefaultLayout is the layout of a Phinx release checkout
func DefaultLayout() Layout {
	return Layout{
		TemplatesDir:     "data",
		TemplatePatterns: []string{"phinx.*.dist", "phinx.dist.*"},
		VendorDir:        "vendor",
		SourceDir:        "src/Phinx",
		PHPPattern:       "*.php",
		Exclude:          "tests",
		Singletons: []string{
			"src/composer_autoloader.php",
			"app/phinx.php",
			"bin/phinx",
			"composer.json",
		},
		License: "LICENSE",
	}
}
