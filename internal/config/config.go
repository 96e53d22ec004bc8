package config

// Config holds app configuration
type Config struct {
	InputFile  string `mapstructure:"input"`
	OutputDir  string `mapstructure:"output"`
	JSONOutput string `mapstructure:"json_output"`

	// Title is the title id used to decode the archive
	// If not provided, the title is detected by trial decoding
	Title string `mapstructure:"title"`

	// KeysFile is the TOML file holding the per-title substitution tables
	// If not provided, npa-keys.toml and ~/.config/npaparse/keys.toml are tried
	KeysFile string `mapstructure:"keys_file"`

	// Workers is the number of entries extracted in parallel
	Workers int `mapstructure:"workers"`

	DryRun       bool   `mapstructure:"dry_run"`
	LogLevel     string `mapstructure:"log_level"`
	LogOutputDir string `mapstructure:"log_output_dir"`
}
