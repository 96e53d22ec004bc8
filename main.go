package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ossyrian/npaparse/internal/config"
	"github.com/ossyrian/npaparse/internal/extract"
	"github.com/ossyrian/npaparse/internal/logging"
	"github.com/ossyrian/npaparse/internal/npa"
	"github.com/ossyrian/npaparse/internal/parser"
	"github.com/ossyrian/npaparse/internal/resolver"
	"github.com/ossyrian/npaparse/internal/titles"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command, which extracts an archive
var rootCmd = &cobra.Command{
	Use:   "npaparse",
	Short: "Decode and extract NPA archives",
	Long: `Decode and extract NPA archives.

Encrypted archives need the substitution table of their title, loaded from a
TOML keys file ([tables] section, one 512 digit hex string per title id).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          extractArchive,
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract every entry of an archive (default command)",
	RunE:  extractArchive,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")

	// i/o
	rootCmd.PersistentFlags().StringP("input", "i", "", "path to .npa file (required)")
	rootCmd.PersistentFlags().StringP("title", "t", "", "title id of the archive (detected when empty)")
	rootCmd.PersistentFlags().StringP("keys", "k", "", "path to the TOML keys file")

	// other opts
	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().String("log-output-dir", "", "directory to write log files (if set, logs are written to both stderr and file)")

	for _, c := range []*cobra.Command{rootCmd, extractCmd} {
		c.Flags().StringP("output", "o", "", "directory to extract to (defaults to the archive name)")
		c.Flags().Int("workers", 1, "number of entries extracted in parallel")
		c.Flags().Bool("dry-run", false, "decode every entry without writing output (validation)")
		c.Flags().StringSlice("path", nil, "only extract these entry paths")
	}

	viper.BindPFlag("input", rootCmd.PersistentFlags().Lookup("input"))
	viper.BindPFlag("title", rootCmd.PersistentFlags().Lookup("title"))
	viper.BindPFlag("keys_file", rootCmd.PersistentFlags().Lookup("keys"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_output_dir", rootCmd.PersistentFlags().Lookup("log-output-dir"))

	rootCmd.AddCommand(extractCmd, listCmd, detectCmd)
}

// initConfig reads in config file and environment variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "npaparse"))
		}
		viper.AddConfigPath("/etc/npaparse")
		viper.SetConfigName("config")
		viper.SetConfigType("toml")
	}

	viper.SetEnvPrefix("NPAPARSE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// bindLocal binds the flags that only exist on the running command
func bindLocal(cmd *cobra.Command, keys map[string]string) {
	for key, flag := range keys {
		if f := cmd.Flags().Lookup(flag); f != nil {
			viper.BindPFlag(key, f)
		}
	}
}

// loadConfig unmarshals the configuration and sets up logging
func loadConfig() (func() error, error) {
	cfg = &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	closeLog, err := logging.Setup(cfg.LogLevel, cfg.LogOutputDir)
	if err != nil {
		return nil, fmt.Errorf("could not set up logging: %w", err)
	}

	if cfg.InputFile == "" {
		closeLog()
		return nil, errors.New(`required flag "input" not set`)
	}

	return closeLog, nil
}

// loadRegistry builds the title registry from the configured or default keys file.
// A missing default keys file is not an error, unencrypted archives need no tables.
func loadRegistry() (*titles.Registry, error) {
	var (
		tables map[titles.Title][256]byte
		path   = cfg.KeysFile
		err    error
	)

	if path != "" {
		tables, err = titles.LoadKeys(path)
		if err != nil {
			return nil, err
		}
	} else {
		tables, path, err = titles.LoadDefaultKeys()
		if err != nil && path != "" {
			return nil, err
		}
		if err != nil {
			slog.Debug("no keys file loaded", "reason", err)
		}
	}

	reg := titles.NewRegistry(tables)
	if path != "" {
		slog.Info("loaded keys file", "path", path, "tables", reg.Loaded())
	}
	return reg, nil
}

// archive is an opened NPA file with its header parsed
type archive struct {
	file   *os.File
	reader *parser.NpaReader
	header *npa.Header
}

func openArchive(path string) (*archive, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open NPA file: %w", err)
	}

	r := parser.NewNpaReader(file, slog.Default())
	h, err := r.ReadHeader()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	return &archive{file: file, reader: r, header: h}, nil
}

func (a *archive) Close() error {
	return a.file.Close()
}

// profile returns the configured title, or detects it when none is set
func (a *archive) profile(reg *titles.Registry) (*titles.Profile, error) {
	if cfg.Title != "" {
		p, err := reg.Lookup(cfg.Title)
		if err != nil {
			return nil, fmt.Errorf("%w (known titles: %s)", err, knownTitles())
		}
		if a.header.Encrypted && !p.HasTable() {
			return nil, fmt.Errorf("%w: %s", titles.ErrMissingTable, p.ID)
		}
		return p, nil
	}

	slog.Info("no title given, detecting")
	return resolver.New(reg, slog.Default()).Resolve(a.reader)
}

// entries decodes the entry table for p
func (a *archive) entries(p *titles.Profile) ([]*npa.Entry, error) {
	if err := a.reader.RewindEntries(); err != nil {
		return nil, err
	}
	return a.reader.ReadEntries(p != nil && p.AddVariant())
}

func knownTitles() string {
	ids := make([]string, 0, len(titles.All()))
	for _, t := range titles.All() {
		ids = append(ids, t.ID())
	}
	return strings.Join(ids, ", ")
}

// extractArchive runs the extract command in order to write
// every entry of the specified archive to disk
func extractArchive(cmd *cobra.Command, args []string) error {
	bindLocal(cmd, map[string]string{
		"output":  "output",
		"workers": "workers",
		"dry_run": "dry-run",
	})
	paths, _ := cmd.Flags().GetStringSlice("path")

	closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	reg, err := loadRegistry()
	if err != nil {
		return err
	}

	slog.Info("extracting file", "input", cfg.InputFile)

	a, err := openArchive(cfg.InputFile)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.profile(reg)
	if err != nil {
		return err
	}

	entries, err := a.entries(p)
	if err != nil {
		return fmt.Errorf("failed to read entry table: %w", err)
	}

	outDir := cfg.OutputDir
	if outDir == "" {
		outDir = strings.TrimSuffix(cfg.InputFile, filepath.Ext(cfg.InputFile))
	}

	fs := afero.NewOsFs()
	x := extract.New(fs, extract.FileOpener(fs, cfg.InputFile), a.header, p, slog.Default())
	summary, err := x.Extract(cmd.Context(), entries, extract.Options{
		OutputDir: outDir,
		Workers:   cfg.Workers,
		DryRun:    cfg.DryRun,
		Paths:     paths,
	})
	if err != nil {
		if summary != nil {
			return fmt.Errorf("%d of %d entries failed: %w", summary.Failed, summary.Failed+summary.Files, err)
		}
		return err
	}

	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
