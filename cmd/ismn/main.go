// ismn indexes ISMN soil moisture archives.
// Builds a per-sensor-file metadata index from a directory tree or zip
// archive, filters it, exports it and publishes it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soilnet/ismn/internal/logger"
	"github.com/soilnet/ismn/pkg/config"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// Global flags and the state PersistentPreRunE derives from them.
var (
	configFile string
	logLevel   string
	logFormat  string
	verbose    bool
	workers    int
	tableFlag  string

	cfg *config.Config
	log *zap.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ismn",
	Short: "Index ISMN soil moisture archives",
	Long: `ismn scans an archive of ISMN sensor files, organised network/station/file
as a directory tree or a zip file, and builds a metadata index with one
record per sensor file. The index is cached as a flat table next to the
archive and reused until the archive is rebuilt.`,
	Version:           fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Config file merged over the default search path")
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&logFormat, "log-format", "", "Log format (console, json)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Shorthand for --log-level debug")
	pf.IntVarP(&workers, "workers", "w", -1, "Parallel station scans (0 = one per CPU)")
	pf.StringVar(&tableFlag, "table", "", "Index table path (default <archive>.index.csv)")

	rootCmd.AddCommand(buildCmd, infoCmd, filterCmd, readCmd, exportCmd, queryCmd, publishCmd, watchCmd)
}

// setup loads the configuration, applies flag overrides and creates the
// logger.
func setup(cmd *cobra.Command, args []string) error {
	m := config.NewManager()
	if err := m.Load(); err != nil {
		return err
	}
	if configFile != "" {
		if err := m.LoadFile(configFile); err != nil {
			return err
		}
	}
	cfg = m.Get()

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if workers >= 0 {
		cfg.Build.Workers = workers
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	l, err := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	log = l.With(zap.String("cmd", cmd.Name()))
	log.Debug("configuration loaded", zap.Strings("files", m.Paths()))
	return nil
}
