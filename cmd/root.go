package cmd

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/osmstore-go/osmstore/internal/config"
	"github.com/osmstore-go/osmstore/internal/logger"
	"github.com/osmstore-go/osmstore/internal/metrics"
)

var (
	cfg             = config.DefaultConfig()
	verbose         bool
	logFile         string
	metricsInterval time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "osmstore",
	Short: "OSM entity store and geometry assembler for PostgreSQL/PostGIS",
	Long: `osmstore ingests an OSM PBF extract into a memory-mapped node store
plus heap-held way and relation indexes, then assembles way and
multipolygon relation geometry on demand.

Subcommands:
  - ingest  stream a PBF file's nodes into the arena
  - flex    run a Lua script's process_node/way/relation callbacks against it
  - export  assemble every way/relation and bulk-load the result to PostgreSQL`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg.Verbose = verbose
		cfg.LogFile = logFile
		cfg.MetricsInterval = metricsInterval

		// Initialize logger with optional file output
		if logFile != "" {
			logger.InitWithFile(verbose, logFile)
		} else {
			logger.Init(verbose)
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&cfg.OutputDir, "output-dir", "o", cfg.OutputDir, "Output directory (not read by any command; the arena file is placed at ArenaPath)")
	rootCmd.PersistentFlags().IntVarP(&cfg.Workers, "workers", "j", cfg.Workers, "Number of parallel workers")

	// Logging and metrics flags
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Path to log file for persistent logging (JSON format)")
	rootCmd.PersistentFlags().DurationVar(&metricsInterval, "metrics-interval", 30*time.Second, "Interval for system metrics logging (e.g., 10s, 1m)")

	// Database flags (persistent so they're available to all subcommands)
	rootCmd.PersistentFlags().StringVar(&cfg.DBHost, "db-host", cfg.DBHost, "PostgreSQL host")
	rootCmd.PersistentFlags().IntVar(&cfg.DBPort, "db-port", cfg.DBPort, "PostgreSQL port")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBName, "db-name", "d", cfg.DBName, "PostgreSQL database name")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBUser, "db-user", "U", cfg.DBUser, "PostgreSQL user")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBPassword, "db-password", "W", cfg.DBPassword, "PostgreSQL password")
	rootCmd.PersistentFlags().StringVar(&cfg.DBSchema, "db-schema", cfg.DBSchema, "PostgreSQL schema")

	// Style flag: a style YAML file gates which ways/relations pbf.Extractor
	// stores by tag (include/exclude/require_any); a .lua path here is
	// reserved for the Flex runtime instead and is not loaded as style YAML.
	rootCmd.PersistentFlags().StringVar(&cfg.StyleFile, "style-file", cfg.StyleFile, "Path to a style YAML file for tag-based way/relation filtering")
}

// startMetrics starts the background system-metrics collector at
// cfg.MetricsInterval and returns a func that stops it. Callers defer
// the returned func around whatever long-running pass it should watch.
func startMetrics(cfg *config.Config) func() {
	collector := metrics.NewCollector(cfg.MetricsInterval, logger.Get())
	ctx, cancel := context.WithCancel(context.Background())
	go collector.Start(ctx)
	return cancel
}

func exitWithError(msg string, err error) {
	log := logger.Get()
	if err != nil {
		log.Error(msg, zap.Error(err))
	} else {
		log.Error(msg)
	}
	os.Exit(1)
}
