package cmd

import (
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/osmstore-go/osmstore/internal/logger"
	"github.com/osmstore-go/osmstore/internal/osmstore"
	"github.com/osmstore-go/osmstore/internal/pbf"
)

var nodeStoreKindFlag string

var ingestCmd = &cobra.Command{
	Use:   "ingest <input.osm.pbf>",
	Short: "Stream a PBF file's nodes into the arena",
	Long: `Ingest runs pass 1 of PBF extraction: every node's coordinate is
written into the node store backing ArenaPath. This is the only pass
whose output survives past this process, since the compact node store
is memory-mapped to a file on disk while ways and relations live in
ordinary heap maps for the lifetime of one process.

Subsequent "flex" or "export" commands reopen the same ArenaPath and
run both passes (nodes, then ways and multipolygon relations) against
it, so they must be pointed at the same input file.`,
	Args: cobra.ExactArgs(1),
	Run:  runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVar(&nodeStoreKindFlag, "node-store", cfg.NodeStoreKind, `Node store kind: "compact" or "sparse"`)
	ingestCmd.Flags().StringVar(&cfg.ArenaPath, "arena-path", cfg.ArenaPath, "Backing file for the compact node store")
	ingestCmd.Flags().Int64Var(&cfg.ArenaInitialSize, "arena-size", cfg.ArenaInitialSize, "Initial arena mmap size in bytes")
	ingestCmd.Flags().BoolVar(&cfg.SkipNodes, "skip-nodes", false, "Skip node ingestion")
	ingestCmd.Flags().Uint64Var(&cfg.ExpectedNodes, "expected-nodes", cfg.ExpectedNodes, "Reserve capacity for this many node ids up front (compact store only; 0 = no reservation)")
}

func runIngest(cmd *cobra.Command, args []string) {
	cfg.InputFile = args[0]
	cfg.NodeStoreKind = nodeStoreKindFlag
	log := logger.Get()

	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}

	log.Info("Starting node ingestion",
		zap.String("input", cfg.InputFile),
		zap.String("arena", cfg.ArenaPath),
		zap.String("node_store", cfg.NodeStoreKind),
	)

	facade, err := osmstore.NewFacade(osmstore.FacadeConfig{
		NodeStoreKind:    osmstore.NodeStoreKind(cfg.NodeStoreKind),
		ArenaPath:        cfg.ArenaPath,
		ArenaInitialSize: cfg.ArenaInitialSize,
	})
	if err != nil {
		exitWithError("failed to open arena", err)
	}
	defer facade.Close()

	if cfg.ExpectedNodes > 0 {
		if err := facade.ReserveNodes(cfg.ExpectedNodes); err != nil {
			exitWithError("failed to reserve node capacity", err)
		}
		log.Info("Reserved node capacity", zap.Uint64("expected_nodes", cfg.ExpectedNodes))
	}

	stopMetrics := startMetrics(cfg)
	defer stopMetrics()

	extractor, err := pbf.NewExtractor(cfg, facade, nil)
	if err != nil {
		exitWithError("failed to build extractor", err)
	}

	start := time.Now()
	if err := extractor.RunNodePass(); err != nil {
		exitWithError("node ingestion failed", err)
	}
	elapsed := time.Since(start)

	stats := extractor.Stats()
	log.Info("Node ingestion complete",
		zap.Duration("duration", elapsed.Round(time.Second)),
		zap.Int64("nodes", stats.Nodes),
		zap.Float64("throughput_mb_s", float64(stats.BytesRead)/(1024*1024)/elapsed.Seconds()),
	)
}
