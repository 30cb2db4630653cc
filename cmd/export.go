package cmd

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/paulmach/osm"
	"github.com/spf13/cobra"

	"github.com/osmstore-go/osmstore/internal/logger"
	"github.com/osmstore-go/osmstore/internal/osmstore"
	"github.com/osmstore-go/osmstore/internal/pbf"
	"github.com/osmstore-go/osmstore/internal/sink"
)

// logProgress starts a ticker that logs the geometry store's running
// counts every tick; the caller cancels ctx once the pass it's
// watching finishes.
func logProgress(ctx context.Context, facade *osmstore.Facade) {
	ticker := pbf.NewProgressTicker(ctx, func() {
		points, lines, polys := facade.OSMGeometries().Counts()
		logger.Get().Info("assembling",
			zap.Int("points", points),
			zap.Int("linestrings", lines),
			zap.Int("multipolygons", polys),
		)
	})
	go ticker.Run()
}

var (
	exportDropExisting  bool
	exportCreateIndexes bool
	exportAreasOnly     bool
)

var exportCmd = &cobra.Command{
	Use:   "export <input.osm.pbf>",
	Short: "Assemble way and relation geometry and bulk-load it to PostgreSQL",
	Long: `Export runs both passes of PBF extraction against the node store at
ArenaPath (nodes, then ways and multipolygon relations), assembling
every way and multipolygon relation into the
Facade's OSM geometry store, then drains that store into PostgreSQL
via internal/sink's COPY-based loader. This is the plain (non-Lua)
output path; use "flex" instead when a script needs to decide which
objects become which table rows.`,
	Args: cobra.ExactArgs(1),
	Run:  runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().BoolVar(&exportDropExisting, "drop-existing", false, "Drop existing output tables before loading")
	exportCmd.Flags().BoolVar(&exportCreateIndexes, "create-indexes", true, "Create spatial indexes after loading")
	exportCmd.Flags().BoolVar(&exportAreasOnly, "areas-only", false, "Render every closed way as a polygon instead of a linestring")
}

// exportVisitor assembles geometry for every way and relation as it is
// ingested, so the sink has something to drain once the pass completes.
type exportVisitor struct {
	facade    *osmstore.Facade
	areasOnly bool
}

func (v *exportVisitor) VisitNode(osmstore.NodeID, osm.Tags, osmstore.LatpLon) {}

func (v *exportVisitor) VisitWay(id osmstore.WayID, tags osm.Tags, closed bool) {
	asArea := v.areasOnly && closed
	if _, err := v.facade.AssembleWayGeometry(id, asArea); err != nil {
		logger.Get().Warn("skipping way", zap.Int64("id", int64(id)), zap.Error(err))
	}
}

func (v *exportVisitor) VisitRelation(id osmstore.WayID, tags osm.Tags) {
	if _, err := v.facade.AssembleRelationGeometry(id); err != nil {
		logger.Get().Warn("skipping relation", zap.Int64("id", int64(id)), zap.Error(err))
	}
}

func runExport(cmd *cobra.Command, args []string) {
	cfg.InputFile = args[0]
	log := logger.Get()

	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}

	facade, err := osmstore.NewFacade(osmstore.FacadeConfig{
		NodeStoreKind:    osmstore.NodeStoreKind(cfg.NodeStoreKind),
		ArenaPath:        cfg.ArenaPath,
		ArenaInitialSize: cfg.ArenaInitialSize,
	})
	if err != nil {
		exitWithError("failed to open arena", err)
	}
	defer facade.Close()

	stopMetrics := startMetrics(cfg)
	defer stopMetrics()

	log.Info("Assembling geometry", zap.String("input", cfg.InputFile))

	visitor := &exportVisitor{facade: facade, areasOnly: exportAreasOnly}
	extractor, err := pbf.NewExtractor(cfg, facade, visitor)
	if err != nil {
		exitWithError("failed to build extractor", err)
	}

	progressCtx, stopProgress := context.WithCancel(context.Background())
	logProgress(progressCtx, facade)

	start := time.Now()
	_, runErr := extractor.Run()
	stopProgress()
	if runErr != nil {
		exitWithError("geometry assembly failed", runErr)
	}

	points, lines, polys := facade.OSMGeometries().Counts()
	log.Info("Geometry assembled",
		zap.Duration("duration", time.Since(start).Round(time.Second)),
		zap.Int("points", points),
		zap.Int("linestrings", lines),
		zap.Int("multipolygons", polys),
	)

	sk, err := sink.NewSink(cfg, facade, exportDropExisting, exportCreateIndexes)
	if err != nil {
		exitWithError("failed to connect to PostgreSQL", err)
	}
	defer sk.Close()

	ctx := context.Background()
	loadStart := time.Now()
	stats, err := sk.Run(ctx)
	if err != nil {
		exitWithError("load failed", err)
	}

	log.Info("Load complete",
		zap.Duration("duration", time.Since(loadStart).Round(time.Second)),
		zap.Int64("rows", stats.RowsLoaded),
	)
}
