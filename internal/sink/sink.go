// Package sink bulk-loads assembled geometry into PostgreSQL. It
// stands in for the tile-worker layer that would otherwise consume the
// Facade's geometry stores: a real renderer would read handles as they
// are produced, but this package's job is only to prove the stores can
// be drained, not to render tiles.
package sink

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/osmstore-go/osmstore/internal/config"
	"github.com/osmstore-go/osmstore/internal/logger"
	"github.com/osmstore-go/osmstore/internal/osmstore"
	"github.com/osmstore-go/osmstore/internal/proj"
	"github.com/osmstore-go/osmstore/internal/wkb"
)

// Stats holds sink statistics.
type Stats struct {
	RowsLoaded int64
}

// Sink drains a Facade's OSM geometry store into PostgreSQL using
// pgx's CopyFrom, one unlogged table per geometry kind, indexes added
// only once every table is loaded.
type Sink struct {
	cfg           *config.Config
	pool          *pgxpool.Pool
	store         *osmstore.Facade
	transformer   *proj.Transformer
	dropExisting  bool
	createIndexes bool
}

// NewSink connects to PostgreSQL and returns a Sink that will read
// store's OSM geometry store.
func NewSink(cfg *config.Config, store *osmstore.Facade, dropExisting, createIndexes bool) (*Sink, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.Workers)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	transformer, err := proj.NewTransformer(proj.SRID4326, cfg.Projection)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &Sink{
		cfg:           cfg,
		pool:          pool,
		store:         store,
		transformer:   transformer,
		dropExisting:  dropExisting,
		createIndexes: createIndexes,
	}, nil
}

// Close closes the connection pool.
func (s *Sink) Close() error {
	s.pool.Close()
	return nil
}

// Run drains every geometry kind in the store into its matching table.
func (s *Sink) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	log := logger.Get()

	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS postgis"); err != nil {
		return nil, fmt.Errorf("failed to create PostGIS extension: %w", err)
	}
	if s.cfg.DBSchema != "public" {
		if _, err := s.pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", s.cfg.DBSchema)); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	kinds := []string{"planet_osm_point", "planet_osm_line", "planet_osm_polygon"}
	counts := make([]int64, len(kinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		i, kind := i, kind
		g.Go(func() error {
			count, err := s.loadKind(gctx, kind)
			if err != nil {
				return fmt.Errorf("failed to load %s: %w", kind, err)
			}
			counts[i] = count
			log.Info("Table loaded", zap.String("table", kind), zap.Int64("rows", count))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var tablesToIndex []string
	for i, kind := range kinds {
		stats.RowsLoaded += counts[i]
		if counts[i] > 0 {
			tablesToIndex = append(tablesToIndex, kind)
		}
	}

	if s.createIndexes && len(tablesToIndex) > 0 {
		ig, igctx := errgroup.WithContext(ctx)
		for _, table := range tablesToIndex {
			table := table
			ig.Go(func() error {
				return s.createIndexesFor(igctx, table)
			})
		}
		if err := ig.Wait(); err != nil {
			return nil, fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	return stats, nil
}

func (s *Sink) fullTableName(table string) string {
	return fmt.Sprintf("%s.%s", s.cfg.DBSchema, table)
}

// loadKind creates (or recreates) the table for kind and COPYs every
// matching geometry out of the store's OSM geometry store.
func (s *Sink) loadKind(ctx context.Context, kind string) (int64, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	fullName := s.fullTableName(kind)

	if s.dropExisting {
		if _, err := conn.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", fullName)); err != nil {
			return 0, fmt.Errorf("failed to drop table: %w", err)
		}
	}

	createSQL := fmt.Sprintf(`
		CREATE UNLOGGED TABLE IF NOT EXISTS %s (
			osm_id BIGINT NOT NULL,
			geom GEOMETRY(Geometry, %d)
		)
	`, fullName, s.cfg.Projection)
	if _, err := conn.Exec(ctx, createSQL); err != nil {
		return 0, fmt.Errorf("failed to create table: %w", err)
	}
	if !s.dropExisting {
		conn.Exec(ctx, fmt.Sprintf("TRUNCATE %s", fullName))
	}

	count, err := s.copyKind(ctx, conn.Conn(), fullName, kind)
	if err != nil {
		return 0, err
	}

	conn.Exec(ctx, fmt.Sprintf("ALTER TABLE %s SET LOGGED", fullName))
	return count, nil
}

// copyKind streams rows of one geometry kind from the Facade's OSM
// geometry store directly into a COPY, reprojecting and re-encoding
// each geometry on the way out.
func (s *Sink) copyKind(ctx context.Context, conn *pgx.Conn, fullName, kind string) (int64, error) {
	rows := make(chan []interface{}, 4096)

	go func() {
		defer close(rows)
		// Each producer goroutine runs for the duration of one
		// loadKind call, so it gets its own encoder: Encoder reuses
		// an internal buffer across calls and is not safe to share
		// between the three kinds loading concurrently. Each row carries
		// its own copy of the encoded bytes, since rows wait in the
		// channel while the encoder goes on to the next geometry.
		enc := wkb.NewEncoderWithSRID(4096, s.cfg.Projection)
		geoms := s.store.OSMGeometries()
		switch kind {
		case "planet_osm_point":
			geoms.RangePoints(func(id osmstore.WayID, pt orb.Point) {
				x, y := s.transformer.Transform(pt[0], pt[1])
				rows <- []interface{}{int64(id), append([]byte(nil), enc.EncodeOrbPoint(orb.Point{x, y})...)}
			})
		case "planet_osm_line":
			geoms.RangeLineStrings(func(id osmstore.WayID, ls orb.LineString) {
				rows <- []interface{}{int64(id), append([]byte(nil), enc.EncodeOrbLineString(s.transformLineString(ls))...)}
			})
		case "planet_osm_polygon":
			geoms.RangeMultiPolygons(func(id osmstore.WayID, mp orb.MultiPolygon) {
				rows <- []interface{}{int64(id), append([]byte(nil), enc.EncodeOrbMultiPolygon(s.transformMultiPolygon(mp))...)}
			})
		}
	}()

	parts := splitSchema(fullName)
	return conn.CopyFrom(ctx, pgx.Identifier{parts[0], parts[1]}, []string{"osm_id", "geom"}, &rowSource{rows: rows})
}

func (s *Sink) transformLineString(ls orb.LineString) orb.LineString {
	out := make(orb.LineString, len(ls))
	for i, p := range ls {
		x, y := s.transformer.Transform(p[0], p[1])
		out[i] = orb.Point{x, y}
	}
	return out
}

func (s *Sink) transformRing(ring orb.Ring) orb.Ring {
	return orb.Ring(s.transformLineString(orb.LineString(ring)))
}

func (s *Sink) transformPolygon(poly orb.Polygon) orb.Polygon {
	out := make(orb.Polygon, len(poly))
	for i, ring := range poly {
		out[i] = s.transformRing(ring)
	}
	return out
}

func (s *Sink) transformMultiPolygon(mp orb.MultiPolygon) orb.MultiPolygon {
	out := make(orb.MultiPolygon, len(mp))
	for i, poly := range mp {
		out[i] = s.transformPolygon(poly)
	}
	return out
}

func splitSchema(fullName string) [2]string {
	for i := 0; i < len(fullName); i++ {
		if fullName[i] == '.' {
			return [2]string{fullName[:i], fullName[i+1:]}
		}
	}
	return [2]string{"public", fullName}
}

func (s *Sink) createIndexesFor(ctx context.Context, table string) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	conn.Exec(ctx, "SET maintenance_work_mem = '2GB'")

	fullName := s.fullTableName(table)
	gistIdx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_geom_idx ON %s USING GIST (geom)", table, fullName)
	if _, err := conn.Exec(ctx, gistIdx); err != nil {
		return err
	}
	btreeIdx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_osm_id_idx ON %s (osm_id)", table, fullName)
	if _, err := conn.Exec(ctx, btreeIdx); err != nil {
		return err
	}
	_, err = conn.Exec(ctx, fmt.Sprintf("ANALYZE %s", fullName))
	return err
}

// rowSource implements pgx.CopyFromSource over a channel of already-built rows.
type rowSource struct {
	rows    <-chan []interface{}
	current []interface{}
}

func (r *rowSource) Next() bool {
	row, ok := <-r.rows
	if !ok {
		return false
	}
	r.current = row
	return true
}

func (r *rowSource) Values() ([]interface{}, error) {
	return r.current, nil
}

func (r *rowSource) Err() error {
	return nil
}
