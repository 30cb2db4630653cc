package pbf

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"

	"github.com/osmstore-go/osmstore/internal/config"
	"github.com/osmstore-go/osmstore/internal/logger"
	"github.com/osmstore-go/osmstore/internal/osmstore"
	"github.com/osmstore-go/osmstore/internal/style"
)

// Stats holds ingestion statistics.
type Stats struct {
	Nodes     int64
	Ways      int64
	Relations int64
	BytesRead int64
}

// ObjectVisitor is called once per node/way/relation as it is ingested
// into the Facade, after the corresponding Insert* call has completed,
// so the visitor can drive downstream processing (e.g. a Lua Flex
// runtime's process_node/way/relation callbacks) against a store that
// already knows about the object.
type ObjectVisitor interface {
	VisitNode(id osmstore.NodeID, tags osm.Tags, ll osmstore.LatpLon)
	VisitWay(id osmstore.WayID, tags osm.Tags, closed bool)
	VisitRelation(id osmstore.WayID, tags osm.Tags)
}

// Extractor streams a PBF file into an osmstore.Facade. Unlike the
// extract/load split this replaces, there is no intermediate file
// format: every node, way and multipolygon relation goes straight
// into the Facade's stores over a single pass, with a first pass
// limited to populating the node store so way ingestion can resolve
// coordinates immediately.
type Extractor struct {
	cfg    *config.Config
	facade *osmstore.Facade
	visit  ObjectVisitor

	// lineFilter and polygonFilter decide which ways/relations are
	// worth assembling at all, applied before InsertWay/InsertRelation
	// so tag-filtered objects never occupy a store slot. Both default
	// to "match everything" when cfg.StyleFile is empty or names a Lua
	// script instead of a style YAML file.
	lineFilter    *style.Filter
	polygonFilter *style.Filter

	stats Stats
}

// NewExtractor creates a PBF extractor that ingests into facade. visit
// may be nil if no per-object callback is needed. If cfg.StyleFile
// names a style YAML file (as opposed to a Flex Lua script), its
// lines/polygons include/exclude/require_any rules are loaded and
// applied to every way and relation before it is stored.
func NewExtractor(cfg *config.Config, facade *osmstore.Facade, visit ObjectVisitor) (*Extractor, error) {
	e := &Extractor{
		cfg:           cfg,
		facade:        facade,
		visit:         visit,
		lineFilter:    style.NewFilter(nil),
		polygonFilter: style.NewFilter(nil),
	}

	if cfg.StyleFile != "" && !strings.HasSuffix(cfg.StyleFile, ".lua") {
		styleCfg, err := style.LoadConfig(cfg.StyleFile)
		if err != nil {
			return nil, fmt.Errorf("pbf: load style file: %w", err)
		}
		e.lineFilter = style.NewFilter(styleCfg.Lines)
		e.polygonFilter = style.NewFilter(styleCfg.Polygons)
	}

	return e, nil
}

// keepWay reports whether a way's tags pass the configured style
// filters: kept if it matches the line filter, or if it's closed and
// matches the polygon filter (a closed way can legitimately be either,
// e.g. a tagged area vs. a roundabout).
func (e *Extractor) keepWay(tags osm.Tags, closed bool) bool {
	if e.lineFilter.MatchOSMTags(tags) {
		return true
	}
	return closed && e.polygonFilter.MatchOSMTags(tags)
}

// Run executes the two-pass ingestion: pass 1 loads every node's
// coordinate into the Facade's node store, pass 2 resolves ways and
// multipolygon relations against it. cmd/flex and cmd/export call Run;
// cmd/ingest calls only RunNodePass, since only the compact node
// store's backing file survives past one process's lifetime.
func (e *Extractor) Run() (*Stats, error) {
	if err := e.RunNodePass(); err != nil {
		return nil, err
	}
	if err := e.RunWayRelationPass(); err != nil {
		return nil, err
	}
	return &e.stats, nil
}

// RunNodePass streams every node in the input file into the Facade's
// node store and stops at the first way.
func (e *Extractor) RunNodePass() error {
	log := logger.Get()

	f, err := os.Open(e.cfg.InputFile)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	e.stats.BytesRead = info.Size()

	log.Info("Pass 1: ingesting nodes")
	start := time.Now()
	if err := e.ingestNodes(f); err != nil {
		return err
	}
	log.Info("Pass 1 complete", zap.Int64("nodes", e.stats.Nodes), zap.Duration("duration", time.Since(start).Round(time.Second)))
	return nil
}

// RunWayRelationPass streams every way and multipolygon relation in the
// input file, resolving node coordinates against whatever the node
// store already holds (from this process's RunNodePass, or a prior
// process's, via a shared ArenaPath).
func (e *Extractor) RunWayRelationPass() error {
	log := logger.Get()

	f, err := os.Open(e.cfg.InputFile)
	if err != nil {
		return err
	}
	defer f.Close()

	log.Info("Pass 2: ingesting ways and relations")
	start := time.Now()
	if err := e.ingestWaysAndRelations(f); err != nil {
		return err
	}
	log.Info("Pass 2 complete", zap.Int64("ways", e.stats.Ways), zap.Int64("relations", e.stats.Relations), zap.Duration("duration", time.Since(start).Round(time.Second)))
	return nil
}

// Stats returns the extractor's running statistics.
func (e *Extractor) Stats() Stats { return e.stats }

func (e *Extractor) ingestNodes(f *os.File) error {
	scanner := osmpbf.New(context.Background(), f, runtime.NumCPU())
	defer scanner.Close()

	for scanner.Scan() {
		if osmstore.Interrupted.Load() {
			return scanner.Err()
		}
		obj := scanner.Object()
		switch n := obj.(type) {
		case *osm.Node:
			if e.cfg.SkipNodes {
				continue
			}
			id := osmstore.NodeID(n.ID)
			ll := osmstore.LatpLon{
				Latp: int32(n.Lat * 1e7),
				Lon:  int32(n.Lon * 1e7),
			}
			if err := e.facade.InsertNode(id, ll); err != nil {
				return err
			}
			e.stats.Nodes++
			if e.visit != nil {
				e.visit.VisitNode(id, n.Tags, ll)
			}
		case *osm.Way:
			// Nodes are declared before ways in a PBF file; once we
			// see the first way, pass 1 is done.
			return scannerErr(scanner)
		}
	}
	return scannerErr(scanner)
}

func (e *Extractor) ingestWaysAndRelations(f *os.File) error {
	scanner := osmpbf.New(context.Background(), f, runtime.NumCPU())
	defer scanner.Close()

	for scanner.Scan() {
		if osmstore.Interrupted.Load() {
			return scanner.Err()
		}
		obj := scanner.Object()
		switch o := obj.(type) {
		case *osm.Node:
			continue
		case *osm.Way:
			if e.cfg.SkipWays {
				continue
			}
			nodes := make([]osmstore.NodeID, len(o.Nodes))
			for i, ref := range o.Nodes {
				nodes[i] = osmstore.NodeID(ref.ID)
			}
			closed := len(nodes) >= 4 && nodes[0] == nodes[len(nodes)-1]
			if !e.keepWay(o.Tags, closed) {
				continue
			}
			id := osmstore.WayID(o.ID)
			if err := e.facade.InsertWay(id, nodes); err != nil {
				return err
			}
			e.stats.Ways++
			if e.visit != nil {
				e.visit.VisitWay(id, o.Tags, closed)
			}
		case *osm.Relation:
			if e.cfg.SkipRelations {
				continue
			}
			if !isMultipolygonRelation(o.Tags) {
				continue
			}
			if !e.polygonFilter.MatchOSMTags(o.Tags) {
				continue
			}
			id := syntheticRelationID(o.ID)
			members := osmstore.RelationMembers{}
			for _, m := range o.Members {
				if m.Type != osm.TypeWay {
					continue
				}
				switch m.Role {
				case "inner":
					members.Inner = append(members.Inner, osmstore.WayID(m.Ref))
				default:
					members.Outer = append(members.Outer, osmstore.WayID(m.Ref))
				}
			}
			if err := e.facade.InsertRelation(id, members); err != nil {
				return err
			}
			e.stats.Relations++
			if e.visit != nil {
				e.visit.VisitRelation(id, o.Tags)
			}
		}
	}
	return scannerErr(scanner)
}

func scannerErr(scanner *osmpbf.Scanner) error {
	if err := scanner.Err(); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// syntheticRelationID produces the negative pseudo-WayID the store
// uses for a multipolygon relation's stitched geometry, keeping it
// distinguishable from any real (positive) WayID.
func syntheticRelationID(id osm.RelationID) osmstore.WayID {
	return osmstore.WayID(-int64(id))
}

func isMultipolygonRelation(tags osm.Tags) bool {
	for _, tag := range tags {
		if tag.Key == "type" {
			return tag.Value == "multipolygon" || tag.Value == "boundary"
		}
	}
	return false
}
