package osmstore

import "github.com/paulmach/orb"

// GeometrySource distinguishes the two parallel geometry stores the
// façade keeps: one for geometry assembled from OSM ways/relations,
// one for geometry supplied externally (e.g. loaded from a shapefile
// and merged into the same tile stream).
type GeometrySource int

const (
	// SourceOSM holds geometry produced by GeometryAssembler from
	// OSM nodes, ways and relations.
	SourceOSM GeometrySource = iota
	// SourceSHP holds geometry handed to the store pre-built, not
	// derived from any way/relation in this store.
	SourceSHP
)

// GeneratedGeometry records one assembled geometry alongside the
// way or relation id that produced it, so callers can trace a tile
// feature back to its source OSM object.
type GeneratedGeometry struct {
	Source GeometrySource
	WayID  WayID
	Point  *orb.Point
	Line   *orb.LineString
	Poly   *orb.MultiPolygon
}

// GeometryStore is an append-only collection of assembled geometries.
// Points, linestrings and multipolygons are kept in separate handle
// tables: a caller holding a Handle also needs to know which of the
// three Append methods produced it, exactly as the caller needs to
// know a WayID's sign to tell an ordinary way from a synthesized
// relation pseudo-way.
type GeometryStore struct {
	source        GeometrySource
	points        *HandleTable[GeneratedGeometry]
	linestrings   *HandleTable[GeneratedGeometry]
	multipolygons *HandleTable[GeneratedGeometry]
}

// NewGeometryStore creates an empty geometry store for the given
// source.
func NewGeometryStore(source GeometrySource) *GeometryStore {
	return &GeometryStore{
		source:        source,
		points:        NewHandleTable[GeneratedGeometry](),
		linestrings:   NewHandleTable[GeneratedGeometry](),
		multipolygons: NewHandleTable[GeneratedGeometry](),
	}
}

// AppendPoint stores a point geometry attributed to wayID and returns
// its handle.
func (g *GeometryStore) AppendPoint(wayID WayID, pt orb.Point) Handle {
	return g.points.Insert(GeneratedGeometry{Source: g.source, WayID: wayID, Point: &pt})
}

// AppendLineString stores a linestring geometry attributed to wayID
// and returns its handle.
func (g *GeometryStore) AppendLineString(wayID WayID, ls orb.LineString) Handle {
	return g.linestrings.Insert(GeneratedGeometry{Source: g.source, WayID: wayID, Line: &ls})
}

// AppendMultiPolygon stores a multipolygon geometry attributed to
// wayID and returns its handle.
func (g *GeometryStore) AppendMultiPolygon(wayID WayID, mp orb.MultiPolygon) Handle {
	return g.multipolygons.Insert(GeneratedGeometry{Source: g.source, WayID: wayID, Poly: &mp})
}

// Point retrieves a previously appended point by handle.
func (g *GeometryStore) Point(h Handle) (orb.Point, error) {
	rec, err := g.points.Get(h)
	if err != nil {
		return orb.Point{}, err
	}
	return *rec.Point, nil
}

// LineString retrieves a previously appended linestring by handle.
func (g *GeometryStore) LineString(h Handle) (orb.LineString, error) {
	rec, err := g.linestrings.Get(h)
	if err != nil {
		return nil, err
	}
	return *rec.Line, nil
}

// MultiPolygon retrieves a previously appended multipolygon by handle.
func (g *GeometryStore) MultiPolygon(h Handle) (orb.MultiPolygon, error) {
	rec, err := g.multipolygons.Get(h)
	if err != nil {
		return nil, err
	}
	return *rec.Poly, nil
}

// Counts reports how many geometries of each kind have been appended.
func (g *GeometryStore) Counts() (points, linestrings, multipolygons int) {
	return g.points.Len(), g.linestrings.Len(), g.multipolygons.Len()
}

// RangePoints calls fn once for every appended point geometry, in no
// particular order. Used by bulk export to stream the store's full
// contents without requiring a caller to track handles.
func (g *GeometryStore) RangePoints(fn func(WayID, orb.Point)) {
	g.points.Range(func(_ Handle, rec *GeneratedGeometry) {
		fn(rec.WayID, *rec.Point)
	})
}

// RangeLineStrings calls fn once for every appended linestring geometry.
func (g *GeometryStore) RangeLineStrings(fn func(WayID, orb.LineString)) {
	g.linestrings.Range(func(_ Handle, rec *GeneratedGeometry) {
		fn(rec.WayID, *rec.Line)
	})
}

// RangeMultiPolygons calls fn once for every appended multipolygon
// geometry.
func (g *GeometryStore) RangeMultiPolygons(fn func(WayID, orb.MultiPolygon)) {
	g.multipolygons.Range(func(_ Handle, rec *GeneratedGeometry) {
		fn(rec.WayID, *rec.Poly)
	})
}
