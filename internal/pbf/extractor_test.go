package pbf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/osm"

	"github.com/osmstore-go/osmstore/internal/config"
	"github.com/osmstore-go/osmstore/internal/osmstore"
)

func newTestFacade(t *testing.T) *osmstore.Facade {
	t.Helper()
	f, err := osmstore.NewFacade(osmstore.FacadeConfig{
		NodeStoreKind:    osmstore.NodeStoreSparse,
		ArenaInitialSize: 64,
	})
	if err != nil {
		t.Fatalf("NewFacade: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func tagsOf(pairs ...string) osm.Tags {
	tags := make(osm.Tags, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		tags = append(tags, osm.Tag{Key: pairs[i], Value: pairs[i+1]})
	}
	return tags
}

func TestNewExtractorNoStyleFileMatchesEverything(t *testing.T) {
	e, err := NewExtractor(&config.Config{}, newTestFacade(t), nil)
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	if !e.keepWay(tagsOf("highway", "residential"), false) {
		t.Error("keepWay with no style file should keep every way")
	}
}

func TestNewExtractorSkipsLuaStyleFile(t *testing.T) {
	e, err := NewExtractor(&config.Config{StyleFile: "script.lua"}, newTestFacade(t), nil)
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	if !e.keepWay(tagsOf("highway", "residential"), false) {
		t.Error("keepWay with a .lua StyleFile should not apply YAML filtering")
	}
}

func TestNewExtractorLoadsStyleFile(t *testing.T) {
	stylePath := filepath.Join(t.TempDir(), "style.yaml")
	styleYAML := `
lines:
  include:
    highway: []
polygons:
  include:
    building: []
`
	if err := os.WriteFile(stylePath, []byte(styleYAML), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	e, err := NewExtractor(&config.Config{StyleFile: stylePath}, newTestFacade(t), nil)
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}

	if !e.keepWay(tagsOf("highway", "residential"), false) {
		t.Error("keepWay should keep a way matching the line filter")
	}
	if e.keepWay(tagsOf("landuse", "forest"), false) {
		t.Error("keepWay should drop a way matching neither filter")
	}
	if !e.keepWay(tagsOf("building", "yes"), true) {
		t.Error("keepWay should keep a closed way matching the polygon filter")
	}
	if e.keepWay(tagsOf("building", "yes"), false) {
		t.Error("keepWay should not apply the polygon filter to an open way")
	}
}

func TestNewExtractorMissingStyleFileErrors(t *testing.T) {
	_, err := NewExtractor(&config.Config{StyleFile: filepath.Join(t.TempDir(), "missing.yaml")}, newTestFacade(t), nil)
	if err == nil {
		t.Fatal("NewExtractor with a missing style file should error")
	}
}
