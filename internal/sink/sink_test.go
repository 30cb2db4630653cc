package sink

import "testing"

func TestSplitSchema(t *testing.T) {
	cases := []struct {
		in         string
		wantSchema string
		wantTable  string
	}{
		{"public.planet_osm_point", "public", "planet_osm_point"},
		{"gis.planet_osm_polygon", "gis", "planet_osm_polygon"},
		{"noschema", "public", "noschema"},
	}

	for _, c := range cases {
		parts := splitSchema(c.in)
		if parts[0] != c.wantSchema || parts[1] != c.wantTable {
			t.Errorf("splitSchema(%q) = %v, want [%s %s]", c.in, parts, c.wantSchema, c.wantTable)
		}
	}
}
