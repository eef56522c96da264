package polygons

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/jengzang/forestwatch-backend-go/internal/models"
	"github.com/jengzang/forestwatch-backend-go/internal/spatial"
)

// Geometry converts the polygon paths to an orb polygon with closed
// [lng, lat] rings
func Geometry(p *models.Polygon) orb.Polygon {
	poly := make(orb.Polygon, 0, len(p.Paths))
	for _, path := range p.Paths {
		ring := make(orb.Ring, 0, len(path)+1)
		for _, ll := range path {
			ring = append(ring, orb.Point{ll.Lng, ll.Lat})
		}
		if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
			ring = append(ring, ring[0])
		}
		poly = append(poly, ring)
	}
	return poly
}

// AreaHa returns the geodesic area of the polygon in hectares
func AreaHa(p *models.Polygon) float64 {
	return spatial.PolygonArea(pathsOf(p)) / spatial.SquareMetersPerHa
}

// FeatureCollection exports polygons as GeoJSON features
func FeatureCollection(polys []*models.Polygon) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range polys {
		f := geojson.NewFeature(Geometry(p))
		f.ID = p.ID
		f.Properties["type"] = int(p.Type)
		f.Properties["type_name"] = p.Type.String()
		f.Properties["cell"] = p.CellID
		f.Properties["report_id"] = p.ReportID
		f.Properties["operation"] = string(p.Operation)
		f.Properties["sync_state"] = p.SyncState
		f.Properties["area_ha"] = AreaHa(p)
		if p.ServerID != "" {
			f.Properties["server_id"] = p.ServerID
		}
		fc.Append(f)
	}
	return fc
}
