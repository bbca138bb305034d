package mesh

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// horizonSegments is the number of vertices in the projected equator ring
const horizonSegments = 72

// HorizonRing returns the unit circle, the image of the equator under
// Project, as a closed ring of n segments
func HorizonRing(n int) orb.Ring {
	if n < 3 {
		n = 3
	}
	ring := make(orb.Ring, 0, n+1)
	for i := range n {
		a := 2 * math.Pi * float64(i) / float64(n)
		ring = append(ring, orb.Point{math.Cos(a), math.Sin(a)})
	}
	return append(ring, ring[0])
}

// PeakToFeature converts one projected peak to a GeoJSON point feature.
// rank is the peak's position in its report, 0 for the strongest.
func PeakToFeature(r *PeakReport, rank int) *geojson.Feature {
	p, flipped := Project(r.Directions[rank])
	theta, phi := SphericalAngles(r.Directions[rank])

	f := geojson.NewFeature(orb.Point{p.X, p.Y})
	f.ID = fmt.Sprintf("%s/%d", r.Source, rank)
	f.Properties["layerType"] = "peak"
	f.Properties["source"] = r.Source
	f.Properties["sphere"] = r.Sphere
	f.Properties["rank"] = rank
	f.Properties["index"] = r.Indices[rank]
	f.Properties["value"] = r.Values[rank]
	f.Properties["theta"] = theta
	f.Properties["phi"] = phi
	f.Properties["flipped"] = flipped
	if top := r.MaxValue(); top > 0 {
		f.Properties["relativeValue"] = r.Values[rank] / top
	}
	return f
}

// ReportToFeatureCollection converts a report to a GeoJSON FeatureCollection
// on the projected unit disk. With horizon set, the equator is added as a
// polygon feature.
func ReportToFeatureCollection(r *PeakReport, horizon bool) *geojson.FeatureCollection {
	return ReportsToFeatureCollection([]*PeakReport{r}, horizon)
}

// ReportsToFeatureCollection merges the peaks of several reports into one
// collection
func ReportsToFeatureCollection(reports []*PeakReport, horizon bool) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	if horizon {
		f := geojson.NewFeature(orb.Polygon{HorizonRing(horizonSegments)})
		f.Properties["layerType"] = "horizon"
		fc.Append(f)
	}

	for _, r := range reports {
		if r == nil {
			continue
		}
		for rank := range r.Directions {
			fc.Append(PeakToFeature(r, rank))
		}
	}

	if len(fc.Features) > 0 {
		fc.BBox = geojson.NewBBox(PeakBound(reports, horizon))
	}
	return fc
}

// PeakBound returns the bounding box of all projected peaks. With horizon
// set the whole unit disk is included.
func PeakBound(reports []*PeakReport, horizon bool) orb.Bound {
	var mp orb.MultiPoint
	if horizon {
		mp = append(mp, orb.Point{-1, -1}, orb.Point{1, 1})
	}
	for _, r := range reports {
		if r == nil {
			continue
		}
		for _, d := range r.Directions {
			p, _ := Project(d)
			mp = append(mp, orb.Point{p.X, p.Y})
		}
	}
	if len(mp) == 0 {
		return orb.Bound{}
	}
	return mp.Bound()
}
