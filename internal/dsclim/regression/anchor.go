package regression

import (
	"math"

	"github.com/cerfacs-go/dsclim/internal/dsclim/dsclimerr"
)

// AnchorPoint is a regression anchor location (spec §6).
type AnchorPoint struct {
	Lon, Lat float64
}

const earthRadiusMeters = 6371000.0

// haversineMeters returns the great-circle distance in meters between
// two (lon, lat) points in degrees.
func haversineMeters(lon1, lat1, lon2, lat2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// NeighborhoodMask builds, for one anchor point, a boolean grid mask of
// every (lon,lat) grid cell within distThreshMeters.
func NeighborhoodMask(point AnchorPoint, gridLon, gridLat [][]float64, distThreshMeters float64) ([][]bool, int, error) {
	if len(gridLon) == 0 || len(gridLon) != len(gridLat) {
		return nil, 0, dsclimerr.DimensionMismatch("neighborhood mask: empty or mismatched lon/lat grids")
	}
	ny := len(gridLon)
	mask := make([][]bool, ny)
	count := 0
	for y := 0; y < ny; y++ {
		if len(gridLon[y]) != len(gridLat[y]) {
			return nil, 0, dsclimerr.DimensionMismatch("neighborhood mask: ragged row %d", y)
		}
		nx := len(gridLon[y])
		row := make([]bool, nx)
		for x := 0; x < nx; x++ {
			if haversineMeters(point.Lon, point.Lat, gridLon[y][x], gridLat[y][x]) <= distThreshMeters {
				row[x] = true
				count++
			}
		}
		mask[y] = row
	}
	return mask, count, nil
}

// PrecipIndexFromField computes the observed precipitation index at an
// anchor point for one day: the square root of the equal-weighted
// spatial mean of raw precipitation within the anchor's neighborhood
// mask, using only non-missing points (spec §4.E). Negative means
// (which should not occur for precipitation) are clamped to zero
// before the square root to keep the index real-valued.
func PrecipIndexFromField(field [][]float64, missing [][]bool, neighborhood [][]bool) (float64, int, error) {
	var sum float64
	var count int
	for y := range field {
		if neighborhood != nil && y >= len(neighborhood) {
			break
		}
		for x := range field[y] {
			if neighborhood != nil && (x >= len(neighborhood[y]) || !neighborhood[y][x]) {
				continue
			}
			if missing != nil && y < len(missing) && x < len(missing[y]) && missing[y][x] {
				continue
			}
			sum += field[y][x]
			count++
		}
	}
	if count == 0 {
		return 0, 0, dsclimerr.NoObservationsInNeighborhood("precip index: no observation grid cells within neighborhood")
	}
	mean := sum / float64(count)
	if mean < 0 {
		mean = 0
	}
	return math.Sqrt(mean), count, nil
}
