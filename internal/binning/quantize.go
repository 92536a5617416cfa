package binning

import (
	"math"

	"spectral-distview/internal/distribution"
)

// BinIndex maps a value onto its bin. Values outside the advertised range
// are clamped to the first or last bin, since image bounds are theoretical.
func BinIndex(v, minval, binsize float64, bins int) int {
	if binsize <= 0 || math.IsNaN(v) {
		return 0
	}
	pos := math.Floor((v - minval) / binsize)
	if pos < 0 {
		return 0
	}
	if pos > float64(bins-1) {
		return bins - 1
	}
	return int(pos)
}

// Quantize writes the cell key of pixel into key
func Quantize(pixel []float64, minval, binsize float64, bins int, key *distribution.Key) {
	key.Reset(len(pixel))
	for d, v := range pixel {
		key.Put(d, BinIndex(v, minval, binsize, bins))
	}
}

// PixelTrajectory returns the display polyline of a single pixel: its bin
// positions, scaled per band by the illuminant when present
func PixelTrajectory(pixel []float64, minval, binsize float64, bins int, illuminant []float64) []distribution.Point {
	var key distribution.Key
	Quantize(pixel, minval, binsize, bins, &key)
	return distribution.Trajectory(key, illuminant)
}
