// Package normrange derives the value bounds used to bin a representation.
package normrange

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"spectral-distview/internal/models"
)

// Mode selects how the binning range of an image is obtained
type Mode int

const (
	// Observed scans the data for its actual minimum and maximum
	Observed Mode = iota
	// Theoretical uses the representation's nominal bounds
	Theoretical
	// Fixed keeps a caller supplied range
	Fixed
)

// nominal maximum of raw intensities
const maxIntensity = 255.0

func (m Mode) String() string {
	switch m {
	case Observed:
		return "observed"
	case Theoretical:
		return "theoretical"
	case Fixed:
		return "fixed"
	default:
		return "unknown"
	}
}

// ParseMode maps a configuration string onto a Mode
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "observed", "":
		return Observed, nil
	case "theoretical":
		return Theoretical, nil
	case "fixed":
		return Fixed, nil
	}
	return Observed, fmt.Errorf("unknown normalization mode %q", s)
}

// Compute returns the range to bin img with. Gradient representations are in
// log space, so their theoretical range is symmetric around zero.
func Compute(img *models.MultiImage, mode Mode, rep models.Representation, fixed models.Range) (models.Range, error) {
	switch mode {
	case Observed:
		if img == nil {
			return models.Range{}, fmt.Errorf("no image to observe")
		}
		data := img.Data()
		if len(data) == 0 {
			return models.Range{}, fmt.Errorf("image has no values")
		}
		return models.Range{Min: floats.Min(data), Max: floats.Max(data)}, nil
	case Theoretical:
		if rep.Logarithmic() {
			return models.Range{Min: -math.Log(maxIntensity), Max: math.Log(maxIntensity)}, nil
		}
		return models.Range{Min: 0, Max: maxIntensity}, nil
	case Fixed:
		if !fixed.Valid() {
			return models.Range{}, fmt.Errorf("invalid fixed range [%g, %g]", fixed.Min, fixed.Max)
		}
		return fixed, nil
	}
	return models.Range{}, fmt.Errorf("unknown normalization mode %d", mode)
}
