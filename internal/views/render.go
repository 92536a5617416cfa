package views

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"spectral-distview/internal/distribution"
	"spectral-distview/internal/export"
	"spectral-distview/internal/models"
)

// RenderChart draws coll into an in-memory image for display
func RenderChart(coll *distribution.Collection, opts export.Options) (image.Image, error) {
	var buf bytes.Buffer
	if err := export.Render(&buf, coll, opts); err != nil {
		return nil, err
	}
	img, err := png.Decode(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to decode chart: %w", err)
	}
	return img, nil
}

// MaskImage paints set pixels white on black, nil for an empty mask
func MaskImage(mask *models.Mask) image.Image {
	if mask.Empty() {
		return nil
	}
	img := image.NewGray(image.Rect(0, 0, mask.Width, mask.Height))
	for row := 0; row < mask.Height; row++ {
		for col := 0; col < mask.Width; col++ {
			if mask.At(row, col) {
				img.SetGray(col, row, color.Gray{Y: 255})
			}
		}
	}
	return img
}

// RangeText formats a binning range for the status bar
func RangeText(r models.Range) string {
	if !r.Valid() {
		return "Range: --"
	}
	return fmt.Sprintf("Range: [%.3g, %.3g]", r.Min, r.Max)
}

// StatusText summarises a published collection
func StatusText(rep models.Representation, coll *distribution.Collection) string {
	if coll == nil {
		return fmt.Sprintf("%s: waiting", rep)
	}
	return fmt.Sprintf("%s: %d labels, %d cells, weight %.0f", rep, len(coll.Sets), coll.CellCount(), coll.TotalWeight())
}
