package distview

import (
	"spectral-distview/internal/binning"
	"spectral-distview/internal/distribution"
	"spectral-distview/internal/mask"
	"spectral-distview/internal/models"
)

// FillMaskSingle highlights the pixels whose bin in band equals bin. It
// returns a copy of the highlight mask, nil without image or on bad input.
func (m *Model) FillMaskSingle(band, bin int) *models.Mask {
	return m.buildMask("single", func(hl *models.Mask, img *models.MultiImage, q mask.Quantizer) error {
		return m.masks.FillSingle(hl, img, q, band, bin)
	})
}

// FillMaskRange highlights the pixels that fall within every band range
func (m *Model) FillMaskRange(ranges mask.Ranges) *models.Mask {
	return m.buildMask("range", func(hl *models.Mask, img *models.MultiImage, q mask.Quantizer) error {
		return m.masks.FillRange(hl, img, q, ranges)
	})
}

// UpdateMaskRange refreshes the highlight mask after the range of one band
// changed. The mask must stem from FillMaskRange with the other ranges equal.
func (m *Model) UpdateMaskRange(ranges mask.Ranges, changed int) *models.Mask {
	return m.buildMask("update", func(hl *models.Mask, img *models.MultiImage, q mask.Quantizer) error {
		return m.masks.UpdateRange(hl, img, q, ranges, changed)
	})
}

// ClearMask unsets every highlighted pixel
func (m *Model) ClearMask() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.highlight != nil {
		m.highlight.Clear()
	}
}

// HighlightMask returns a copy of the current highlight mask
func (m *Model) HighlightMask() *models.Mask {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.highlight.Clone()
}

// PixelTrajectory returns the display polyline of the pixel at (row, col),
// nil when no image is bound or the pixel lies outside it
func (m *Model) PixelTrajectory(row, col int) []distribution.Point {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.image == nil {
		return nil
	}
	img, release := m.image.Read()
	defer release()
	if img == nil || !img.Contains(row, col) {
		return nil
	}

	args := m.quantization(img)
	return binning.PixelTrajectory(img.Pixel(row, col), args.MinVal, args.BinSize, args.Bins, m.illuminant)
}

func (m *Model) buildMask(mode string, fill func(hl *models.Mask, img *models.MultiImage, q mask.Quantizer) error) *models.Mask {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.image == nil {
		return nil
	}
	img, release := m.image.Read()
	defer release()
	if img == nil {
		return nil
	}

	if m.highlight == nil || m.highlight.Width != img.Width || m.highlight.Height != img.Height {
		m.highlight = models.NewMask(img.Width, img.Height)
	}
	if err := fill(m.highlight, img, mask.QuantizerFrom(m.quantization(img))); err != nil {
		m.logger.Debug("DistView", "mask not built", map[string]interface{}{
			"view":  m.lane,
			"mode":  mode,
			"error": err.Error(),
		})
		return nil
	}
	return m.highlight.Clone()
}

// quantization resolves the binning parameters masks and trajectories must
// share with the published distribution
func (m *Model) quantization(img *models.MultiImage) models.ViewportArgs {
	args := m.vp.Snapshot()
	binning.Resolve(&args, img)
	return args
}
