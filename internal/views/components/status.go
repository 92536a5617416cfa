package components

import (
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// StatusBar displays view status, image and binning range information
type StatusBar struct {
	container   *fyne.Container
	statusLabel *widget.Label
	imageInfo   *widget.Label
	rangeInfo   *widget.Label
}

// NewStatusBar creates a new status bar component
func NewStatusBar() *StatusBar {
	sb := &StatusBar{}
	sb.statusLabel = widget.NewLabel("Ready")
	sb.imageInfo = widget.NewLabel("No image loaded")
	sb.rangeInfo = widget.NewLabel("Range: --")
	sb.container = container.NewHBox(
		sb.statusLabel,
		widget.NewSeparator(),
		sb.imageInfo,
		widget.NewSeparator(),
		sb.rangeInfo,
	)
	return sb
}

// SetStatus updates the main status message
func (sb *StatusBar) SetStatus(status string) {
	fyne.Do(func() {
		sb.statusLabel.SetText(status)
	})
}

// SetImageInfo updates the image information display
func (sb *StatusBar) SetImageInfo(width, height, bands int) {
	fyne.Do(func() {
		sb.imageInfo.SetText(fmt.Sprintf("Image: %dx%d, %d bands", width, height, bands))
	})
}

// SetRangeInfo updates the binning range display
func (sb *StatusBar) SetRangeInfo(text string) {
	fyne.Do(func() {
		sb.rangeInfo.SetText(text)
	})
}

// Reset resets the status bar to initial state
func (sb *StatusBar) Reset() {
	fyne.Do(func() {
		sb.statusLabel.SetText("Ready")
		sb.imageInfo.SetText("No image loaded")
		sb.rangeInfo.SetText("Range: --")
	})
}

// GetContainer returns the status bar container
func (sb *StatusBar) GetContainer() *fyne.Container {
	return sb.container
}
