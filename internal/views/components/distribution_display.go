package components

import (
	"image"
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

const (
	ChartAreaWidth  = 800
	ChartAreaHeight = 420
	MaskAreaSize    = 240
)

// DistributionDisplay shows the parallel-coordinate chart of a view next to
// the pixel highlight mask
type DistributionDisplay struct {
	container *fyne.Container
	chart     *canvas.Image
	mask      *canvas.Image
	title     *widget.Label

	chartPlaceholder image.Image
	maskPlaceholder  image.Image

	hasChart bool
}

// NewDistributionDisplay creates the chart display component
func NewDistributionDisplay(title string) *DistributionDisplay {
	display := &DistributionDisplay{}
	display.createComponents(title)
	display.setupLayout()
	return display
}

func (dd *DistributionDisplay) createComponents(title string) {
	dd.chartPlaceholder = placeholder(ChartAreaWidth, ChartAreaHeight)
	dd.maskPlaceholder = placeholder(MaskAreaSize, MaskAreaSize)

	dd.chart = canvas.NewImageFromImage(dd.chartPlaceholder)
	dd.chart.FillMode = canvas.ImageFillContain
	dd.chart.ScaleMode = canvas.ImageScaleSmooth
	dd.chart.SetMinSize(fyne.NewSize(ChartAreaWidth, ChartAreaHeight))

	dd.mask = canvas.NewImageFromImage(dd.maskPlaceholder)
	dd.mask.FillMode = canvas.ImageFillContain
	dd.mask.ScaleMode = canvas.ImageScalePixels
	dd.mask.SetMinSize(fyne.NewSize(MaskAreaSize, MaskAreaSize))

	dd.title = widget.NewLabel(title)
	dd.title.TextStyle = fyne.TextStyle{Bold: true}
}

func (dd *DistributionDisplay) setupLayout() {
	maskSection := container.NewVBox(
		widget.NewLabel("Highlight"),
		dd.mask,
	)
	dd.container = container.NewBorder(dd.title, nil, nil, maskSection, dd.chart)
}

// placeholder draws a light gray area with a border
func placeholder(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	background := color.RGBA{R: 240, G: 240, B: 240, A: 255}
	border := color.RGBA{R: 200, G: 200, B: 200, A: 255}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x == 0 || y == 0 || x == width-1 || y == height-1 {
				img.Set(x, y, border)
			} else {
				img.Set(x, y, background)
			}
		}
	}
	return img
}

// SetChart replaces the displayed chart
func (dd *DistributionDisplay) SetChart(img image.Image) {
	if img == nil {
		return
	}
	fyne.Do(func() {
		dd.chart.Image = img
		dd.chart.Refresh()
		dd.hasChart = true
	})
}

// SetMask replaces the highlight overlay, nil restores the placeholder
func (dd *DistributionDisplay) SetMask(img image.Image) {
	fyne.Do(func() {
		if img == nil {
			dd.mask.Image = dd.maskPlaceholder
		} else {
			dd.mask.Image = img
		}
		dd.mask.Refresh()
	})
}

// HasChart reports whether a chart was rendered since the last reset
func (dd *DistributionDisplay) HasChart() bool {
	return dd.hasChart
}

// Reset restores both placeholders
func (dd *DistributionDisplay) Reset() {
	fyne.Do(func() {
		dd.chart.Image = dd.chartPlaceholder
		dd.chart.Refresh()
		dd.mask.Image = dd.maskPlaceholder
		dd.mask.Refresh()
		dd.hasChart = false
	})
}

// GetContainer returns the display container
func (dd *DistributionDisplay) GetContainer() *fyne.Container {
	return dd.container
}
