package components

import (
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// Toolbar holds the binning controls shared by every view
type Toolbar struct {
	container         *fyne.Container
	exportButton      *widget.Button
	binsSlider        *widget.Slider
	binsLabel         *widget.Label
	ignoreLabelsCheck *widget.Check
	normalizeSelect   *widget.Select
	clearMaskButton   *widget.Button

	// Event handlers
	exportHandler       func()
	binsChangeHandler   func(int)
	ignoreLabelsHandler func(bool)
	normalizeHandler    func(string)
	clearMaskHandler    func()
}

// NewToolbar creates the toolbar with the given initial bin count
func NewToolbar(bins, maxBins int) *Toolbar {
	t := &Toolbar{}
	t.createComponents(bins, maxBins)
	t.buildLayout()
	t.setupEventHandlers()
	return t
}

func (t *Toolbar) createComponents(bins, maxBins int) {
	t.exportButton = widget.NewButton("Export Chart", nil)
	t.exportButton.Importance = widget.HighImportance
	t.exportButton.Disable()

	t.binsSlider = widget.NewSlider(2, float64(maxBins))
	t.binsSlider.Step = 1
	t.binsSlider.SetValue(float64(bins))
	t.binsLabel = widget.NewLabel(binsText(bins))

	t.ignoreLabelsCheck = widget.NewCheck("Ignore labels", nil)

	t.normalizeSelect = widget.NewSelect([]string{"observed", "theoretical"}, nil)
	t.normalizeSelect.SetSelected("observed")

	t.clearMaskButton = widget.NewButton("Clear Highlight", nil)
}

func (t *Toolbar) buildLayout() {
	binsSection := container.NewVBox(
		t.binsLabel,
		container.NewGridWrap(fyne.NewSize(200, t.binsSlider.MinSize().Height), t.binsSlider),
	)

	normalizeSection := container.NewVBox(
		widget.NewLabel("Normalization"),
		t.normalizeSelect,
	)

	t.container = container.NewHBox(
		t.exportButton,
		widget.NewSeparator(),
		binsSection,
		widget.NewSeparator(),
		normalizeSection,
		widget.NewSeparator(),
		t.ignoreLabelsCheck,
		t.clearMaskButton,
	)
}

func (t *Toolbar) setupEventHandlers() {
	t.exportButton.OnTapped = func() {
		if t.exportHandler != nil {
			t.exportHandler()
		}
	}

	t.binsSlider.OnChanged = func(value float64) {
		t.binsLabel.SetText(binsText(int(value)))
	}
	t.binsSlider.OnChangeEnded = func(value float64) {
		if t.binsChangeHandler != nil {
			t.binsChangeHandler(int(value))
		}
	}

	t.ignoreLabelsCheck.OnChanged = func(ignore bool) {
		if t.ignoreLabelsHandler != nil {
			t.ignoreLabelsHandler(ignore)
		}
	}

	t.normalizeSelect.OnChanged = func(mode string) {
		if t.normalizeHandler != nil {
			t.normalizeHandler(mode)
		}
	}

	t.clearMaskButton.OnTapped = func() {
		if t.clearMaskHandler != nil {
			t.clearMaskHandler()
		}
	}
}

func binsText(bins int) string {
	return fmt.Sprintf("Bins: %d", bins)
}

// SetExportHandler sets the chart export handler
func (t *Toolbar) SetExportHandler(handler func()) {
	t.exportHandler = handler
}

// SetBinsChangeHandler sets the handler run once the slider is released
func (t *Toolbar) SetBinsChangeHandler(handler func(int)) {
	t.binsChangeHandler = handler
}

// SetIgnoreLabelsHandler sets the ignore labels toggle handler
func (t *Toolbar) SetIgnoreLabelsHandler(handler func(bool)) {
	t.ignoreLabelsHandler = handler
}

// SetNormalizeHandler sets the normalization mode handler
func (t *Toolbar) SetNormalizeHandler(handler func(string)) {
	t.normalizeHandler = handler
}

// SetClearMaskHandler sets the highlight reset handler
func (t *Toolbar) SetClearMaskHandler(handler func()) {
	t.clearMaskHandler = handler
}

// EnableExport enables the export button once a distribution exists
func (t *Toolbar) EnableExport(enabled bool) {
	fyne.Do(func() {
		if enabled {
			t.exportButton.Enable()
		} else {
			t.exportButton.Disable()
		}
	})
}

// GetContainer returns the toolbar container
func (t *Toolbar) GetContainer() *fyne.Container {
	return t.container
}
