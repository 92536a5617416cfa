package views

import (
	"fmt"
	"sync"

	"spectral-distview/internal/distview"
	"spectral-distview/internal/eventbus"
	"spectral-distview/internal/export"
	"spectral-distview/internal/logger"
	"spectral-distview/internal/models"
	"spectral-distview/internal/normrange"
	"spectral-distview/internal/views/components"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
)

// Options configures the main view
type Options struct {
	Bins        int
	ChartWidth  int
	ChartHeight int
	BandLabels  []string
}

type panel struct {
	model   *distview.Model
	display *components.DistributionDisplay
}

// MainView shows one chart tab per distribution model and forwards the
// toolbar controls to every model
type MainView struct {
	window        fyne.Window
	mainContainer *fyne.Container
	toolbar       *components.Toolbar
	statusBar     *components.StatusBar
	tabs          *container.AppTabs

	bus     *eventbus.Bus
	logger  logger.Logger
	opts    Options
	handler eventbus.HandlerFunc

	mu     sync.Mutex
	panels []*panel
}

// NewMainView creates the main view and subscribes it to distribution events
func NewMainView(window fyne.Window, bus *eventbus.Bus, log logger.Logger, opts Options) *MainView {
	if log == nil {
		log = logger.NoOpLogger{}
	}
	mv := &MainView{
		window: window,
		bus:    bus,
		logger: log,
		opts:   opts,
	}

	mv.toolbar = components.NewToolbar(opts.Bins, models.MaxBins)
	mv.statusBar = components.NewStatusBar()
	mv.tabs = container.NewAppTabs()
	mv.mainContainer = container.NewBorder(
		mv.toolbar.GetContainer(),
		mv.statusBar.GetContainer(),
		nil,
		nil,
		mv.tabs,
	)
	window.SetContent(mv.mainContainer)

	mv.setupEventHandlers()
	mv.handler = eventbus.HandlerFunc{ID: "views.main", Fn: mv.handleEvent}
	if bus != nil {
		bus.Subscribe(eventbus.EventDistributionUpdated, mv.handler)
		bus.Subscribe(eventbus.EventRangeUpdated, mv.handler)
	}
	return mv
}

// AddModel adds a chart tab for model
func (mv *MainView) AddModel(model *distview.Model) {
	display := components.NewDistributionDisplay(model.Representation().String())

	mv.mu.Lock()
	mv.panels = append(mv.panels, &panel{model: model, display: display})
	mv.mu.Unlock()

	fyne.Do(func() {
		mv.tabs.Append(container.NewTabItem(model.Representation().String(), display.GetContainer()))
	})
}

// SetImageInfo shows the dimensions of the loaded image
func (mv *MainView) SetImageInfo(width, height, bands int) {
	mv.statusBar.SetImageInfo(width, height, bands)
}

func (mv *MainView) setupEventHandlers() {
	mv.toolbar.SetBinsChangeHandler(func(bins int) {
		mv.each(func(p *panel) { p.model.SetBins(bins) })
		mv.statusBar.SetStatus(fmt.Sprintf("Rebinning with %d bins", bins))
	})

	mv.toolbar.SetIgnoreLabelsHandler(func(ignore bool) {
		mv.each(func(p *panel) { p.model.ToggleIgnoreLabels(ignore) })
	})

	mv.toolbar.SetNormalizeHandler(func(name string) {
		mode, err := normrange.ParseMode(name)
		if err != nil {
			mv.ShowError("Normalization", err)
			return
		}
		mv.each(func(p *panel) {
			if err := p.model.Normalize(mode, models.Range{}); err != nil {
				mv.logger.Warning("MainView", "normalization failed", map[string]interface{}{
					"view":  p.model.Representation().String(),
					"mode":  name,
					"error": err.Error(),
				})
			}
		})
	})

	mv.toolbar.SetClearMaskHandler(func() {
		mv.each(func(p *panel) {
			p.model.ClearMask()
			p.display.SetMask(nil)
		})
	})

	mv.toolbar.SetExportHandler(mv.exportCurrent)
}

func (mv *MainView) each(fn func(p *panel)) {
	mv.mu.Lock()
	panels := append([]*panel(nil), mv.panels...)
	mv.mu.Unlock()
	for _, p := range panels {
		fn(p)
	}
}

func (mv *MainView) find(rep models.Representation) *panel {
	mv.mu.Lock()
	defer mv.mu.Unlock()
	for _, p := range mv.panels {
		if p.model.Representation() == rep {
			return p
		}
	}
	return nil
}

// handleEvent runs on the event bus worker
func (mv *MainView) handleEvent(event eventbus.Event) {
	p := mv.find(event.Representation)
	if p == nil {
		return
	}

	switch event.Type {
	case eventbus.EventRangeUpdated:
		mv.statusBar.SetRangeInfo(RangeText(event.Range))
	case eventbus.EventDistributionUpdated:
		coll := p.model.Distribution()
		img, err := RenderChart(coll, mv.chartOptions(event.Representation))
		if err != nil {
			mv.logger.Error("MainView", err, map[string]interface{}{
				"view": event.Representation.String(),
			})
			return
		}
		p.display.SetChart(img)
		p.display.SetMask(MaskImage(p.model.HighlightMask()))
		mv.statusBar.SetStatus(StatusText(event.Representation, coll))
		mv.toolbar.EnableExport(true)
	}
}

func (mv *MainView) chartOptions(rep models.Representation) export.Options {
	return export.Options{
		Title:      rep.String(),
		Width:      mv.opts.ChartWidth,
		Height:     mv.opts.ChartHeight,
		BandLabels: mv.opts.BandLabels,
	}
}

func (mv *MainView) current() *panel {
	mv.mu.Lock()
	defer mv.mu.Unlock()
	index := mv.tabs.SelectedIndex()
	if index < 0 || index >= len(mv.panels) {
		return nil
	}
	return mv.panels[index]
}

func (mv *MainView) exportCurrent() {
	p := mv.current()
	if p == nil {
		return
	}
	dialog.ShowFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil {
			mv.ShowError("Export", err)
			return
		}
		if writer == nil {
			return
		}
		defer writer.Close()

		rep := p.model.Representation()
		if err := export.Render(writer, p.model.Distribution(), mv.chartOptions(rep)); err != nil {
			mv.ShowError("Export", err)
			return
		}
		mv.statusBar.SetStatus(fmt.Sprintf("Exported %s to %s", rep, writer.URI().Name()))
	}, mv.window)
}

// ShowError displays an error dialog
func (mv *MainView) ShowError(title string, err error) {
	fyne.Do(func() {
		dialog.ShowError(fmt.Errorf("%s: %w", title, err), mv.window)
	})
}

// Shutdown stops chart updates; the window is left to the application
func (mv *MainView) Shutdown() {
	if mv.bus != nil {
		mv.bus.Unsubscribe(eventbus.EventDistributionUpdated, mv.handler)
		mv.bus.Unsubscribe(eventbus.EventRangeUpdated, mv.handler)
	}
}
