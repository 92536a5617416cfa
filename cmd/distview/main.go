package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"spectral-distview/internal/config"
	"spectral-distview/internal/distview"
	"spectral-distview/internal/eventbus"
	"spectral-distview/internal/export"
	"spectral-distview/internal/imageio"
	"spectral-distview/internal/logger"
	"spectral-distview/internal/models"
	"spectral-distview/internal/opencv/bridge"
	"spectral-distview/internal/queue"
	"spectral-distview/internal/shutdown"
	"spectral-distview/internal/views"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gocv.io/x/gocv"
)

const (
	AppName = "Spectral Distribution Viewer"
	AppID   = "com.spectral.distview"
)

var (
	flagConfig    = flag.String("config", "", "TOML configuration file")
	flagImage     = flag.String("image", "", "Image or band descriptor (.txt) to load")
	flagBins      = flag.Int("bins", 0, "Bin count, overrides the configuration")
	flagGradient  = flag.Bool("gradient", true, "Also show the spectral gradient view")
	flagExport    = flag.String("export", "", "Render the image distribution to this PNG and exit")
	flagHighlight = flag.String("highlight", "", "Highlight band:bin before exporting")
	flagMask      = flag.String("mask", "", "Write the highlight mask to this image when exporting")
)

// Application wires the shared queue and bus to one model per representation
type Application struct {
	cfg      config.Config
	logger   *logger.ZerologAdapter
	queue    *queue.Queue
	bus      *eventbus.Bus
	shutdown *shutdown.Manager
	image    *models.MultiImage
	models   []*distview.Model
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "distview: %v\n", err)
		if config.IsValidationError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*flagConfig)
	if err != nil {
		return err
	}
	if *flagBins > 0 {
		cfg.Distribution.Bins = models.ClampBins(*flagBins)
	}

	application, err := NewApplication(cfg)
	if err != nil {
		return err
	}
	defer application.shutdown.Shutdown()

	if *flagImage != "" {
		img, err := imageio.Load(*flagImage)
		if err != nil {
			return err
		}
		if err := application.AddModels(img, *flagGradient); err != nil {
			return err
		}
	}

	if *flagExport != "" {
		return application.Export(*flagExport, *flagHighlight, *flagMask)
	}
	return application.RunGUI()
}

func newLogger(cfg config.LogConfig) *logger.ZerologAdapter {
	level := logger.ParseLevel(cfg.Level)
	if cfg.Console {
		return logger.NewConsoleLogger(level)
	}
	return logger.NewZerolog(os.Stderr, level)
}

// NewApplication starts the queue, the event bus and, when enabled, the
// metrics endpoint
func NewApplication(cfg config.Config) (*Application, error) {
	log := newLogger(cfg.Log)
	log.Info("Application", "starting", map[string]interface{}{
		"go_version": runtime.Version(),
		"num_cpu":    runtime.NumCPU(),
		"workers":    cfg.Queue.Workers,
		"bins":       cfg.Distribution.Bins,
	})

	manager := shutdown.NewManager(log, 10*time.Second)

	q := queue.New(cfg.Queue.Workers, log)
	q.Start(manager.Context())
	manager.Register("queue", q)

	bus := eventbus.NewBus(cfg.Queue.EventBuffer, log)
	manager.Register("event bus", bus)

	if cfg.Metrics.Enabled {
		manager.Register("metrics", serveMetrics(cfg.Metrics.Address, log))
	}

	return &Application{
		cfg:      cfg,
		logger:   log,
		queue:    q,
		bus:      bus,
		shutdown: manager,
	}, nil
}

func serveMetrics(address string, log logger.Logger) shutdown.ShutdownFunc {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("Metrics", "serving", map[string]interface{}{"address": address})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics", err, map[string]interface{}{"address": address})
		}
	}()

	return func() {
		stopServer(server, 2*time.Second, log)
	}
}

// stopServer drains server within timeout and logs a failed drain
func stopServer(server *http.Server, timeout time.Duration, log logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Metrics", err, map[string]interface{}{"address": server.Addr, "stage": "shutdown"})
	}
}

// AddModels creates the IMG model and, when gradient is set, the GRAD model
// fed by the log-space band differences of img
func (a *Application) AddModels(img *models.MultiImage, gradient bool) error {
	a.image = img
	inputs := []struct {
		rep models.Representation
		img *models.MultiImage
	}{{models.RepresentationIMG, img}}

	if gradient && img.Bands > 1 {
		grad, err := bridge.Gradient(img)
		if err != nil {
			return fmt.Errorf("gradient: %w", err)
		}
		inputs = append(inputs, struct {
			rep models.Representation
			img *models.MultiImage
		}{models.RepresentationGRAD, grad})
	}

	for _, in := range inputs {
		model, err := distview.NewModel(distview.Options{
			Representation: in.rep,
			Bins:           a.cfg.Distribution.Bins,
			Workers:        a.cfg.Queue.TaskWorkers,
			Queue:          a.queue,
			Bus:            a.bus,
			Logger:         a.logger.With("view", in.rep.String()),
		})
		if err != nil {
			return err
		}
		if in.rep == models.RepresentationIMG {
			model.SetIlluminant(a.cfg.Distribution.Illuminant, false)
		}
		a.models = append(a.models, model)
	}

	for i, in := range inputs {
		a.bind(a.models[i], in.img)
	}
	return nil
}

func (a *Application) bind(model *distview.Model, img *models.MultiImage) {
	model.SetImage(models.NewSharedImage(img), img.Bounds(), a.cfg.Distribution.Bins)
	if err := model.Normalize(a.cfg.NormalizationMode(), a.cfg.FixedRange()); err != nil {
		a.logger.Warning("Application", "keeping image value range", map[string]interface{}{
			"view":  model.Representation().String(),
			"error": err.Error(),
		})
	}
}

// Export renders the first view's distribution and, optionally, a highlight mask
func (a *Application) Export(path, highlight, maskPath string) error {
	if len(a.models) == 0 {
		return fmt.Errorf("export requires an image")
	}
	model := a.models[0]
	model.Flush()

	opts := export.Options{
		Title:      model.Representation().String(),
		Width:      a.cfg.Export.Width,
		Height:     a.cfg.Export.Height,
		BandLabels: export.BandLabels(a.image.Meta),
	}
	if err := export.WritePNG(path, model.Distribution(), opts); err != nil {
		return err
	}
	a.logger.Info("Application", "distribution exported", map[string]interface{}{
		"path":  path,
		"cells": model.Distribution().CellCount(),
	})

	if highlight == "" {
		return nil
	}
	band, bin, err := parseHighlight(highlight)
	if err != nil {
		return err
	}
	mask := model.FillMaskSingle(band, bin)
	if mask == nil {
		return fmt.Errorf("highlight %s selected nothing", highlight)
	}
	a.logger.Info("Application", "highlight built", map[string]interface{}{
		"band":   band,
		"bin":    bin,
		"pixels": mask.Count(),
	})
	if maskPath == "" {
		return nil
	}

	mat, err := bridge.MaskMat(mask)
	if err != nil {
		return err
	}
	defer mat.Close()
	if !gocv.IMWrite(maskPath, mat) {
		return fmt.Errorf("failed to write mask %s", maskPath)
	}
	return nil
}

func parseHighlight(s string) (int, int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("highlight %q: expected band:bin", s)
	}
	band, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("highlight band: %w", err)
	}
	bin, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("highlight bin: %w", err)
	}
	return band, bin, nil
}

// RunGUI shows one chart tab per model and blocks until the window closes
func (a *Application) RunGUI() error {
	fyneApp := app.NewWithID(AppID)
	window := fyneApp.NewWindow(AppName)
	window.Resize(fyne.NewSize(1200, 800))
	window.CenterOnScreen()

	opts := views.Options{
		Bins:        a.cfg.Distribution.Bins,
		ChartWidth:  a.cfg.Export.Width,
		ChartHeight: a.cfg.Export.Height,
	}
	if a.image != nil {
		opts.BandLabels = export.BandLabels(a.image.Meta)
	}
	view := views.NewMainView(window, a.bus, a.logger, opts)
	a.shutdown.Register("application", shutdown.ShutdownFunc(func() {
		fyne.Do(fyneApp.Quit)
	}))
	a.shutdown.Register("view", view)

	for _, model := range a.models {
		view.AddModel(model)
		// the first distribution may have been published before the view subscribed
		model.Flush()
		a.bus.Publish(eventbus.Event{
			Type:           eventbus.EventDistributionUpdated,
			Representation: model.Representation(),
			Range:          model.Range(),
			Timestamp:      time.Now(),
		})
	}
	if a.image != nil {
		view.SetImageInfo(a.image.Width, a.image.Height, a.image.Bands)
	}

	window.SetOnClosed(a.shutdown.Shutdown)
	a.shutdown.Listen()

	window.ShowAndRun()
	return nil
}
