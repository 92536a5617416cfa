package binning

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"runtime"
	"sync"
	"sync/atomic"

	"spectral-distview/internal/distribution"
	"spectral-distview/internal/logger"
	"spectral-distview/internal/metrics"
	"spectral-distview/internal/models"
)

// Task folds pixels of a multi-band image into per-label histograms.
//
// Without Sub/Add regions the task recomputes from scratch over ROI and
// publishes. With regions it is staged: it starts from the collection parked
// in Staging (or a copy of the published one), subtracts Sub, adds Add, and
// either parks the result again or, with Apply, publishes it.
//
// A staged task only builds on a collection binned with its own parameters
// over BaseROI and BaseLabelsGen. Otherwise the first half discards the
// staging and the Apply half rebuilds from scratch over ROI.
type Task struct {
	Kind string

	Image         *models.SharedImage
	Labels        *models.Labels
	LabelOverride map[image.Point]int16
	Colors        []color.RGBA
	Illuminant    []float64

	Args     models.ViewportArgs
	Viewport *models.ViewportContext
	Token    *models.CancellationToken

	Target  *distribution.Store
	Staging *distribution.Staging

	Sub     []image.Rectangle // clipped to BaseROI
	Add     []image.Rectangle // clipped to ROI
	Mask    *models.Mask
	ROI     image.Rectangle
	BaseROI image.Rectangle

	ImageGen      uint64
	LabelsGen     uint64 // label generation the result reflects
	BaseLabelsGen uint64 // label generation expected of the base

	Apply bool

	Workers int
	Logger  logger.Logger
}

type cell struct {
	label int
	key   distribution.Key
}

// Name identifies the task kind for queue bookkeeping
func (t *Task) Name() string {
	if t.Kind == "" {
		return "binning"
	}
	return t.Kind
}

// Run executes the task. It returns true iff it ran to completion and an
// image is still bound; a cancelled task never publishes.
func (t *Task) Run(ctx context.Context) bool {
	if t.Image == nil {
		return false
	}
	img, release := t.Image.Read()
	defer release()
	if img == nil || t.cancelled(ctx) {
		return false
	}

	log := t.Logger
	if log == nil {
		log = logger.NoOpLogger{}
	}

	if img.Bands > distribution.MaxBands {
		log.Warning("BinningTask", "dimensionality exceeds key capacity", map[string]interface{}{
			"bands": img.Bands,
			"max":   distribution.MaxBands,
		})
		return false
	}

	args := t.Args
	Resolve(&args, img)

	bounds := img.Bounds()
	roi := effectiveROI(t.ROI, bounds)
	baseROI := effectiveROI(t.BaseROI, bounds)

	staged := len(t.Sub) > 0 || len(t.Add) > 0
	var result *distribution.Collection
	if staged {
		result = t.base(t.basis(&args, baseROI, t.BaseLabelsGen))
		if result == nil {
			metrics.StagedRebuilds.WithLabelValues(t.Name()).Inc()
			if !t.Apply {
				log.Debug("BinningTask", "stale base, deferring to rebuild", map[string]interface{}{
					"task": t.Name(),
				})
				if t.Staging != nil {
					t.Staging.Discard()
				}
				return !t.cancelled(ctx)
			}
		}
	}

	if result != nil {
		result.SetColors(t.Colors)
		if !t.apply(ctx, result, img, &args, clip(t.Sub, baseROI), t.Mask, -1) {
			return false
		}
		if !t.apply(ctx, result, img, &args, clip(t.Add, roi), t.Mask, +1) {
			return false
		}
	} else {
		result = distribution.NewCollection(t.Colors)
		if !t.apply(ctx, result, img, &args, []image.Rectangle{roi}, nil, +1) {
			return false
		}
	}
	result.Basis = t.basis(&args, roi, t.LabelsGen)

	if staged && !t.Apply {
		if t.cancelled(ctx) {
			return false
		}
		t.Staging.Put(result)
		return true
	}

	published := t.Target.Publish(func(*distribution.Collection) (*distribution.Collection, bool) {
		if t.cancelled(ctx) {
			return nil, false
		}
		return result, t.Viewport.Commit(args)
	})

	log.Debug("BinningTask", "task finished", map[string]interface{}{
		"task":      t.Name(),
		"published": published,
		"bins":      args.Bins,
		"cells":     result.CellCount(),
	})
	return published
}

// Resolve recomputes every cached parameter whose validity flag is cleared,
// taking dimensionality and value bounds from img
func Resolve(args *models.ViewportArgs, img *models.MultiImage) {
	if !args.DimensionalityValid {
		args.Dimensionality = img.Bands
		args.DimensionalityValid = true
	}
	if !args.MetaValid {
		args.MinVal, args.MaxVal = img.MinVal, img.MaxVal
		args.MetaValid = true
		args.BinSizeValid = false
	}
	if !args.BinSizeValid {
		args.RecomputeBinSize()
		args.BinSizeValid = true
	}
	args.LabelsValid = true
}

// base returns the collection a staged task applies onto, nil when neither
// the parked nor the published collection matches want
func (t *Task) base(want distribution.Basis) *distribution.Collection {
	if t.Staging != nil {
		if t.Staging.Discarded() {
			return nil
		}
		if parked := t.Staging.Take(); parked != nil {
			if parked.Basis != want {
				return nil
			}
			return parked
		}
	}
	if current := t.Target.Load(); current != nil && current.Basis == want {
		return current.Clone()
	}
	return nil
}

func (t *Task) basis(args *models.ViewportArgs, roi image.Rectangle, labels uint64) distribution.Basis {
	return distribution.Basis{
		Bins:         args.Bins,
		MinVal:       args.MinVal,
		BinSize:      args.BinSize,
		Dims:         args.Dimensionality,
		IgnoreLabels: args.IgnoreLabels,
		ROI:          roi,
		Image:        t.ImageGen,
		Labels:       labels,
	}
}

// effectiveROI bounds roi by the image; an empty roi selects the whole image
func effectiveROI(roi, bounds image.Rectangle) image.Rectangle {
	if roi.Empty() {
		return bounds
	}
	return roi.Intersect(bounds)
}

// clip restricts regions to roi, dropping those left empty
func clip(regions []image.Rectangle, roi image.Rectangle) []image.Rectangle {
	out := make([]image.Rectangle, 0, len(regions))
	for _, r := range regions {
		if r = r.Intersect(roi); !r.Empty() {
			out = append(out, r)
		}
	}
	return out
}

func (t *Task) cancelled(ctx context.Context) bool {
	if ctx != nil && ctx.Err() != nil {
		return true
	}
	return t.Token.IsCancelled()
}

func (t *Task) label(args *models.ViewportArgs, row, col int) int {
	if args.IgnoreLabels {
		return 0
	}
	if l, ok := t.LabelOverride[image.Pt(col, row)]; ok {
		return labelIndex(l)
	}
	if t.Labels.Empty() || row >= t.Labels.Height || col >= t.Labels.Width {
		return 0
	}
	return labelIndex(t.Labels.At(row, col))
}

// labelIndex maps negative labels onto the background set
func labelIndex(l int16) int {
	if l < 0 {
		return 0
	}
	return int(l)
}

// apply folds the pixels of regions into result with the given sign
func (t *Task) apply(ctx context.Context, result *distribution.Collection, img *models.MultiImage, args *models.ViewportArgs, regions []image.Rectangle, mask *models.Mask, sign int) bool {
	if len(regions) == 0 {
		return true
	}
	partials, ok := t.fold(ctx, img, args, regions, mask)
	if !ok {
		return false
	}

	var pixels, missing float64
	for _, part := range partials {
		for c, w := range part {
			if sign > 0 {
				result.Add(c.label, c.key, w, t.Illuminant)
			} else {
				missing += result.Sub(c.label, c.key, w)
			}
			pixels += w
		}
	}
	if missing > 0 {
		metrics.SubUnderflow.WithLabelValues(t.Name()).Add(missing)
		if t.Logger != nil {
			t.Logger.Debug("BinningTask", "subtracted weight missing from base", map[string]interface{}{
				"task":    t.Name(),
				"missing": missing,
			})
		}
	}

	direction := "add"
	if sign < 0 {
		direction = "sub"
	}
	metrics.BinnedPixels.WithLabelValues(direction).Add(pixels)
	return true
}

// fold quantizes every pixel of regions, fanning rows out over workers.
// Cancellation is polled once per row.
func (t *Task) fold(ctx context.Context, img *models.MultiImage, args *models.ViewportArgs, regions []image.Rectangle, mask *models.Mask) ([]map[cell]float64, bool) {
	workers := t.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		aborted  atomic.Bool
		partials []map[cell]float64
	)

	useMask := !mask.Empty()
	bounds := img.Bounds()
	for _, region := range regions {
		region = region.Intersect(bounds)
		if region.Empty() {
			continue
		}
		for _, block := range splitRows(region, workers) {
			wg.Add(1)
			go func(block image.Rectangle) {
				defer wg.Done()
				local := make(map[cell]float64)
				var key distribution.Key
				for y := block.Min.Y; y < block.Max.Y; y++ {
					if aborted.Load() || t.cancelled(ctx) {
						aborted.Store(true)
						return
					}
					for x := block.Min.X; x < block.Max.X; x++ {
						if useMask && (y >= mask.Height || x >= mask.Width || !mask.At(y, x)) {
							continue
						}
						Quantize(img.Pixel(y, x), args.MinVal, args.BinSize, args.Bins, &key)
						local[cell{label: t.label(args, y, x), key: key}]++
					}
				}
				mu.Lock()
				partials = append(partials, local)
				mu.Unlock()
			}(block)
		}
	}
	wg.Wait()

	if aborted.Load() {
		return nil, false
	}
	return partials, true
}

// splitRows divides r into at most n horizontal bands of whole rows
func splitRows(r image.Rectangle, n int) []image.Rectangle {
	rows := r.Dy()
	if n > rows {
		n = rows
	}
	if n <= 1 {
		return []image.Rectangle{r}
	}
	blocks := make([]image.Rectangle, 0, n)
	step := (rows + n - 1) / n
	for y := r.Min.Y; y < r.Max.Y; y += step {
		end := y + step
		if end > r.Max.Y {
			end = r.Max.Y
		}
		blocks = append(blocks, image.Rect(r.Min.X, y, r.Max.X, end))
	}
	return blocks
}

func (t *Task) String() string {
	return fmt.Sprintf("%s(sub=%d add=%d apply=%v)", t.Name(), len(t.Sub), len(t.Add), t.Apply)
}
