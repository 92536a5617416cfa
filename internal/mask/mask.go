// Package mask builds highlight masks from bin selections. Every routine runs
// synchronously on the caller's goroutine and fans rows out internally.
package mask

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"spectral-distview/internal/binning"
	"spectral-distview/internal/metrics"
	"spectral-distview/internal/models"
)

// Limit is an inclusive range of bin indices selected in one band
type Limit struct {
	Low  int
	High int
}

// Contains reports whether bin lies within the limit
func (l Limit) Contains(bin int) bool {
	return bin >= l.Low && bin <= l.High
}

// Ranges maps band index to its selected limit; absent bands are unconstrained
type Ranges map[int]Limit

// Quantizer carries the binning parameters a mask must agree with
type Quantizer struct {
	MinVal  float64
	BinSize float64
	Bins    int
}

// QuantizerFrom extracts quantization parameters from a context snapshot
func QuantizerFrom(args models.ViewportArgs) Quantizer {
	return Quantizer{MinVal: args.MinVal, BinSize: args.BinSize, Bins: args.Bins}
}

func (q Quantizer) index(v float64) int {
	return binning.BinIndex(v, q.MinVal, q.BinSize, q.Bins)
}

func (q Quantizer) passes(pixel []float64, ranges Ranges) bool {
	for band, limit := range ranges {
		if band < 0 || band >= len(pixel) {
			continue
		}
		if !limit.Contains(q.index(pixel[band])) {
			return false
		}
	}
	return true
}

// Builder fills masks using a bounded number of goroutines
type Builder struct {
	workers int
}

// NewBuilder creates a builder; workers <= 0 selects GOMAXPROCS
func NewBuilder(workers int) *Builder {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Builder{workers: workers}
}

// FillSingle sets mask[p] iff the bin index of p in band equals bin
func (b *Builder) FillSingle(m *models.Mask, img *models.MultiImage, q Quantizer, band, bin int) error {
	if err := check(m, img); err != nil {
		return err
	}
	if band < 0 || band >= img.Bands {
		return fmt.Errorf("band %d out of range [0,%d)", band, img.Bands)
	}
	defer observe("single", time.Now())

	b.rows(img.Height, func(row int) {
		for col := 0; col < img.Width; col++ {
			m.Set(row, col, q.index(img.Value(row, col, band)) == bin)
		}
	})
	return nil
}

// FillRange sets mask[p] iff p falls within every supplied band range
func (b *Builder) FillRange(m *models.Mask, img *models.MultiImage, q Quantizer, ranges Ranges) error {
	if err := check(m, img); err != nil {
		return err
	}
	defer observe("range", time.Now())

	b.rows(img.Height, func(row int) {
		for col := 0; col < img.Width; col++ {
			m.Set(row, col, q.passes(img.Pixel(row, col), ranges))
		}
	})
	return nil
}

// UpdateRange brings a mask built by FillRange up to date after the range of
// changed moved. Set pixels only re-check the changed band; unset pixels are
// re-checked in full when the changed band now passes.
func (b *Builder) UpdateRange(m *models.Mask, img *models.MultiImage, q Quantizer, ranges Ranges, changed int) error {
	if err := check(m, img); err != nil {
		return err
	}
	limit, constrained := ranges[changed]
	if changed < 0 || changed >= img.Bands {
		return fmt.Errorf("band %d out of range [0,%d)", changed, img.Bands)
	}
	defer observe("update", time.Now())

	b.rows(img.Height, func(row int) {
		for col := 0; col < img.Width; col++ {
			pass := !constrained || limit.Contains(q.index(img.Value(row, col, changed)))
			switch {
			case !pass:
				m.Set(row, col, false)
			case !m.At(row, col):
				m.Set(row, col, q.passes(img.Pixel(row, col), ranges))
			}
		}
	})
	return nil
}

// rows runs fn for every row, split into contiguous blocks per goroutine
func (b *Builder) rows(height int, fn func(row int)) {
	workers := b.workers
	if workers > height {
		workers = height
	}
	if workers <= 1 {
		for row := 0; row < height; row++ {
			fn(row)
		}
		return
	}

	step := (height + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < height; start += step {
		end := min(start+step, height)
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for row := start; row < end; row++ {
				fn(row)
			}
		}(start, end)
	}
	wg.Wait()
}

func check(m *models.Mask, img *models.MultiImage) error {
	if img == nil {
		return fmt.Errorf("no image bound")
	}
	if m == nil || m.Width != img.Width || m.Height != img.Height {
		return fmt.Errorf("mask does not match image size %dx%d", img.Width, img.Height)
	}
	return nil
}

func observe(mode string, start time.Time) {
	metrics.MaskBuildDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
}
