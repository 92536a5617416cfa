package models

import (
	"sync"
	"sync/atomic"
)

// MaxBins is the largest supported bin count; bin indices must fit a byte
const MaxBins = 256

// Validity selects cached context fields that a request may invalidate
type Validity uint8

const (
	ValidDimensionality Validity = 1 << iota
	ValidLabels
	ValidMeta
	ValidBinSize

	ValidAll = ValidDimensionality | ValidLabels | ValidMeta | ValidBinSize
)

// ViewportArgs is the binning parameter record of one logical view. Tasks
// receive it by value so they never observe a torn update.
type ViewportArgs struct {
	Type           Representation
	Bins           int
	MinVal         float64
	MaxVal         float64
	BinSize        float64
	Dimensionality int
	IgnoreLabels   bool

	DimensionalityValid bool
	LabelsValid         bool
	MetaValid           bool
	BinSizeValid        bool

	Epoch uint64
}

// Range returns the binning value range
func (a *ViewportArgs) Range() Range {
	return Range{Min: a.MinVal, Max: a.MaxVal}
}

// Invalidate clears the selected validity flags
func (a *ViewportArgs) Invalidate(v Validity) {
	if v&ValidDimensionality != 0 {
		a.DimensionalityValid = false
	}
	if v&ValidLabels != 0 {
		a.LabelsValid = false
	}
	if v&ValidMeta != 0 {
		a.MetaValid = false
	}
	if v&ValidBinSize != 0 {
		a.BinSizeValid = false
	}
}

// RecomputeBinSize derives the bin width from bin count and range
func (a *ViewportArgs) RecomputeBinSize() {
	if a.Bins <= 0 {
		a.BinSize = 0
		return
	}
	a.BinSize = (a.MaxVal - a.MinVal) / float64(a.Bins)
}

// ViewportContext is the shared display context of one logical view
type ViewportContext struct {
	mu   sync.RWMutex
	args ViewportArgs

	wait atomic.Bool
}

// NewViewportContext creates a context with every cache flag invalid
func NewViewportContext(rep Representation, bins int) *ViewportContext {
	vp := &ViewportContext{}
	vp.args.Type = rep
	vp.args.Bins = ClampBins(bins)
	return vp
}

// ClampBins bounds a requested bin count to [1, MaxBins]
func ClampBins(bins int) int {
	if bins < 1 {
		return 1
	}
	if bins > MaxBins {
		return MaxBins
	}
	return bins
}

// Snapshot copies the current parameters out under the read lock
func (vp *ViewportContext) Snapshot() ViewportArgs {
	vp.mu.RLock()
	defer vp.mu.RUnlock()
	return vp.args
}

// Range returns the current value range
func (vp *ViewportContext) Range() Range {
	vp.mu.RLock()
	defer vp.mu.RUnlock()
	return vp.args.Range()
}

// SetBins changes the bin count in place and recomputes the bin width
func (vp *ViewportContext) SetBins(bins int) {
	vp.mu.Lock()
	defer vp.mu.Unlock()
	vp.args.Bins = ClampBins(bins)
	vp.args.RecomputeBinSize()
}

// SetIgnoreLabels toggles label suppression in place
func (vp *ViewportContext) SetIgnoreLabels(ignore bool) {
	vp.mu.Lock()
	defer vp.mu.Unlock()
	vp.args.IgnoreLabels = ignore
}

// Invalidate clears validity flags on the live context
func (vp *ViewportContext) Invalidate(v Validity) {
	vp.mu.Lock()
	defer vp.mu.Unlock()
	vp.args.Invalidate(v)
}

// RequestReset starts a new epoch. Tasks issued
// under an older epoch observe themselves as cancelled.
func (vp *ViewportContext) RequestReset() uint64 {
	vp.mu.Lock()
	defer vp.mu.Unlock()
	vp.args.Epoch++
	return vp.args.Epoch
}

// RequestWait raises wait-requested: a new distribution is on its way
func (vp *ViewportContext) RequestWait() {
	vp.wait.Store(true)
}

func (vp *ViewportContext) WaitRequested() bool {
	return vp.wait.Load()
}

// Epoch returns the current epoch
func (vp *ViewportContext) Epoch() uint64 {
	vp.mu.RLock()
	defer vp.mu.RUnlock()
	return vp.args.Epoch
}

// Current reports whether epoch is still the live one
func (vp *ViewportContext) Current(epoch uint64) bool {
	vp.mu.RLock()
	defer vp.mu.RUnlock()
	return vp.args.Epoch == epoch
}

// Token issues a cancellation token bound to epoch
func (vp *ViewportContext) Token(epoch uint64) *CancellationToken {
	return &CancellationToken{viewport: vp, epoch: epoch}
}

// Commit merges fields derived by a finished task. It fails when the task's
// epoch has been superseded. Bin count and label suppression stay as set on
// the live context; the bin width is recomputed from them.
func (vp *ViewportContext) Commit(args ViewportArgs) bool {
	vp.mu.Lock()
	defer vp.mu.Unlock()

	if args.Epoch != vp.args.Epoch {
		return false
	}

	vp.args.Dimensionality = args.Dimensionality
	vp.args.DimensionalityValid = args.DimensionalityValid
	vp.args.LabelsValid = args.LabelsValid
	vp.args.MinVal = args.MinVal
	vp.args.MaxVal = args.MaxVal
	vp.args.MetaValid = args.MetaValid
	vp.args.RecomputeBinSize()
	vp.args.BinSizeValid = vp.args.MetaValid

	vp.wait.Store(false)
	return true
}
