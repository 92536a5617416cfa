// Package distview keeps the per-label histogram distribution of one view up
// to date as its image, labels, region of interest and binning change.
package distview

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"

	"spectral-distview/internal/binning"
	"spectral-distview/internal/distribution"
	"spectral-distview/internal/eventbus"
	"spectral-distview/internal/logger"
	"spectral-distview/internal/mask"
	"spectral-distview/internal/metrics"
	"spectral-distview/internal/models"
	"spectral-distview/internal/normrange"
	"spectral-distview/internal/queue"
)

// Options configures a Model
type Options struct {
	Representation models.Representation
	Bins           int
	Workers        int
	Queue          *queue.Queue
	Bus            *eventbus.Bus
	Logger         logger.Logger
}

// Model orchestrates binning tasks for one logical view. Every entry point
// returns immediately except SubPixels and AddPixels, which block until their
// task finished; results are announced on the event bus.
type Model struct {
	rep     models.Representation
	lane    string
	vp      *models.ViewportContext
	store   *distribution.Store
	queue   *queue.Queue
	bus     *eventbus.Bus
	masks   *mask.Builder
	logger  logger.Logger
	workers int

	mu          sync.Mutex
	image       *models.SharedImage
	labels      *models.Labels
	colors      []color.RGBA
	illuminant  []float64
	roi         image.Rectangle
	roiStaging  *distribution.Staging
	editStaging *distribution.Staging
	highlight   *models.Mask
	imageGen    uint64
	labelsGen   uint64
}

// NewModel creates a model without image. The queue is shared between views.
func NewModel(opts Options) (*Model, error) {
	if opts.Queue == nil {
		return nil, fmt.Errorf("distview model requires a task queue")
	}
	log := opts.Logger
	if log == nil {
		log = logger.NoOpLogger{}
	}

	return &Model{
		rep:     opts.Representation,
		lane:    opts.Representation.String(),
		vp:      models.NewViewportContext(opts.Representation, opts.Bins),
		store:   distribution.NewStore(),
		queue:   opts.Queue,
		bus:     opts.Bus,
		masks:   mask.NewBuilder(opts.Workers),
		logger:  log,
		workers: opts.Workers,
	}, nil
}

// Representation returns the view this model serves
func (m *Model) Representation() models.Representation {
	return m.rep
}

// Distribution returns the last published collection, nil before the first
func (m *Model) Distribution() *distribution.Collection {
	return m.store.Load()
}

// Args returns a snapshot of the binning parameters
func (m *Model) Args() models.ViewportArgs {
	return m.vp.Snapshot()
}

// Range returns the current binning value range
func (m *Model) Range() models.Range {
	return m.vp.Range()
}

// Waiting reports whether a new distribution is being computed
func (m *Model) Waiting() bool {
	return m.vp.WaitRequested()
}

// Labels returns the label matrix currently bound
func (m *Model) Labels() *models.Labels {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.labels
}

// Flush blocks until every task submitted so far has finished
func (m *Model) Flush() {
	m.queue.Push(m.lane, barrier{}).Wait()
}

// SetImage binds a new image and recomputes over roi with the given bin count
func (m *Model) SetImage(img *models.SharedImage, roi image.Rectangle, bins int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.image = img
	m.imageGen++
	m.roi = roi
	m.highlight = nil
	m.vp.SetBins(bins)
	m.vp.Invalidate(models.ValidAll)
	m.recompute("set_image")
}

// SetBins changes the bin count and recomputes
func (m *Model) SetBins(bins int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.vp.SetBins(bins)
	m.vp.Invalidate(models.ValidBinSize)
	m.recompute("set_bins")
}

// ToggleIgnoreLabels switches between per-label and single histogram
func (m *Model) ToggleIgnoreLabels(ignore bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.vp.SetIgnoreLabels(ignore)
	m.endTransactions()
	if m.image.Empty() {
		return
	}
	m.vp.RequestWait()
	m.submit(m.task("toggle_labels", m.vp.Epoch()), true)
}

// UpdateLabels replaces the label matrix, and the palette when colors is
// non-nil, then recomputes once both image and labels exist
func (m *Model) UpdateLabels(labels *models.Labels, colors []color.RGBA) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.labels = labels
	m.labelsGen++
	if colors != nil {
		m.colors = append([]color.RGBA(nil), colors...)
	}
	if m.image.Empty() || labels.Empty() {
		return
	}
	m.vp.Invalidate(models.ValidLabels)
	m.recompute("update_labels")
}

// UpdateLabelsPartial replaces the label matrix, moving only the pixels in
// changed from their previous label's histogram to their new one
func (m *Model) UpdateLabelsPartial(labels *models.Labels, changed *models.Mask) {
	m.mu.Lock()
	defer m.mu.Unlock()

	previous, previousGen := m.labels, m.labelsGen
	m.labels = labels
	m.labelsGen++
	m.endTransactions()
	if m.image.Empty() || labels.Empty() {
		return
	}
	if previous.Empty() || changed.Empty() {
		m.vp.Invalidate(models.ValidLabels)
		m.recompute("update_labels")
		return
	}

	extent := changed.Extent()
	if extent.Empty() {
		return
	}

	epoch := m.vp.Epoch()
	staging := distribution.NewStaging(epoch)
	selection := changed.Clone()

	sub := m.task("labels_sub", epoch)
	sub.Labels = previous
	sub.LabelsGen, sub.BaseLabelsGen = previousGen, previousGen
	sub.Sub = []image.Rectangle{extent}
	sub.Mask = selection
	sub.Staging = staging

	add := m.task("labels_add", epoch)
	add.Add = []image.Rectangle{extent}
	add.Mask = selection
	add.Staging = staging
	add.Apply = true
	add.BaseLabelsGen = previousGen

	m.vp.RequestWait()
	m.submit(sub, false)
	m.submit(add, true)
}

// SubPixels removes the contribution of points, each counted under the label
// it maps to. The result is held back until the matching AddPixels.
func (m *Model) SubPixels(points map[image.Point]int16) bool {
	m.mu.Lock()
	if m.image.Empty() || len(points) == 0 {
		m.mu.Unlock()
		return false
	}

	epoch := m.vp.Epoch()
	m.roiStaging = nil
	m.editStaging = distribution.NewStaging(epoch)
	task := m.pointTask("sub_pixels", epoch, points)
	if task == nil {
		m.mu.Unlock()
		return false
	}
	task.Sub = []image.Rectangle{task.Mask.Extent()}
	task.Staging = m.editStaging
	h := m.submit(task, false)
	m.mu.Unlock()

	return h.Wait()
}

// AddPixels adds the contribution of points under the labels they map to,
// writes those labels into the label matrix and publishes
func (m *Model) AddPixels(points map[image.Point]int16) bool {
	m.mu.Lock()
	if m.image.Empty() || len(points) == 0 {
		m.mu.Unlock()
		return false
	}

	staging := m.editStaging
	m.editStaging, m.roiStaging = nil, nil
	if staging == nil || !m.vp.Current(staging.Epoch()) {
		staging = distribution.NewStaging(m.vp.Epoch())
	}
	task := m.pointTask("add_pixels", staging.Epoch(), points)
	if task == nil {
		m.mu.Unlock()
		return false
	}
	task.Add = []image.Rectangle{task.Mask.Extent()}
	task.Staging = staging
	task.Apply = true
	m.labels = m.paint(task.Mask, points)
	m.labelsGen++
	task.LabelsGen = m.labelsGen

	m.vp.RequestWait()
	h := m.submit(task, true)
	m.mu.Unlock()

	return h.Wait()
}

// SubImage opens a region-of-interest change by removing regions. The
// partial result waits for the matching AddImage.
func (m *Model) SubImage(regions []image.Rectangle, roi image.Rectangle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.image.Empty() {
		return
	}
	epoch := m.vp.RequestReset()
	previous := m.roi
	m.editStaging = nil
	m.roiStaging = distribution.NewStaging(epoch)
	m.roi = roi
	m.vp.RequestWait()

	task := m.task("sub_image", epoch)
	task.BaseROI = previous
	task.Sub = regions
	if len(regions) == 0 {
		// park the published collection for the matching AddImage
		task.Sub = []image.Rectangle{image.Rect(0, 0, 0, 0)}
	}
	task.Staging = m.roiStaging
	m.submit(task, false)
}

// AddImage completes a region-of-interest change by adding regions. Without
// a live SubImage partner it falls back to a full recompute over roi.
func (m *Model) AddImage(regions []image.Rectangle, roi image.Rectangle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.image.Empty() {
		return
	}
	m.roi = roi
	staging := m.roiStaging
	m.roiStaging = nil
	m.vp.Invalidate(models.ValidLabels | models.ValidMeta | models.ValidBinSize)

	if staging == nil || !m.vp.Current(staging.Epoch()) {
		m.recompute("add_image")
		return
	}

	task := m.task("add_image", staging.Epoch())
	task.Add = regions
	if len(regions) == 0 {
		// nothing new entered the roi; publish the parked subtraction
		task.Add = []image.Rectangle{image.Rect(0, 0, 0, 0)}
	}
	task.Staging = staging
	task.Apply = true
	m.vp.RequestWait()
	m.submit(task, true)
}

// SetLabelColors recolours the published distribution in place of a recompute
func (m *Model) SetLabelColors(colors []color.RGBA) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.colors = append([]color.RGBA(nil), colors...)
	recoloured := m.store.Publish(func(current *distribution.Collection) (*distribution.Collection, bool) {
		if current == nil {
			return nil, false
		}
		next := current.Clone()
		next.SetColors(m.colors)
		return next, true
	})
	if recoloured {
		m.emit(eventbus.EventDistributionUpdated)
	}
}

// SetIlluminant stores per-band display weights. Existing polylines are only
// rebuilt when rebuild is set.
func (m *Model) SetIlluminant(illuminant []float64, rebuild bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.illuminant = append([]float64(nil), illuminant...)
	if !rebuild {
		return
	}
	m.recompute("set_illuminant")
}

// Normalize replaces the value bounds of the bound image and rebins
func (m *Model) Normalize(mode normrange.Mode, fixed models.Range) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.image.Empty() {
		return nil
	}

	img, release := m.image.Read()
	r, err := normrange.Compute(img, mode, m.rep, fixed)
	release()
	if err != nil {
		return fmt.Errorf("normalize %s: %w", m.rep, err)
	}

	// running tasks hold the image; supersede them before writing
	m.vp.RequestReset()
	m.image.Update(func(img *models.MultiImage) {
		img.SetRange(r)
	})

	m.vp.Invalidate(models.ValidMeta | models.ValidBinSize)
	m.recompute("normalize")
	return nil
}

// recompute supersedes in-flight work and bins the roi from scratch. Caller
// holds mu.
func (m *Model) recompute(kind string) {
	epoch := m.vp.RequestReset()
	m.endTransactions()
	if m.image.Empty() {
		return
	}
	m.vp.RequestWait()
	m.submit(m.task(kind, epoch), true)
}

// task captures the current state into a binning task. Caller holds mu.
func (m *Model) task(kind string, epoch uint64) *binning.Task {
	args := m.vp.Snapshot()
	args.Epoch = epoch
	return &binning.Task{
		Kind:          kind,
		Image:         m.image,
		Labels:        m.labels,
		Colors:        m.colors,
		Illuminant:    m.illuminant,
		Args:          args,
		Viewport:      m.vp,
		Token:         m.vp.Token(epoch),
		Target:        m.store,
		ROI:           m.roi,
		BaseROI:       m.roi,
		ImageGen:      m.imageGen,
		LabelsGen:     m.labelsGen,
		BaseLabelsGen: m.labelsGen,
		Workers:       m.workers,
		Logger:        m.logger,
	}
}

// pointTask builds a task restricted to points inside the image, nil if none
// are. Caller holds mu.
func (m *Model) pointTask(kind string, epoch uint64, points map[image.Point]int16) *binning.Task {
	img, release := m.image.Read()
	if img == nil {
		release()
		return nil
	}
	selection := models.NewMask(img.Width, img.Height)
	release()

	override := make(map[image.Point]int16, len(points))
	for p, label := range points {
		if p.X < 0 || p.Y < 0 || p.X >= selection.Width || p.Y >= selection.Height {
			continue
		}
		selection.Set(p.Y, p.X, true)
		override[p] = label
	}
	if len(override) == 0 {
		return nil
	}

	task := m.task(kind, epoch)
	task.Mask = selection
	task.LabelOverride = override
	return task
}

// endTransactions abandons open staged updates; their completing half then
// falls back to a full recompute. Caller holds mu.
func (m *Model) endTransactions() {
	m.roiStaging, m.editStaging = nil, nil
}

// paint returns a copy of the label matrix with points applied
func (m *Model) paint(selection *models.Mask, points map[image.Point]int16) *models.Labels {
	labels := m.labels.Clone()
	if labels.Empty() || labels.Width != selection.Width || labels.Height != selection.Height {
		labels = models.NewLabels(selection.Width, selection.Height)
	}
	for p, label := range points {
		if selection.Contains(p.Y, p.X) && selection.At(p.Y, p.X) {
			labels.Set(p.Y, p.X, label)
		}
	}
	return labels
}

// submit queues task on the view's lane and announces its publication
func (m *Model) submit(task *binning.Task, notify bool) *queue.Handle {
	rangeChanged := !task.Args.MetaValid
	return m.queue.PushThen(m.lane, task, func(ok bool) {
		if !ok {
			m.logger.Debug("DistView", "task did not publish", map[string]interface{}{
				"view": m.lane,
				"task": task.Name(),
			})
			return
		}
		if !notify {
			return
		}
		m.emit(eventbus.EventDistributionUpdated)
		if rangeChanged {
			m.emit(eventbus.EventRangeUpdated)
		}
	})
}

func (m *Model) emit(eventType eventbus.EventType) {
	kind := "distribution"
	if eventType == eventbus.EventRangeUpdated {
		kind = "range"
	}
	metrics.Publications.WithLabelValues(m.lane, kind).Inc()

	if m.bus == nil {
		return
	}
	m.bus.Publish(eventbus.Event{
		Type:           eventType,
		Representation: m.rep,
		Range:          m.vp.Range(),
	})
}

type barrier struct{}

func (barrier) Name() string                 { return "flush" }
func (barrier) Run(ctx context.Context) bool { return ctx.Err() == nil }
