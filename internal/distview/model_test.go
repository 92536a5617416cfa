package distview

import (
	"context"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spectral-distview/internal/binning"
	"spectral-distview/internal/distribution"
	"spectral-distview/internal/eventbus"
	"spectral-distview/internal/mask"
	"spectral-distview/internal/models"
	"spectral-distview/internal/normrange"
	"spectral-distview/internal/queue"
)

const eventMarker eventbus.EventType = "test.marker"

type recorder struct {
	bus    *eventbus.Bus
	mu     sync.Mutex
	counts map[eventbus.EventType]int
	marks  chan struct{}
}

func newRecorder(bus *eventbus.Bus) *recorder {
	r := &recorder{bus: bus, counts: make(map[eventbus.EventType]int), marks: make(chan struct{}, 1)}
	count := func(e eventbus.Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.counts[e.Type]++
	}
	bus.Subscribe(eventbus.EventDistributionUpdated, eventbus.HandlerFunc{ID: "dist", Fn: count})
	bus.Subscribe(eventbus.EventRangeUpdated, eventbus.HandlerFunc{ID: "range", Fn: count})
	bus.Subscribe(eventMarker, eventbus.HandlerFunc{ID: "marker", Fn: func(eventbus.Event) { r.marks <- struct{}{} }})
	return r
}

// settle waits until every event published so far was delivered
func (r *recorder) settle(t *testing.T) {
	t.Helper()
	r.bus.Publish(eventbus.Event{Type: eventMarker})
	select {
	case <-r.marks:
	case <-time.After(5 * time.Second):
		t.Fatal("event bus did not deliver")
	}
}

func (r *recorder) count(eventType eventbus.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[eventType]
}

type env struct {
	model  *Model
	queue  *queue.Queue
	events *recorder
}

func newEnv(t *testing.T, start bool) *env {
	t.Helper()
	q := queue.New(2, nil)
	bus := eventbus.NewBus(64, nil)
	t.Cleanup(func() {
		q.Shutdown()
		bus.Shutdown()
	})
	if start {
		q.Start(context.Background())
	}

	m, err := NewModel(Options{
		Representation: models.RepresentationIMG,
		Bins:           16,
		Workers:        2,
		Queue:          q,
		Bus:            bus,
	})
	require.NoError(t, err)
	return &env{model: m, queue: q, events: newRecorder(bus)}
}

func testImage(t *testing.T, w, h, bands int) *models.SharedImage {
	t.Helper()
	img, err := models.NewMultiImage(w, h, bands)
	require.NoError(t, err)
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			for b := 0; b < bands; b++ {
				img.Set(row, col, b, float64((row*37+col*11+b*53)%256))
			}
		}
	}
	return models.NewSharedImage(img)
}

func keyAt(t *testing.T, m *Model, row, col int) distribution.Key {
	t.Helper()
	img, release := m.image.Read()
	defer release()
	args := m.quantization(img)
	var key distribution.Key
	binning.Quantize(img.Pixel(row, col), args.MinVal, args.BinSize, args.Bins, &key)
	return key
}

func assertSameDistribution(t *testing.T, want, got *distribution.Collection) {
	t.Helper()
	require.NotNil(t, want)
	require.NotNil(t, got)
	require.Len(t, got.Sets, len(want.Sets))
	for i := range want.Sets {
		assert.Equal(t, want.Sets[i].TotalWeight, got.Sets[i].TotalWeight, "label %d", i)
		require.Len(t, got.Sets[i].Bins, len(want.Sets[i].Bins), "label %d", i)
		for key, bin := range want.Sets[i].Bins {
			require.Contains(t, got.Sets[i].Bins, key)
			assert.Equal(t, bin.Weight, got.Sets[i].Bins[key].Weight)
		}
	}
}

func TestNewModelRequiresQueue(t *testing.T) {
	_, err := NewModel(Options{})
	assert.Error(t, err)
}

func TestSetImagePublishesDistributionAndRange(t *testing.T) {
	e := newEnv(t, true)
	e.model.SetImage(testImage(t, 8, 6, 3), image.Rectangle{}, 16)
	e.model.Flush()
	e.events.settle(t)

	coll := e.model.Distribution()
	require.NotNil(t, coll)
	assert.Equal(t, 48.0, coll.TotalWeight())
	assert.Equal(t, 1, e.events.count(eventbus.EventDistributionUpdated))
	assert.Equal(t, 1, e.events.count(eventbus.EventRangeUpdated))
	assert.False(t, e.model.Waiting())
	assert.Equal(t, models.Range{Min: 0, Max: 255}, e.model.Range())
}

func TestSetImageRestrictsToROI(t *testing.T) {
	e := newEnv(t, true)
	e.model.SetImage(testImage(t, 8, 6, 3), image.Rect(1, 1, 4, 3), 16)
	e.model.Flush()
	assert.Equal(t, 6.0, e.model.Distribution().TotalWeight())
}

func TestSupersededBinningNeverPublishes(t *testing.T) {
	e := newEnv(t, false)
	e.model.SetImage(testImage(t, 8, 8, 2), image.Rectangle{}, 4)
	e.model.SetBins(8)
	e.model.SetBins(16)
	assert.True(t, e.model.Waiting())

	e.queue.Start(context.Background())
	e.model.Flush()
	e.events.settle(t)

	assert.Equal(t, 1, e.events.count(eventbus.EventDistributionUpdated))
	assert.Equal(t, 16, e.model.Args().Bins)

	high := false
	for key := range e.model.Distribution().Sets[0].Bins {
		for d := 0; d < key.Len(); d++ {
			assert.Less(t, key.At(d), 16)
			if key.At(d) >= 8 {
				high = true
			}
		}
	}
	assert.True(t, high, "distribution must come from the 16-bin request")
}

func TestPixelEditMovesWeightBetweenLabels(t *testing.T) {
	e := newEnv(t, true)
	e.model.SetImage(testImage(t, 6, 6, 3), image.Rectangle{}, 16)
	labels := models.NewLabels(6, 6)
	labels.Set(1, 1, 5)
	e.model.UpdateLabels(labels, nil)
	e.model.Flush()
	e.events.settle(t)

	before := e.model.Distribution()
	require.Len(t, before.Sets, 6)
	key := keyAt(t, e.model, 1, 1)
	require.Equal(t, 1.0, before.Sets[5].Bins[key].Weight)
	published := e.events.count(eventbus.EventDistributionUpdated)

	pt := image.Pt(1, 1)
	require.True(t, e.model.SubPixels(map[image.Point]int16{pt: 5}))
	assert.Same(t, before, e.model.Distribution(), "subtraction alone must not publish")

	require.True(t, e.model.AddPixels(map[image.Point]int16{pt: 7}))
	e.events.settle(t)

	after := e.model.Distribution()
	require.Len(t, after.Sets, 8)
	assert.NotContains(t, after.Sets[5].Bins, key)
	assert.Equal(t, 0.0, after.Sets[5].TotalWeight)
	require.Contains(t, after.Sets[7].Bins, key)
	assert.Equal(t, 1.0, after.Sets[7].Bins[key].Weight)
	assert.Equal(t, before.TotalWeight(), after.TotalWeight())
	assert.Equal(t, published+1, e.events.count(eventbus.EventDistributionUpdated))
	assert.Equal(t, int16(7), e.model.Labels().At(1, 1))
}

func TestPixelEditOutsideImageIsIgnored(t *testing.T) {
	e := newEnv(t, true)
	e.model.SetImage(testImage(t, 4, 4, 2), image.Rectangle{}, 8)
	e.model.Flush()

	assert.False(t, e.model.SubPixels(map[image.Point]int16{{X: 9, Y: 9}: 1}))
	assert.False(t, e.model.AddPixels(map[image.Point]int16{{X: -1, Y: 0}: 1}))
	assert.False(t, e.model.AddPixels(nil))
}

func TestPartialLabelUpdateMatchesFullRecompute(t *testing.T) {
	img := testImage(t, 9, 7, 3)
	old := models.NewLabels(9, 7)
	old.Set(0, 0, 1)
	old.Set(3, 4, 2)

	next := old.Clone()
	changed := models.NewMask(9, 7)
	for _, p := range []image.Point{{X: 4, Y: 3}, {X: 5, Y: 3}, {X: 8, Y: 6}, {X: 0, Y: 0}} {
		changed.Set(p.Y, p.X, true)
		next.Set(p.Y, p.X, 3)
	}

	partial := newEnv(t, true)
	partial.model.SetImage(img, image.Rectangle{}, 16)
	partial.model.UpdateLabels(old, nil)
	partial.model.Flush()
	partial.model.UpdateLabelsPartial(next, changed)
	partial.model.Flush()

	full := newEnv(t, true)
	full.model.SetImage(img, image.Rectangle{}, 16)
	full.model.UpdateLabels(next, nil)
	full.model.Flush()

	assertSameDistribution(t, full.model.Distribution(), partial.model.Distribution())
	assert.Same(t, next, partial.model.Labels())
}

func TestROIChangeMatchesFullRecompute(t *testing.T) {
	img := testImage(t, 10, 10, 2)

	moved := newEnv(t, true)
	moved.model.SetImage(img, image.Rect(0, 0, 6, 6), 16)
	moved.model.Flush()
	moved.events.settle(t)
	before := moved.events.count(eventbus.EventDistributionUpdated)

	roi := image.Rect(3, 0, 9, 6)
	moved.model.SubImage([]image.Rectangle{image.Rect(0, 0, 3, 6)}, roi)
	moved.model.AddImage([]image.Rectangle{image.Rect(6, 0, 9, 6)}, roi)
	moved.model.Flush()
	moved.events.settle(t)

	direct := newEnv(t, true)
	direct.model.SetImage(img, roi, 16)
	direct.model.Flush()

	assertSameDistribution(t, direct.model.Distribution(), moved.model.Distribution())
	assert.Equal(t, before+1, moved.events.count(eventbus.EventDistributionUpdated))
	assert.Equal(t, 2, moved.events.count(eventbus.EventRangeUpdated))
}

func TestAddImageWithoutPartnerRecomputes(t *testing.T) {
	e := newEnv(t, true)
	img := testImage(t, 6, 6, 2)
	e.model.SetImage(img, image.Rect(0, 0, 3, 3), 8)
	e.model.Flush()

	e.model.AddImage([]image.Rectangle{image.Rect(3, 0, 6, 3)}, image.Rect(0, 0, 6, 3))
	e.model.Flush()
	assert.Equal(t, 18.0, e.model.Distribution().TotalWeight())
}

func TestToggleIgnoreLabels(t *testing.T) {
	e := newEnv(t, true)
	e.model.SetImage(testImage(t, 5, 5, 2), image.Rectangle{}, 8)
	labels := models.NewLabels(5, 5)
	labels.Set(2, 2, 1)
	e.model.UpdateLabels(labels, []color.RGBA{{A: 255}, {R: 255, A: 255}})
	e.model.Flush()
	assert.Equal(t, 1.0, e.model.Distribution().Sets[1].TotalWeight)

	e.model.ToggleIgnoreLabels(true)
	e.model.Flush()
	coll := e.model.Distribution()
	assert.Equal(t, 25.0, coll.Sets[0].TotalWeight)
	assert.Equal(t, 0.0, coll.Sets[1].TotalWeight)
	assert.Equal(t, color.RGBA{R: 255, A: 255}, coll.Sets[1].Color)
}

func TestOperationsWithoutImageAreNoOps(t *testing.T) {
	e := newEnv(t, true)
	e.model.SetBins(32)
	e.model.ToggleIgnoreLabels(true)
	e.model.UpdateLabels(models.NewLabels(2, 2), nil)
	e.model.SubImage([]image.Rectangle{image.Rect(0, 0, 1, 1)}, image.Rect(0, 0, 2, 2))
	e.model.AddImage([]image.Rectangle{image.Rect(0, 0, 1, 1)}, image.Rect(0, 0, 2, 2))
	e.model.SetIlluminant([]float64{1, 2}, true)
	e.model.ClearMask()
	e.model.Flush()

	assert.False(t, e.model.SubPixels(map[image.Point]int16{{}: 1}))
	assert.Nil(t, e.model.Distribution())
	assert.Nil(t, e.model.PixelTrajectory(0, 0))
	assert.Nil(t, e.model.FillMaskSingle(0, 0))
	assert.Nil(t, e.model.HighlightMask())
	assert.NoError(t, e.model.Normalize(normrange.Observed, models.Range{}))
	assert.Equal(t, 32, e.model.Args().Bins)
}

func TestUpdateLabelsWithoutLabelsIsNoOp(t *testing.T) {
	e := newEnv(t, true)
	e.model.SetImage(testImage(t, 4, 4, 2), image.Rectangle{}, 8)
	e.model.Flush()
	e.events.settle(t)
	published := e.model.Distribution()

	e.model.UpdateLabels(nil, nil)
	e.model.Flush()
	e.events.settle(t)
	assert.Same(t, published, e.model.Distribution())
	assert.Equal(t, 1, e.events.count(eventbus.EventDistributionUpdated))
}

func TestPixelTrajectory(t *testing.T) {
	e := newEnv(t, true)
	e.model.SetImage(testImage(t, 4, 4, 3), image.Rectangle{}, 16)
	e.model.SetIlluminant([]float64{1, 0.5, 2}, true)
	e.model.Flush()

	key := keyAt(t, e.model, 2, 3)
	points := e.model.PixelTrajectory(2, 3)
	require.Len(t, points, 3)
	assert.Equal(t, float64(key.At(0)), points[0].Y)
	assert.Equal(t, float64(key.At(1))*0.5, points[1].Y)
	assert.Equal(t, float64(key.At(2))*2, points[2].Y)

	bin := e.model.Distribution().Sets[0].Bins[key]
	require.NotNil(t, bin)
	assert.Equal(t, points, bin.Points)

	assert.Nil(t, e.model.PixelTrajectory(4, 0))
	assert.Nil(t, e.model.PixelTrajectory(0, -1))
}

func TestMasks(t *testing.T) {
	e := newEnv(t, true)
	e.model.SetImage(testImage(t, 6, 5, 2), image.Rectangle{}, 4)
	e.model.Flush()

	single := e.model.FillMaskSingle(0, 0)
	require.NotNil(t, single)
	assert.Positive(t, single.Count())

	ranges := mask.Ranges{0: {Low: 0, High: 1}, 1: {Low: 2, High: 3}}
	full := e.model.FillMaskRange(ranges)
	require.NotNil(t, full)

	ranges[1] = mask.Limit{Low: 0, High: 3}
	updated := e.model.UpdateMaskRange(ranges, 1)
	reference := e.model.FillMaskRange(ranges)
	assert.Equal(t, reference.Data, updated.Data)
	assert.Equal(t, reference.Data, e.model.HighlightMask().Data)

	assert.Nil(t, e.model.FillMaskSingle(7, 0))

	e.model.ClearMask()
	assert.Zero(t, e.model.HighlightMask().Count())
}

func TestNormalizeFixedRange(t *testing.T) {
	e := newEnv(t, true)
	e.model.SetImage(testImage(t, 4, 4, 2), image.Rectangle{}, 8)
	e.model.Flush()
	e.events.settle(t)

	require.NoError(t, e.model.Normalize(normrange.Fixed, models.Range{Min: 10, Max: 50}))
	e.model.Flush()
	e.events.settle(t)

	assert.Equal(t, models.Range{Min: 10, Max: 50}, e.model.Range())
	assert.InDelta(t, 5.0, e.model.Args().BinSize, 1e-12)
	assert.Equal(t, 2, e.events.count(eventbus.EventRangeUpdated))

	assert.Error(t, e.model.Normalize(normrange.Fixed, models.Range{Min: 3, Max: 3}))
}

func TestSetLabelColorsRecolours(t *testing.T) {
	e := newEnv(t, true)
	e.model.SetImage(testImage(t, 4, 4, 2), image.Rectangle{}, 8)
	e.model.Flush()

	red := color.RGBA{R: 255, A: 255}
	e.model.SetLabelColors([]color.RGBA{red})
	assert.Equal(t, red, e.model.Distribution().Sets[0].Color)
}

// gate holds a lane until released
type gate chan struct{}

func (gate) Name() string { return "gate" }
func (g gate) Run(ctx context.Context) bool {
	select {
	case <-g:
		return true
	case <-ctx.Done():
		return false
	}
}

func TestROIChangeAfterQueuedRebinUsesNewBins(t *testing.T) {
	img := testImage(t, 10, 10, 2)
	roi := image.Rect(3, 0, 9, 6)

	e := newEnv(t, true)
	e.model.SetImage(img, image.Rect(0, 0, 6, 6), 16)
	e.model.Flush()

	hold := make(gate)
	e.queue.Push(e.model.lane, hold)
	e.model.SetBins(4)
	e.model.SubImage([]image.Rectangle{image.Rect(0, 0, 3, 6)}, roi)
	e.model.AddImage([]image.Rectangle{image.Rect(6, 0, 9, 6)}, roi)
	close(hold)
	e.model.Flush()

	direct := newEnv(t, true)
	direct.model.SetImage(img, roi, 4)
	direct.model.Flush()

	assert.Equal(t, 4, e.model.Distribution().Basis.Bins)
	for key := range e.model.Distribution().Sets[0].Bins {
		for d := 0; d < key.Len(); d++ {
			assert.Less(t, key.At(d), 4)
		}
	}
	assertSameDistribution(t, direct.model.Distribution(), e.model.Distribution())
}

func TestPartialLabelUpdateOutsideROI(t *testing.T) {
	img := testImage(t, 8, 8, 2)
	roi := image.Rect(0, 0, 4, 4)
	old := models.NewLabels(8, 8)

	next := old.Clone()
	next.Set(7, 7, 2)
	changed := models.NewMask(8, 8)
	changed.Set(7, 7, true)

	partial := newEnv(t, true)
	partial.model.SetImage(img, roi, 16)
	partial.model.UpdateLabels(old, nil)
	partial.model.Flush()
	partial.model.UpdateLabelsPartial(next, changed)
	partial.model.Flush()

	full := newEnv(t, true)
	full.model.SetImage(img, roi, 16)
	full.model.UpdateLabels(next, nil)
	full.model.Flush()

	assertSameDistribution(t, full.model.Distribution(), partial.model.Distribution())
	assert.Equal(t, 16.0, partial.model.Distribution().TotalWeight())
}

func TestPixelEditOutsideROIKeepsDistribution(t *testing.T) {
	e := newEnv(t, true)
	e.model.SetImage(testImage(t, 8, 8, 2), image.Rect(0, 0, 4, 4), 16)
	e.model.Flush()

	pt := image.Pt(6, 6)
	require.True(t, e.model.SubPixels(map[image.Point]int16{pt: 0}))
	require.True(t, e.model.AddPixels(map[image.Point]int16{pt: 1}))

	coll := e.model.Distribution()
	assert.Equal(t, 16.0, coll.TotalWeight())
	assert.Equal(t, 16.0, coll.Sets[0].TotalWeight)
	for _, set := range coll.Sets[1:] {
		assert.Zero(t, set.TotalWeight)
	}
	assert.Equal(t, int16(1), e.model.Labels().At(6, 6))
}

func TestToggleInsideROIChangeIsNotOverwritten(t *testing.T) {
	img := testImage(t, 6, 6, 2)
	roi := image.Rect(0, 0, 6, 3)

	e := newEnv(t, true)
	e.model.SetImage(img, image.Rect(0, 0, 3, 3), 8)
	labels := models.NewLabels(6, 6)
	labels.Set(0, 4, 1)
	labels.Set(1, 1, 1)
	e.model.UpdateLabels(labels, nil)
	e.model.Flush()
	require.Equal(t, 1.0, e.model.Distribution().Sets[1].TotalWeight)

	e.model.SubImage(nil, roi)
	e.model.ToggleIgnoreLabels(true)
	e.model.AddImage([]image.Rectangle{image.Rect(3, 0, 6, 3)}, roi)
	e.model.Flush()

	coll := e.model.Distribution()
	assert.Equal(t, 18.0, coll.Sets[0].TotalWeight)
	for _, set := range coll.Sets[1:] {
		assert.Zero(t, set.TotalWeight)
	}
}

func TestPartialLabelUpdateInsideROIChange(t *testing.T) {
	img := testImage(t, 6, 6, 2)
	roi := image.Rect(0, 0, 6, 3)
	old := models.NewLabels(6, 6)

	next := old.Clone()
	next.Set(1, 4, 2)
	changed := models.NewMask(6, 6)
	changed.Set(1, 4, true)

	e := newEnv(t, true)
	e.model.SetImage(img, image.Rect(0, 0, 3, 3), 8)
	e.model.UpdateLabels(old, nil)
	e.model.Flush()

	e.model.SubImage(nil, roi)
	e.model.UpdateLabelsPartial(next, changed)
	e.model.AddImage([]image.Rectangle{image.Rect(3, 0, 6, 3)}, roi)
	e.model.Flush()

	direct := newEnv(t, true)
	direct.model.SetImage(img, roi, 8)
	direct.model.UpdateLabels(next, nil)
	direct.model.Flush()

	assertSameDistribution(t, direct.model.Distribution(), e.model.Distribution())
}
