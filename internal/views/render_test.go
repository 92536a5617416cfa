package views

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spectral-distview/internal/distribution"
	"spectral-distview/internal/export"
	"spectral-distview/internal/models"
)

func TestRenderChartSize(t *testing.T) {
	coll := distribution.NewCollection([]color.RGBA{{R: 255, A: 255}})
	key, err := distribution.NewKey(1, 2, 3)
	require.NoError(t, err)
	coll.Add(0, key, 4, nil)

	img, err := RenderChart(coll, export.Options{Width: 300, Height: 160})
	require.NoError(t, err)
	assert.Equal(t, 300, img.Bounds().Dx())
	assert.Equal(t, 160, img.Bounds().Dy())
}

func TestRenderChartNil(t *testing.T) {
	_, err := RenderChart(nil, export.Options{Width: 100, Height: 100})
	assert.Error(t, err)
}

func TestMaskImage(t *testing.T) {
	assert.Nil(t, MaskImage(nil))

	mask := models.NewMask(3, 2)
	mask.Set(1, 2, true)
	img := MaskImage(mask)
	require.NotNil(t, img)
	assert.Equal(t, 3, img.Bounds().Dx())
	assert.Equal(t, 2, img.Bounds().Dy())

	r, _, _, _ := img.At(2, 1).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	r, _, _, _ = img.At(0, 0).RGBA()
	assert.Equal(t, uint32(0), r)
}

func TestRangeText(t *testing.T) {
	assert.Equal(t, "Range: --", RangeText(models.Range{}))
	assert.Equal(t, "Range: [0, 255]", RangeText(models.Range{Min: 0, Max: 255}))
}

func TestStatusText(t *testing.T) {
	assert.Equal(t, "GRAD: waiting", StatusText(models.RepresentationGRAD, nil))

	coll := distribution.NewCollection([]color.RGBA{{A: 255}, {A: 255}})
	key, err := distribution.NewKey(0, 1)
	require.NoError(t, err)
	coll.Add(1, key, 3, nil)
	assert.Equal(t, "IMG: 2 labels, 1 cells, weight 3", StatusText(models.RepresentationIMG, coll))
}
