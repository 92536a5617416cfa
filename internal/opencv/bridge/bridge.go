// Package bridge moves multi-band images and highlight masks in and out of
// OpenCV matrices.
package bridge

import (
	"fmt"
	"math"

	"gocv.io/x/gocv"

	"spectral-distview/internal/models"
)

// validate checks that mat can take part in operation
func validate(mat gocv.Mat, operation string) error {
	if mat.Empty() {
		return fmt.Errorf("Mat is empty for operation: %s", operation)
	}
	if mat.Rows() <= 0 || mat.Cols() <= 0 {
		return fmt.Errorf("Mat has invalid dimensions %dx%d for operation: %s",
			mat.Cols(), mat.Rows(), operation)
	}
	return nil
}

// BandMat copies one band into a single-channel float matrix. The caller
// owns the result and must Close it.
func BandMat(img *models.MultiImage, band int) (gocv.Mat, error) {
	if img == nil {
		return gocv.NewMat(), fmt.Errorf("input image is nil")
	}
	if band < 0 || band >= img.Bands {
		return gocv.NewMat(), fmt.Errorf("band %d out of range [0,%d)", band, img.Bands)
	}

	mat := gocv.NewMatWithSize(img.Height, img.Width, gocv.MatTypeCV32F)
	for row := 0; row < img.Height; row++ {
		for col := 0; col < img.Width; col++ {
			mat.SetFloatAt(row, col, float32(img.Value(row, col, band)))
		}
	}
	return mat, nil
}

// FromBandMats stacks single-channel matrices of equal size into a
// multi-band image. Any depth is accepted; values are converted to float.
func FromBandMats(mats []gocv.Mat) (*models.MultiImage, error) {
	if len(mats) == 0 {
		return nil, fmt.Errorf("no band matrices")
	}
	rows, cols := mats[0].Rows(), mats[0].Cols()
	img, err := models.NewMultiImage(cols, rows, len(mats))
	if err != nil {
		return nil, err
	}

	for band, src := range mats {
		if err := validate(src, "band import"); err != nil {
			return nil, fmt.Errorf("band %d: %w", band, err)
		}
		if src.Channels() != 1 {
			return nil, fmt.Errorf("band %d has %d channels, expected 1", band, src.Channels())
		}
		if src.Rows() != rows || src.Cols() != cols {
			return nil, fmt.Errorf("band %d is %dx%d, expected %dx%d", band, src.Cols(), src.Rows(), cols, rows)
		}

		f := gocv.NewMat()
		src.ConvertTo(&f, gocv.MatTypeCV32F)
		for row := 0; row < rows; row++ {
			for col := 0; col < cols; col++ {
				img.Set(row, col, band, float64(f.GetFloatAt(row, col)))
			}
		}
		f.Close()
	}

	minVal, maxVal := observed(img)
	img.SetRange(models.Range{Min: minVal, Max: maxVal})
	return img, nil
}

// FromMat turns every channel of mat into a band
func FromMat(mat gocv.Mat) (*models.MultiImage, error) {
	if err := validate(mat, "channel import"); err != nil {
		return nil, err
	}
	channels := make([]gocv.Mat, mat.Channels())
	defer func() {
		for _, c := range channels {
			c.Close()
		}
	}()
	for i := range channels {
		channels[i] = gocv.NewMat()
		gocv.ExtractChannel(mat, &channels[i], i)
	}
	return FromBandMats(channels)
}

// MaskMat renders a highlight mask as an 8-bit matrix, 255 where set
func MaskMat(mask *models.Mask) (gocv.Mat, error) {
	if mask.Empty() {
		return gocv.NewMat(), fmt.Errorf("mask is empty")
	}
	mat := gocv.NewMatWithSize(mask.Height, mask.Width, gocv.MatTypeCV8UC1)
	for row := 0; row < mask.Height; row++ {
		for col := 0; col < mask.Width; col++ {
			if mask.At(row, col) {
				mat.SetUCharAt(row, col, 255)
			} else {
				mat.SetUCharAt(row, col, 0)
			}
		}
	}
	return mat, nil
}

// Gradient derives the spectral gradient representation: the difference of
// logarithms between neighbouring bands. Intensities below 1 are raised to 1
// so the result stays within ±log(255) for 8-bit data.
func Gradient(img *models.MultiImage) (*models.MultiImage, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}
	if img.Bands < 2 {
		return nil, fmt.Errorf("gradient needs at least 2 bands, got %d", img.Bands)
	}

	logs := make([]gocv.Mat, img.Bands)
	defer func() {
		for _, m := range logs {
			m.Close()
		}
	}()
	for band := range logs {
		mat := gocv.NewMatWithSize(img.Height, img.Width, gocv.MatTypeCV32F)
		for row := 0; row < img.Height; row++ {
			for col := 0; col < img.Width; col++ {
				mat.SetFloatAt(row, col, float32(math.Max(img.Value(row, col, band), 1)))
			}
		}
		gocv.Log(mat, &mat)
		logs[band] = mat
	}

	out, err := models.NewMultiImage(img.Width, img.Height, img.Bands-1)
	if err != nil {
		return nil, err
	}
	diff := gocv.NewMat()
	defer diff.Close()
	for band := 0; band < out.Bands; band++ {
		gocv.Subtract(logs[band+1], logs[band], &diff)
		for row := 0; row < img.Height; row++ {
			for col := 0; col < img.Width; col++ {
				out.Set(row, col, band, float64(diff.GetFloatAt(row, col)))
			}
		}
		if band+1 < len(img.Meta) {
			out.Meta[band].Center = (img.Meta[band].Center + img.Meta[band+1].Center) / 2
		}
	}

	limit := math.Log(math.Max(img.MaxVal, 1))
	out.SetRange(models.Range{Min: -limit, Max: limit})
	return out, nil
}

func observed(img *models.MultiImage) (float64, float64) {
	minVal, maxVal := math.Inf(1), math.Inf(-1)
	for _, v := range img.Data() {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	if minVal == maxVal {
		maxVal = minVal + 1
	}
	return minVal, maxVal
}
