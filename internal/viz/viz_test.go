package viz

import (
	"bytes"
	"image/png"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func digit() []float32 {
	pixels := make([]float32, 28*28)
	for row := 4; row < 24; row++ {
		pixels[row*28+14] = 1
	}
	return pixels
}

func TestGrayImage(t *testing.T) {
	img, err := GrayImage([]float32{0, 0.5, 1, 2, -1, 1}, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, img.Bounds().Dx())
	assert.Equal(t, 2, img.Bounds().Dy())
	assert.Equal(t, uint8(0), img.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(128), img.GrayAt(1, 0).Y)
	assert.Equal(t, uint8(255), img.GrayAt(2, 0).Y)
	assert.Equal(t, uint8(255), img.GrayAt(0, 1).Y, "clamped high")
	assert.Equal(t, uint8(0), img.GrayAt(1, 1).Y, "clamped low")

	_, err = GrayImage(make([]float32, 5), 2, 3)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpscale(t *testing.T) {
	img, err := GrayImage(digit(), 28, 28)
	require.NoError(t, err)
	big := Upscale(img, 3)
	assert.Equal(t, 84, big.Bounds().Dx())
	assert.Equal(t, img.GrayAt(14, 10), big.GrayAt(14*3+1, 10*3+2))
}

func TestImageAndProbabilities(t *testing.T) {
	probs := []float32{0.01, 0.9, 0.01, 0.01, 0.01, 0.01, 0.01, 0.02, 0.01, 0.01}
	names := []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}

	var buf bytes.Buffer
	require.NoError(t, ImageAndProbabilities(&buf, digit(), 28, 28, probs, names))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), img.Bounds().Dy())

	path := filepath.Join(t.TempDir(), "pred.png")
	require.NoError(t, SaveImageAndProbabilities(path, digit(), 28, 28, probs, names))

	err = ImageAndProbabilities(&buf, digit(), 28, 28, probs, names[:3])
	assert.ErrorIs(t, err, ErrInvalidInput)
	err = ImageAndProbabilities(&buf, digit()[:10], 28, 28, probs, names)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestWeightHistogram(t *testing.T) {
	values := make([]float32, 200)
	for i := range values {
		values[i] = float32(i%40) / 40
	}
	var buf bytes.Buffer
	require.NoError(t, WeightHistogram(&buf, values, 8))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.GreaterOrEqual(t, len(lines), 8)

	assert.ErrorIs(t, WeightHistogram(&buf, nil, 8), ErrInvalidInput)
}
