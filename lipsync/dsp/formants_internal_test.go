package dsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cubic(x float64) float64 { return 2 - 0.5*x + 0.25*x*x - 0.01*x*x*x }

func TestPolyFit(t *testing.T) {
	y := make([]float64, sgWindow)
	for i := range y {
		y[i] = cubic(float64(i))
	}
	coef := polyFit(y, sgOrder)
	require.Len(t, coef, sgOrder+1)
	assert.InDeltaSlice(t, []float64{2, -0.5, 0.25, -0.01}, coef, 1e-8)
	assert.InDelta(t, cubic(3.5), polyEval(coef, 3.5), 1e-8)
}

func TestSavitzkyGolayKeepsCubics(t *testing.T) {
	x := make([]float64, 40)
	for i := range x {
		x[i] = cubic(float64(i))
	}
	assert.InDeltaSlice(t, x, savitzkyGolay(x), 1e-6, "a cubic passes through unchanged, edges included")

	short := []float64{1, 5, 2}
	assert.Equal(t, short, savitzkyGolay(short))
}

func TestFindPeaks(t *testing.T) {
	x := []float64{0, 3, 0, 1, 0, 0, 5, 5, 5, 0, 2, 4, 0}
	assert.Equal(t, []int{1, 7, 11}, findPeaks(x, 2, 1))
	assert.Equal(t, []int{1, 7, 11}, findPeaks(x, 2, 4))
	// 11 is within 5 of the taller plateau at 7
	assert.Equal(t, []int{1, 7}, findPeaks(x, 2, 5))
}
