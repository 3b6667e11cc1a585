package ai

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func vecNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestL2Normalize(t *testing.T) {
	v := l2Normalize([]float32{3, 4})
	require.InDelta(t, 0.6, v[0], 1e-6)
	require.InDelta(t, 0.8, v[1], 1e-6)
	require.InDelta(t, 1.0, vecNorm(v), 1e-6)

	zero := l2Normalize([]float32{0, 0, 0})
	require.Equal(t, []float32{0, 0, 0}, zero)
}

func TestFuseVectorsUnitLength(t *testing.T) {
	fused := fuseVectors([]float32{1, 0}, []float32{0, 1}, 0.65)
	require.Len(t, fused, 2)
	require.InDelta(t, 1.0, vecNorm(fused), 1e-6)
	// Text carries more weight than the image.
	require.Greater(t, fused[1], fused[0])
}

func TestFuseVectorsDimensionMismatch(t *testing.T) {
	require.Nil(t, fuseVectors([]float32{1, 0}, []float32{1, 0, 0}, 0.65))
}

func TestFuseVectorsTextHintInvertsOrdering(t *testing.T) {
	// Two stored items on orthogonal axes plus a third shared axis for the
	// text hint. Image-only favors itemA; the fused query flips to itemB
	// because the hint pulls toward it.
	itemA := []float32{1, 0, 0}
	itemB := []float32{0, 1, 0.2}
	image := []float32{0.9, 0.5, 0}
	textHint := []float32{0, 1, 0}

	cos := func(a, b []float32) float64 {
		var dot, na, nb float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
			na += float64(a[i]) * float64(a[i])
			nb += float64(b[i]) * float64(b[i])
		}
		return dot / (math.Sqrt(na) * math.Sqrt(nb))
	}

	require.Greater(t, cos(image, itemA), cos(image, itemB))

	fused := fuseVectors(image, textHint, 0.65)
	require.Greater(t, cos(fused, itemB), cos(fused, itemA))
}
