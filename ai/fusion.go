package ai

import "math"

// l2Normalize returns v scaled to unit length. A zero vector is returned
// unchanged.
func l2Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

// fuseVectors combines an image vector and a text vector into one query
// vector: both inputs are L2-normalized, summed with the text scaled by
// textWeight and the image by (1 - textWeight), and the result is
// re-normalized. With textWeight above 0.5 a narrowing text hint ("the
// blue one") can invert an image-only ordering while the image remains
// the base signal. This is the documented stand-in for providers without
// a joint image+text embedding input.
func fuseVectors(image, text []float32, textWeight float32) []float32 {
	if len(image) != len(text) {
		return nil
	}
	image = l2Normalize(image)
	text = l2Normalize(text)

	fused := make([]float32, len(image))
	imageWeight := 1 - textWeight
	for i := range fused {
		fused[i] = imageWeight*image[i] + textWeight*text[i]
	}
	return l2Normalize(fused)
}
