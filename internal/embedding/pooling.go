package embedding

import "math"

// minMaskSum floors the mean-pooling denominator for rows with no attended tokens.
const minMaskSum = 1e-9

// MeanPool averages token vectors weighted by the attention mask.
// hidden is laid out [batch, seqLen, dim] and mask [batch, seqLen].
func MeanPool(hidden []float32, mask []int64, batch, seqLen, dim int) [][]float32 {
	out := make([][]float32, batch)
	for b := 0; b < batch; b++ {
		sum := make([]float64, dim)
		var weight float64
		for t := 0; t < seqLen; t++ {
			m := float64(mask[b*seqLen+t])
			if m == 0 {
				continue
			}
			weight += m
			row := hidden[(b*seqLen+t)*dim : (b*seqLen+t+1)*dim]
			for d, v := range row {
				sum[d] += float64(v) * m
			}
		}
		if weight < minMaskSum {
			weight = minMaskSum
		}
		vec := make([]float32, dim)
		for d := range sum {
			vec[d] = float32(sum[d] / weight)
		}
		out[b] = vec
	}
	return out
}

// NormalizeL2 scales x in place to unit L2 norm. Zero vectors are left unchanged.
func NormalizeL2(x []float32) {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(1 / math.Sqrt(sum))
	for i := range x {
		x[i] *= norm
	}
}
