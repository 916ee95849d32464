package postprocess

import (
	"github.com/nvr-ai/go-proctor/common"
	"github.com/pkg/errors"
)

// DecodeYOLO decodes a YOLOv8-style output tensor laid out as
// [1, 4+numClasses, anchors]: rows 0..3 hold cx, cy, w, h and the remaining rows
// hold per-class scores.
//
// Arguments:
//   - output: The flattened output tensor.
//   - numClasses: Number of class rows following the box rows.
//   - confidence: Minimum best-class score for a candidate to be kept.
//
// Returns:
//   - The candidates above the confidence floor, in anchor order.
//   - An error if the tensor length does not match the class count.
func DecodeYOLO(output []float32, numClasses int, confidence float32) ([]Result, error) {
	rows := 4 + numClasses
	if numClasses <= 0 || len(output) == 0 || len(output)%rows != 0 {
		return nil, errors.Errorf("output of length %d does not fit %d rows", len(output), rows)
	}
	anchors := len(output) / rows

	var results []Result
	for a := 0; a < anchors; a++ {
		best, bestScore := -1, float32(0)
		for c := 0; c < numClasses; c++ {
			if s := output[(4+c)*anchors+a]; s > bestScore {
				best, bestScore = c, s
			}
		}
		if best < 0 || bestScore < confidence {
			continue
		}

		cx := output[a]
		cy := output[anchors+a]
		w := output[2*anchors+a]
		h := output[3*anchors+a]
		results = append(results, Result{
			Box:   common.BoundingBox{X: cx - w/2, Y: cy - h/2, Width: w, Height: h},
			Score: bestScore,
			Class: best,
		})
	}
	return results, nil
}
