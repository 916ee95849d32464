// Package postprocess - turns raw model output tensors into scored, labeled boxes.
package postprocess

import "github.com/nvr-ai/go-proctor/common"

// Result represents a single decoded detection in model input space.
type Result struct {
	// The bounding box of the result.
	Box common.BoundingBox
	// The confidence score of the result.
	Score float32
	// The predicted class index of the result.
	Class int
}
