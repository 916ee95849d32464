// Package models - label tables for the detection models the adapters can load.
package models

import "github.com/pkg/errors"

// Labels the behavior pipeline cares about.
const (
	// LabelPerson is the subject class; every other class is context.
	LabelPerson = "person"
	// LabelCellPhone is the phone class as named by COCO.
	LabelCellPhone = "cell phone"
)

// Family is the family of label tables a model was trained against.
type Family string

const (
	// FamilyYOLO is COCO-80 with zero-based contiguous indices, as emitted by YOLO heads.
	FamilyYOLO Family = "yolo"
)

// ClassSet maps model output indices to human-readable labels.
type ClassSet struct {
	Family Family
	Names  []string
	// nameToIdx for fast lookup by name
	nameToIdx map[string]int
}

// NewClassSet builds a class set and its reverse index.
func NewClassSet(family Family, names []string) *ClassSet {
	s := &ClassSet{Family: family, Names: names, nameToIdx: make(map[string]int, len(names))}
	for i, n := range names {
		s.nameToIdx[n] = i
	}
	return s
}

// Name returns the label for a model output index.
func (s *ClassSet) Name(idx int) (string, error) {
	if idx < 0 || idx >= len(s.Names) {
		return "", errors.Errorf("index %d out of range for family %q", idx, s.Family)
	}
	return s.Names[idx], nil
}

// Index returns the model output index for a label.
func (s *ClassSet) Index(name string) (int, error) {
	idx, ok := s.nameToIdx[name]
	if !ok {
		return -1, errors.Errorf("name %q not found in family %q", name, s.Family)
	}
	return idx, nil
}

// Len returns the number of classes in the set.
func (s *ClassSet) Len() int {
	return len(s.Names)
}

// COCO is the 80-class COCO label set in YOLO output order.
var COCO = NewClassSet(FamilyYOLO, []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck",
	"boat", "traffic light", "fire hydrant", "stop sign", "parking meter", "bench",
	"bird", "cat", "dog", "horse", "sheep", "cow", "elephant", "bear", "zebra",
	"giraffe", "backpack", "umbrella", "handbag", "tie", "suitcase", "frisbee",
	"skis", "snowboard", "sports ball", "kite", "baseball bat", "baseball glove",
	"skateboard", "surfboard", "tennis racket", "bottle", "wine glass", "cup",
	"fork", "knife", "spoon", "bowl", "banana", "apple", "sandwich", "orange",
	"broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair", "couch",
	"potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink",
	"refrigerator", "book", "clock", "vase", "scissors", "teddy bear",
	"hair drier", "toothbrush",
})
