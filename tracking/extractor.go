package tracking

import "github.com/nvr-ai/go-proctor/common"

// Extractor filters raw detections down to the subject class and assigns each
// subject an identity for this frame.
type Extractor struct {
	label    string
	assigner IdentityAssigner
}

// NewExtractor creates an extractor for the given subject label.
// A nil assigner falls back to positional identities.
func NewExtractor(label string, assigner IdentityAssigner) *Extractor {
	if assigner == nil {
		assigner = PositionalAssigner{}
	}
	return &Extractor{label: label, assigner: assigner}
}

// Extract returns one Person per detection whose label matches, in adapter order.
//
// Arguments:
//   - detections: Every detection the adapter returned for the frame.
//
// Returns:
//   - []Person: The subjects, possibly empty, never nil.
func (e *Extractor) Extract(detections []common.Detection) []Person {
	persons := make([]Person, 0, len(detections))
	centers := make([]common.Point, 0, len(detections))
	for _, d := range detections {
		if d.Label != e.label {
			continue
		}
		persons = append(persons, Person{Box: d.Box, Confidence: d.Confidence})
		centers = append(centers, d.Box.Center())
	}

	ids := e.assigner.Assign(centers)
	for i := range persons {
		persons[i].ID = ids[i]
	}
	return persons
}
