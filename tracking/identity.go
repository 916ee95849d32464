package tracking

import (
	"sort"
	"sync"

	"github.com/nvr-ai/go-proctor/common"
	"github.com/pkg/errors"
)

// Identity schemes accepted by NewAssigner.
const (
	IdentityProximity  = "proximity"
	IdentityPositional = "positional"
)

// NewAssigner builds the assigner for the named identity scheme.
func NewAssigner(mode string, source PositionSource, gate float32) (IdentityAssigner, error) {
	switch mode {
	case IdentityProximity, "":
		return NewProximityAssigner(source, gate), nil
	case IdentityPositional:
		return PositionalAssigner{}, nil
	default:
		return nil, errors.Errorf("unknown identity scheme %q", mode)
	}
}

// IdentityAssigner hands out identities for the person centers found in one frame.
// The returned slice is parallel to centers and holds no duplicates.
type IdentityAssigner interface {
	Assign(centers []common.Point) []string
}

// PositionSource exposes last-known centers keyed by identity.
type PositionSource interface {
	Positions() map[string]common.Point
}

// PositionalAssigner names subjects by detection order: person-0, person-1, ...
// Identities are not stable when subjects appear, disappear, or reorder.
type PositionalAssigner struct{}

// Assign implements IdentityAssigner.
func (PositionalAssigner) Assign(centers []common.Point) []string {
	ids := make([]string, len(centers))
	for i := range centers {
		ids[i] = FormatID(i)
	}
	return ids
}

// ProximityAssigner matches current centers to previously tracked identities by
// optimal nearest-center assignment inside a distance gate. Anything left over
// gets a fresh identity that has never been used in this session.
type ProximityAssigner struct {
	source PositionSource
	gate   float32

	mu   sync.Mutex
	next int
}

// NewProximityAssigner creates an assigner reading history from source.
//
// Arguments:
//   - source: Last-known positions, normally the Tracker.
//   - gate: Maximum center distance in pixels for a match.
//
// Returns:
//   - *ProximityAssigner: The assigner.
//
// @example
// tracker := NewTracker()
// extractor := NewExtractor(models.LabelPerson, NewProximityAssigner(tracker, 120))
func NewProximityAssigner(source PositionSource, gate float32) *ProximityAssigner {
	return &ProximityAssigner{source: source, gate: gate}
}

// Assign implements IdentityAssigner.
func (a *ProximityAssigner) Assign(centers []common.Point) []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	known := a.source.Positions()
	ids := make([]string, len(centers))
	if len(centers) == 0 {
		return ids
	}

	// Sorted for deterministic tie-breaking.
	tracked := make([]string, 0, len(known))
	for id := range known {
		tracked = append(tracked, id)
	}
	sort.Strings(tracked)

	if len(tracked) > 0 {
		cost := make([][]float32, len(centers))
		for i, c := range centers {
			cost[i] = make([]float32, len(tracked))
			for j, id := range tracked {
				prev := known[id]
				if !c.Finite() || !prev.Finite() {
					cost[i][j] = Forbidden
					continue
				}
				d := c.Distance(prev)
				if d > a.gate {
					cost[i][j] = Forbidden
					continue
				}
				cost[i][j] = d
			}
		}
		for i, j := range HungarianAssign(cost) {
			if j >= 0 && cost[i][j] <= a.gate {
				ids[i] = tracked[j]
			}
		}
	}

	for i := range ids {
		if ids[i] == "" {
			ids[i] = a.fresh(known)
		}
	}
	return ids
}

func (a *ProximityAssigner) fresh(known map[string]common.Point) string {
	for {
		id := FormatID(a.next)
		a.next++
		if _, taken := known[id]; !taken {
			return id
		}
	}
}
