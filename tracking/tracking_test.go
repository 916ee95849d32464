package tracking

import (
	"testing"
	"time"

	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-proctor/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// boxAt returns a 40x80 box centered on (x, y).
func boxAt(x, y float32) common.BoundingBox {
	return common.BoundingBox{X: x - 20, Y: y - 40, Width: 40, Height: 80}
}

func personAt(id string, x, y float32) Person {
	return Person{ID: id, Box: boxAt(x, y), Confidence: 0.9}
}

func TestTrackerUpdate(t *testing.T) {
	tr := NewTracker()

	_, ok := tr.Update(personAt("person-0", 100, 100), epoch)
	assert.False(t, ok, "first observation has no history")
	require.Equal(t, 1, tr.Len())

	delta, ok := tr.Update(personAt("person-0", 100, 160), epoch.Add(400*time.Millisecond))
	require.True(t, ok)
	assert.Equal(t, common.Point{X: 100, Y: 100}, delta.Previous)
	assert.Equal(t, common.Point{X: 100, Y: 160}, delta.Current)
	assert.Equal(t, 400*time.Millisecond, delta.Elapsed)
	assert.Equal(t, float32(60), delta.Distance)
	assert.Equal(t, float32(60), delta.VerticalShift())

	rec, ok := tr.Record("person-0")
	require.True(t, ok)
	assert.Equal(t, common.Point{X: 100, Y: 160}, rec.Center)
	assert.Equal(t, epoch.Add(400*time.Millisecond), rec.ObservedAt)
}

func TestTrackerEvict(t *testing.T) {
	tr := NewTracker()
	tr.Update(personAt("person-0", 0, 0), epoch)
	tr.Update(personAt("person-1", 0, 0), epoch.Add(2*time.Second))

	evicted := tr.Evict(epoch.Add(4*time.Second), 3*time.Second)
	assert.Equal(t, []string{"person-0"}, evicted)
	assert.Equal(t, 1, tr.Len())

	assert.Nil(t, tr.Evict(epoch.Add(time.Hour), 0), "zero window disables eviction")
	assert.Equal(t, 1, tr.Len())

	tr.Reset()
	assert.Zero(t, tr.Len())
}

func TestPositionalAssigner(t *testing.T) {
	ids := PositionalAssigner{}.Assign(make([]common.Point, 3))
	assert.Equal(t, []string{"person-0", "person-1", "person-2"}, ids)
}

func TestExtractorFiltersAndPreservesOrder(t *testing.T) {
	ex := NewExtractor("person", nil)
	persons := ex.Extract([]common.Detection{
		{Label: "person", Confidence: 0.9, Box: boxAt(100, 100)},
		{Label: "cell phone", Confidence: 0.8, Box: boxAt(110, 110)},
		{Label: "person", Confidence: 0.7, Box: boxAt(400, 100)},
	})

	require.Len(t, persons, 2)
	assert.Equal(t, "person-0", persons[0].ID)
	assert.Equal(t, float32(0.9), persons[0].Confidence)
	assert.Equal(t, "person-1", persons[1].ID)
	assert.Equal(t, common.Point{X: 400, Y: 100}, persons[1].Center())
}

func TestExtractorNoPersons(t *testing.T) {
	ex := NewExtractor("person", nil)
	persons := ex.Extract([]common.Detection{{Label: "cell phone", Confidence: 0.9}})
	assert.NotNil(t, persons)
	assert.Empty(t, persons)
}

func TestProximityAssignerKeepsIdentityAcrossReorder(t *testing.T) {
	tr := NewTracker()
	ex := NewExtractor("person", NewProximityAssigner(tr, 120))

	first := ex.Extract([]common.Detection{
		{Label: "person", Box: boxAt(100, 100)},
		{Label: "person", Box: boxAt(500, 100)},
	})
	require.Len(t, first, 2)
	for _, p := range first {
		tr.Update(p, epoch)
	}
	left, right := first[0].ID, first[1].ID
	assert.NotEqual(t, left, right)

	// Same subjects, reported in the opposite order and slightly moved.
	second := ex.Extract([]common.Detection{
		{Label: "person", Box: boxAt(510, 105)},
		{Label: "person", Box: boxAt(95, 110)},
	})
	require.Len(t, second, 2)
	assert.Equal(t, right, second[0].ID)
	assert.Equal(t, left, second[1].ID)
}

func TestProximityAssignerGateAllocatesFreshIDs(t *testing.T) {
	tr := NewTracker()
	a := NewProximityAssigner(tr, 50)

	ids := a.Assign([]common.Point{{X: 0, Y: 0}})
	require.Equal(t, []string{"person-0"}, ids)
	tr.Update(Person{ID: ids[0], Box: common.BoundingBox{X: -1, Y: -1, Width: 2, Height: 2}}, epoch)

	// Far outside the gate: a new subject, never a reused identity.
	ids = a.Assign([]common.Point{{X: 300, Y: 300}, {X: 1, Y: 1}})
	assert.Equal(t, []string{"person-1", "person-0"}, ids)
}

func TestProximityAssignerSkipsTakenIDs(t *testing.T) {
	tr := NewTracker()
	tr.Update(personAt("person-0", 1000, 1000), epoch)
	a := NewProximityAssigner(tr, 10)

	ids := a.Assign([]common.Point{{X: 0, Y: 0}})
	assert.Equal(t, []string{"person-1"}, ids)
}

func TestProximityAssignerIgnoresNonFiniteCenters(t *testing.T) {
	tr := NewTracker()
	tr.Update(personAt("person-0", 0, 0), epoch)
	a := NewProximityAssigner(tr, 1000)

	ids := a.Assign([]common.Point{{X: math32.NaN(), Y: 0}})
	assert.Equal(t, []string{"person-1"}, ids)
}

func TestProximityAssignerRejectsSubjectOutsideGate(t *testing.T) {
	tr := NewTracker()
	tr.Update(personAt("person-0", 100, 100), epoch)
	a := NewProximityAssigner(tr, 120)

	ids := a.Assign([]common.Point{{X: 1500, Y: 900}})
	assert.Equal(t, []string{"person-1"}, ids)
}

func TestProximityAssignerNearestWinsAmongNewcomers(t *testing.T) {
	tr := NewTracker()
	tr.Update(personAt("person-0", 100, 100), epoch)
	a := NewProximityAssigner(tr, 120)

	ids := a.Assign([]common.Point{
		{X: 160, Y: 100},
		{X: 102, Y: 100},
		{X: 190, Y: 100},
	})
	assert.Equal(t, []string{"person-1", "person-0", "person-2"}, ids)
}

func TestNewAssigner(t *testing.T) {
	tracker := NewTracker()

	a, err := NewAssigner(IdentityProximity, tracker, 100)
	require.NoError(t, err)
	assert.IsType(t, &ProximityAssigner{}, a)

	a, err = NewAssigner(IdentityPositional, tracker, 100)
	require.NoError(t, err)
	assert.IsType(t, PositionalAssigner{}, a)

	_, err = NewAssigner("appearance", tracker, 100)
	assert.Error(t, err)
}
