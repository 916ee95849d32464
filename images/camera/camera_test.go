package camera

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolutions(t *testing.T) {
	r, ok := Lookup("1080P")
	require.True(t, ok)
	assert.Equal(t, 1920, r.Width)
	assert.Equal(t, 2.07, r.MegaPixels())
	assert.Equal(t, "1080p (1920x1080, 2.07MP)", r.String())

	_, ok = Lookup("8k")
	assert.False(t, ok)

	all := Resolutions()
	require.NotEmpty(t, all)
	assert.Equal(t, "vga", all[0].Alias)
	assert.Equal(t, "4k", all[len(all)-1].Alias)

	best, ok := HighestUnder(1300, 800)
	require.True(t, ok)
	assert.Equal(t, "720p", best.Alias)

	_, ok = HighestUnder(100, 100)
	assert.False(t, ok)

	assert.Equal(t, 0.0, Resolution{}.MegaPixels())
}
