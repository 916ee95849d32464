package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCOCOLookups(t *testing.T) {
	require.Equal(t, 80, COCO.Len())

	name, err := COCO.Name(0)
	require.NoError(t, err)
	assert.Equal(t, LabelPerson, name)

	idx, err := COCO.Index(LabelCellPhone)
	require.NoError(t, err)
	assert.Equal(t, 67, idx)
}

func TestClassSetErrors(t *testing.T) {
	_, err := COCO.Name(80)
	assert.Error(t, err)
	_, err = COCO.Name(-1)
	assert.Error(t, err)

	idx, err := COCO.Index("unicorn")
	assert.Error(t, err)
	assert.Equal(t, -1, idx)
}
