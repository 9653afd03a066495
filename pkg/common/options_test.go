package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVariantSpecArea(t *testing.T) {
	assert.Equal(t, 200*150, VariantSpec{Width: 200, Height: 150}.Area())
	// a zero dimension is treated as square, matching a "longest edge" spec
	assert.Equal(t, 100*100, VariantSpec{Width: 100}.Area())
	assert.Equal(t, 100*100, VariantSpec{Height: 100}.Area())
}

func TestNewImportOptionsDefaults(t *testing.T) {
	o := NewImportOptions()
	assert.Equal(t, 0, o.RecursionDepth)
	assert.True(t, o.IgnoreDotfiles)
	assert.True(t, o.SaveOriginal)
	assert.Equal(t, 1, o.NumJobs)
	assert.Equal(t, 10, o.ToProcessBatchSize)
	assert.False(t, o.GenerateChecksums)
}

func TestApplyDefaultsOnlyFillsUnset(t *testing.T) {
	o := ImportOptions{NumJobs: 8, ToProcessBatchSize: 0}
	o.ApplyDefaults()
	assert.Equal(t, 8, o.NumJobs)
	assert.Equal(t, 10, o.ToProcessBatchSize)
}

func TestParseYYYYMMDD(t *testing.T) {
	got, err := ParseYYYYMMDD("20260115")
	assert.NoError(t, err)
	assert.Equal(t, 2026, got.Year())
	assert.Equal(t, time.January, got.Month())
	assert.Equal(t, 15, got.Day())

	empty, err := ParseYYYYMMDD("")
	assert.NoError(t, err)
	assert.True(t, empty.IsZero())

	_, err = ParseYYYYMMDD("not-a-date")
	assert.Error(t, err)
}

func TestDefaultAllowedMimeTags(t *testing.T) {
	tags := DefaultAllowedMimeTags()
	assert.Len(t, tags, 3)
	assert.Equal(t, "image/jpeg", tags[0].String())
}
