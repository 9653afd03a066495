package apiv1

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTagSetSortsAndDedupes(t *testing.T) {
	in := []string{"zebra", "apple", "mango", "apple", "zebra"}
	out := NormalizeTagSet(in)
	assert.Equal(t, []string{"apple", "mango", "zebra"}, out)

	// the source slice is left untouched
	assert.Equal(t, []string{"zebra", "apple", "mango", "apple", "zebra"}, in)
}

func TestNormalizeTagSetEmpty(t *testing.T) {
	assert.Nil(t, NormalizeTagSet(nil))
	assert.Nil(t, NormalizeTagSet([]string{}))
}

func TestUnionTagSets(t *testing.T) {
	out := UnionTagSets([]string{"b", "a"}, []string{"a", "c"}, nil)
	assert.Equal(t, []string{"a", "b", "c"}, out)
}

func TestImageIsVariant(t *testing.T) {
	original := &Image{ID: "oid-1"}
	assert.False(t, original.IsVariant())

	variant := &Image{ID: "vid-1", OriginalID: "oid-1"}
	assert.True(t, variant.IsVariant())
}

func TestImageInTrash(t *testing.T) {
	img := &Image{}
	assert.False(t, img.InTrash())

	now := time.Now()
	img.TrashedAt = &now
	assert.True(t, img.InTrash())
}

func TestHasAllTagsAndHasAnyTag(t *testing.T) {
	img := &Image{Tags: []string{"vacation", "beach", "family"}}

	assert.True(t, img.HasAllTags([]string{"vacation", "beach"}))
	assert.False(t, img.HasAllTags([]string{"vacation", "work"}))

	assert.True(t, img.HasAnyTag([]string{"work", "family"}))
	assert.False(t, img.HasAnyTag([]string{"work", "school"}))

	assert.True(t, img.HasAllTags(nil))
	assert.False(t, img.HasAnyTag(nil))
}
