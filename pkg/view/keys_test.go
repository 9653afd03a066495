package view

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jetsonsystems/mediamanager/pkg/common"
)

func TestByCreationTimeKeyShape(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 8_000_000, time.UTC)
	key := ByCreationTimeKey(ts, "oid-1")
	assert.Equal(t, []any{2026, 3, 4, 5, 6, 7, 8, "oid-1"}, key)
}

func TestByCreationTimeKeyConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("TEST", -5*3600)
	ts := time.Date(2026, 3, 4, 1, 0, 0, 0, loc)
	key := ByCreationTimeKey(ts, "oid-1")
	assert.Equal(t, 2026, key[0])
	assert.Equal(t, 3, key[1])
	assert.Equal(t, 4, key[2])
	assert.Equal(t, 6, key[3]) // 01:00 TEST == 06:00 UTC
}

func TestByOIDKeys(t *testing.T) {
	assert.Equal(t, []any{"oid-1", 0, 0}, ByOIDWithVariantKey("oid-1", false, 0))
	assert.Equal(t, []any{"oid-1", 1, 80}, ByOIDWithVariantKey("oid-1", true, 80))
	assert.Equal(t, []any{"oid-1"}, ByOIDWithoutVariantKey("oid-1"))
}

func TestShowKeyRangeSpansOriginalThroughWidestVariant(t *testing.T) {
	start := ByOIDWithVariantKey("oid-1", false, 0)
	end := ByOIDWithVariantKey("oid-1", true, MaxWidth)
	assert.Equal(t, []any{"oid-1", 0, 0}, start)
	assert.Equal(t, []any{"oid-1", 1, MaxWidth}, end)
}

func TestBatchByOIDWImageKey(t *testing.T) {
	assert.Equal(t, []any{"batch-1", "", RowKindImport, ""}, BatchByOIDWImageKey("batch-1", "", RowKindImport, ""))
	assert.Equal(t, []any{"batch-1", "oid-1", RowKindOriginal, "a.jpg"}, BatchByOIDWImageKey("batch-1", "oid-1", RowKindOriginal, "a.jpg"))
	assert.Equal(t, []any{"batch-1", "oid-1", RowKindVariant, "thumbnail"}, BatchByOIDWImageKey("batch-1", "oid-1", RowKindVariant, "thumbnail"))
}

func TestBatchByOIDWImageByCTimeKey(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	key := BatchByOIDWImageByCTimeKey("batch-1", RowKindVariant, true, ts, "thumbnail", "oid-1")
	assert.Equal(t, []any{"batch-1", RowKindVariant, 1, 2026, 1, 1, 0, 0, 0, 0, "thumbnail", "oid-1"}, key)
}

func TestBatchByCTimeKeyShape(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, []any{2026, 1, 1, 0, 0, 0, 0, "batch-1", 0}, BatchByCTimeKey(ts, "batch-1"))
}

func TestByTagKey(t *testing.T) {
	assert.Equal(t, []any{"vacation", "oid-1"}, ByTagKey("vacation", "oid-1"))
}

func TestByTrashKeyIsPlainImageID(t *testing.T) {
	assert.Equal(t, []any{"oid-1"}, ByTrashKey("oid-1"))
}

func TestStartEndForCreationRangeUnbounded(t *testing.T) {
	start, end := StartEndForCreationRange(common.CreationTimeRange{})
	assert.Nil(t, start)
	assert.Nil(t, end)
}

func TestStartEndForCreationRangeBounded(t *testing.T) {
	s := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := time.Date(2026, 1, 31, 23, 59, 59, 0, time.UTC)
	start, end := StartEndForCreationRange(common.CreationTimeRange{Start: s, End: e})

	assert.Equal(t, []any{2026, 1, 1, 0, 0, 0, 0}, start)
	// the end bound carries the empty-object sentinel so every oid at
	// that timestamp still sorts inside the range
	assert.Equal(t, map[string]any{}, end[len(end)-1])
	assert.Equal(t, 8, len(end))
}
