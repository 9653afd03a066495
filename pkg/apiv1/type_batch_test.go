package apiv1

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionLegalPath(t *testing.T) {
	assert.True(t, CanTransition(StatusInit, StatusStarted))
	assert.True(t, CanTransition(StatusStarted, StatusCompleted))
	assert.True(t, CanTransition(StatusStarted, StatusError))
	assert.True(t, CanTransition(StatusStarted, StatusAbortRequested))
	assert.True(t, CanTransition(StatusAbortRequested, StatusAborting))
	assert.True(t, CanTransition(StatusAborting, StatusAborted))
}

func TestCanTransitionRejectsIllegalEdges(t *testing.T) {
	assert.False(t, CanTransition(StatusInit, StatusCompleted))
	assert.False(t, CanTransition(StatusCompleted, StatusStarted))
	assert.False(t, CanTransition(StatusStarted, StatusAborting))
	assert.False(t, CanTransition(StatusAborted, StatusStarted))
}

func TestBatchStatusJSONRoundTrip(t *testing.T) {
	for s, str := range batchStatusStrings {
		raw, err := json.Marshal(s)
		assert.NoError(t, err)
		assert.Equal(t, `"`+str+`"`, string(raw))

		var decoded BatchStatus
		assert.NoError(t, json.Unmarshal(raw, &decoded))
		assert.Equal(t, s, decoded)
	}
}

func TestBatchStatusUnmarshalUnknown(t *testing.T) {
	var s BatchStatus
	err := json.Unmarshal([]byte(`"NOT_A_STATUS"`), &s)
	assert.Error(t, err)
}

func TestBatchStatusIsTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusError.IsTerminal())
	assert.True(t, StatusAborted.IsTerminal())
	assert.False(t, StatusStarted.IsTerminal())
	assert.False(t, StatusAbortRequested.IsTerminal())
}

func TestNewBatchStartsAtInit(t *testing.T) {
	now := time.Now()
	b := NewBatch("batch-1", "/photos", now)
	assert.Equal(t, StatusInit, b.Status)
	assert.Equal(t, ClassImportBatch, b.ClassName)
	assert.NotNil(t, b.ProcessingImages)
	assert.NotNil(t, b.Errors)
}

func TestBatchSnapshotDropsTransientFields(t *testing.T) {
	b := NewBatch("batch-1", "/photos", time.Now())
	b.ImagesToImport = []ImageToImport{{Path: "/photos/a.jpg"}}
	b.ProcessingImages["a"] = ProcessingStatus{Path: "/photos/a.jpg"}
	b.Errors["a"] = assert.AnError

	snap := b.Snapshot()
	assert.Nil(t, snap.ImagesToImport)
	assert.Nil(t, snap.ProcessingImages)
	assert.Nil(t, snap.Errors)
	assert.Equal(t, b.ID, snap.ID)

	// mutating the snapshot's scalar fields must not reach back into b
	snap.Status = StatusCompleted
	assert.Equal(t, StatusInit, b.Status)
}
