package apiv1

import (
	"encoding/json"
	"fmt"
	"time"
)

// BatchStatus is the Import Batch state machine (spec §3):
//
//	INIT -> STARTED -> COMPLETED
//	                 -> ERROR
//	         -> ABORT_REQUESTED -> ABORTING -> ABORTED
type BatchStatus int

const (
	StatusInit BatchStatus = iota
	StatusStarted
	StatusAbortRequested
	StatusAborting
	StatusAborted
	StatusError
	StatusCompleted
)

var batchStatusStrings = map[BatchStatus]string{
	StatusInit:            "INIT",
	StatusStarted:         "STARTED",
	StatusAbortRequested:  "ABORT_REQUESTED",
	StatusAborting:        "ABORTING",
	StatusAborted:         "ABORTED",
	StatusError:           "ERROR",
	StatusCompleted:       "COMPLETED",
}

var batchStringsStatus = map[string]BatchStatus{
	"INIT":             StatusInit,
	"STARTED":          StatusStarted,
	"ABORT_REQUESTED":  StatusAbortRequested,
	"ABORTING":         StatusAborting,
	"ABORTED":          StatusAborted,
	"ERROR":            StatusError,
	"COMPLETED":        StatusCompleted,
}

func (s BatchStatus) String() string { return batchStatusStrings[s] }

func (s BatchStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusAborted
}

func (s BatchStatus) MarshalJSON() ([]byte, error) {
	if _, ok := batchStatusStrings[s]; !ok {
		return nil, fmt.Errorf("unknown batch status %d", s)
	}
	return json.Marshal(s.String())
}

func (s *BatchStatus) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("%w", err)
	}
	v, ok := batchStringsStatus[str]
	if !ok {
		return fmt.Errorf("unknown batch status %q", str)
	}
	*s = v
	return nil
}

// ImageToImport is one entry of the transient images_to_import list
// produced by the Directory Scanner.
type ImageToImport struct {
	Path   string
	Format string
}

// ProcessingStatus tracks one in-flight image within a batch
// (transient, not persisted).
type ProcessingStatus struct {
	Path    string
	ImageID string
	Phase   string // "probing", "resizing", "persisting", "done"
}

// Batch is the Import Batch document (spec §3).
type Batch struct {
	ID        string    `json:"id"`
	ClassName ClassName `json:"class_name"`
	Path      string    `json:"path"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Status BatchStatus `json:"status"`

	NumToImport  int `json:"num_to_import"`
	NumAttempted int `json:"num_attempted"`
	NumSuccess   int `json:"num_success"`
	NumError     int `json:"num_error"`

	StorageRevision string `json:"-"`

	// Transient, never persisted.
	ImagesToImport   []ImageToImport             `json:"-"`
	ProcessingImages map[string]ProcessingStatus `json:"-"`
	Errors           map[string]error            `json:"-"`
}

// NewBatch constructs a Batch in state INIT for the given import
// root directory.
func NewBatch(id, path string, now time.Time) *Batch {
	return &Batch{
		ID:               id,
		ClassName:        ClassImportBatch,
		Path:             path,
		CreatedAt:        now,
		UpdatedAt:        now,
		Status:           StatusInit,
		ProcessingImages: map[string]ProcessingStatus{},
		Errors:           map[string]error{},
	}
}

// Snapshot returns a shallow copy safe to hand to readers without
// exposing the live batch's mutable maps (the in-flight registry's
// "living snapshot wins" contract, spec §9).
func (b *Batch) Snapshot() *Batch {
	cp := *b
	cp.ProcessingImages = nil
	cp.Errors = nil
	cp.ImagesToImport = nil
	return &cp
}

// allowedTransitions enumerates every legal status edge; anything
// else attempted by the engine is a programming error, and anything
// else requested by a client (spec §4.6) is ATTRIBUTE_VALIDATION_FAILURE.
var allowedTransitions = map[BatchStatus][]BatchStatus{
	StatusInit:           {StatusStarted},
	StatusStarted:        {StatusCompleted, StatusError, StatusAbortRequested},
	StatusAbortRequested: {StatusAborting},
	StatusAborting:       {StatusAborted},
}

// CanTransition reports whether from -> to is a legal state-machine edge.
func CanTransition(from, to BatchStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
