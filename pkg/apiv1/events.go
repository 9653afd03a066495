package apiv1

// EventType is one of the Import Batch Engine's event-stream member
// kinds (spec §4.6).
type EventType string

const (
	EventStarted            EventType = "STARTED"
	EventImageVariantCreated EventType = "IMG_VARIANT_CREATED"
	EventImageSaved          EventType = "IMG_SAVED"
	EventImageError          EventType = "IMG_ERROR"
	EventCompleted           EventType = "COMPLETED"
)

// Event is one ordered element of a batch's event stream.
type Event struct {
	Type  EventType
	Batch *Batch // STARTED, COMPLETED
	Image *Image // IMG_VARIANT_CREATED, IMG_SAVED
	Path  string // IMG_ERROR
	Err   error  // IMG_ERROR
}
