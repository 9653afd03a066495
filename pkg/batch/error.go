package batch

import "fmt"

// SafeError is a per-image failure that the batch-level abort policy
// tolerates: the image is recorded as a Persistent Error Record and
// the batch continues (spec §4.6's per-image error policy).
type SafeError struct {
	message string
}

// UnsafeError marks a failure (e.g. the store becoming unreachable)
// that IsUnsafe classifies as fatal to the whole batch. The Engine
// does not construct UnsafeError or consult IsUnsafe: a store failure
// during an import is recorded against the affected images, the
// remaining images are still processed, and the batch ends in ERROR
// only when every image failed.
type UnsafeError struct {
	failure importFailure
}

func NewSafeError(format string, a ...any) error {
	return SafeError{fmt.Sprintf(format, a...)}
}

func NewUnsafeError(path string, cause error) error {
	return UnsafeError{importFailure{path: path, err: cause}}
}

func (e SafeError) Error() string { return e.message }

func (e UnsafeError) Error() string { return e.failure.Error() }

// IsUnsafe reports whether err should abort the whole batch rather
// than just being recorded against the one image that produced it.
func IsUnsafe(err error) bool {
	_, ok := err.(UnsafeError)
	return ok
}
