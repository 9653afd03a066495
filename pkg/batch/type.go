package batch

import (
	clog "github.com/jetsonsystems/mediamanager/pkg/log"
)

// StringMap is a small keyed-existence helper; the Engine itself does
// not use it.
type StringMap map[string]string

func (s StringMap) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// ProgressStruct bundles the engine's logger for call sites that
// otherwise only need the one dependency.
type ProgressStruct struct {
	Log clog.PluggableLoggerInterface
}

// importFailure is one path's processing failure, carrying enough
// context to render a Persistent Error Record (spec §3) and an
// IMG_ERROR event.
type importFailure struct {
	path string
	err  error
}

func (e importFailure) Error() string {
	return e.err.Error()
}
