package texpool

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNoLoader        = errors.New("texpool: loader is required")
	ErrClosed          = errors.New("texpool: pool is closed")
	ErrSyncUnsupported = errors.New("texpool: loader has no synchronous load path")

	errNotResident = errors.New("loaded but not resident")
)

// PreloadError reports the keys Preload could not make resident.
type PreloadError struct {
	Failed map[Key]error
}

func (e *PreloadError) keys() []Key {
	ks := make([]Key, 0, len(e.Failed))
	for k := range e.Failed {
		ks = append(ks, k)
	}
	sort.Slice(ks, func(i, j int) bool { return ks[i] < ks[j] })
	return ks
}

func (e *PreloadError) Error() string {
	ks := e.keys()
	switch len(ks) {
	case 0:
		return "preload: unknown error"
	case 1:
		return fmt.Sprintf("preload %q: %v", ks[0], e.Failed[ks[0]])
	default:
		parts := make([]string, 0, len(ks))
		for _, k := range ks {
			parts = append(parts, fmt.Sprintf("%q: %v", k, e.Failed[k]))
		}
		return fmt.Sprintf("preload failed for %d keys: %s", len(ks), strings.Join(parts, "; "))
	}
}

func (e *PreloadError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, k := range e.keys() {
		errs = append(errs, e.Failed[k])
	}
	return errs
}
