package streamer

import "errors"

var (
	ErrClosed   = errors.New("streamer: closed")
	ErrTooLarge = errors.New("streamer: asset too large")
	ErrEvicted  = errors.New("streamer: evicted during fetch")
)
