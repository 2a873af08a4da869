package dispatch

import "errors"

var ErrClosed = errors.New("dispatch: queue closed")
