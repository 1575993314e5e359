package fedfs

import "errors"

var (
	ErrNotFound        = errors.New("fedfs: not found")
	ErrClosed          = errors.New("fedfs: workspace closed")
	ErrNoSources       = errors.New("fedfs: no sources configured")
	ErrDuplicateSource = errors.New("fedfs: duplicate source name")
	ErrInvalidSource   = errors.New("fedfs: invalid source")
	ErrReadOnly        = errors.New("fedfs: no writable source covers path")
	ErrCrossSource     = errors.New("fedfs: operation spans sources")
)
