package bridge

import "errors"

var (
	ErrBroadcastSource   = errors.New("broadcast address used as frame source")
	ErrTransformMismatch = errors.New("transformed payload but no local transform pipeline")
)
