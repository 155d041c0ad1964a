// Package medium carries encoded UAN frames between nodes.
package medium

import (
	"context"
	"errors"
)

var (
	ErrClosed        = errors.New("medium: link closed")
	ErrFrameTooLarge = errors.New("medium: frame too large")
)

// Link is one node's attachment to a shared medium. Every frame written is
// offered to every other node on the medium; delivery is best effort.
type Link interface {
	WriteFrame(frame []byte) error
	ReadFrame(ctx context.Context) ([]byte, error)
	Close() error
}
