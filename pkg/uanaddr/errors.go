package uanaddr

import "errors"

var (
	ErrInvalidAddress     = errors.New("invalid address")
	ErrAllocatorExhausted = errors.New("address allocator exhausted")
	ErrInvalidRange       = errors.New("invalid allocation range")
)
