package translator

import "errors"

var (
	ErrUnknownAddress = errors.New("unknown short address")
	ErrInvalidPolicy  = errors.New("invalid reverse policy")
)
