package transform

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// PayloadProcessor applies transforms 0..N on the way out and N..0 on the way in.
type PayloadProcessor struct {
	transforms []Transform
}

func NewPayloadProcessor(pipeline []Transform) (*PayloadProcessor, error) {
	if len(pipeline) == 0 {
		return nil, errors.New("payload processor requires at least one transform; use NewNoOpTransform() for an empty pipeline")
	}
	s := make([]Transform, len(pipeline))
	copy(s, pipeline)
	return &PayloadProcessor{transforms: s}, nil
}

// NewProcessorFor builds the usual pipeline: optional zstd compression
// followed by optional AES-GCM sealing. With neither it is a no-op.
func NewProcessorFor(compress bool, passphrase string) (*PayloadProcessor, error) {
	var pipeline []Transform
	if compress {
		z, err := NewZstdTransform(zstd.SpeedBestCompression)
		if err != nil {
			return nil, err
		}
		pipeline = append(pipeline, z)
	}
	if passphrase != "" {
		a, err := NewAESGCMTransform(passphrase)
		if err != nil {
			return nil, err
		}
		pipeline = append(pipeline, a)
	}
	if len(pipeline) == 0 {
		pipeline = append(pipeline, NewNoOpTransform())
	}
	return NewPayloadProcessor(pipeline)
}

// IsNoOp reports whether the processor leaves payloads untouched.
func (p *PayloadProcessor) IsNoOp() bool {
	for _, t := range p.transforms {
		if !IsNoOp(t) {
			return false
		}
	}
	return true
}

func (p *PayloadProcessor) PrepareOutput(payload []byte) ([]byte, error) {
	var err error
	current := payload
	for i, t := range p.transforms {
		current, err = t.Apply(current)
		if err != nil {
			return nil, fmt.Errorf("prepare output: transform %d (%T) Apply failed: %w", i, t, err)
		}
	}
	return current, nil
}

func (p *PayloadProcessor) ParseInput(payload []byte) ([]byte, error) {
	var err error
	current := payload
	for i := len(p.transforms) - 1; i >= 0; i-- {
		t := p.transforms[i]
		current, err = t.Reverse(current)
		if err != nil {
			return nil, fmt.Errorf("parse input: transform %d (%T) Reverse failed: %w", i, t, err)
		}
	}
	return current, nil
}
