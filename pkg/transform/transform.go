// Package transform holds the payload pipeline applied to frames before they
// go on the air: compression to spare the low data-rate channel, and optional
// encryption.
package transform

type Transform interface {
	Apply(data []byte) ([]byte, error)
	Reverse(data []byte) ([]byte, error)
}

type noOpTransform struct{}

func NewNoOpTransform() Transform                            { return &noOpTransform{} }
func (n *noOpTransform) Apply(data []byte) ([]byte, error)   { return data, nil }
func (n *noOpTransform) Reverse(data []byte) ([]byte, error) { return data, nil }

// IsNoOp reports whether t leaves payloads untouched.
func IsNoOp(t Transform) bool {
	_, ok := t.(*noOpTransform)
	return ok
}
