package transform

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func TestTransformsReverseApply(t *testing.T) {
	z, err := NewZstdTransform(zstd.SpeedFastest)
	if err != nil {
		t.Fatalf("NewZstdTransform failed: %v", err)
	}
	a, err := NewAESGCMTransform("correct horse")
	if err != nil {
		t.Fatalf("NewAESGCMTransform failed: %v", err)
	}
	payload := bytes.Repeat([]byte("uan payload "), 40)

	for name, tr := range map[string]Transform{"noop": NewNoOpTransform(), "zstd": z, "aes": a} {
		out, err := tr.Apply(payload)
		if err != nil {
			t.Fatalf("%s: Apply failed: %v", name, err)
		}
		back, err := tr.Reverse(out)
		if err != nil {
			t.Fatalf("%s: Reverse failed: %v", name, err)
		}
		if !bytes.Equal(back, payload) {
			t.Errorf("%s: payload not restored", name)
		}
	}
}

func TestZstdShrinksRepetitivePayload(t *testing.T) {
	z, _ := NewZstdTransform(zstd.SpeedFastest)
	payload := bytes.Repeat([]byte{0x42}, 1000)
	out, _ := z.Apply(payload)
	if len(out) >= len(payload) {
		t.Errorf("Expected compression, got %d bytes from %d", len(out), len(payload))
	}
}

func TestProcessorFor(t *testing.T) {
	p, err := NewProcessorFor(false, "")
	if err != nil {
		t.Fatalf("NewProcessorFor failed: %v", err)
	}
	if !p.IsNoOp() {
		t.Errorf("Expected no-op processor")
	}

	p, err = NewProcessorFor(true, "secret")
	if err != nil {
		t.Fatalf("NewProcessorFor failed: %v", err)
	}
	if p.IsNoOp() {
		t.Errorf("Expected active processor")
	}
	payload := []byte("hello over the water")
	out, err := p.PrepareOutput(payload)
	if err != nil {
		t.Fatalf("PrepareOutput failed: %v", err)
	}
	back, err := p.ParseInput(out)
	if err != nil {
		t.Fatalf("ParseInput failed: %v", err)
	}
	if !bytes.Equal(back, payload) {
		t.Errorf("Expected %q, got %q", payload, back)
	}

	other, _ := NewProcessorFor(true, "wrong")
	if _, err := other.ParseInput(out); err == nil {
		t.Errorf("Expected failure with wrong passphrase")
	}
}

func TestEmptyPipelineRejected(t *testing.T) {
	if _, err := NewPayloadProcessor(nil); err == nil {
		t.Errorf("Expected error for empty pipeline")
	}
}
