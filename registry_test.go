package subjectcrop

import (
	"context"
	"testing"
)

func TestRegistryResolvesClassicalDetectors(t *testing.T) {
	r := NewRegistry(ModelConfig{ModelDir: t.TempDir()}, nil)
	defer r.Close()

	for _, m := range []Method{MethodContour, MethodSaliency, MethodEdge, MethodGrabCut} {
		det, err := r.Detector(context.Background(), m)
		if err != nil {
			t.Errorf("%s: %v", m, err)
			continue
		}
		if det == nil {
			t.Errorf("%s: nil detector", m)
		}
	}
}

func TestRegistryUnknownMethod(t *testing.T) {
	r := NewRegistry(ModelConfig{}, nil)
	defer r.Close()

	_, err := r.Detector(context.Background(), "face")
	if KindOf(err) != KindInvalidConfiguration {
		t.Errorf("kind = %v, want invalid configuration", KindOf(err))
	}
}

func TestRegistryMissingWeights(t *testing.T) {
	// an empty model dir fails the stat before the runtime is touched, so
	// this covers the load and retry accounting without onnxruntime
	r := NewRegistry(ModelConfig{ModelDir: t.TempDir()}, nil)
	defer r.Close()

	for i := 0; i < 3; i++ {
		_, err := r.Detector(context.Background(), MethodYOLO)
		if KindOf(err) != KindModelUnavailable {
			t.Fatalf("call %d: kind = %v, want model unavailable", i+1, KindOf(err))
		}
	}
}

func TestRegistryCanceledWait(t *testing.T) {
	r := NewRegistry(ModelConfig{ModelDir: t.TempDir()}, nil)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// classical resolution never waits on a load, so cancellation is moot
	if _, err := r.Detector(ctx, MethodContour); err != nil {
		t.Errorf("classical lookup failed under canceled context: %v", err)
	}
}
