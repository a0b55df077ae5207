package subjectcrop

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// maxLoadAttempts bounds automatic reloads after a failed model load.
const maxLoadAttempts = 2

// DetectorSource resolves a detection method to a ready Detector. The
// engine depends on this interface so tests can substitute canned
// detectors for the real model registry.
type DetectorSource interface {
	Detector(ctx context.Context, m Method) (Detector, error)
}

// ModelConfig locates the neural runtime and weights. Weight download and
// caching are external concerns; the registry only loads what is on disk.
type ModelConfig struct {
	// RuntimeLib is the path of the onnxruntime shared library. Empty
	// leaves the runtime's platform default in place.
	RuntimeLib string
	// ModelDir holds the ONNX weight files.
	ModelDir string
	// Threads caps intra/inter op parallelism per session; 0 lets the
	// runtime decide.
	Threads int
}

// Registry owns the lazily loaded pool of neural model sessions. Loading
// is single-flight per method: concurrent first users share one load
// instead of racing. A failed load is retried at most once more; after
// that callers get the cached failure.
type Registry struct {
	cfg ModelConfig
	log *slog.Logger

	mu      sync.Mutex
	entries map[Method]*modelEntry
}

type modelEntry struct {
	ready    chan struct{} // closed when the load attempt finishes
	done     bool          // guarded by Registry.mu
	attempts int
	model    *onnxModel
	det      Detector
	err      error
}

func NewRegistry(cfg ModelConfig, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		cfg:     cfg,
		log:     logger,
		entries: make(map[Method]*modelEntry),
	}
}

// Detector implements DetectorSource. Classical detectors are stateless
// values; neural detectors wrap a session loaded on first use.
func (r *Registry) Detector(ctx context.Context, m Method) (Detector, error) {
	switch m {
	case MethodContour:
		return contourDetector{}, nil
	case MethodSaliency:
		return saliencyDetector{}, nil
	case MethodEdge:
		return edgeDetector{}, nil
	case MethodGrabCut:
		return grabCutDetector{}, nil
	case MethodYOLO, MethodDETR, MethodRTDETR, MethodRFDETR:
		return r.neural(ctx, m)
	default:
		return nil, errf(KindInvalidConfiguration, "unknown detection method %q", m)
	}
}

func (r *Registry) neural(ctx context.Context, m Method) (Detector, error) {
	r.mu.Lock()
	e := r.entries[m]
	if e == nil || (e.done && e.err != nil && e.attempts < maxLoadAttempts) {
		attempts := 1
		if e != nil {
			attempts = e.attempts + 1
		}
		e = &modelEntry{ready: make(chan struct{}), attempts: attempts}
		r.entries[m] = e
		r.mu.Unlock()

		model, det, err := r.load(m)
		r.mu.Lock()
		e.model, e.det, e.err = model, det, err
		e.done = true
		r.mu.Unlock()
		close(e.ready)
	} else {
		r.mu.Unlock()
	}

	select {
	case <-ctx.Done():
		return nil, wrapErr(KindInternal, ctx.Err(), "canceled while waiting for %s model", m)
	case <-e.ready:
	}
	if e.err != nil {
		return nil, wrapErr(KindModelUnavailable, e.err, "%s model not loaded", m)
	}
	return e.det, nil
}

func (r *Registry) load(m Method) (*onnxModel, Detector, error) {
	path := filepath.Join(r.cfg.ModelDir, modelFile(m))
	if _, err := os.Stat(path); err != nil {
		return nil, nil, err
	}
	if err := initRuntime(r.cfg.RuntimeLib); err != nil {
		return nil, nil, err
	}
	r.log.Info("loading model", "method", m, "path", path)
	model, err := loadONNXModel(path, r.cfg.Threads)
	if err != nil {
		return nil, nil, err
	}
	return model, neuralDetector(m, model), nil
}

// Close releases every loaded session. Concurrent Detect calls must have
// finished.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.done && e.model != nil {
			e.model.close()
		}
	}
	r.entries = make(map[Method]*modelEntry)
}

func modelFile(m Method) string {
	switch m {
	case MethodYOLO:
		return yoloModelFile
	case MethodDETR:
		return detrModelFile
	case MethodRTDETR:
		return rtdetrModelFile
	default:
		return rfdetrModelFile
	}
}
