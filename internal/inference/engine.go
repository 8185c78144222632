package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/shopsql/shopsql/internal/observability"
)

var ErrModelUnavailable = errors.New("model unavailable")

const (
	defaultContextWindow  = 2048
	defaultThreads        = 8
	defaultMaxTokens      = 256
	defaultTemperature    = 0.1
	defaultProbeTimeout   = 30 * time.Second
	defaultStartupTimeout = 2 * time.Minute
	probePrompt           = "Test"
)

var defaultStop = []string{"\n", ";"}

// GenerateOptions left at their zero value take the engine defaults.
type GenerateOptions struct {
	MaxTokens   int
	Stop        []string
	Temperature float64
}

func (o GenerateOptions) withDefaults() GenerateOptions {
	if o.MaxTokens <= 0 {
		o.MaxTokens = defaultMaxTokens
	}
	if o.Stop == nil {
		o.Stop = append([]string(nil), defaultStop...)
	}
	if o.Temperature <= 0 {
		o.Temperature = defaultTemperature
	}
	return o
}

// ModelSpec is what a Loader receives once the artifact is resolved.
type ModelSpec struct {
	Path          string
	ContextWindow int
	Threads       int
	GPULayers     int
}

// Backend is a loaded model.
type Backend interface {
	Complete(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
	Close() error
}

type Loader interface {
	Load(ctx context.Context, spec ModelSpec) (Backend, error)
}

// Resolver turns a configured model location into a local path.
type Resolver interface {
	Resolve(ctx context.Context, location string) (string, error)
}

type Options struct {
	ModelPath     string
	ContextWindow int
	Threads       int
	GPULayers     int
	RetryInterval time.Duration
	ProbeTimeout  time.Duration
	// StartupTimeout bounds a lazy load started from Generate. The load is
	// detached from the request that triggered it.
	StartupTimeout time.Duration
	// Resolver is nil for backends that do not read a local artifact.
	Resolver Resolver
}

func DefaultGPULayers() int {
	if runtime.GOOS == "darwin" {
		return 1
	}
	return 0
}

// Engine owns the single loaded model of the process. It initializes lazily,
// retries failed loads no more often than RetryInterval, and runs at most one
// generation at a time.
type Engine struct {
	loader Loader
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	initGroup singleflight.Group
	slot      chan struct{}

	mu          sync.Mutex
	backend     Backend
	lastAttempt time.Time
	lastErr     error
	closed      bool
}

func NewEngine(loader Loader, opts Options, logger *slog.Logger) *Engine {
	if opts.ContextWindow <= 0 {
		opts.ContextWindow = defaultContextWindow
	}
	if opts.Threads <= 0 {
		opts.Threads = defaultThreads
	}
	if opts.GPULayers < 0 {
		opts.GPULayers = DefaultGPULayers()
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaultProbeTimeout
	}
	if opts.StartupTimeout <= 0 {
		opts.StartupTimeout = defaultStartupTimeout
	}
	return &Engine{
		loader: loader,
		opts:   opts,
		logger: observability.LoggerOrDiscard(logger),
		now:    time.Now,
		slot:   make(chan struct{}, 1),
	}
}

// Initialize loads and probes the model unless one is already live. Concurrent
// callers share a single attempt. It ignores RetryInterval.
func (e *Engine) Initialize(ctx context.Context) error {
	_, err, _ := e.initGroup.Do("initialize", func() (any, error) {
		return nil, e.initialize(ctx)
	})
	return err
}

func (e *Engine) initialize(ctx context.Context) (err error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return fmt.Errorf("%w: engine closed", ErrModelUnavailable)
	}
	if e.backend != nil {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	start := e.now()
	defer func() {
		e.mu.Lock()
		e.lastAttempt = e.now()
		e.lastErr = err
		e.mu.Unlock()
		if err != nil {
			e.logger.ErrorContext(ctx, "model initialization failed",
				slog.String("model_path", e.opts.ModelPath),
				slog.String("error", err.Error()),
			)
		}
	}()

	if e.loader == nil {
		return fmt.Errorf("%w: no loader configured", ErrModelUnavailable)
	}

	path := e.opts.ModelPath
	if e.opts.Resolver != nil {
		path, err = e.opts.Resolver.Resolve(ctx, e.opts.ModelPath)
		if err != nil {
			return err
		}
	}

	e.logger.InfoContext(ctx, "initializing model", slog.String("model_path", path))
	backend, err := e.loader.Load(ctx, ModelSpec{
		Path:          path,
		ContextWindow: e.opts.ContextWindow,
		Threads:       e.opts.Threads,
		GPULayers:     e.opts.GPULayers,
	})
	if err != nil {
		return fmt.Errorf("load model: %w: %w", ErrModelUnavailable, err)
	}

	if err := e.probe(ctx, backend); err != nil {
		_ = backend.Close()
		return err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		_ = backend.Close()
		return fmt.Errorf("%w: engine closed", ErrModelUnavailable)
	}
	e.backend = backend
	e.mu.Unlock()

	observability.SetModelReady(true)
	e.logger.InfoContext(ctx, "model initialized",
		slog.String("model_path", path),
		slog.String("duration", e.now().Sub(start).String()),
	)
	return nil
}

func (e *Engine) probe(ctx context.Context, backend Backend) error {
	probeCtx, cancel := context.WithTimeout(ctx, e.opts.ProbeTimeout)
	defer cancel()
	out, err := backend.Complete(probeCtx, probePrompt, GenerateOptions{MaxTokens: 1, Stop: []string{}, Temperature: defaultTemperature})
	if err != nil {
		return fmt.Errorf("probe model: %w: %w", ErrModelUnavailable, err)
	}
	if out == "" {
		return fmt.Errorf("probe model: %w: empty response to test prompt", ErrModelUnavailable)
	}
	return nil
}

// Generate runs one completion. The returned text never contains a stop sequence.
func (e *Engine) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	backend, err := e.ensure(ctx)
	if err != nil {
		return "", err
	}

	select {
	case e.slot <- struct{}{}:
	case <-ctx.Done():
		return "", fmt.Errorf("wait for model: %w", ctx.Err())
	}
	defer func() { <-e.slot }()

	opts = opts.withDefaults()
	out, err := backend.Complete(ctx, prompt, opts)
	if err != nil {
		return "", fmt.Errorf("complete prompt: %w", err)
	}
	return cutAtStop(out, opts.Stop), nil
}

func (e *Engine) ensure(ctx context.Context) (Backend, error) {
	e.mu.Lock()
	switch {
	case e.closed:
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: engine closed", ErrModelUnavailable)
	case e.backend != nil:
		backend := e.backend
		e.mu.Unlock()
		return backend, nil
	case e.lastErr != nil && e.now().Sub(e.lastAttempt) < e.opts.RetryInterval:
		lastErr := e.lastErr
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: last initialization failed: %v", ErrModelUnavailable, lastErr)
	}
	e.mu.Unlock()

	loading := e.initGroup.DoChan("initialize", func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.StartupTimeout)
		defer cancel()
		return nil, e.initialize(loadCtx)
	})
	select {
	case res := <-loading:
		if res.Err != nil {
			return nil, res.Err
		}
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: waiting for model load: %w", ErrModelUnavailable, ctx.Err())
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.backend == nil {
		return nil, fmt.Errorf("%w: model not loaded", ErrModelUnavailable)
	}
	return e.backend, nil
}

func (e *Engine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backend != nil
}

// Close releases the model. The engine cannot be reused afterwards.
func (e *Engine) Close() error {
	e.mu.Lock()
	backend := e.backend
	e.backend = nil
	e.closed = true
	e.mu.Unlock()

	observability.SetModelReady(false)
	if backend == nil {
		return nil
	}
	if err := backend.Close(); err != nil {
		return fmt.Errorf("close model: %w", err)
	}
	return nil
}

func cutAtStop(text string, stop []string) string {
	cut := len(text)
	for _, seq := range stop {
		if seq == "" {
			continue
		}
		if idx := strings.Index(text, seq); idx >= 0 && idx < cut {
			cut = idx
		}
	}
	return text[:cut]
}
