package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/shopsql/shopsql/internal/observability"
)

type LlamaCPPConfig struct {
	Binary         string
	Addr           string
	StartupTimeout time.Duration
	PollInterval   time.Duration
	HTTPClient     *http.Client
}

// LlamaCPPLoader runs the GGUF model in a llama-server child process and
// talks to its OpenAI-compatible API.
type LlamaCPPLoader struct {
	cfg    LlamaCPPConfig
	logger *slog.Logger
}

func NewLlamaCPPLoader(cfg LlamaCPPConfig, logger *slog.Logger) *LlamaCPPLoader {
	if cfg.Binary == "" {
		cfg.Binary = "llama-server"
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8081"
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = 2 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &LlamaCPPLoader{cfg: cfg, logger: observability.LoggerOrDiscard(logger)}
}

func (l *LlamaCPPLoader) Load(ctx context.Context, spec ModelSpec) (Backend, error) {
	args, err := serverArgs(spec, l.cfg.Addr)
	if err != nil {
		return nil, err
	}
	// the server must outlive the request that triggered the load
	cmd := exec.Command(l.cfg.Binary, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", l.cfg.Binary, err)
	}
	l.logger.InfoContext(ctx, "llama server started",
		slog.Int("pid", cmd.Process.Pid),
		slog.String("addr", l.cfg.Addr),
	)

	proc := &serverProcess{cmd: cmd, done: make(chan struct{})}
	go proc.wait()

	baseURL := "http://" + l.cfg.Addr
	if err := l.waitHealthy(ctx, baseURL+"/health", proc); err != nil {
		_ = proc.stop()
		return nil, err
	}

	return newCompletionBackend(OpenAIConfig{
		BaseURL:    baseURL + "/v1",
		Model:      "local",
		HTTPClient: l.cfg.HTTPClient,
	}, proc.stop), nil
}

func serverArgs(spec ModelSpec, addr string) ([]string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid llama server addr %q: %w", addr, err)
	}
	if host == "" {
		host = "127.0.0.1"
	}
	return []string{
		"-m", spec.Path,
		"-c", strconv.Itoa(spec.ContextWindow),
		"-t", strconv.Itoa(spec.Threads),
		"-ngl", strconv.Itoa(spec.GPULayers),
		"--host", host,
		"--port", port,
	}, nil
}

func (l *LlamaCPPLoader) waitHealthy(ctx context.Context, healthURL string, proc *serverProcess) error {
	deadline := time.NewTimer(l.cfg.StartupTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if l.healthy(ctx, healthURL) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for llama server: %w", ctx.Err())
		case <-deadline.C:
			return fmt.Errorf("llama server not healthy after %s", l.cfg.StartupTimeout)
		case <-proc.done:
			return fmt.Errorf("llama server exited: %v", proc.err)
		case <-ticker.C:
		}
	}
}

func (l *LlamaCPPLoader) healthy(ctx context.Context, healthURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return false
	}
	resp, err := l.cfg.HTTPClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type serverProcess struct {
	cmd      *exec.Cmd
	done     chan struct{}
	err      error
	stopOnce sync.Once
}

func (p *serverProcess) wait() {
	p.err = p.cmd.Wait()
	close(p.done)
}

func (p *serverProcess) stop() error {
	var err error
	p.stopOnce.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}
		if killErr := p.cmd.Process.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
			err = fmt.Errorf("kill llama server: %w", killErr)
			return
		}
		<-p.done
	})
	return err
}
