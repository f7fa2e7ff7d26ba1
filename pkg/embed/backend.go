package embed

import (
	"context"
	"time"

	"github.com/XiaoConstantine/bmark/pkg/server"
)

// Backend runs inference for a loaded model. Implementations need not be
// safe for concurrent use; Model serializes calls.
type Backend interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Close() error
}

// Loader makes a model available and returns a backend for it. ctx carries
// the download deadline.
type Loader interface {
	Load(ctx context.Context, spec ModelSpec) (Backend, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, spec ModelSpec) (Backend, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, spec ModelSpec) (Backend, error) {
	return f(ctx, spec)
}

// LlamaLoader downloads GGUF files through mgr, starts the local
// llama.cpp server and talks to it over HTTP.
type LlamaLoader struct {
	Manager *server.Manager
	// Progress receives download progress; nil is quiet.
	Progress func(downloaded, total int64)
	// RequestTimeout bounds each embedding request. Zero uses 30s.
	RequestTimeout time.Duration
}

// Load implements Loader.
func (l *LlamaLoader) Load(ctx context.Context, spec ModelSpec) (Backend, error) {
	if err := l.Manager.DownloadModel(ctx, spec.File, l.Progress); err != nil {
		return nil, err
	}
	if err := l.Manager.Start(ctx, spec.File); err != nil {
		return nil, err
	}
	return NewLlamaBackend(l.Manager.Endpoint(), l.RequestTimeout), nil
}
