package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultRequestTimeout = 30 * time.Second

// LlamaBackend calls the /embedding endpoint of a llama.cpp server.
type LlamaBackend struct {
	endpoint string
	client   *http.Client
}

// NewLlamaBackend creates a backend for the server at endpoint.
func NewLlamaBackend(endpoint string, timeout time.Duration) *LlamaBackend {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &LlamaBackend{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type llamaRequest struct {
	Content any `json:"content"`
}

// llamaResponseItem is one element of the array response format:
// [{"index": 0, "embedding": [[...]]}]
type llamaResponseItem struct {
	Index     int         `json:"index"`
	Embedding [][]float32 `json:"embedding"`
}

// Embed sends all texts in one request, falling back to one request per
// text when the server rejects batches.
func (b *LlamaBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > 1 {
		if vecs, err := b.embedBatch(ctx, texts); err == nil {
			return vecs, nil
		}
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := b.embedOne(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Close is a no-op. The server process belongs to server.Manager.
func (b *LlamaBackend) Close() error { return nil }

func (b *LlamaBackend) post(ctx context.Context, content any) ([]byte, error) {
	reqBody, err := json.Marshal(llamaRequest{Content: content})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint+"/embedding", bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llama.cpp request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llama.cpp returned status %d: %s", resp.StatusCode, snippet(body))
	}
	return body, nil
}

func (b *LlamaBackend) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := b.post(ctx, texts)
	if err != nil {
		return nil, err
	}

	var items []llamaResponseItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("failed to parse batch response: %w", err)
	}
	if len(items) != len(texts) {
		return nil, fmt.Errorf("batch response count mismatch: got %d, expected %d", len(items), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, item := range items {
		if item.Index < 0 || item.Index >= len(texts) || len(item.Embedding) == 0 {
			return nil, fmt.Errorf("invalid batch response item: index=%d", item.Index)
		}
		out[item.Index] = item.Embedding[0]
	}
	return out, nil
}

func (b *LlamaBackend) embedOne(ctx context.Context, text string) ([]float32, error) {
	body, err := b.post(ctx, text)
	if err != nil {
		return nil, err
	}

	var items []llamaResponseItem
	if err := json.Unmarshal(body, &items); err == nil && len(items) > 0 && len(items[0].Embedding) > 0 {
		return items[0].Embedding[0], nil
	}

	// Older servers answer {"embedding": [...]}.
	var obj struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(body, &obj); err == nil && len(obj.Embedding) > 0 {
		return obj.Embedding, nil
	}
	return nil, fmt.Errorf("failed to parse embedding response: %s", snippet(body))
}

func snippet(b []byte) string {
	return string(b[:min(100, len(b))])
}
