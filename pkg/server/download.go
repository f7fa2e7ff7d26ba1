package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
)

// Artifact describes a downloadable model file.
type Artifact struct {
	FileName string
	URL      string
	// MinSize rejects truncated downloads left over from an interrupted run.
	MinSize int64
}

// ModelExists reports whether a complete copy of a is present.
func (m *Manager) ModelExists(a Artifact) bool {
	info, err := os.Stat(m.ModelPath(a))
	if err != nil {
		return false
	}
	return info.Size() >= a.MinSize
}

// DownloadModel fetches a into the models directory unless it is already
// there. The body goes to <file>.tmp and is renamed into place once
// complete. ctx bounds the whole transfer.
func (m *Manager) DownloadModel(ctx context.Context, a Artifact, progress func(downloaded, total int64)) error {
	modelPath := m.ModelPath(a)

	if info, err := os.Stat(modelPath); err == nil {
		if info.Size() >= a.MinSize {
			return nil
		}
		_ = os.Remove(modelPath)
	}

	if err := os.MkdirAll(m.ModelsDir(), 0755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}

	tmpPath := modelPath + ".tmp"
	defer func() { _ = os.Remove(tmpPath) }()

	if err := downloadFile(ctx, tmpPath, a.URL, a.MinSize, progress); err != nil {
		return fmt.Errorf("download %s: %w", a.FileName, err)
	}

	if err := os.Rename(tmpPath, modelPath); err != nil {
		return fmt.Errorf("failed to save model: %w", err)
	}
	return nil
}

func downloadFile(ctx context.Context, path, url string, sizeHint int64, progress func(downloaded, total int64)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	total := resp.ContentLength
	if total <= 0 {
		total = sizeHint
	}

	var downloaded int64
	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return werr
			}
			downloaded += int64(n)
			if progress != nil {
				progress(downloaded, total)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
	}

	if resp.ContentLength > 0 && downloaded != resp.ContentLength {
		return fmt.Errorf("short download: got %d of %d bytes", downloaded, resp.ContentLength)
	}
	return out.Sync()
}

// LlamaServerInstalled reports whether a llama-server binary is on PATH or
// in a well-known location.
func (m *Manager) LlamaServerInstalled() bool {
	_, err := m.findLlamaServer()
	return err == nil
}

// Cleanup stops the server and removes downloaded models and server files.
func (m *Manager) Cleanup() error {
	_ = m.Stop()

	if err := os.RemoveAll(m.ModelsDir()); err != nil {
		return fmt.Errorf("failed to remove models: %w", err)
	}
	_ = os.Remove(m.logPath())
	_ = os.Remove(m.pidPath())
	return nil
}
