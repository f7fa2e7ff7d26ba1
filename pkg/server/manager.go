package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const (
	DefaultPort    = 8089
	DefaultHost    = "localhost"
	StartupTimeout = 30 * time.Second
	HealthInterval = 250 * time.Millisecond
)

// Manager owns the local llama.cpp embedding server: model files under
// <home>/models, and server.pid, server.model and server.log under <home>.
type Manager struct {
	home string
	port int
	host string
}

// NewManager creates a manager rooted at home. A zero port uses DefaultPort.
func NewManager(home string, port int) (*Manager, error) {
	if home == "" {
		return nil, fmt.Errorf("server home directory is required")
	}
	if port == 0 {
		port = DefaultPort
	}
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port %d", port)
	}
	return &Manager{home: home, port: port, host: DefaultHost}, nil
}

// Home returns the base directory.
func (m *Manager) Home() string { return m.home }

// ModelsDir returns the directory holding downloaded model files.
func (m *Manager) ModelsDir() string {
	return filepath.Join(m.home, "models")
}

// ModelPath returns where artifact a lives once downloaded.
func (m *Manager) ModelPath(a Artifact) string {
	return filepath.Join(m.ModelsDir(), a.FileName)
}

// Endpoint returns the server base URL.
func (m *Manager) Endpoint() string {
	return fmt.Sprintf("http://%s:%d", m.host, m.port)
}

// IsRunning checks whether something answers the health endpoint.
func (m *Manager) IsRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.Endpoint()+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// RunningModel returns the model file the managed server was started with.
func (m *Manager) RunningModel() string {
	data, err := os.ReadFile(m.modelMarkerPath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Start launches llama-server serving artifact a, restarting a managed
// server that runs a different model. It returns once the server is
// healthy or ctx is done.
func (m *Manager) Start(ctx context.Context, a Artifact) error {
	if m.IsRunning() {
		if running := m.RunningModel(); running == "" || running == a.FileName {
			return nil
		}
		if err := m.Stop(); err != nil {
			return err
		}
	}

	llamaPath, err := m.findLlamaServer()
	if err != nil {
		return err
	}

	modelPath := m.ModelPath(a)
	if _, err := os.Stat(modelPath); err != nil {
		return fmt.Errorf("model not found at %s, run 'bmark setup' first", modelPath)
	}

	m.cleanStalePID()

	if err := os.MkdirAll(m.home, 0755); err != nil {
		return err
	}
	logFile, err := os.OpenFile(m.logPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	// Bookmark texts are short; a few slots with small contexts keep
	// memory low while still batching.
	threads := min(runtime.NumCPU(), 8)
	slots := 4
	args := []string{
		"-m", modelPath,
		"--embedding",
		"--port", strconv.Itoa(m.port),
		"--host", m.host,
		"-c", strconv.Itoa(slots * 512),
		"-b", "2048",
		"-ub", "2048",
		"--threads", strconv.Itoa(threads),
		"-ngl", "99",
		"-np", strconv.Itoa(slots),
		"-cb",
	}

	cmd := exec.Command(llamaPath, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return fmt.Errorf("failed to start llama-server: %w", err)
	}
	_ = logFile.Close()

	if err := os.WriteFile(m.pidPath(), []byte(strconv.Itoa(cmd.Process.Pid)), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to write PID file: %v\n", err)
	}
	_ = os.WriteFile(m.modelMarkerPath(), []byte(a.FileName), 0644)

	if err := m.waitForReady(ctx); err != nil {
		_ = m.Stop()
		return err
	}
	return nil
}

// Stop terminates the managed server, escalating to SIGKILL if it is still
// answering after a grace period.
func (m *Manager) Stop() error {
	defer func() { _ = os.Remove(m.modelMarkerPath()) }()

	pid, err := m.readPID()
	if err != nil {
		if m.IsRunning() {
			return fmt.Errorf("server running but no PID file found; kill manually on port %d", m.port)
		}
		return nil
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		m.removePIDFile()
		return nil
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		m.removePIDFile()
		return nil
	}

	time.Sleep(500 * time.Millisecond)
	if m.IsRunning() {
		_ = proc.Signal(syscall.SIGKILL)
	}
	m.removePIDFile()
	return nil
}

// Status reports whether the server answers, its pid and its port.
func (m *Manager) Status() (running bool, pid int, port int) {
	pid, _ = m.readPID()
	return m.IsRunning(), pid, m.port
}

func (m *Manager) pidPath() string         { return filepath.Join(m.home, "server.pid") }
func (m *Manager) logPath() string         { return filepath.Join(m.home, "server.log") }
func (m *Manager) modelMarkerPath() string { return filepath.Join(m.home, "server.model") }

func (m *Manager) readPID() (int, error) {
	data, err := os.ReadFile(m.pidPath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func (m *Manager) removePIDFile() {
	_ = os.Remove(m.pidPath())
}

func (m *Manager) cleanStalePID() {
	pid, err := m.readPID()
	if err != nil {
		return
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		m.removePIDFile()
		return
	}
	// Signal 0 probes for existence.
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		m.removePIDFile()
	}
}

func (m *Manager) waitForReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, StartupTimeout)
	defer cancel()

	ticker := time.NewTicker(HealthInterval)
	defer ticker.Stop()
	for {
		if m.IsRunning() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("server not ready: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (m *Manager) findLlamaServer() (string, error) {
	for _, name := range []string{"llama-server", "llama-server-metal"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	for _, p := range []string{"/opt/homebrew/bin/llama-server", "/usr/local/bin/llama-server"} {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("llama-server not found. Install with: brew install llama.cpp")
}
