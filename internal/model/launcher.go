// Package model starts and supervises model server subprocesses. It is
// the concrete lifecycle collaborator behind the serve orchestrator:
// bundle lookup, session directory creation, port selection, spawn,
// readiness polling and shutdown all live here.
package model

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"modelhub/internal/catalog"
	"modelhub/internal/serve"
	"modelhub/internal/session"
)

// serverLogName is the file in the session directory capturing the model
// server's stdout and stderr. The child writes to it directly, so the
// server keeps logging even after the spawning process has exited.
const serverLogName = "server.log"

// LauncherConfig wires a Launcher. Catalog and Store are required.
type LauncherConfig struct {
	Catalog *catalog.Catalog
	Store   *session.Store

	// Host the model servers bind to. Defaults to 127.0.0.1.
	Host string
	// Optional port range for auto-assigned ports; zero start disables
	// the range and the OS picks a free port instead.
	PortRangeStart int
	PortRangeEnd   int

	// ReadyTimeout caps the wait for the health endpoint after spawn.
	ReadyTimeout time.Duration
	// DrainTimeout is how long Stop waits after SIGTERM before SIGKILL.
	DrainTimeout time.Duration
	// ProbeInterval is the pause between readiness probes.
	ProbeInterval time.Duration

	Publisher EventPublisher
	Logger    *zerolog.Logger
}

// Info is a snapshot of one spawned model server.
type Info struct {
	ModelID   string
	URL       string
	SRV       string
	Dir       string
	PID       int
	StartedAt time.Time
	Ready     bool
	APIs      []string
}

type proc struct {
	cmd       *exec.Cmd
	info      Info
	healthURL string
	logPath   string
	waitErr   error
	done      chan struct{} // closed when the process exits
}

// Launcher spawns one server process per served model. Processes are
// keyed by canonical model ID; re-serving a model overwrites the entry,
// mirroring the registry's last-write-wins rule.
type Launcher struct {
	cfg        LauncherConfig
	httpClient *http.Client
	log        zerolog.Logger
	pub        EventPublisher

	mu    sync.Mutex
	procs map[string]*proc
}

// NewLauncher applies defaults and returns a ready launcher.
func NewLauncher(cfg LauncherConfig) *Launcher {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 30 * time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 5 * time.Second
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 100 * time.Millisecond
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = noopPublisher{}
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	// Timeout stays zero; every probe carries its own context deadline.
	return &Launcher{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 0},
		log:        log,
		pub:        pub,
		procs:      make(map[string]*proc),
	}
}

type handle struct {
	l    *Launcher
	spec serve.HandleSpec
}

// Handle constructs a model handle. No resource is touched until Serve.
func (l *Launcher) Handle(spec serve.HandleSpec) serve.Handle {
	return handle{l: l, spec: spec}
}

func (h handle) IsValid(context.Context) bool {
	_, ok := h.l.cfg.Catalog.Lookup(h.spec.ModelID)
	return ok
}

func (h handle) Serve(ctx context.Context, trackUseCase string) (serve.Session, error) {
	return h.l.spawn(ctx, h.spec, trackUseCase)
}

func (l *Launcher) spawn(ctx context.Context, spec serve.HandleSpec, trackUseCase string) (serve.Session, error) {
	b, ok := l.cfg.Catalog.Lookup(spec.ModelID)
	if !ok {
		return serve.Session{}, fmt.Errorf("bundle not found: %s", spec.ModelID)
	}
	if len(b.Command) == 0 {
		return serve.Session{}, fmt.Errorf("bundle %s has no server command", b.ID)
	}

	dir, err := l.cfg.Store.Create(b.ID)
	if err != nil {
		return serve.Session{}, err
	}

	port := spec.PreferredPort
	if port <= 0 {
		if l.cfg.PortRangeStart > 0 && l.cfg.PortRangeEnd >= l.cfg.PortRangeStart {
			port, err = pickPortInRange(l.cfg.Host, l.cfg.PortRangeStart, l.cfg.PortRangeEnd)
		} else {
			port, err = pickFreePort(l.cfg.Host)
		}
		if err != nil {
			return serve.Session{}, err
		}
	}
	baseURL := fmt.Sprintf("http://%s:%d", l.cfg.Host, port)

	cmd := exec.Command(b.Command[0], b.Command[1:]...)
	cmd.Dir = b.Dir
	cmd.Env = serverEnv(b, spec, l.cfg.Host, port, dir, trackUseCase)
	logPath := filepath.Join(dir, serverLogName)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return serve.Session{}, fmt.Errorf("open server log: %w", err)
	}
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if err := cmd.Start(); err != nil {
		logFile.Close()
		return serve.Session{}, fmt.Errorf("start model server: %w", err)
	}
	// The child holds its own descriptor from here on.
	logFile.Close()
	pid := cmd.Process.Pid
	srv := fmt.Sprintf("http:%s:%d/pid=%d", l.cfg.Host, port, pid)

	l.log.Info().Str("model", b.ID).Int("pid", pid).Int("port", port).Msg("model server starting")
	l.pub.Publish(Event{Name: "spawn_start", ModelID: b.ID, Fields: map[string]any{"pid": pid, "port": port}})

	p := &proc{
		cmd: cmd,
		info: Info{
			ModelID:   b.ID,
			URL:       baseURL,
			SRV:       srv,
			Dir:       dir,
			PID:       pid,
			StartedAt: time.Now(),
			APIs:      b.APIs,
		},
		healthURL: baseURL + b.Health,
		logPath:   logPath,
		done:      make(chan struct{}),
	}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	l.mu.Lock()
	l.procs[b.ID] = p
	l.mu.Unlock()

	if err := l.waitReady(ctx, p); err != nil {
		l.mu.Lock()
		if l.procs[b.ID] == p {
			delete(l.procs, b.ID)
		}
		l.mu.Unlock()
		return serve.Session{}, err
	}

	l.mu.Lock()
	p.info.Ready = true
	l.mu.Unlock()

	if err := l.cfg.Store.Finalize(dir, baseURL, srv, pid); err != nil {
		l.log.Warn().Err(err).Str("model", b.ID).Msg("could not finalize session meta")
	}

	l.log.Info().Str("model", b.ID).Int("pid", pid).Str("url", baseURL).Msg("model server ready")
	l.pub.Publish(Event{Name: "spawn_ready", ModelID: b.ID, Fields: map[string]any{"pid": pid, "url": baseURL}})

	return serve.Session{
		ModelID: b.ID,
		URL:     baseURL,
		SRV:     srv,
		Dir:     dir,
		APIs:    b.APIs,
	}, nil
}

// waitReady polls the health endpoint until it answers, the process
// exits, the deadline passes or ctx is canceled.
func (l *Launcher) waitReady(ctx context.Context, p *proc) error {
	deadline := time.Now().Add(l.cfg.ReadyTimeout)
	for {
		select {
		case <-p.done:
			l.pub.Publish(Event{Name: "spawn_exit", ModelID: p.info.ModelID, Fields: map[string]any{"pid": p.info.PID, "before_ready": true}})
			if p.waitErr != nil {
				if tail := readTail(p.logPath, 4096); tail != "" {
					return fmt.Errorf("model server exited early: %v; log tail: %s", p.waitErr, tail)
				}
				return fmt.Errorf("model server exited early: %v", p.waitErr)
			}
			return fmt.Errorf("model server exited before ready: %s", p.healthURL)
		case <-ctx.Done():
			l.reap(p)
			return ctx.Err()
		default:
		}
		if time.Now().After(deadline) {
			l.reap(p)
			l.pub.Publish(Event{Name: "spawn_timeout", ModelID: p.info.ModelID, Fields: map[string]any{"pid": p.info.PID}})
			return fmt.Errorf("model server not ready in time: %s", p.healthURL)
		}
		if l.probe(p.healthURL) {
			return nil
		}
		time.Sleep(l.cfg.ProbeInterval)
	}
}

func (l *Launcher) probe(url string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// reap force-kills a process and waits briefly for it to be collected.
func (l *Launcher) reap(p *proc) {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
	}
}

// Stop terminates the server for modelID: SIGTERM first, SIGKILL after
// the drain timeout. Stopping an unknown model is a no-op.
func (l *Launcher) Stop(modelID string) error {
	l.mu.Lock()
	p := l.procs[modelID]
	delete(l.procs, modelID)
	l.mu.Unlock()
	if p == nil {
		return nil
	}
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Signal(syscall.SIGTERM)
	}
	select {
	case <-p.done:
	case <-time.After(l.cfg.DrainTimeout):
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
		<-p.done
	}
	l.log.Info().Str("model", modelID).Int("pid", p.info.PID).Msg("model server stopped")
	l.pub.Publish(Event{Name: "spawn_stop", ModelID: modelID, Fields: map[string]any{"pid": p.info.PID}})
	return nil
}

// StopAll terminates every managed server. Best effort.
func (l *Launcher) StopAll() {
	l.mu.Lock()
	ids := make([]string, 0, len(l.procs))
	for id := range l.procs {
		ids = append(ids, id)
	}
	l.mu.Unlock()
	for _, id := range ids {
		_ = l.Stop(id)
	}
}

// Running returns the snapshot for modelID, if it has a live process.
func (l *Launcher) Running(modelID string) (Info, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.procs[modelID]
	if !ok {
		return Info{}, false
	}
	return p.info, true
}

// RunningAll snapshots every managed server, sorted by model ID.
func (l *Launcher) RunningAll() []Info {
	l.mu.Lock()
	out := make([]Info, 0, len(l.procs))
	for _, p := range l.procs {
		out = append(out, p.info)
	}
	l.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out
}

// Healthy live-probes the server for modelID.
func (l *Launcher) Healthy(modelID string) bool {
	l.mu.Lock()
	p, ok := l.procs[modelID]
	l.mu.Unlock()
	if !ok {
		return false
	}
	return l.probe(p.healthURL)
}

// serverEnv builds the child environment: the parent env, then the
// bundle's static env, then the hub facts, which win on conflict.
func serverEnv(b catalog.Bundle, spec serve.HandleSpec, host string, port int, dir, trackUseCase string) []string {
	env := os.Environ()
	for k, v := range b.Env {
		env = append(env, k+"="+v)
	}
	env = append(env,
		"HUB_MODEL_ID="+b.ID,
		"HUB_HOST="+host,
		"HUB_PORT="+strconv.Itoa(port),
		"HUB_SESSION_DIR="+dir,
		"HUB_CACHE_SOURCE="+spec.Source.String(),
		"HUB_LOCAL_CACHE="+strconv.FormatBool(spec.LocalCache),
	)
	if spec.MaxMemoryFrac != nil {
		env = append(env, "HUB_MAX_CACHE_MEMORY_FRAC="+strconv.FormatFloat(*spec.MaxMemoryFrac, 'f', -1, 64))
	}
	if trackUseCase != "" {
		env = append(env, "HUB_TRACK_USE_CASE="+trackUseCase)
	}
	return env
}

func pickFreePort(host string) (int, error) {
	l, err := net.Listen("tcp", host+":0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	addr := l.Addr().String()
	lastColon := strings.LastIndex(addr, ":")
	if lastColon < 0 {
		return 0, fmt.Errorf("unexpected addr: %s", addr)
	}
	return strconv.Atoi(addr[lastColon+1:])
}

func pickPortInRange(host string, start, end int) (int, error) {
	for p := start; p <= end; p++ {
		l, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, p))
		if err != nil {
			continue
		}
		_ = l.Close()
		return p, nil
	}
	return 0, fmt.Errorf("no free port in range %d-%d", start, end)
}

// readTail returns up to the last n bytes of the file at path, trimmed.
// A missing or unreadable file reads as empty.
func readTail(path string, n int64) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return ""
	}
	off := st.Size() - n
	if off < 0 {
		off = 0
	}
	b := make([]byte, st.Size()-off)
	if _, err := f.ReadAt(b, off); err != nil && err != io.EOF {
		return ""
	}
	return strings.TrimSpace(string(b))
}
