package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// stderrTailSize bounds how much ffmpeg output is kept for error reports
const stderrTailSize = 4096

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, dir, name string, args []string, stdout, stderr io.Writer) error
}

// execRunner executes commands via os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, dir, name string, args []string, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

// ExecError is returned when an ffmpeg invocation fails
type ExecError struct {
	Command  string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s error (exit %d): %v\nOutput: %s", e.Command, e.ExitCode, e.Err, e.Stderr)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Engine is a handle on the ffmpeg transcoding capability. It is loaded
// lazily on first use and hands out isolated Sessions, one per conversion.
// An Engine is safe for concurrent use; a Session is not.
type Engine struct {
	ffmpegPath string
	workDir    string
	runner     commandRunner
	debug      bool
	logOut     io.Writer

	loadOnce sync.Once
	loadErr  error
	version  string
}

// EngineOption configures the Engine
type EngineOption func(*Engine)

// WithFFmpegPath sets the ffmpeg binary (default "ffmpeg" from PATH)
func WithFFmpegPath(path string) EngineOption {
	return func(e *Engine) {
		if path != "" {
			e.ffmpegPath = path
		}
	}
}

// WithWorkDir sets the parent directory for session workspaces (default os.TempDir)
func WithWorkDir(dir string) EngineOption {
	return func(e *Engine) {
		e.workDir = dir
	}
}

// WithDebug enables debug logging
func WithDebug(debug bool) EngineOption {
	return func(e *Engine) {
		e.debug = debug
	}
}

// WithLogWriter sets where debug lines are written (default os.Stderr)
func WithLogWriter(w io.Writer) EngineOption {
	return func(e *Engine) {
		if w != nil {
			e.logOut = w
		}
	}
}

// NewEngine creates an engine. Nothing is executed until Load or NewSession.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		ffmpegPath: "ffmpeg",
		runner:     execRunner{},
		logOut:     os.Stderr,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load verifies that ffmpeg can be executed. Only the first call does work;
// later calls return the first result.
func (e *Engine) Load(ctx context.Context) error {
	e.loadOnce.Do(func() {
		var stdout, stderr bytes.Buffer
		if err := e.runner.Run(ctx, "", e.ffmpegPath, []string{"-version"}, &stdout, &stderr); err != nil {
			e.loadErr = fmt.Errorf("ffmpeg not found: %w\n\n%s", err, GetFFmpegInstallHelp())
			return
		}
		e.version = strings.TrimSpace(strings.SplitN(stdout.String(), "\n", 2)[0])
		e.debugf("engine loaded: %s", e.version)
	})
	return e.loadErr
}

// Version returns the first line of `ffmpeg -version` once loaded
func (e *Engine) Version() string {
	return e.version
}

// NewSession loads the engine if needed and opens a fresh workspace
func (e *Engine) NewSession(ctx context.Context) (*Session, error) {
	if err := e.Load(ctx); err != nil {
		return nil, err
	}

	base := e.workDir
	if base == "" {
		base = os.TempDir()
	}

	id := uuid.NewString()
	dir := filepath.Join(base, "clipscribe-"+id)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	e.debugf("session %s opened in %s", id, dir)

	return &Session{ID: id, dir: dir, engine: e}, nil
}

func (e *Engine) debugf(format string, args ...any) {
	if e.debug {
		fmt.Fprintf(e.logOut, "[DEBUG] "+format+"\n", args...)
	}
}

// Session is one isolated engine workspace: a flat file namespace plus
// ffmpeg execution inside it with a progress event stream.
type Session struct {
	ID string

	dir    string
	engine *Engine

	mu        sync.Mutex
	nextSub   int
	listeners map[int]func(float64)
}

// Dir returns the workspace directory
func (s *Session) Dir() string {
	return s.dir
}

// path resolves a workspace file name; names may not contain directories
func (s *Session) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid workspace file name %q", name)
	}
	return filepath.Join(s.dir, name), nil
}

// WriteFile stores r under name in the workspace
func (s *Session) WriteFile(name string, r io.Reader) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}

	f, err := os.Create(p)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return f.Close()
}

// ReadFile returns the content of a workspace file
func (s *Session) ReadFile(name string) ([]byte, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

// OnProgress subscribes fn to fractional progress of Exec calls. The
// fraction is not clamped; ffmpeg may report values above 1.0.
// The returned func removes the subscription.
func (s *Session) OnProgress(fn func(fraction float64)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listeners == nil {
		s.listeners = make(map[int]func(float64))
	}
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Session) emit(fraction float64) {
	s.mu.Lock()
	fns := make([]func(float64), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(fraction)
	}
}

// Exec runs ffmpeg with args inside the workspace
func (s *Session) Exec(ctx context.Context, args ...string) error {
	full := append([]string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-progress", "pipe:1",
		"-nostats",
	}, args...)

	tracker := &progressTracker{emit: s.emit}
	stdout := &lineWriter{fn: tracker.handleProgressLine}
	stderrLines := &lineWriter{fn: tracker.handleLogLine}
	tail := &tailBuffer{max: stderrTailSize}

	s.engine.debugf("session %s: %s %s", s.ID, s.engine.ffmpegPath, strings.Join(full, " "))
	start := time.Now()

	err := s.engine.runner.Run(ctx, s.dir, s.engine.ffmpegPath, full, stdout, io.MultiWriter(tail, stderrLines))
	stdout.Flush()
	stderrLines.Flush()

	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return &ExecError{
			Command:  s.engine.ffmpegPath,
			Args:     full,
			ExitCode: exitCode,
			Stderr:   tail.String(),
			Err:      err,
		}
	}

	s.engine.debugf("session %s: ffmpeg finished in %s", s.ID, time.Since(start).Round(time.Millisecond))
	return nil
}

// Close removes the workspace and everything in it
func (s *Session) Close() error {
	s.engine.debugf("session %s closed", s.ID)
	return os.RemoveAll(s.dir)
}

var durationPattern = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)

// progressTracker turns ffmpeg output into fractional progress. The total
// comes from the first "Duration:" log line, the position from the
// -progress key=value stream.
type progressTracker struct {
	mu    sync.Mutex
	total time.Duration
	emit  func(float64)
}

func (p *progressTracker) handleLogLine(line string) {
	m := durationPattern.FindStringSubmatch(line)
	if m == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.total > 0 {
		return
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	sec, _ := strconv.ParseFloat(m[3], 64)
	p.total = time.Duration(h)*time.Hour + time.Duration(mins)*time.Minute + time.Duration(sec*float64(time.Second))
}

func (p *progressTracker) handleProgressLine(line string) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return
	}

	switch key {
	case "out_time_us":
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || us < 0 {
			return
		}
		p.mu.Lock()
		total := p.total
		p.mu.Unlock()
		if total <= 0 {
			return
		}
		p.emit(float64(time.Duration(us)*time.Microsecond) / float64(total))
	case "progress":
		if value == "end" {
			p.emit(1.0)
		}
	}
}

// lineWriter calls fn for every complete line written to it
type lineWriter struct {
	buf []byte
	fn  func(string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		idx := bytes.IndexAny(w.buf, "\r\n")
		if idx < 0 {
			break
		}
		line := string(w.buf[:idx])
		w.buf = w.buf[idx+1:]
		if line != "" {
			w.fn(line)
		}
	}
	return len(p), nil
}

// Flush emits any trailing partial line
func (w *lineWriter) Flush() {
	if len(w.buf) > 0 {
		w.fn(string(w.buf))
		w.buf = nil
	}
}

// tailBuffer keeps only the last max bytes written
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = append([]byte(nil), t.buf[len(t.buf)-t.max:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return strings.TrimSpace(string(t.buf))
}
