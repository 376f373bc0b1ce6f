package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	DefaultStartTimeout = 10 * time.Second
	DefaultQuitTimeout  = 2 * time.Second

	maxLineLength = 1024 * 1024
)

var (
	// ErrEngineStartup means the engine could not be launched or never acknowledged the handshake.
	ErrEngineStartup = errors.New("engine failed to start")

	// ErrEngineCrashed means the engine closed its output while a response was still expected.
	ErrEngineCrashed = errors.New("engine crashed")

	errReadTimeout = errors.New("timed out waiting for engine")
)

// Session owns one engine process. Requests are served one at a time.
type Session struct {
	cmd   *exec.Cmd
	cfg   Config
	stdin io.WriteCloser

	// lines receives stdout lines. It is closed when stdout reaches EOF.
	lines chan string

	// readErr is set before lines is closed.
	readErr error

	// requestMutex makes sure only one request is in flight.
	requestMutex sync.Mutex

	// writeMutex makes sure command lines are never interleaved.
	writeMutex sync.Mutex

	// options contains the most recent value of every option that was set.
	options map[string]string
}

// Start launches the engine process and performs the handshake.
func Start(ctx context.Context, cfg Config) (*Session, error) {
	slog.Debug("Starting engine", "path", cfg.Path, "args", cfg.Args, "dir", cfg.Dir)

	cmd := exec.Command(cfg.Path, cfg.Args...) //nolint:gosec
	cmd.Dir = cfg.Dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get stdin pipe: %w", ErrEngineStartup, err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get stdout pipe: %w", ErrEngineStartup, err)
	}

	if err = cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: failed to start engine process: %w", ErrEngineStartup, err)
	}

	session := newSession(stdin, stdout, cfg)
	session.cmd = cmd

	if err = session.init(ctx); err != nil {
		_ = session.kill()
		_ = cmd.Wait()
		return nil, err
	}

	slog.Debug("Engine started successfully", "path", cfg.Path, "pid", cmd.Process.Pid)
	return session, nil
}

// newSession wraps already connected pipes. The caller is responsible for calling init.
func newSession(stdin io.WriteCloser, stdout io.Reader, cfg Config) *Session {
	if cfg.StartTimeout == 0 {
		cfg.StartTimeout = DefaultStartTimeout
	}

	if cfg.QuitTimeout == 0 {
		cfg.QuitTimeout = DefaultQuitTimeout
	}

	session := &Session{
		cfg:     cfg,
		stdin:   stdin,
		lines:   make(chan string, 64), //nolint:mnd
		options: make(map[string]string),
	}

	go session.readLoop(stdout)

	return session
}

func (s *Session) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)

	for scanner.Scan() {
		line := scanner.Text()
		slog.Debug("Engine stdout", "line", line)
		s.lines <- line
	}

	s.readErr = scanner.Err()
	close(s.lines)
}

// init does the "uci" handshake and sends the configured options.
func (s *Session) init(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StartTimeout)
	defer cancel()

	s.requestMutex.Lock()
	err := s.write("uci")
	if err == nil {
		err = s.readUntil(ctx, "uciok")
	}
	s.requestMutex.Unlock()

	if err != nil {
		return fmt.Errorf("%w: %w", ErrEngineStartup, err)
	}

	for _, option := range s.cfg.Options {
		if err = s.SetOption(option.Name, option.Value); err != nil {
			return fmt.Errorf("%w: %w", ErrEngineStartup, err)
		}
	}

	return nil
}

// SetOption sends a "setoption" command. Engines do not respond to it.
func (s *Session) SetOption(name, value string) error {
	s.requestMutex.Lock()
	defer s.requestMutex.Unlock()

	if err := s.write(EncodeOption(name, value)); err != nil {
		return err
	}

	s.options[name] = value
	return nil
}

// Option returns the last value that was set for an option.
func (s *Session) Option(name string) (string, bool) {
	s.requestMutex.Lock()
	defer s.requestMutex.Unlock()

	value, ok := s.options[name]
	return value, ok
}

// NewGame resets the engine and waits until it is ready for the next position.
func (s *Session) NewGame(ctx context.Context) error {
	s.requestMutex.Lock()
	defer s.requestMutex.Unlock()

	if err := s.write("ucinewgame"); err != nil {
		return err
	}

	return s.isReady(ctx)
}

// IsReady blocks until the engine answers "readyok".
func (s *Session) IsReady(ctx context.Context) error {
	s.requestMutex.Lock()
	defer s.requestMutex.Unlock()

	return s.isReady(ctx)
}

func (s *Session) isReady(ctx context.Context) error {
	if err := s.write("isready"); err != nil {
		return err
	}

	return s.readUntil(ctx, "readyok")
}

// SetPosition sends a "position" command. An empty fen means the start position.
func (s *Session) SetPosition(fen string, moves []string) error {
	s.requestMutex.Lock()
	defer s.requestMutex.Unlock()

	return s.write(EncodePosition(fen, moves))
}

// Analyze starts a search and blocks until the engine reports its best move.
// If ctx is cancelled the search is stopped and ctx.Err() is returned once the engine finished.
func (s *Session) Analyze(ctx context.Context, limits Limits) (*AnalysisResult, error) {
	s.requestMutex.Lock()
	defer s.requestMutex.Unlock()

	if err := s.write(EncodeGo(limits)); err != nil {
		return nil, err
	}

	accumulator := newInfoAccumulator()
	var bestMove BestMove

	handle := func(message Message) bool {
		switch message := message.(type) {
		case *Info:
			accumulator.add(message)
		case BestMove:
			bestMove = message
			return true
		}
		return false
	}

	err := s.readMessages(ctx, handle)
	if err != nil && ctx.Err() != nil && !errors.Is(err, ErrEngineCrashed) {
		// Stop the search, but keep the stream in sync by consuming the rest of it.
		if stopErr := s.Stop(); stopErr != nil {
			return nil, stopErr
		}

		if drainErr := s.readMessages(context.Background(), handle); drainErr != nil {
			return nil, drainErr
		}

		return nil, ctx.Err()
	}

	if err != nil {
		return nil, err
	}

	return accumulator.result(bestMove), nil
}

// Stop asks the engine to end the current search. It does not wait and may be called from any goroutine.
func (s *Session) Stop() error {
	return s.write("stop")
}

// Close asks the engine to quit and kills it if it does not exit in time.
func (s *Session) Close() error {
	// Nothing reads the output anymore, so keep the read loop moving until the engine closes it.
	go s.drain()

	_ = s.write("quit")
	_ = s.stdin.Close()

	if s.cmd == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- s.cmd.Wait()
	}()

	select {
	case err := <-done:
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			return fmt.Errorf("failed to wait for engine process: %w", err)
		}
		return nil
	case <-time.After(s.cfg.QuitTimeout):
		slog.Warn("Engine did not quit in time, killing it", "path", s.cfg.Path)
		return s.kill()
	}
}

func (s *Session) drain() {
	for range s.lines {
	}
}

func (s *Session) kill() error {
	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}

	if err := s.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("failed to kill engine process: %w", err)
	}

	return nil
}

func (s *Session) write(command string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	slog.Debug("Engine stdin", "command", command)

	if _, err := io.WriteString(s.stdin, command+"\n"); err != nil {
		return fmt.Errorf("%w: failed to write %q: %w", ErrEngineCrashed, command, err)
	}

	return nil
}

// readUntil reads and discards lines until one starts with token.
func (s *Session) readUntil(ctx context.Context, token string) error {
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return fmt.Errorf("while waiting for %q: %w", token, err)
		}

		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] == token {
			return nil
		}
	}
}

// readMessages decodes lines and passes them to handle until it returns true.
func (s *Session) readMessages(ctx context.Context, handle func(Message) bool) error {
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return fmt.Errorf("while waiting for %q: %w", "bestmove", err)
		}

		message, err := DecodeLine(line)
		if err != nil {
			if !isIgnorable(err) {
				slog.Warn("Skipping malformed engine output", "line", line, "error", err)
			}
			continue
		}

		if handle(message) {
			return nil
		}
	}
}

func (s *Session) readLine(ctx context.Context) (string, error) {
	select {
	case line, ok := <-s.lines:
		if !ok {
			if s.readErr != nil {
				return "", fmt.Errorf("%w: %w", ErrEngineCrashed, s.readErr)
			}
			return "", fmt.Errorf("%w: output closed", ErrEngineCrashed)
		}
		return line, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %w", errReadTimeout, ctx.Err())
		}
		return "", ctx.Err()
	}
}

type lineKey struct {
	depth int
	rank  int
}

// infoAccumulator collects info lines by depth and MultiPV rank.
type infoAccumulator struct {
	infos map[lineKey]Info
}

func newInfoAccumulator() *infoAccumulator {
	return &infoAccumulator{infos: make(map[lineKey]Info)}
}

func (a *infoAccumulator) add(info *Info) {
	a.infos[lineKey{depth: info.Depth, rank: info.MultiPV}] = *info
}

func (a *infoAccumulator) result(bestMove BestMove) *AnalysisResult {
	keys := make([]lineKey, 0, len(a.infos))
	for key := range a.infos {
		keys = append(keys, key)
	}

	slices.SortFunc(keys, func(x, y lineKey) int {
		if x.depth != y.depth {
			return x.depth - y.depth
		}
		return x.rank - y.rank
	})

	result := &AnalysisResult{
		BestMove: bestMove.Move,
		Ponder:   bestMove.Ponder,
		Depths:   []DepthSnapshot{},
	}

	for _, key := range keys {
		last := len(result.Depths) - 1
		if last < 0 || result.Depths[last].Depth != key.depth {
			result.Depths = append(result.Depths, DepthSnapshot{Depth: key.depth})
			last++
		}
		result.Depths[last].Lines = append(result.Depths[last].Lines, a.infos[key])
	}

	return result
}
