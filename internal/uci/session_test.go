package uci

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// fakeEngine answers commands over in-process pipes.
type fakeEngine struct {
	in  *io.PipeReader
	out *io.PipeWriter

	// onGo writes the output of a search. Returning false closes the output, like a crashing engine would.
	onGo func(command string, out io.Writer) bool

	mutex     sync.Mutex
	commands  []string
	searching bool
	closed    bool
}

func newFakeSession(t *testing.T, onGo func(string, io.Writer) bool) (*Session, *fakeEngine) {
	t.Helper()

	engineIn, sessionStdin := io.Pipe()
	sessionStdout, engineOut := io.Pipe()

	engine := &fakeEngine{
		in:   engineIn,
		out:  engineOut,
		onGo: onGo,
	}
	go engine.serve()

	session := newSession(sessionStdin, sessionStdout, Config{StartTimeout: time.Second})
	require.NoError(t, session.init(context.Background()))

	return session, engine
}

func (e *fakeEngine) serve() {
	scanner := bufio.NewScanner(e.in)

	for scanner.Scan() {
		command := scanner.Text()

		e.mutex.Lock()
		e.commands = append(e.commands, command)
		closed := e.closed
		e.mutex.Unlock()

		if closed {
			continue
		}

		if !e.respond(command) {
			e.closeOutput()
		}
	}

	e.closeOutput()
}

func (e *fakeEngine) respond(command string) bool {
	switch {
	case command == "uci":
		fmt.Fprintln(e.out, "id name FakeFish")
		fmt.Fprintln(e.out, "option name MultiPV type spin default 1 min 1 max 500")
		fmt.Fprintln(e.out, "uciok")
	case command == "isready":
		fmt.Fprintln(e.out, "readyok")
	case command == "go infinite":
		e.searching = true
		fmt.Fprintln(e.out, "info depth 1 multipv 1 score cp 15 pv e2e4")
	case command == "stop":
		if e.searching {
			e.searching = false
			fmt.Fprintln(e.out, "info depth 2 multipv 1 score cp 17 pv e2e4 e7e5")
			fmt.Fprintln(e.out, "bestmove e2e4")
		}
	case strings.HasPrefix(command, "go"):
		return e.onGo(command, e.out)
	case command == "quit":
		return false
	}

	return true
}

func (e *fakeEngine) closeOutput() {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if !e.closed {
		e.closed = true
		_ = e.out.Close()
	}
}

func (e *fakeEngine) received() []string {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return append([]string(nil), e.commands...)
}

// multiPVSearch prints two lines per depth, deliberately out of order.
func multiPVSearch(_ string, out io.Writer) bool {
	fmt.Fprintln(out, "info string using 1 thread")
	fmt.Fprintln(out, "info depth 1 seldepth 1 multipv 2 score cp -20 nodes 40 pv d2d4")
	fmt.Fprintln(out, "info depth 1 seldepth 1 multipv 1 score cp 30 nodes 40 pv e2e4")
	fmt.Fprintln(out, "info depth 2 currmove e2e4 currmovenumber 1")
	fmt.Fprintln(out, "info depth 2 seldepth 2 multipv 1 score cp 25 nodes 90 pv e2e4 e7e5")
	fmt.Fprintln(out, "info depth 2 seldepth 2 multipv 2 score cp 5 nodes 90 pv d2d4 d7d5")
	fmt.Fprintln(out, "info depth 2 seldepth 3 multipv 1 score cp 28 nodes 120 pv e2e4 c7c5")
	fmt.Fprintln(out, "bestmove e2e4 ponder c7c5")
	return true
}

func TestSessionHandshakeAndOptions(t *testing.T) {
	defer goleak.VerifyNone(t)

	session, engine := newFakeSession(t, multiPVSearch)
	defer session.Close()

	require.NoError(t, session.SetOption("MultiPV", "2"))
	require.NoError(t, session.NewGame(context.Background()))
	require.NoError(t, session.SetPosition("", []string{"e2e4"}))
	require.NoError(t, session.IsReady(context.Background()))

	value, ok := session.Option("MultiPV")
	assert.True(t, ok)
	assert.Equal(t, "2", value)

	require.NoError(t, session.Close())

	assert.Eventually(t, func() bool {
		return len(engine.received()) == 7
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{
		"uci",
		"setoption name MultiPV value 2",
		"ucinewgame",
		"isready",
		"position startpos moves e2e4",
		"isready",
		"quit",
	}, engine.received())
}

func TestSessionAnalyze(t *testing.T) {
	defer goleak.VerifyNone(t)

	session, _ := newFakeSession(t, multiPVSearch)
	defer session.Close()

	result, err := session.Analyze(context.Background(), Limits{Depth: 2})
	require.NoError(t, err)

	assert.Equal(t, "e2e4", result.BestMove)
	assert.Equal(t, "c7c5", result.Ponder)
	require.Len(t, result.Depths, 2)

	for depthIndex, snapshot := range result.Depths {
		assert.Equal(t, depthIndex+1, snapshot.Depth)
		require.Len(t, snapshot.Lines, 2)

		for rankIndex, line := range snapshot.Lines {
			assert.Equal(t, rankIndex+1, line.MultiPV)
			assert.Equal(t, snapshot.Depth, line.Depth)
		}
	}

	// The later line for depth 2 rank 1 replaces the earlier one.
	final, ok := result.Final()
	require.True(t, ok)
	assert.Equal(t, []string{"e2e4", "c7c5"}, final.Lines[0].PV)
	assert.Equal(t, 28, final.Lines[0].Score.Value)
	assert.Equal(t, int64(120), final.Lines[0].Nodes)
}

func TestSessionAnalyzeEngineCrash(t *testing.T) {
	defer goleak.VerifyNone(t)

	crashingSearch := func(_ string, out io.Writer) bool {
		fmt.Fprintln(out, "info depth 1 multipv 1 score cp 30 pv e2e4")
		fmt.Fprintln(out, "info depth 2 multipv 1 score cp 31 pv e2e4 e7e5")
		return false
	}

	session, _ := newFakeSession(t, crashingSearch)
	defer session.Close()

	result, err := session.Analyze(context.Background(), Limits{Depth: 8})
	assert.ErrorIs(t, err, ErrEngineCrashed)
	assert.Nil(t, result)

	// The next request must fail as well instead of blocking.
	assert.ErrorIs(t, session.NewGame(context.Background()), ErrEngineCrashed)
}

func TestSessionAnalyzeContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	session, engine := newFakeSession(t, multiPVSearch)
	defer session.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result, err := session.Analyze(ctx, Limits{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, result)
	assert.Contains(t, engine.received(), "stop")

	// The stream is still in sync.
	result, err = session.Analyze(context.Background(), Limits{Depth: 2})
	require.NoError(t, err)
	assert.Equal(t, "e2e4", result.BestMove)
}

func TestSessionMonitorStopsSearch(t *testing.T) {
	defer goleak.VerifyNone(t)

	session, engine := newFakeSession(t, multiPVSearch)
	defer session.Close()
	monitor := NewMonitor(session, 30*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- monitor.Run(ctx)
	}()

	monitor.Arm()
	result, err := session.Analyze(context.Background(), Limits{})
	require.NoError(t, err)
	assert.False(t, monitor.Disarm())
	assert.Equal(t, "e2e4", result.BestMove)
	assert.Equal(t, 1, monitor.Fired())

	stops := 0
	for _, command := range engine.received() {
		if command == "stop" {
			stops++
		}
	}
	assert.Equal(t, 1, stops)

	// A quick search afterwards completes normally.
	monitor.Arm()
	_, err = session.Analyze(context.Background(), Limits{Depth: 2})
	require.NoError(t, err)
	assert.True(t, monitor.Disarm())
	assert.Equal(t, 1, monitor.Fired())

	cancel()
	require.NoError(t, <-done)
}

func TestSessionCloseWithUnreadOutput(t *testing.T) {
	defer goleak.VerifyNone(t)

	// The engine keeps talking after bestmove, more than the line buffer holds.
	chattySearch := func(command string, out io.Writer) bool {
		multiPVSearch(command, out)
		for i := range 200 {
			fmt.Fprintf(out, "info string late output %d\n", i)
		}
		return true
	}

	session, engine := newFakeSession(t, chattySearch)

	result, err := session.Analyze(context.Background(), Limits{Depth: 2})
	require.NoError(t, err)
	assert.Equal(t, "e2e4", result.BestMove)

	require.NoError(t, session.Close())
	assert.Eventually(t, func() bool {
		return slices.Contains(engine.received(), "quit")
	}, time.Second, 10*time.Millisecond)
}

func writeScript(t *testing.T, body string) string {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}

	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh is not available")
	}

	path := filepath.Join(t.TempDir(), "engine.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755)) //nolint:gosec
	return path
}

const scriptEngine = `
while read -r line; do
	case "$line" in
		uci) echo "id name ScriptFish"; echo "uciok" ;;
		isready) echo "readyok" ;;
		"go "*)
			echo "info depth 1 multipv 1 score cp 20 pv e2e4"
			echo "info depth 1 multipv 2 score cp 10 pv d2d4"
			echo "bestmove e2e4"
			;;
		quit) exit 0 ;;
	esac
done
`

func TestStart(t *testing.T) {
	path := writeScript(t, scriptEngine)

	session, err := Start(context.Background(), Config{
		Path:    path,
		Options: []Option{{Name: "MultiPV", Value: "2"}},
	})
	require.NoError(t, err)

	require.NoError(t, session.NewGame(context.Background()))
	require.NoError(t, session.SetPosition("", nil))

	result, err := session.Analyze(context.Background(), Limits{Depth: 1})
	require.NoError(t, err)
	assert.Equal(t, "e2e4", result.BestMove)
	require.Len(t, result.Depths, 1)
	assert.Len(t, result.Depths[0].Lines, 2)

	require.NoError(t, session.Close())
}

func TestStartFailures(t *testing.T) {
	t.Run("MissingExecutable", func(t *testing.T) {
		_, err := Start(context.Background(), Config{Path: filepath.Join(t.TempDir(), "missing")})
		assert.ErrorIs(t, err, ErrEngineStartup)
	})

	t.Run("ExitsImmediately", func(t *testing.T) {
		path := writeScript(t, "exit 1\n")

		_, err := Start(context.Background(), Config{Path: path})
		assert.ErrorIs(t, err, ErrEngineStartup)
		assert.ErrorIs(t, err, ErrEngineCrashed)
	})

	t.Run("NeverAcknowledges", func(t *testing.T) {
		path := writeScript(t, "while read -r line; do :; done\n")

		start := time.Now()
		_, err := Start(context.Background(), Config{Path: path, StartTimeout: 100 * time.Millisecond})
		assert.ErrorIs(t, err, ErrEngineStartup)
		assert.ErrorIs(t, err, errReadTimeout)
		assert.Less(t, time.Since(start), 5*time.Second)
	})
}

func TestSessionCloseKillsStubbornEngine(t *testing.T) {
	path := writeScript(t, `
trap '' TERM
while true; do
	read -r line || sleep 1
	case "$line" in
		uci) echo "uciok" ;;
	esac
done
`)

	session, err := Start(context.Background(), Config{Path: path, QuitTimeout: 100 * time.Millisecond})
	require.NoError(t, err)
	assert.NoError(t, session.Close())
}
