package puzzle

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lk16/puzzler/internal/epd"
)

// Sink receives accepted puzzles.
type Sink interface {
	Save(ctx context.Context, puzzle *Puzzle) error
}

// FailureSink receives input lines that could not be resolved in time.
type FailureSink interface {
	Record(ctx context.Context, line string) error
}

// Stats counts what happened to the input lines of a run.
type Stats struct {
	Lines     int
	Puzzles   int
	Malformed int
	TimedOut  int
}

func (s *Stats) add(other Stats) {
	s.Lines += other.Lines
	s.Puzzles += other.Puzzles
	s.Malformed += other.Malformed
	s.TimedOut += other.TimedOut
}

// Run extracts puzzles from every record in r. Malformed lines and timed out positions are skipped. Any other error
// stops the run. The failures sink is optional.
func (e *Extractor) Run(ctx context.Context, r io.Reader, sink Sink, failures FailureSink) (Stats, error) {
	var stats Stats

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		lineStats, err := e.handleLine(ctx, scanner.Text(), sink, failures)
		stats.add(lineStats)
		if err != nil {
			return stats, err
		}
	}

	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("failed to read input: %w", err)
	}

	return stats, nil
}

// handleLine runs one input line. Only errors that should end the run are returned.
func (e *Extractor) handleLine(ctx context.Context, line string, sink Sink, failures FailureSink) (Stats, error) {
	if epd.IsEmpty(line) {
		return Stats{}, nil
	}

	stats := Stats{Lines: 1}

	record, err := epd.Parse(line)
	if err != nil {
		slog.Warn("Skipping malformed line", "line", line, "err", err)
		stats.Malformed++
		return stats, nil
	}

	puzzle, err := e.Extract(ctx, record)

	switch {
	case errors.Is(err, ErrMalformedInput):
		slog.Warn("Skipping malformed line", "line", line, "err", err)
		stats.Malformed++
		return stats, nil
	case errors.Is(err, ErrAnalysisTimeout):
		slog.Info("Skipping position after timeout", "line", line)
		stats.TimedOut++

		if failures != nil {
			if err := failures.Record(ctx, line); err != nil {
				return stats, fmt.Errorf("failed to record failure: %w", err)
			}
		}
		return stats, nil
	case err != nil:
		return stats, err
	}

	if puzzle == nil {
		return stats, nil
	}

	slog.Debug("Found puzzle", "fen", record.FEN, "type", puzzle.Type, "pv", puzzle.PV)

	if err := sink.Save(ctx, puzzle); err != nil {
		return stats, fmt.Errorf("failed to save puzzle: %w", err)
	}

	stats.Puzzles++
	return stats, nil
}

// RunParallel distributes the lines of r over several extractors, each of which drives its own engine. Sinks are
// called from multiple goroutines but never concurrently. Output order is not preserved.
func RunParallel(
	ctx context.Context, extractors []*Extractor, r io.Reader, sink Sink, failures FailureSink,
) (Stats, error) {
	if len(extractors) == 1 {
		return extractors[0].Run(ctx, r, sink, failures)
	}

	group, ctx := errgroup.WithContext(ctx)
	lines := make(chan string)

	group.Go(func() error {
		defer close(lines)

		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := scanner.Err(); err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		return nil
	})

	lockedSink := &lockedSink{sink: sink}

	var lockedFailures FailureSink
	if failures != nil {
		lockedFailures = &lockedFailureSink{failures: failures, mutex: &lockedSink.mutex}
	}

	var stats Stats
	var statsMutex sync.Mutex

	for _, extractor := range extractors {
		group.Go(func() error {
			for line := range lines {
				lineStats, err := extractor.handleLine(ctx, line, lockedSink, lockedFailures)

				statsMutex.Lock()
				stats.add(lineStats)
				statsMutex.Unlock()

				if err != nil {
					return err
				}
			}
			return nil
		})
	}

	err := group.Wait()
	return stats, err
}

type lockedSink struct {
	sink  Sink
	mutex sync.Mutex
}

func (s *lockedSink) Save(ctx context.Context, puzzle *Puzzle) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.sink.Save(ctx, puzzle)
}

type lockedFailureSink struct {
	failures FailureSink
	mutex    *sync.Mutex
}

func (s *lockedFailureSink) Record(ctx context.Context, line string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.failures.Record(ctx, line)
}

// WriterSink writes puzzles as EPD lines.
type WriterSink struct {
	w io.Writer
}

// NewWriterSink creates a new WriterSink.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Save(_ context.Context, puzzle *Puzzle) error {
	_, err := fmt.Fprintln(s.w, puzzle.EPD().String())
	return err
}

// WriterFailureSink writes failed input lines unchanged.
type WriterFailureSink struct {
	w io.Writer
}

// NewWriterFailureSink creates a new WriterFailureSink.
func NewWriterFailureSink(w io.Writer) *WriterFailureSink {
	return &WriterFailureSink{w: w}
}

func (s *WriterFailureSink) Record(_ context.Context, line string) error {
	_, err := fmt.Fprintln(s.w, line)
	return err
}

// MultiSink saves every puzzle to all of its sinks in order.
type MultiSink []Sink

func (m MultiSink) Save(ctx context.Context, puzzle *Puzzle) error {
	for _, sink := range m {
		if err := sink.Save(ctx, puzzle); err != nil {
			return err
		}
	}
	return nil
}

// MultiFailureSink records every failed line to all of its sinks in order.
type MultiFailureSink []FailureSink

func (m MultiFailureSink) Record(ctx context.Context, line string) error {
	for _, failures := range m {
		if err := failures.Record(ctx, line); err != nil {
			return err
		}
	}
	return nil
}
