// Package generator creates candidate positions by letting an engine play against itself.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"

	"github.com/lk16/puzzler/internal/epd"
	"github.com/lk16/puzzler/internal/rules"
	"github.com/lk16/puzzler/internal/uci"
)

const (
	DefaultCount    = 500
	DefaultMinDepth = 1
	DefaultMaxDepth = 6

	// maxStaleGames is the number of games in a row without a new position after which we give up.
	maxStaleGames = 100
)

// ErrExhausted means the engine keeps playing games that were seen before.
var ErrExhausted = errors.New("no new positions found")

var errEnoughRecords = errors.New("enough records")

// Engine plays the moves. uci.Session implements it.
type Engine interface {
	SetOption(name, value string) error
	NewGame(ctx context.Context) error
	SetPosition(fen string, moves []string) error
	Analyze(ctx context.Context, limits uci.Limits) (*uci.AnalysisResult, error)
}

// Settings control the self-play games.
type Settings struct {
	Variant  string
	Count    int
	MinDepth int
	MaxDepth int

	// AddMove emits the position before each engine move and the move itself as "sm" annotation.
	AddMove bool
}

// Validate fails for settings that cannot generate anything.
func (s Settings) Validate() error {
	switch {
	case s.Variant == "":
		return errors.New("variant is required")
	case s.Count <= 0:
		return fmt.Errorf("count must be positive, got %d", s.Count)
	case s.MinDepth <= 0 || s.MaxDepth < s.MinDepth:
		return fmt.Errorf("invalid depth range %d-%d", s.MinDepth, s.MaxDepth)
	}
	return nil
}

type seenKey struct {
	fen  string
	move string
}

// Generator plays games and emits every position it has not emitted before.
type Generator struct {
	engine   Engine
	oracle   rules.Oracle
	settings Settings
	random   *rand.Rand
}

// New creates a new Generator. The source makes the search depths reproducible.
func New(engine Engine, oracle rules.Oracle, settings Settings, source rand.Source) (*Generator, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	return &Generator{
		engine:   engine,
		oracle:   oracle,
		settings: settings,
		random:   rand.New(source), //nolint:gosec
	}, nil
}

// Generate plays games until Count records were passed to emit.
func (g *Generator) Generate(ctx context.Context, emit func(epd.Record) error) error {
	variant := g.settings.Variant

	startFEN, err := g.oracle.StartFEN(variant)
	if err != nil {
		return err
	}

	if err := g.engine.SetOption("UCI_Variant", variant); err != nil {
		return err
	}

	seen := make(map[seenKey]struct{})
	emitted := 0
	staleGames := 0

	for emitted < g.settings.Count {
		before := emitted

		err := g.playGame(ctx, startFEN, func(fen, move string) error {
			key := seenKey{fen: fen, move: move}
			if _, ok := seen[key]; ok {
				return nil
			}
			seen[key] = struct{}{}
			emitted++

			record := epd.Record{FEN: fen}
			record.Set("variant", variant)
			if move != "" {
				record.Set("sm", move)
			}

			if err := emit(record); err != nil {
				return err
			}

			if emitted >= g.settings.Count {
				return errEnoughRecords
			}
			return nil
		})
		if errors.Is(err, errEnoughRecords) {
			return nil
		}
		if err != nil {
			return err
		}

		if emitted == before {
			staleGames++
			if staleGames >= maxStaleGames {
				return fmt.Errorf("%w after %d records", ErrExhausted, emitted)
			}
		} else {
			staleGames = 0
		}

		slog.Debug("Finished self-play game", "records", emitted)
	}

	return nil
}

// playGame plays one game and calls visit for every position. An error from visit ends the game.
func (g *Generator) playGame(ctx context.Context, startFEN string, visit func(fen, move string) error) error {
	variant := g.settings.Variant

	if err := g.engine.NewGame(ctx); err != nil {
		return err
	}

	var moves []string

	for {
		legalMoves, err := g.oracle.LegalMoves(variant, startFEN, moves)
		if err != nil {
			return err
		}

		gameOver, err := g.oracle.IsGameOver(variant, startFEN, moves)
		if err != nil {
			return err
		}

		if len(legalMoves) == 0 || gameOver {
			return nil
		}

		if err := g.engine.SetPosition(startFEN, moves); err != nil {
			return err
		}

		depth := g.settings.MinDepth + g.random.IntN(g.settings.MaxDepth-g.settings.MinDepth+1)

		result, err := g.engine.Analyze(ctx, uci.Limits{Depth: depth})
		if err != nil {
			return err
		}

		if !slices.Contains(legalMoves, result.BestMove) {
			return fmt.Errorf("engine played illegal move %q", result.BestMove)
		}

		var fen, move string
		if g.settings.AddMove {
			fen, err = g.oracle.FEN(variant, startFEN, moves)
			move = result.BestMove
		} else {
			fen, err = g.oracle.FEN(variant, startFEN, append(moves, result.BestMove))
		}
		if err != nil {
			return err
		}

		moves = append(moves, result.BestMove)

		if err := visit(fen, move); err != nil {
			return err
		}
	}
}
