// Package puzzle finds tactical puzzles by repeatedly analyzing a position and following the best line while it
// stays clearly better than the alternative.
package puzzle

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/lk16/puzzler/internal/epd"
	"github.com/lk16/puzzler/internal/rules"
	"github.com/lk16/puzzler/internal/uci"
)

const (
	DefaultDepth             = 8
	DefaultMultiPV           = 2
	DefaultWinThreshold      = 400
	DefaultUnclearThreshold  = 100
	DefaultMateDistanceRatio = 2.0

	// trivialMoveCount is the largest number of legal moves for which a position is not worth analyzing.
	trivialMoveCount = 2

	// contentVolatilityPenalty weighs the second line volatility against the puzzle length.
	contentVolatilityPenalty = 40
)

// Analyzer runs searches. uci.Session implements it.
type Analyzer interface {
	SetOption(name, value string) error
	NewGame(ctx context.Context) error
	SetPosition(fen string, moves []string) error
	Analyze(ctx context.Context, limits uci.Limits) (*uci.AnalysisResult, error)
}

// Watchdog is armed around every search. Disarm returns false if the search was stopped. uci.Monitor implements it.
type Watchdog interface {
	Arm()
	Disarm() bool
}

// Settings control the search and the classification thresholds.
type Settings struct {
	Depth             int
	MultiPV           int
	WinThreshold      int
	UnclearThreshold  int
	MateDistanceRatio float64

	// DefaultVariant is used for records without a variant annotation.
	DefaultVariant string
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Depth:             DefaultDepth,
		MultiPV:           DefaultMultiPV,
		WinThreshold:      DefaultWinThreshold,
		UnclearThreshold:  DefaultUnclearThreshold,
		MateDistanceRatio: DefaultMateDistanceRatio,
	}
}

// Validate fails for settings the extractor cannot work with.
func (s Settings) Validate() error {
	switch {
	case s.Depth <= 0:
		return fmt.Errorf("depth must be positive, got %d", s.Depth)
	case s.MultiPV < 2: //nolint:mnd
		return fmt.Errorf("multipv must be at least 2, got %d", s.MultiPV)
	case s.WinThreshold <= 0:
		return fmt.Errorf("win threshold must be positive, got %d", s.WinThreshold)
	case s.UnclearThreshold >= s.WinThreshold:
		return fmt.Errorf("unclear threshold %d must be below win threshold %d", s.UnclearThreshold, s.WinThreshold)
	case s.MateDistanceRatio <= 0:
		return fmt.Errorf("mate distance ratio must be positive, got %f", s.MateDistanceRatio)
	}
	return nil
}

// Puzzle is an accepted candidate.
type Puzzle struct {
	// Source is the input record.
	Source epd.Record

	Variant   string
	SetupMove string
	BestMove  string
	Eval      uci.Score
	Type      Theme
	PV        []string

	Difficulty  float64
	Content     float64
	Quality     float64
	Volatility  float64
	Volatility2 float64
	Accuracy    float64
	Accuracy2   float64
	Std         float64
}

// EPD returns the output record: the input annotations followed by the puzzle annotations.
func (p *Puzzle) EPD() epd.Record {
	record := epd.Record{
		FEN:         p.Source.FEN,
		Annotations: slices.Clone(p.Source.Annotations),
	}

	record.Set("variant", p.Variant)
	if p.SetupMove != "" {
		record.Set("sm", p.SetupMove)
	}
	record.Set("bm", p.BestMove)
	record.Set("eval", p.Eval.String())
	record.Set("difficulty", formatFloat(p.Difficulty))
	record.Set("content", formatFloat(p.Content))
	record.Set("quality", formatFloat(p.Quality))
	record.Set("volatility", formatFloat(p.Volatility))
	record.Set("volatility2", formatFloat(p.Volatility2))
	record.Set("accuracy", formatFloat(p.Accuracy))
	record.Set("accuracy2", formatFloat(p.Accuracy2))
	record.Set("std", formatFloat(p.Std))
	record.Set("type", string(p.Type))
	record.Set("pv", strings.Join(p.PV, ","))

	return record
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 3, 64) //nolint:mnd
}

// step is one iteration of the extraction loop that found a theme.
type step struct {
	theme   Theme
	best    uci.Info
	depths  []uci.DepthSnapshot
	metrics Metrics
}

// Extractor turns positions into puzzles. It owns its Analyzer, so it must not be used concurrently.
type Extractor struct {
	analyzer Analyzer
	watchdog Watchdog
	oracle   rules.Oracle
	cache    *uci.Cache
	settings Settings

	// variant is the last UCI_Variant sent to the engine.
	variant string

	multiPVSent bool
}

// NewExtractor creates a new Extractor. The cache is optional and may be shared between extractors.
func NewExtractor(
	analyzer Analyzer, watchdog Watchdog, oracle rules.Oracle, cache *uci.Cache, settings Settings,
) (*Extractor, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	return &Extractor{
		analyzer: analyzer,
		watchdog: watchdog,
		oracle:   oracle,
		cache:    cache,
		settings: settings,
	}, nil
}

// Extract runs the extraction loop for one record. It returns a nil Puzzle without error if the position does not
// contain a puzzle. Errors other than ErrMalformedInput and ErrAnalysisTimeout come from the engine and are fatal.
func (e *Extractor) Extract(ctx context.Context, record epd.Record) (*Puzzle, error) {
	variant, _ := record.Get("variant")
	if variant == "" {
		variant = e.settings.DefaultVariant
	}

	if variant == "" {
		return nil, fmt.Errorf("%w: no variant annotation and no default variant", ErrMalformedInput)
	}

	var pv []string

	if setupMove, ok := record.Get("sm"); ok && setupMove != "" {
		legalMoves, err := e.oracle.LegalMoves(variant, record.FEN, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedInput, err)
		}

		if !slices.Contains(legalMoves, setupMove) {
			return nil, fmt.Errorf("%w: setup move %s is illegal", ErrMalformedInput, setupMove)
		}

		pv = append(pv, setupMove)
	}

	seedLength := len(pv)
	var steps []step

	for {
		legalMoves, err := e.oracle.LegalMoves(variant, record.FEN, pv)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedInput, err)
		}

		// A forced reply ends the puzzle but stays part of it.
		if len(legalMoves) <= trivialMoveCount {
			break
		}

		result, err := e.analyze(ctx, variant, record.FEN, pv)
		if err != nil {
			return nil, err
		}

		final, _ := result.Final()

		theme, ok := classify(final, e.settings)
		if !ok {
			// The position before the last opponent move is where the puzzle starts.
			if len(pv) > 0 {
				pv = pv[:len(pv)-1]
			}

			if len(steps) > 0 && steps[0].theme == ThemeMate {
				steps[0].theme = ThemePartialMate
			}
			break
		}

		best := final.Lines[0]

		steps = append(steps, step{
			theme:   theme,
			best:    best,
			depths:  result.Depths,
			metrics: rate(result.Depths, float64(e.settings.WinThreshold)),
		})

		pv = append(pv, best.PV[:min(len(best.PV), 2)]...) //nolint:mnd

		if len(best.PV) < 2 { //nolint:mnd
			break
		}
	}

	if len(pv) <= seedLength || len(steps) == 0 {
		slog.Debug("No puzzle found", "fen", record.FEN, "variant", variant)
		return nil, nil //nolint:nilnil
	}

	return e.finalize(record, variant, pv, seedLength, steps), nil
}

func (e *Extractor) finalize(record epd.Record, variant string, pv []string, seedLength int, steps []step) *Puzzle {
	scale := float64(e.settings.WinThreshold)

	values := make([]float64, len(steps))
	qualities := make([]float64, len(steps))
	for i, step := range steps {
		values[i] = value(step.best.Score, scale)
		qualities[i] = step.metrics.Quality
	}

	first := steps[0]
	deviation := std(values)

	puzzle := &Puzzle{
		Source:      record,
		Variant:     variant,
		Eval:        first.best.Score,
		Type:        first.theme,
		Difficulty:  4*first.metrics.Volatility + 2*deviation + first.metrics.Accuracy, //nolint:mnd
		Content:     float64(len(pv)-seedLength) - contentVolatilityPenalty*first.metrics.Volatility2,
		Quality:     mean(qualities),
		Volatility:  first.metrics.Volatility,
		Volatility2: first.metrics.Volatility2,
		Accuracy:    first.metrics.Accuracy,
		Accuracy2:   first.metrics.Accuracy2,
		Std:         deviation,
	}

	if first.theme == ThemeMate {
		pv = extendMate(pv, seedLength, steps)
	}

	puzzle.PV = pv
	puzzle.BestMove = pv[seedLength]
	if seedLength == 1 {
		puzzle.SetupMove = pv[0]
	}

	return puzzle
}

// extendMate lengthens pv to the full mate of the first step. It uses the first winning mate line, searched from
// the deepest snapshot of each step, that agrees with pv and is long enough.
func extendMate(pv []string, seedLength int, steps []step) []string {
	target := seedLength + 2*steps[0].best.Score.Value - 1 //nolint:mnd
	if len(pv) >= target {
		return pv
	}

	for i, step := range steps {
		prefix := pv[:seedLength+2*i]

		for j := len(step.depths) - 1; j >= 0; j-- {
			lines := step.depths[j].Lines
			if len(lines) == 0 || !lines[0].Score.IsWinningMate() {
				continue
			}

			candidate := append(slices.Clone(prefix), lines[0].PV...)
			if len(candidate) < target || !slices.Equal(candidate[:len(pv)], pv) {
				continue
			}

			return candidate[:target]
		}
	}

	return pv
}

// analyze searches one position, either in the cache or on the engine.
func (e *Extractor) analyze(ctx context.Context, variant, fen string, moves []string) (*uci.AnalysisResult, error) {
	key := uci.NewCacheKey(variant, fen, moves, e.settings.MultiPV)

	if e.cache != nil {
		if result, ok := e.cache.Lookup(key, e.settings.Depth); ok {
			slog.Debug("Analysis cache hit", "fen", fen, "moves", key.Moves)
			return result, nil
		}
	}

	if err := e.configure(variant); err != nil {
		return nil, err
	}

	if err := e.analyzer.NewGame(ctx); err != nil {
		return nil, err
	}

	if err := e.analyzer.SetPosition(fen, moves); err != nil {
		return nil, err
	}

	e.watchdog.Arm()
	result, err := e.analyzer.Analyze(ctx, uci.Limits{Depth: e.settings.Depth})
	completed := e.watchdog.Disarm()

	if err != nil {
		return nil, err
	}

	if !completed {
		return nil, fmt.Errorf("%w: fen %s moves %s", ErrAnalysisTimeout, fen, key.Moves)
	}

	if e.cache != nil {
		e.cache.Upsert(key, result)
	}

	return result, nil
}

func (e *Extractor) configure(variant string) error {
	if !e.multiPVSent {
		if err := e.analyzer.SetOption("MultiPV", strconv.Itoa(e.settings.MultiPV)); err != nil {
			return err
		}
		e.multiPVSent = true
	}

	if variant != e.variant {
		if err := e.analyzer.SetOption("UCI_Variant", variant); err != nil {
			return err
		}
		e.variant = variant
	}

	return nil
}
