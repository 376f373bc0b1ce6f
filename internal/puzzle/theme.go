package puzzle

import (
	"math"

	"github.com/lk16/puzzler/internal/uci"
)

// Theme is the tactical classification of one puzzle step.
type Theme string

const (
	ThemeMate        Theme = "mate"
	ThemePartialMate Theme = "partial-mate"
	ThemeWinning     Theme = "winning"
	ThemeTurnaround  Theme = "turnaround"
	ThemeDefensive   Theme = "defensive"
)

// themeScaleFactor relates the logistic scale used for theme detection to the winning threshold.
const themeScaleFactor = 0.8

// sigmoid is the logistic function, written so exp never overflows.
func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}

	z := math.Exp(x)
	return z / (1 + z)
}

// value maps a score to [0,1] from the perspective of the side to move.
func value(score uci.Score, scale float64) float64 {
	if score.IsMate() {
		if score.Value > 0 {
			return 1
		}
		return 0
	}

	return sigmoid(float64(score.Value) / scale)
}

// minGap returns the value difference between best and second best line that makes a position a puzzle.
func minGap(winThreshold, unclearThreshold int) float64 {
	scale := themeScaleFactor * float64(winThreshold)
	return sigmoid(float64(winThreshold)/scale) - sigmoid(float64(unclearThreshold)/scale)
}

// isShortestWin returns true if best is a forced mate that the second line cannot match. A second line mating at
// least ratio times slower does not count as a match.
func isShortestWin(best, second uci.Score, ratio float64) bool {
	if !best.IsWinningMate() {
		return false
	}

	if !second.IsWinningMate() {
		return true
	}

	return float64(second.Value) >= ratio*float64(best.Value)
}

// classify determines the theme of the deepest snapshot. The second return value is false if the position has no
// single clearly best move.
func classify(snapshot uci.DepthSnapshot, settings Settings) (Theme, bool) {
	if len(snapshot.Lines) < 2 { //nolint:mnd
		return "", false
	}

	best := snapshot.Lines[0].Score
	second := snapshot.Lines[1].Score

	scale := themeScaleFactor * float64(settings.WinThreshold)
	gap := value(best, scale) - value(second, scale)

	if gap < minGap(settings.WinThreshold, settings.UnclearThreshold) &&
		!isShortestWin(best, second, settings.MateDistanceRatio) {
		return "", false
	}

	switch {
	case best.IsWinningMate():
		return ThemeMate, true
	case best.Kind == uci.Centipawns && best.Value > settings.WinThreshold:
		return ThemeWinning, true
	case best.Kind == uci.Centipawns && best.Value > settings.UnclearThreshold:
		return ThemeTurnaround, true
	default:
		return ThemeDefensive, true
	}
}
