package puzzle

import (
	"math"

	"github.com/lk16/puzzler/internal/uci"
)

// Metrics measure how stable the search of one step was across depths.
type Metrics struct {
	// Volatility is the mean change of the best line value from depth to depth.
	Volatility float64

	// Volatility2 is the same for the second best line.
	Volatility2 float64

	// Accuracy is the mean deviation of the best line value from its final value.
	Accuracy float64

	// Accuracy2 is the same for the second best line.
	Accuracy2 float64

	// Quality is the mean gap between best and second line over the depths that agree with the final best move.
	Quality float64
}

// rate computes Metrics over all snapshots that have at least two lines. Averages are taken over the number of
// such snapshots.
func rate(depths []uci.DepthSnapshot, scale float64) Metrics {
	var usable []uci.DepthSnapshot
	for _, snapshot := range depths {
		if len(snapshot.Lines) >= 2 { //nolint:mnd
			usable = append(usable, snapshot)
		}
	}

	if len(usable) == 0 {
		return Metrics{}
	}

	final := usable[len(usable)-1]
	bestMove := final.Lines[0].Move()
	bestValue := value(final.Lines[0].Score, scale)
	secondValue := value(final.Lines[1].Score, scale)

	var metrics Metrics
	var lastBest, lastSecond float64

	for i, snapshot := range usable {
		v0 := value(snapshot.Lines[0].Score, scale)
		v1 := value(snapshot.Lines[1].Score, scale)

		if snapshot.Lines[0].Move() == bestMove {
			metrics.Quality += math.Abs(v0 - v1)
		}

		metrics.Accuracy += math.Abs(v0 - bestValue)
		metrics.Accuracy2 += math.Abs(v1 - secondValue)

		if i > 0 {
			metrics.Volatility += math.Abs(v0 - lastBest)
			metrics.Volatility2 += math.Abs(v1 - lastSecond)
		}

		lastBest = v0
		lastSecond = v1
	}

	count := float64(len(usable))
	metrics.Volatility /= count
	metrics.Volatility2 /= count
	metrics.Accuracy /= count
	metrics.Accuracy2 /= count
	metrics.Quality /= count

	return metrics
}

// std returns the population standard deviation.
func std(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var squares float64
	for _, v := range values {
		squares += (v - mean) * (v - mean)
	}

	return math.Sqrt(squares / float64(len(values)))
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
