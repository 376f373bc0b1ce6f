package epd

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"
)

// Filter selects records by their annotations. Missing numeric annotations count as 0.
type Filter struct {
	Min    map[string]float64
	Max    map[string]float64
	Values map[string][]string
}

// NewFilter builds a filter from "key=value" pairs. Values of allowed sets are comma separated.
func NewFilter(minimums, maximums, values []string) (*Filter, error) {
	filter := &Filter{
		Min:    make(map[string]float64),
		Max:    make(map[string]float64),
		Values: make(map[string][]string),
	}

	if err := parseBounds(minimums, filter.Min); err != nil {
		return nil, fmt.Errorf("failed to parse minimum: %w", err)
	}

	if err := parseBounds(maximums, filter.Max); err != nil {
		return nil, fmt.Errorf("failed to parse maximum: %w", err)
	}

	for _, pair := range values {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("expected key=value1,value2 but got %q", pair)
		}
		filter.Values[key] = strings.Split(value, ",")
	}

	return filter, nil
}

func parseBounds(pairs []string, bounds map[string]float64) error {
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("expected key=value but got %q", pair)
		}

		bound, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid bound for %s: %w", key, err)
		}

		bounds[key] = bound
	}

	return nil
}

// Matches returns true if the record passes every condition of the filter.
func (f *Filter) Matches(record Record) bool {
	for key, minimum := range f.Min {
		if numericAnnotation(record, key) < minimum {
			return false
		}
	}

	for key, maximum := range f.Max {
		if numericAnnotation(record, key) > maximum {
			return false
		}
	}

	for key, allowed := range f.Values {
		value, ok := record.Get(key)
		if !ok {
			value = "0"
		}

		if !slices.Contains(allowed, value) {
			return false
		}
	}

	return true
}

// FilterStats counts the lines seen by Filter.Copy.
type FilterStats struct {
	Kept      int
	Dropped   int
	Malformed int
}

// Copy writes the matching lines of r to w unchanged. Empty and malformed lines are skipped.
func (f *Filter) Copy(r io.Reader, w io.Writer) (FilterStats, error) {
	var stats FilterStats

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if IsEmpty(line) {
			continue
		}

		record, err := Parse(line)
		if err != nil {
			slog.Warn("Skipping malformed line", "line", line, "error", err)
			stats.Malformed++
			continue
		}

		if !f.Matches(record) {
			stats.Dropped++
			continue
		}

		if _, err := fmt.Fprintln(w, line); err != nil {
			return stats, err
		}
		stats.Kept++
	}

	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("failed to read input: %w", err)
	}

	return stats, nil
}

// numericAnnotation returns the annotation as float. Missing or non numeric values count as 0.
func numericAnnotation(record Record, key string) float64 {
	value, ok := record.Get(key)
	if !ok {
		return 0
	}

	number, err := strconv.ParseFloat(strings.TrimPrefix(value, "#"), 64)
	if err != nil {
		return 0
	}

	return number
}
