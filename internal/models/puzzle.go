package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lk16/puzzler/internal/puzzle"
)

const (
	DefaultPuzzleLimit  = 50
	MaxPuzzleLimit      = 500
	DefaultFailureLimit = 100
	MaxFailureLimit     = 1000
)

// Puzzle is a stored puzzle.
type Puzzle struct {
	ID          uuid.UUID `json:"id"          db:"id"`
	RunID       uuid.UUID `json:"run_id"      db:"run_id"`
	FEN         string    `json:"fen"         db:"fen"`
	Variant     string    `json:"variant"     db:"variant"`
	SetupMove   string    `json:"setup_move"  db:"setup_move"`
	BestMove    string    `json:"best_move"   db:"best_move"`
	Eval        string    `json:"eval"        db:"eval"`
	Type        string    `json:"type"        db:"type"`
	Difficulty  float64   `json:"difficulty"  db:"difficulty"`
	Content     float64   `json:"content"     db:"content"`
	Quality     float64   `json:"quality"     db:"quality"`
	Volatility  float64   `json:"volatility"  db:"volatility"`
	Volatility2 float64   `json:"volatility2" db:"volatility2"`
	Accuracy    float64   `json:"accuracy"    db:"accuracy"`
	Accuracy2   float64   `json:"accuracy2"   db:"accuracy2"`
	Std         float64   `json:"std"         db:"std"`
	PV          MoveList  `json:"pv"          db:"pv"`
	EPD         string    `json:"epd"         db:"epd"`
	CreatedAt   time.Time `json:"created_at"  db:"created_at"`
}

// NewPuzzle converts an extracted puzzle. The ID is generated here.
func NewPuzzle(p *puzzle.Puzzle, runID uuid.UUID) Puzzle {
	return Puzzle{
		ID:          uuid.New(),
		RunID:       runID,
		FEN:         p.Source.FEN,
		Variant:     p.Variant,
		SetupMove:   p.SetupMove,
		BestMove:    p.BestMove,
		Eval:        p.Eval.String(),
		Type:        string(p.Type),
		Difficulty:  p.Difficulty,
		Content:     p.Content,
		Quality:     p.Quality,
		Volatility:  p.Volatility,
		Volatility2: p.Volatility2,
		Accuracy:    p.Accuracy,
		Accuracy2:   p.Accuracy2,
		Std:         p.Std,
		PV:          MoveList(p.PV),
		EPD:         p.EPD().String(),
	}
}

// MoveList is a slice of moves that is stored as a Postgres text array.
type MoveList []string

// Scan implements the sql.Scanner interface for MoveList.
func (m *MoveList) Scan(value interface{}) error {
	var s string

	switch v := value.(type) {
	case []byte:
		if v == nil {
			return errors.New("cannot scan nil into MoveList")
		}
		s = string(v)
	case string:
		s = v
	default:
		return fmt.Errorf("cannot scan %T into MoveList", value)
	}

	// We should have a string that looks like "{e2e4,e7e5}"
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return fmt.Errorf("cannot parse %q as MoveList", s)
	}

	s = strings.Trim(s, "{}")
	if s == "" {
		*m = MoveList{}
		return nil
	}

	*m = strings.Split(s, ",")
	return nil
}

// Value implements the driver.Valuer interface for MoveList.
func (m MoveList) Value() (driver.Value, error) {
	return "{" + strings.Join(m, ",") + "}", nil
}

// PuzzleFilter selects puzzles for listing.
type PuzzleFilter struct {
	Type          string   `query:"type"`
	Variant       string   `query:"variant"`
	MinDifficulty *float64 `query:"min_difficulty"`
	MaxDifficulty *float64 `query:"max_difficulty"`
	Limit         int      `query:"limit"`
}

// Validate validates the filter and fills in the default limit.
func (f *PuzzleFilter) Validate() error {
	if f.Limit == 0 {
		f.Limit = DefaultPuzzleLimit
	}

	if f.Limit < 0 || f.Limit > MaxPuzzleLimit {
		return fmt.Errorf("limit must be between 1 and %d", MaxPuzzleLimit)
	}

	if f.MinDifficulty != nil && f.MaxDifficulty != nil && *f.MinDifficulty > *f.MaxDifficulty {
		return errors.New("min_difficulty is above max_difficulty")
	}

	if f.Type != "" && !isTheme(f.Type) {
		return fmt.Errorf("unknown puzzle type %q", f.Type)
	}

	return nil
}

func isTheme(s string) bool {
	switch puzzle.Theme(s) {
	case puzzle.ThemeMate, puzzle.ThemePartialMate, puzzle.ThemeWinning, puzzle.ThemeTurnaround,
		puzzle.ThemeDefensive:
		return true
	}
	return false
}

// PuzzleListResponse is the response for puzzle listing.
type PuzzleListResponse struct {
	Count   int      `json:"count"`
	Puzzles []Puzzle `json:"puzzles"`
}

// FailuresResponse lists input lines that timed out.
type FailuresResponse struct {
	Count int64    `json:"count"`
	Lines []string `json:"lines"`
}

type VersionResponse struct {
	Commit string `json:"commit"`
}
