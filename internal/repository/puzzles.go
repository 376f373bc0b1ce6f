package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lk16/puzzler/internal/models"
	"github.com/lk16/puzzler/internal/puzzle"
)

//go:embed schema.sql
var schema string

var ErrPuzzleNotFound = errors.New("puzzle not found")

const puzzleColumns = `id, run_id, fen, variant, setup_move, best_move, eval, type, difficulty, content, quality,
	volatility, volatility2, accuracy, accuracy2, std, pv, epd, created_at`

// A puzzle for a position that is already stored only replaces it if its quality is higher.
const insertPuzzleQuery = `
	INSERT INTO puzzles (id, run_id, fen, variant, setup_move, best_move, eval, type, difficulty, content, quality,
		volatility, volatility2, accuracy, accuracy2, std, pv, epd)
	VALUES (:id, :run_id, :fen, :variant, :setup_move, :best_move, :eval, :type, :difficulty, :content, :quality,
		:volatility, :volatility2, :accuracy, :accuracy2, :std, :pv, :epd)
	ON CONFLICT (fen, variant) DO UPDATE SET
		run_id = EXCLUDED.run_id,
		setup_move = EXCLUDED.setup_move,
		best_move = EXCLUDED.best_move,
		eval = EXCLUDED.eval,
		type = EXCLUDED.type,
		difficulty = EXCLUDED.difficulty,
		content = EXCLUDED.content,
		quality = EXCLUDED.quality,
		volatility = EXCLUDED.volatility,
		volatility2 = EXCLUDED.volatility2,
		accuracy = EXCLUDED.accuracy,
		accuracy2 = EXCLUDED.accuracy2,
		std = EXCLUDED.std,
		pv = EXCLUDED.pv,
		epd = EXCLUDED.epd
	WHERE puzzles.quality < EXCLUDED.quality`

// PuzzleRepository handles database operations for puzzles.
type PuzzleRepository struct {
	db    *sqlx.DB
	runID uuid.UUID
}

// NewPuzzleRepository creates a new PuzzleRepository. Saved puzzles are tagged with runID.
func NewPuzzleRepository(db *sqlx.DB, runID uuid.UUID) *PuzzleRepository {
	return &PuzzleRepository{
		db:    db,
		runID: runID,
	}
}

// EnsureSchema creates the puzzles table if it does not exist.
func (repo *PuzzleRepository) EnsureSchema(ctx context.Context) error {
	if _, err := repo.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("error creating schema: %w", err)
	}
	return nil
}

// Save implements puzzle.Sink.
func (repo *PuzzleRepository) Save(ctx context.Context, p *puzzle.Puzzle) error {
	return repo.InsertPuzzle(ctx, models.NewPuzzle(p, repo.runID))
}

// InsertPuzzle stores a puzzle.
func (repo *PuzzleRepository) InsertPuzzle(ctx context.Context, p models.Puzzle) error {
	if _, err := repo.db.NamedExecContext(ctx, insertPuzzleQuery, p); err != nil {
		return fmt.Errorf("error inserting puzzle: %w", err)
	}
	return nil
}

// GetPuzzle returns one puzzle.
func (repo *PuzzleRepository) GetPuzzle(ctx context.Context, id uuid.UUID) (models.Puzzle, error) {
	var p models.Puzzle

	query := `SELECT ` + puzzleColumns + ` FROM puzzles WHERE id = $1`
	err := repo.db.GetContext(ctx, &p, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Puzzle{}, ErrPuzzleNotFound
	}
	if err != nil {
		return models.Puzzle{}, fmt.Errorf("error getting puzzle: %w", err)
	}

	return p, nil
}

// ListPuzzles returns the best puzzles that match the filter.
func (repo *PuzzleRepository) ListPuzzles(ctx context.Context, filter models.PuzzleFilter) ([]models.Puzzle, error) {
	query, args := buildListQuery(filter)

	puzzles := []models.Puzzle{}
	if err := repo.db.SelectContext(ctx, &puzzles, query, args...); err != nil {
		return nil, fmt.Errorf("error listing puzzles: %w", err)
	}

	return puzzles, nil
}

func buildListQuery(filter models.PuzzleFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	addCondition := func(condition string, arg interface{}) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}

	if filter.Type != "" {
		addCondition("type = $%d", filter.Type)
	}

	if filter.Variant != "" {
		addCondition("variant = $%d", filter.Variant)
	}

	if filter.MinDifficulty != nil {
		addCondition("difficulty >= $%d", *filter.MinDifficulty)
	}

	if filter.MaxDifficulty != nil {
		addCondition("difficulty <= $%d", *filter.MaxDifficulty)
	}

	query := `SELECT ` + puzzleColumns + ` FROM puzzles`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}

	args = append(args, filter.Limit)
	query += fmt.Sprintf(` ORDER BY quality DESC, id LIMIT $%d`, len(args))

	return query, args
}
