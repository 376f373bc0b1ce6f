package repository

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk16/puzzler/internal/epd"
	"github.com/lk16/puzzler/internal/models"
	"github.com/lk16/puzzler/internal/puzzle"
	"github.com/lk16/puzzler/internal/services"
	"github.com/lk16/puzzler/internal/uci"
)

func TestBuildListQuery(t *testing.T) {
	low, high := 0.5, 3.0

	tests := []struct {
		name      string
		filter    models.PuzzleFilter
		wantWhere string
		wantArgs  []interface{}
	}{
		{
			name:     "NoConditions",
			filter:   models.PuzzleFilter{Limit: 10},
			wantArgs: []interface{}{10},
		},
		{
			name:      "Type",
			filter:    models.PuzzleFilter{Type: "mate", Limit: 5},
			wantWhere: " WHERE type = $1 ORDER BY",
			wantArgs:  []interface{}{"mate", 5},
		},
		{
			name: "All",
			filter: models.PuzzleFilter{
				Type: "winning", Variant: "crazyhouse", MinDifficulty: &low, MaxDifficulty: &high, Limit: 50,
			},
			wantWhere: " WHERE type = $1 AND variant = $2 AND difficulty >= $3 AND difficulty <= $4 ORDER BY",
			wantArgs:  []interface{}{"winning", "crazyhouse", 0.5, 3.0, 50},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := buildListQuery(tt.filter)

			assert.Equal(t, tt.wantArgs, args)
			if tt.wantWhere == "" {
				assert.NotContains(t, query, "WHERE")
			} else {
				assert.Contains(t, query, tt.wantWhere)
			}
			assert.Contains(t, query, "LIMIT $")
		})
	}
}

// newTestRepository connects to the database in PUZZLER_TEST_POSTGRES_URL.
func newTestRepository(t *testing.T) *PuzzleRepository {
	t.Helper()

	url := os.Getenv("PUZZLER_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("PUZZLER_TEST_POSTGRES_URL is not set")
	}

	db, err := services.InitPostgres(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := NewPuzzleRepository(db, uuid.New())
	require.NoError(t, repo.EnsureSchema(context.Background()))
	return repo
}

func TestPuzzleRepository(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	fen := "7k/8/6K1/8/8/8/8/R7 w - - 0 1 " + uuid.NewString()[:8]

	p := &puzzle.Puzzle{
		Source:   epd.Record{FEN: fen},
		Variant:  "chess",
		BestMove: "a1a8",
		Eval:     uci.Score{Kind: uci.Mate, Value: 1},
		Type:     puzzle.ThemeMate,
		PV:       []string{"a1a8"},
		Quality:  0.4,
	}
	require.NoError(t, repo.Save(ctx, p))

	// A worse puzzle for the same position does not replace the stored one.
	worse := *p
	worse.Quality = 0.1
	worse.BestMove = "a1a7"
	require.NoError(t, repo.Save(ctx, &worse))

	puzzles, err := repo.ListPuzzles(ctx, models.PuzzleFilter{Type: "mate", Limit: models.MaxPuzzleLimit})
	require.NoError(t, err)

	var found *models.Puzzle
	for i := range puzzles {
		if puzzles[i].FEN == fen {
			found = &puzzles[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, "a1a8", found.BestMove)
	assert.Equal(t, models.MoveList{"a1a8"}, found.PV)

	got, err := repo.GetPuzzle(ctx, found.ID)
	require.NoError(t, err)
	assert.Equal(t, fen, got.FEN)

	_, err = repo.GetPuzzle(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrPuzzleNotFound)
}
