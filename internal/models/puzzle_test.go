package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk16/puzzler/internal/epd"
	"github.com/lk16/puzzler/internal/puzzle"
	"github.com/lk16/puzzler/internal/uci"
)

func TestMoveListScan(t *testing.T) {
	tests := []struct {
		name       string
		input      interface{}
		wantErr    bool
		wantErrMsg string
		wantMoves  MoveList
	}{
		{
			name:      "OK",
			input:     []byte("{e2e4,e7e5,g1f3}"),
			wantMoves: MoveList{"e2e4", "e7e5", "g1f3"},
		},
		{
			name:      "String",
			input:     "{P@e4}",
			wantMoves: MoveList{"P@e4"},
		},
		{
			name:      "Empty",
			input:     []byte("{}"),
			wantMoves: MoveList{},
		},
		{
			name:       "InvalidType",
			input:      123,
			wantErr:    true,
			wantErrMsg: "cannot scan int into MoveList",
		},
		{
			name:       "NilBytes",
			input:      []byte(nil),
			wantErr:    true,
			wantErrMsg: "cannot scan nil into MoveList",
		},
		{
			name:       "NoBraces",
			input:      []byte("e2e4,e7e5"),
			wantErr:    true,
			wantErrMsg: `cannot parse "e2e4,e7e5" as MoveList`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var moves MoveList
			err := moves.Scan(tt.input)
			if tt.wantErr {
				assert.EqualError(t, err, tt.wantErrMsg)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.wantMoves, moves)
			}
		})
	}
}

func TestMoveListValue(t *testing.T) {
	value, err := MoveList{"e2e4", "e7e5"}.Value()
	require.NoError(t, err)
	assert.Equal(t, "{e2e4,e7e5}", value)

	value, err = MoveList{}.Value()
	require.NoError(t, err)
	assert.Equal(t, "{}", value)
}

func TestNewPuzzle(t *testing.T) {
	runID := uuid.New()

	p := &puzzle.Puzzle{
		Source:     epd.Record{FEN: "7k/8/6K1/8/8/8/8/R7 w - - 0 1"},
		Variant:    "chess",
		BestMove:   "a1a8",
		Eval:       uci.Score{Kind: uci.Mate, Value: 1},
		Type:       puzzle.ThemeMate,
		PV:         []string{"a1a8"},
		Difficulty: 0.25,
	}

	model := NewPuzzle(p, runID)

	assert.NotEqual(t, uuid.Nil, model.ID)
	assert.Equal(t, runID, model.RunID)
	assert.Equal(t, "#1", model.Eval)
	assert.Equal(t, "mate", model.Type)
	assert.Equal(t, MoveList{"a1a8"}, model.PV)
	assert.Contains(t, model.EPD, ";bm a1a8;eval #1;difficulty 0.250;")
}

func TestPuzzleFilterValidate(t *testing.T) {
	low, high := 0.5, 2.0

	filter := PuzzleFilter{}
	require.NoError(t, filter.Validate())
	assert.Equal(t, DefaultPuzzleLimit, filter.Limit)

	valid := PuzzleFilter{Type: "partial-mate", MinDifficulty: &low, MaxDifficulty: &high, Limit: 10}
	assert.NoError(t, valid.Validate())

	invalid := []PuzzleFilter{
		{Limit: -1},
		{Limit: MaxPuzzleLimit + 1},
		{MinDifficulty: &high, MaxDifficulty: &low},
		{Type: "brilliant"},
	}
	for _, filter := range invalid {
		assert.Error(t, filter.Validate())
	}
}
