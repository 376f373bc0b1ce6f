// Package rules answers questions about move legality. Only standard chess is supported; other variants need an
// Oracle backed by a variant aware library.
package rules

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/notnil/chess"
)

var (
	ErrUnsupportedVariant = errors.New("unsupported variant")
	ErrInvalidFEN         = errors.New("invalid fen")
	ErrIllegalMove        = errors.New("illegal move")
)

// Oracle knows the rules of one or more variants. Moves use UCI notation.
type Oracle interface {
	LegalMoves(variant, fen string, moves []string) ([]string, error)
	FEN(variant, fen string, moves []string) (string, error)
	StartFEN(variant string) (string, error)
	IsGameOver(variant, fen string, moves []string) (bool, error)
}

// Chess implements Oracle for standard chess.
type Chess struct{}

var _ Oracle = Chess{}

var chessVariants = []string{"chess", "standard"}

// LegalMoves returns all legal moves after playing moves from fen. An empty fen means the start position.
func (c Chess) LegalMoves(variant, fen string, moves []string) ([]string, error) {
	game, err := c.play(variant, fen, moves)
	if err != nil {
		return nil, err
	}

	validMoves := game.ValidMoves()
	legalMoves := make([]string, len(validMoves))
	for i, move := range validMoves {
		legalMoves[i] = move.String()
	}

	return legalMoves, nil
}

// FEN returns the position after playing moves from fen.
func (c Chess) FEN(variant, fen string, moves []string) (string, error) {
	game, err := c.play(variant, fen, moves)
	if err != nil {
		return "", err
	}

	return game.FEN(), nil
}

// StartFEN returns the initial position of a variant.
func (Chess) StartFEN(variant string) (string, error) {
	if !slices.Contains(chessVariants, variant) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedVariant, variant)
	}

	return chess.StartingPosition().String(), nil
}

// IsGameOver returns true if the game ended or a draw can be claimed.
func (c Chess) IsGameOver(variant, fen string, moves []string) (bool, error) {
	game, err := c.play(variant, fen, moves)
	if err != nil {
		return false, err
	}

	if game.Outcome() != chess.NoOutcome {
		return true, nil
	}

	draws := game.EligibleDraws()
	return slices.Contains(draws, chess.ThreefoldRepetition) || slices.Contains(draws, chess.FiftyMoveRule), nil
}

func (Chess) play(variant, fen string, moves []string) (*chess.Game, error) {
	if !slices.Contains(chessVariants, variant) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVariant, variant)
	}

	options := []func(*chess.Game){chess.UseNotation(chess.UCINotation{})}

	if fen != "" {
		fenOption, err := chess.FEN(completeFEN(fen))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFEN, err)
		}
		options = append(options, fenOption)
	}

	game := chess.NewGame(options...)

	for _, move := range moves {
		if err := game.MoveStr(move); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrIllegalMove, move, err)
		}
	}

	return game, nil
}

// completeFEN adds the move counters that EPD positions leave out.
func completeFEN(fen string) string {
	switch len(strings.Fields(fen)) {
	case 4: //nolint:mnd
		return fen + " 0 1"
	case 5: //nolint:mnd
		return fen + " 1"
	}
	return fen
}
