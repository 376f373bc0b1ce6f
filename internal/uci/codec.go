package uci

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	errEmptyLine      = errors.New("line is empty")
	errInfoString     = errors.New("line is an info string")
	errNoScore        = errors.New("info line has no score")
	errUnknownCommand = errors.New("line is not a known engine message")
	errBrokenScore    = errors.New("line has broken score")
)

// Message is a decoded engine output line: BestMove, *Info, UCIOK or ReadyOK.
type Message interface {
	isMessage()
}

// BestMove is the final line of a search.
type BestMove struct {
	Move   string
	Ponder string
}

// UCIOK acknowledges the "uci" command.
type UCIOK struct{}

// ReadyOK acknowledges the "isready" command.
type ReadyOK struct{}

func (BestMove) isMessage() {}
func (*Info) isMessage()    {}
func (UCIOK) isMessage()    {}
func (ReadyOK) isMessage()  {}

type valueKind int

const (
	numericValue valueKind = iota
	stringValue
	sequenceValue
)

// infoKeywords lists the info keys we decode. Tokens that are not listed here are appended to the values of the
// preceding keyword.
var infoKeywords = map[string]valueKind{
	"depth":    numericValue,
	"seldepth": numericValue,
	"multipv":  numericValue,
	"nodes":    numericValue,
	"nps":      numericValue,
	"time":     numericValue,
	"hashfull": numericValue,
	"tbhits":   numericValue,
	"currmove": stringValue,
	"score":    sequenceValue,
	"pv":       sequenceValue,
	"wdl":      sequenceValue,
}

// EncodeOption builds a "setoption" command. An empty value is omitted, which is how button options are pressed.
func EncodeOption(name, value string) string {
	if value == "" {
		return "setoption name " + name
	}
	return "setoption name " + name + " value " + value
}

// EncodePosition builds a "position" command. An empty fen means the start position.
func EncodePosition(fen string, moves []string) string {
	var builder strings.Builder
	builder.WriteString("position ")

	if fen == "" {
		builder.WriteString("startpos")
	} else {
		builder.WriteString("fen ")
		builder.WriteString(fen)
	}

	if len(moves) > 0 {
		builder.WriteString(" moves ")
		builder.WriteString(strings.Join(moves, " "))
	}

	return builder.String()
}

// EncodeGo builds a "go" command. Without any limits the engine is asked to search infinitely.
func EncodeGo(limits Limits) string {
	fields := []string{"go"}

	if limits.Depth > 0 {
		fields = append(fields, "depth", strconv.Itoa(limits.Depth))
	}

	if limits.Nodes > 0 {
		fields = append(fields, "nodes", strconv.FormatInt(limits.Nodes, 10))
	}

	if limits.MoveTime > 0 {
		fields = append(fields, "movetime", strconv.FormatInt(limits.MoveTime.Milliseconds(), 10))
	}

	if limits.Mate > 0 {
		fields = append(fields, "mate", strconv.Itoa(limits.Mate))
	}

	if len(fields) == 1 {
		fields = append(fields, "infinite")
	}

	return strings.Join(fields, " ")
}

// DecodeLine decodes one line of engine output. Lines that carry nothing useful return an error for which
// isIgnorable returns true.
func DecodeLine(line string) (Message, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, errEmptyLine
	}

	switch fields[0] {
	case "bestmove":
		bestMove, err := decodeBestMove(fields)
		if err != nil {
			return nil, err
		}
		return bestMove, nil
	case "info":
		info, err := decodeInfo(fields[1:])
		if err != nil {
			return nil, err
		}
		return info, nil
	case "uciok":
		return UCIOK{}, nil
	case "readyok":
		return ReadyOK{}, nil
	}

	return nil, errUnknownCommand
}

func isIgnorable(err error) bool {
	return errors.Is(err, errEmptyLine) ||
		errors.Is(err, errInfoString) ||
		errors.Is(err, errNoScore) ||
		errors.Is(err, errUnknownCommand)
}

func decodeBestMove(fields []string) (BestMove, error) {
	if len(fields) < 2 { //nolint:mnd
		return BestMove{}, errors.New("bestmove line has no move")
	}

	bestMove := BestMove{Move: fields[1]}
	if len(fields) >= 4 && fields[2] == "ponder" { //nolint:mnd
		bestMove.Ponder = fields[3]
	}

	return bestMove, nil
}

func decodeInfo(fields []string) (*Info, error) {
	if len(fields) == 0 {
		return nil, errNoScore
	}

	if fields[0] == "string" {
		return nil, errInfoString
	}

	groups := groupInfoFields(fields)
	if _, ok := groups["score"]; !ok {
		return nil, errNoScore
	}

	info := &Info{MultiPV: 1}

	for key, values := range groups {
		if err := info.set(key, values); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", key, err)
		}
	}

	return info, nil
}

// groupInfoFields splits info fields into keyword groups. Later groups with the same keyword replace earlier ones.
func groupInfoFields(fields []string) map[string][]string {
	groups := make(map[string][]string)

	key := ""
	var values []string

	flush := func() {
		if key != "" {
			groups[key] = values
		}
	}

	for _, field := range fields {
		if _, ok := infoKeywords[field]; ok {
			flush()
			key = field
			values = []string{}
			continue
		}

		if key != "" {
			values = append(values, field)
		}
	}
	flush()

	return groups
}

func (i *Info) set(key string, values []string) error {
	switch infoKeywords[key] {
	case numericValue:
		if len(values) == 0 {
			return errors.New("missing value")
		}

		number, err := strconv.ParseInt(values[0], 10, 64)
		if err != nil {
			return err
		}

		i.setNumber(key, number)
	case stringValue:
		if len(values) > 0 {
			i.CurrMove = values[0]
		}
	case sequenceValue:
		return i.setSequence(key, values)
	}

	return nil
}

func (i *Info) setNumber(key string, number int64) {
	switch key {
	case "depth":
		i.Depth = int(number)
	case "seldepth":
		i.SelDepth = int(number)
	case "multipv":
		i.MultiPV = int(number)
	case "nodes":
		i.Nodes = number
	case "nps":
		i.NPS = number
	case "time":
		i.Time = number
	case "hashfull":
		i.HashFull = int(number)
	case "tbhits":
		i.TBHits = number
	}
}

func (i *Info) setSequence(key string, values []string) error {
	switch key {
	case "score":
		score, err := decodeScore(values)
		if err != nil {
			return err
		}
		i.Score = score
	case "pv":
		i.PV = values
	case "wdl":
		wdl := make([]int, len(values))
		for index, value := range values {
			number, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			wdl[index] = number
		}
		i.WDL = wdl
	}

	return nil
}

func decodeScore(values []string) (Score, error) {
	if len(values) < 2 { //nolint:mnd
		return Score{}, errBrokenScore
	}

	var score Score

	switch values[0] {
	case "cp":
		score.Kind = Centipawns
	case "mate":
		score.Kind = Mate
	default:
		return Score{}, fmt.Errorf("%w: unknown score type %q", errBrokenScore, values[0])
	}

	value, err := strconv.Atoi(values[1])
	if err != nil {
		return Score{}, fmt.Errorf("%w: %w", errBrokenScore, err)
	}
	score.Value = value

	for _, extra := range values[2:] {
		switch extra {
		case "lowerbound":
			score.Bound = LowerBound
		case "upperbound":
			score.Bound = UpperBound
		}
	}

	return score, nil
}
