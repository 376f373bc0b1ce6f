package uci

import (
	"strconv"
	"time"
)

// ScoreKind tells how Score.Value should be read.
type ScoreKind int

const (
	// Centipawns means Value is an evaluation in 1/100 pawn.
	Centipawns ScoreKind = iota
	// Mate means Value is the distance to mate in moves. Negative values mean the side to move gets mated.
	Mate
)

// Bound marks scores that are only a lower or upper bound of the real value.
type Bound int

const (
	Exact Bound = iota
	LowerBound
	UpperBound
)

// Score is an engine evaluation relative to the side to move.
type Score struct {
	Kind  ScoreKind
	Value int
	Bound Bound
}

// IsMate returns true if the score is a forced mate for either side.
func (s Score) IsMate() bool {
	return s.Kind == Mate
}

// IsWinningMate returns true if the side to move mates its opponent.
func (s Score) IsWinningMate() bool {
	return s.Kind == Mate && s.Value > 0
}

// String formats the score like puzzle records expect it, "#3" for mates and "-45" for centipawns.
func (s Score) String() string {
	if s.Kind == Mate {
		return "#" + strconv.Itoa(s.Value)
	}
	return strconv.Itoa(s.Value)
}

// Info is one decoded "info" line, which is one ranked line at one search depth.
type Info struct {
	Depth    int
	SelDepth int
	MultiPV  int
	Nodes    int64
	NPS      int64
	Time     int64
	HashFull int
	TBHits   int64
	CurrMove string
	WDL      []int
	Score    Score
	PV       []string
}

// Move returns the first move of the principal variation or an empty string.
func (i Info) Move() string {
	if len(i.PV) == 0 {
		return ""
	}
	return i.PV[0]
}

// DepthSnapshot holds all lines of one depth, sorted by MultiPV rank.
type DepthSnapshot struct {
	Depth int
	Lines []Info
}

// AnalysisResult is everything an engine reported for one "go" command.
type AnalysisResult struct {
	BestMove string
	Ponder   string

	// Depths is sorted by depth in ascending order.
	Depths []DepthSnapshot
}

// Final returns the deepest snapshot. The second return value is false if there is none.
func (r *AnalysisResult) Final() (DepthSnapshot, bool) {
	if r == nil || len(r.Depths) == 0 {
		return DepthSnapshot{}, false
	}
	return r.Depths[len(r.Depths)-1], true
}

// Limits restricts a search. Zero fields are not sent to the engine.
type Limits struct {
	Depth    int
	Nodes    int64
	MoveTime time.Duration
	Mate     int
}

// Option is an engine option that is set with "setoption".
type Option struct {
	Name  string
	Value string
}

// Config contains everything needed to start an engine process.
type Config struct {
	Path string
	Args []string
	Dir  string

	// Options are sent once, in order, after the handshake.
	Options []Option

	// StartTimeout bounds the wait for "uciok". Zero means DefaultStartTimeout.
	StartTimeout time.Duration

	// QuitTimeout bounds the wait for the process to exit on Close. Zero means DefaultQuitTimeout.
	QuitTimeout time.Duration
}
