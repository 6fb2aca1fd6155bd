package directory

import (
	"fmt"
	"strconv"
	"strings"
)

// Zone is a static grouping of eyes that respond to tracking input with
// a biased horizontal mapping. Most of the wall sits in ZoneCenter.
type Zone int

const (
	ZoneCenter Zone = iota
	ZoneLeft
	ZoneRight
)

func (z Zone) String() string {
	switch z {
	case ZoneLeft:
		return "left"
	case ZoneRight:
		return "right"
	default:
		return "center"
	}
}

// EyeID identifies one eye: a board index and a servo pair on that board.
// The pair's vertical servo sits on channel pair*2, the horizontal servo
// on channel pair*2+1.
type EyeID struct {
	Board int // 0-based board index (I2C address order)
	Pair  int // 0-7 within the board
}

// VerticalChannel returns the up/down servo channel on the board.
func (e EyeID) VerticalChannel() int { return e.Pair * 2 }

// HorizontalChannel returns the left/right servo channel on the board.
func (e EyeID) HorizontalChannel() int { return e.Pair*2 + 1 }

// String prints the 1-based "board.pair" label written on the wall.
func (e EyeID) String() string {
	return fmt.Sprintf("%d.%d", e.Board+1, e.Pair+1)
}

// ParseEyeID parses a 1-based "board.pair" label.
func ParseEyeID(label string) (EyeID, error) {
	parts := strings.SplitN(label, ".", 2)
	if len(parts) != 2 {
		return EyeID{}, fmt.Errorf("eye label %q: want \"board.pair\"", label)
	}
	board, err := strconv.Atoi(parts[0])
	if err != nil || board < 1 {
		return EyeID{}, fmt.Errorf("eye label %q: bad board number", label)
	}
	pair, err := strconv.Atoi(parts[1])
	if err != nil || pair < 1 || pair > 8 {
		return EyeID{}, fmt.Errorf("eye label %q: pair must be 1-8", label)
	}
	return EyeID{Board: board - 1, Pair: pair - 1}, nil
}

// Directory is the static map of the wall as detected at startup: how
// many boards answered, how many eyes each carries, and which zone each
// eye belongs to. It never changes while the engine runs.
type Directory struct {
	eyes  []EyeID
	zones map[EyeID]Zone
}

// New builds a directory for the boards that were actually detected.
// Eyes are ordered board-major, pair-minor; that order is the scheduler's
// stable iteration order.
func New(numBoards, pairsPerBoard int) *Directory {
	d := &Directory{zones: make(map[EyeID]Zone)}
	for b := 0; b < numBoards; b++ {
		for p := 0; p < pairsPerBoard; p++ {
			d.eyes = append(d.eyes, EyeID{Board: b, Pair: p})
		}
	}
	return d
}

// AssignZones marks the listed eye labels as left and right zones.
// Labels naming boards that were not detected are silently skipped (the
// wall keeps working with a partial bring-up).
func (d *Directory) AssignZones(leftLabels, rightLabels []string) error {
	assign := func(labels []string, z Zone) error {
		for _, label := range labels {
			id, err := ParseEyeID(label)
			if err != nil {
				return err
			}
			if d.Contains(id) {
				d.zones[id] = z
			}
		}
		return nil
	}
	if err := assign(leftLabels, ZoneLeft); err != nil {
		return err
	}
	return assign(rightLabels, ZoneRight)
}

// Eyes returns all eyes in stable order. Callers must not mutate it.
func (d *Directory) Eyes() []EyeID {
	return d.eyes
}

// Len returns the number of eyes on the wall.
func (d *Directory) Len() int {
	return len(d.eyes)
}

// NumBoards returns the number of detected boards.
func (d *Directory) NumBoards() int {
	if len(d.eyes) == 0 {
		return 0
	}
	return d.eyes[len(d.eyes)-1].Board + 1
}

// Contains reports whether the eye exists on the detected wall.
func (d *Directory) Contains(id EyeID) bool {
	for _, e := range d.eyes {
		if e == id {
			return true
		}
	}
	return false
}

// Zone returns the zone of an eye (ZoneCenter if unassigned).
func (d *Directory) Zone(id EyeID) Zone {
	return d.zones[id]
}
