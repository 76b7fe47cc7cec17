// Package series applies edits and deletes to recurring event series and
// answers windowed queries over them.
package series

import "time"

// Mode selects which part of a series a write affects.
type Mode int

const (
	// ModeAll changes the whole series, i.e. the master itself.
	ModeAll Mode = iota
	// ModeFuture changes the selected occurrence and every later one.
	ModeFuture
	// ModeSingle changes the selected occurrence only.
	ModeSingle
)

func (m Mode) String() string {
	switch m {
	case ModeAll:
		return "ALL"
	case ModeFuture:
		return "FUTURE"
	case ModeSingle:
		return "SINGLE"
	default:
		return "UNKNOWN"
	}
}

// Intent accompanies a single Save or Delete call. A nil Intent means ModeAll.
type Intent struct {
	Mode Mode
	// Selected is the original start of the occurrence the caller acted on.
	Selected time.Time
}

// All returns an intent for the whole series.
func All() *Intent {
	return &Intent{Mode: ModeAll}
}

// Future returns an intent for the occurrence at selected and those after it.
func Future(selected time.Time) *Intent {
	return &Intent{Mode: ModeFuture, Selected: selected}
}

// Single returns an intent for the occurrence at selected.
func Single(selected time.Time) *Intent {
	return &Intent{Mode: ModeSingle, Selected: selected}
}

func (i *Intent) mode() Mode {
	if i == nil {
		return ModeAll
	}
	return i.Mode
}
