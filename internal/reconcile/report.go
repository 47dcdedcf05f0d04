package reconcile

import (
	"eventsbot/internal/errs"
	"eventsbot/internal/model"
)

// SlotState is what happened to one (channel, position) during a pass.
type SlotState int

const (
	// SlotAbsent means the position was not reached.
	SlotAbsent SlotState = iota
	SlotCreated
	SlotUnchanged
	SlotUpdated
)

func (s SlotState) String() string {
	switch s {
	case SlotCreated:
		return "created"
	case SlotUnchanged:
		return "unchanged"
	case SlotUpdated:
		return "updated"
	default:
		return "absent"
	}
}

// ChannelReport is one channel's outcome. Slots[i] belongs to position i+1.
type ChannelReport struct {
	ChannelID string
	Slots     []SlotState
	// Spillover is set when the channel was skipped to keep weeks in order.
	Spillover *errs.SpilloverError
	Err       error
}

// Report is the outcome of one Reconcile call.
type Report struct {
	Week     model.Week
	Channels []ChannelReport
}

// Counts tallies slot states over all channels.
func (r Report) Counts() (created, updated, unchanged int) {
	for _, c := range r.Channels {
		for _, s := range c.Slots {
			switch s {
			case SlotCreated:
				created++
			case SlotUpdated:
				updated++
			case SlotUnchanged:
				unchanged++
			}
		}
	}
	return created, updated, unchanged
}

// Spillovers lists the channels skipped to keep weeks in order.
func (r Report) Spillovers() []*errs.SpilloverError {
	var out []*errs.SpilloverError
	for _, c := range r.Channels {
		if c.Spillover != nil {
			out = append(out, c.Spillover)
		}
	}
	return out
}
