package model

import (
	"fmt"
	"time"
)

// GroupState is the lifecycle state of a CorrelationGroup.
type GroupState int

const (
	StateCollecting GroupState = iota
	StateVerifying
	StateMerging
	StateNotified
	StateAbandoned
)

func (s GroupState) String() string {
	switch s {
	case StateCollecting:
		return "COLLECTING"
	case StateVerifying:
		return "VERIFYING"
	case StateMerging:
		return "MERGING"
	case StateNotified:
		return "NOTIFIED"
	case StateAbandoned:
		return "ABANDONED"
	default:
		return fmt.Sprintf("STATE(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s GroupState) Terminal() bool {
	return s == StateNotified || s == StateAbandoned
}

// CanTransition reports whether s -> next is an edge of the group state machine.
func (s GroupState) CanTransition(next GroupState) bool {
	switch s {
	case StateCollecting:
		return next == StateVerifying
	case StateVerifying:
		return next == StateMerging || next == StateAbandoned
	case StateMerging:
		return next == StateNotified
	default:
		return false
	}
}

// CorrelationGroup accumulates the activity events that share a transaction hash.
type CorrelationGroup struct {
	ID            string
	TxHash        string
	Network       Network
	BlockNum      uint64
	TargetAddress string
	KindsSeen     KindSet
	Recipients    []string
	State         GroupState
	OpenedAt      time.Time
}

// Transition moves the group to next. An invalid edge is a programming error.
func (g *CorrelationGroup) Transition(next GroupState) {
	if !g.State.CanTransition(next) {
		panic(fmt.Sprintf("correlation group %s: invalid transition %s -> %s", g.TxHash, g.State, next))
	}
	g.State = next
}

// AddRecipients unions recipients into the group, keeping first-seen order.
func (g *CorrelationGroup) AddRecipients(recipients []string) {
	seen := make(map[string]struct{}, len(g.Recipients))
	for _, r := range g.Recipients {
		seen[r] = struct{}{}
	}
	for _, r := range recipients {
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		g.Recipients = append(g.Recipients, r)
	}
}

// Clone returns a copy that does not share the recipient slice.
func (g *CorrelationGroup) Clone() CorrelationGroup {
	out := *g
	out.Recipients = append([]string(nil), g.Recipients...)
	return out
}
