package service

import (
	"fmt"

	"restaurant-orders/internal/domain"
)

type state int

const (
	stateProcessing state = iota
	stateWaiting
	stateDeciding
	stateApplying
	stateDone
)

func (s state) String() string {
	switch s {
	case stateProcessing:
		return "processing"
	case stateWaiting:
		return "waiting"
	case stateDeciding:
		return "deciding"
	case stateApplying:
		return "applying"
	case stateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome is what the simulated processor answers.
type Outcome string

const (
	OutcomeSuccess   Outcome = Outcome(domain.StatusPaymentSuccess)
	OutcomeDeclined  Outcome = Outcome(domain.StatusPaymentDeclined)
	OutcomeTransient Outcome = Outcome(domain.StatusPaymentFailure)
)

// stored maps a terminal outcome to the status written to the order store.
func (o Outcome) stored() domain.Status {
	if o == OutcomeSuccess {
		return domain.StatusWaiting
	}
	return domain.Status(o)
}

// transitions is the settlement state table. Only deciding branches, on the outcome.
var transitions = map[state]map[Outcome]state{
	stateProcessing: {"": stateWaiting},
	stateWaiting:    {"": stateDeciding},
	stateDeciding: {
		OutcomeTransient: stateProcessing,
		OutcomeSuccess:   stateApplying,
		OutcomeDeclined:  stateApplying,
	},
	stateApplying: {"": stateDone},
}

func next(s state, o Outcome) (state, error) {
	edges, ok := transitions[s]
	if !ok {
		return s, fmt.Errorf("no transitions out of %s", s)
	}
	if to, ok := edges[o]; ok {
		return to, nil
	}
	if to, ok := edges[""]; ok {
		return to, nil
	}
	return s, fmt.Errorf("no transition from %s on %q", s, o)
}
