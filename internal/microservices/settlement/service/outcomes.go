package service

import (
	"context"
	"math/rand/v2"
	"sync"

	"restaurant-orders/internal/domain"
)

// OutcomeSource decides what the simulated payment processor answers for one attempt.
type OutcomeSource interface {
	Next(ctx context.Context, o domain.Order, attempt int) Outcome
}

// WeightedOutcomes draws outcomes at random with fixed integer weights.
type WeightedOutcomes struct {
	Success   int
	Transient int
	Declined  int
}

// DefaultOutcomes is 60% success, 20% transient failure, 20% declined.
var DefaultOutcomes = WeightedOutcomes{Success: 60, Transient: 20, Declined: 20}

func (w WeightedOutcomes) Next(context.Context, domain.Order, int) Outcome {
	total := w.Success + w.Transient + w.Declined
	if total <= 0 {
		return OutcomeSuccess
	}
	n := rand.IntN(total)
	switch {
	case n < w.Success:
		return OutcomeSuccess
	case n < w.Success+w.Transient:
		return OutcomeTransient
	default:
		return OutcomeDeclined
	}
}

// ScriptedOutcomes replays a fixed sequence per order and repeats the last entry.
type ScriptedOutcomes struct {
	mu     sync.Mutex
	script []Outcome
	pos    map[string]int
}

func NewScriptedOutcomes(script ...Outcome) *ScriptedOutcomes {
	if len(script) == 0 {
		script = []Outcome{OutcomeSuccess}
	}
	return &ScriptedOutcomes{script: script, pos: make(map[string]int)}
}

func (s *ScriptedOutcomes) Next(_ context.Context, o domain.Order, _ int) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.pos[o.OrderID]
	s.pos[o.OrderID] = i + 1
	if i >= len(s.script) {
		i = len(s.script) - 1
	}
	return s.script[i]
}
