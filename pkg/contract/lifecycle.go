package contract

import "fmt"

// TransitionRule defines an allowed lifecycle transition.
type TransitionRule struct {
	From Status
	To   Status
}

// DefaultTransitions defines the allowed lifecycle transitions: the forward
// chain pending → confirmed → active → completed, plus disputed, cancelled
// and expired as side branches reachable from any non-terminal state.
var DefaultTransitions = []TransitionRule{
	{From: StatusPending, To: StatusConfirmed},
	{From: StatusConfirmed, To: StatusActive},
	{From: StatusActive, To: StatusCompleted},

	{From: StatusPending, To: StatusDisputed},
	{From: StatusConfirmed, To: StatusDisputed},
	{From: StatusActive, To: StatusDisputed},

	{From: StatusPending, To: StatusCancelled},
	{From: StatusConfirmed, To: StatusCancelled},
	{From: StatusActive, To: StatusCancelled},
	{From: StatusDisputed, To: StatusCancelled},

	{From: StatusPending, To: StatusExpired},
	{From: StatusConfirmed, To: StatusExpired},

	// A dispute can be resolved back into the active flow or closed out.
	{From: StatusDisputed, To: StatusActive},
	{From: StatusDisputed, To: StatusCompleted},
}

// LifecycleMachine validates contract status transitions.
type LifecycleMachine struct {
	transitions []TransitionRule
}

// NewLifecycleMachine creates a machine with the default rules.
func NewLifecycleMachine() *LifecycleMachine {
	return &LifecycleMachine{transitions: DefaultTransitions}
}

// ValidateTransition checks whether from→to is allowed. Same-state is a
// no-op and allowed; anything leaving a terminal state is not.
func (m *LifecycleMachine) ValidateTransition(from, to Status) error {
	if from == to {
		return nil
	}

	if from.Terminal() {
		return &TransitionError{
			Code:    "CONTRACT_STATE_TERMINAL",
			From:    from,
			To:      to,
			Message: fmt.Sprintf("contract is %s; no further transitions are allowed", from),
		}
	}

	for _, t := range m.transitions {
		if t.From == from && t.To == to {
			return nil
		}
	}

	return &TransitionError{
		Code:    "CONTRACT_INVALID_TRANSITION",
		From:    from,
		To:      to,
		Message: fmt.Sprintf("no transition defined from %s to %s", from, to),
	}
}

// AllowedTransitions returns all valid target states from the given state.
func (m *LifecycleMachine) AllowedTransitions(from Status) []Status {
	var allowed []Status
	for _, t := range m.transitions {
		if t.From == from {
			allowed = append(allowed, t.To)
		}
	}
	return allowed
}
