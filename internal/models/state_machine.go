package models

import (
	"fmt"
	"time"
)

// StrategyState represents a stage in the sandwich lifecycle.
type StrategyState string

const (
	// StateIdle is the initial state: no legs, entry not yet attempted or aborted.
	StateIdle StrategyState = "idle"
	// StateActive is the passive holding period after the seven-leg build.
	StateActive StrategyState = "active"
	// StateDefense1 follows the first firefight: core put rolled up, bread puts shifted.
	StateDefense1 StrategyState = "defense_1"
	// StateDefense2 follows the secondary bread-put shift.
	StateDefense2 StrategyState = "defense_2"
	// StateStraddle follows the short-straddle conversion on expiry-week Monday.
	StateStraddle StrategyState = "straddle"
	// StateClosed is terminal and absorbing: no further leg mutation occurs.
	StateClosed StrategyState = "closed"
)

// AllStates lists every lifecycle state in progression order.
var AllStates = []StrategyState{
	StateIdle, StateActive, StateDefense1, StateDefense2, StateStraddle, StateClosed,
}

// Transition conditions.
const (
	ConditionEntryFilled  = "entry_filled"
	ConditionRallyDefense = "rally_defense"
	ConditionPutsBreached = "puts_breached"
	ConditionStraddleConv = "straddle_conversion"
	ConditionProfitTarget = "profit_target"
	ConditionExpiryExit   = "expiry_exit"
	ConditionForceClose   = "force_close"
)

// StateTransition defines one valid edge in the lifecycle graph.
type StateTransition struct {
	From        StrategyState
	To          StrategyState
	Condition   string
	Description string
}

// ValidTransitions is the complete lifecycle graph. Progression is strictly
// forward: no state is ever revisited, and every non-terminal state can jump
// straight to closed on an exit condition.
var ValidTransitions = []StateTransition{
	{StateIdle, StateActive, ConditionEntryFilled, "Initial seven-leg structure built"},

	{StateActive, StateDefense1, ConditionRallyDefense, "Negative P&L with spot rally past threshold after passive window"},
	{StateDefense1, StateDefense2, ConditionPutsBreached, "Spot above shifted bread-put strike plus buffer"},
	{StateDefense2, StateStraddle, ConditionStraddleConv, "Expiry-week Monday with spot above sold call strike"},

	{StateActive, StateClosed, ConditionProfitTarget, "Profit target reached"},
	{StateActive, StateClosed, ConditionExpiryExit, "Final expiry exit"},
	{StateActive, StateClosed, ConditionForceClose, "Manual close"},
	{StateDefense1, StateClosed, ConditionProfitTarget, "Profit target reached"},
	{StateDefense1, StateClosed, ConditionExpiryExit, "Final expiry exit"},
	{StateDefense1, StateClosed, ConditionForceClose, "Manual close"},
	{StateDefense2, StateClosed, ConditionProfitTarget, "Profit target reached"},
	{StateDefense2, StateClosed, ConditionExpiryExit, "Final expiry exit"},
	{StateDefense2, StateClosed, ConditionForceClose, "Manual close"},
	{StateStraddle, StateClosed, ConditionProfitTarget, "Profit target reached"},
	{StateStraddle, StateClosed, ConditionExpiryExit, "Final expiry exit"},
	{StateStraddle, StateClosed, ConditionForceClose, "Manual close"},
}

// stateRank orders the lifecycle for the forward-only invariant.
var stateRank = map[StrategyState]int{
	StateIdle:     0,
	StateActive:   1,
	StateDefense1: 2,
	StateDefense2: 3,
	StateStraddle: 4,
	StateClosed:   5,
}

// StateMachine manages sandwich lifecycle transitions.
type StateMachine struct {
	currentState   StrategyState
	previousState  StrategyState
	transitionTime time.Time
}

// NewStateMachine creates a state machine in the idle state.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		currentState:  StateIdle,
		previousState: StateIdle,
	}
}

// NewStateMachineFromState creates a state machine resumed at the given state.
func NewStateMachineFromState(state StrategyState) *StateMachine {
	return &StateMachine{
		currentState:  state,
		previousState: state,
	}
}

// Current returns the current state.
func (sm *StateMachine) Current() StrategyState {
	return sm.currentState
}

// Previous returns the state before the last transition.
func (sm *StateMachine) Previous() StrategyState {
	return sm.previousState
}

// TransitionTime returns when the last transition happened (zero if none).
func (sm *StateMachine) TransitionTime() time.Time {
	return sm.transitionTime
}

// IsTerminal returns true once the machine has reached the closed state.
func (sm *StateMachine) IsTerminal() bool {
	return sm.currentState == StateClosed
}

// IsValidTransition checks whether moving to the target state under the
// given condition is allowed from the current state.
func (sm *StateMachine) IsValidTransition(to StrategyState, condition string) error {
	if sm.currentState == StateClosed {
		return fmt.Errorf("state %s is terminal, cannot transition to %s", StateClosed, to)
	}
	if stateRank[to] <= stateRank[sm.currentState] {
		return fmt.Errorf("transition from %s to %s would move backward", sm.currentState, to)
	}
	for _, tr := range ValidTransitions {
		if tr.From == sm.currentState && tr.To == to && tr.Condition == condition {
			return nil
		}
	}
	return fmt.Errorf("invalid transition from %s to %s with condition %q",
		sm.currentState, to, condition)
}

// Transition moves to a new state at the given time.
func (sm *StateMachine) Transition(to StrategyState, condition string, at time.Time) error {
	if err := sm.IsValidTransition(to, condition); err != nil {
		return err
	}
	sm.previousState = sm.currentState
	sm.currentState = to
	sm.transitionTime = at
	return nil
}

// Describe returns a human-readable description of the current state.
func (sm *StateMachine) Describe() string {
	switch sm.currentState {
	case StateIdle:
		return "Idle: no position, waiting for monthly expiry entry window"
	case StateActive:
		return "Active: passive hold, collecting premium decay"
	case StateDefense1:
		return "Defense 1: core put rolled up, bread puts shifted toward spot"
	case StateDefense2:
		return "Defense 2: bread puts shifted a further step up"
	case StateStraddle:
		return "Straddle: sold puts aligned with sold calls, awaiting expiry"
	case StateClosed:
		return "Closed: all legs flat"
	default:
		return "Unknown state"
	}
}
