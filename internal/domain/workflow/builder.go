package workflow

import (
	"context"
	"fmt"
	"sort"
)

// GuardFunc evaluates whether a transition should be allowed
type GuardFunc func(ctx context.Context) bool

// StateMachineBuilder builds a configured state machine
type StateMachineBuilder interface {
	// Configure returns a state configuration for the given state
	Configure(state State) StateConfiguration

	// PermitFromAny registers the transition on every known state
	PermitFromAny(trigger Trigger, toState State, guard GuardFunc) StateMachineBuilder

	// Build creates a new state machine instance with the given initial state
	Build(initialState State) (StateMachine, error)
}

// StateConfiguration configures transitions for a specific state
type StateConfiguration interface {
	// Permit allows a trigger to transition to the target state
	Permit(trigger Trigger, toState State) StateConfiguration

	// PermitIf allows a trigger to transition to the target state if the guard passes
	PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration
}

type transition struct {
	toState State
	guard   GuardFunc
}

type stateConfig struct {
	builder     *stateMachineBuilder
	transitions map[Trigger][]transition
}

type stateMachineBuilder struct {
	states         map[State]bool
	order          []State
	configurations map[State]*stateConfig
}

type stateMachine struct {
	currentState   State
	configurations map[State]map[Trigger][]transition
}

// NewBuilder creates a builder over a closed set of states
func NewBuilder(states ...State) StateMachineBuilder {
	b := &stateMachineBuilder{
		states:         make(map[State]bool, len(states)),
		configurations: make(map[State]*stateConfig),
	}
	for _, s := range states {
		if !b.states[s] {
			b.states[s] = true
			b.order = append(b.order, s)
		}
	}
	return b
}

// Configure returns a state configuration for the given state
func (b *stateMachineBuilder) Configure(state State) StateConfiguration {
	if !b.states[state] {
		panic(fmt.Sprintf("invalid state: %s", state))
	}

	config, exists := b.configurations[state]
	if !exists {
		config = &stateConfig{
			builder:     b,
			transitions: make(map[Trigger][]transition),
		}
		b.configurations[state] = config
	}
	return config
}

// PermitFromAny registers the transition on every known state
func (b *stateMachineBuilder) PermitFromAny(trigger Trigger, toState State, guard GuardFunc) StateMachineBuilder {
	for _, s := range b.order {
		b.Configure(s).PermitIf(trigger, toState, guard)
	}
	return b
}

// Build creates a new state machine instance with the given initial state
func (b *stateMachineBuilder) Build(initialState State) (StateMachine, error) {
	if !b.states[initialState] {
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, initialState)
	}

	// Copy so later Configure calls do not leak into built machines
	configs := make(map[State]map[Trigger][]transition, len(b.configurations))
	for state, config := range b.configurations {
		byTrigger := make(map[Trigger][]transition, len(config.transitions))
		for trigger, ts := range config.transitions {
			byTrigger[trigger] = append([]transition{}, ts...)
		}
		configs[state] = byTrigger
	}

	return &stateMachine{
		currentState:   initialState,
		configurations: configs,
	}, nil
}

// Permit allows a trigger to transition to the target state
func (c *stateConfig) Permit(trigger Trigger, toState State) StateConfiguration {
	return c.PermitIf(trigger, toState, nil)
}

// PermitIf allows a trigger to transition to the target state if the guard passes
func (c *stateConfig) PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration {
	if !c.builder.states[toState] {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}

	c.transitions[trigger] = append(c.transitions[trigger], transition{
		toState: toState,
		guard:   guard,
	})
	return c
}

// State returns the current state
func (m *stateMachine) State() State {
	return m.currentState
}

// CanFire returns true if the trigger is configured for the current state.
// Guards are not evaluated since they need a context.
func (m *stateMachine) CanFire(trigger Trigger) bool {
	return len(m.configurations[m.currentState][trigger]) > 0
}

// Fire attempts to execute the trigger, transitioning to the new state if allowed
func (m *stateMachine) Fire(ctx context.Context, trigger Trigger) (State, error) {
	transitions := m.configurations[m.currentState][trigger]
	if len(transitions) == 0 {
		return m.currentState, fmt.Errorf("%w: cannot fire trigger %s from state %s", ErrInvalidTransition, trigger, m.currentState)
	}

	for _, t := range transitions {
		if t.guard == nil || t.guard(ctx) {
			m.currentState = t.toState
			return m.currentState, nil
		}
	}

	return m.currentState, fmt.Errorf("%w: trigger %s from state %s", ErrGuardFailed, trigger, m.currentState)
}

// PermittedTriggers returns the configured triggers of the current state, sorted
func (m *stateMachine) PermittedTriggers() []Trigger {
	byTrigger := m.configurations[m.currentState]
	triggers := make([]Trigger, 0, len(byTrigger))
	for trigger := range byTrigger {
		triggers = append(triggers, trigger)
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return triggers
}
