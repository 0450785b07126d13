// Package recovery drives the password reset flow on the client: request a
// one-time code, check it, then change the password through the server.
package recovery

// State is a step of the reset flow. It is persisted between invocations.
type State string

const (
	StateIdle               State = "idle"
	StateRequestingCode     State = "requesting_code"
	StateCodeSent           State = "code_sent"
	StateVerifying          State = "verifying"
	StateSessionEstablished State = "session_established"
	StateLocalOnly          State = "local_only"
	StatePasswordUpdated    State = "password_updated"
	StateMagicLinkSent      State = "magic_link_sent"
)

// transitions lists the allowed moves out of each state, excluding Reset.
var transitions = map[State][]State{
	StateIdle:               {StateRequestingCode},
	StateRequestingCode:     {StateCodeSent, StateIdle},
	StateCodeSent:           {StateRequestingCode, StateVerifying},
	StateVerifying:          {StateSessionEstablished, StateLocalOnly, StateCodeSent, StateIdle},
	StateSessionEstablished: {StateSessionEstablished, StatePasswordUpdated, StateMagicLinkSent},
	StateLocalOnly:          {StateSessionEstablished, StateVerifying, StateMagicLinkSent},
	StatePasswordUpdated:    nil,
	StateMagicLinkSent:      nil,
}

// Terminal reports whether the flow has finished in s.
func (s State) Terminal() bool {
	return s == StatePasswordUpdated || s == StateMagicLinkSent
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether the flow may move from s to next. Any state
// may return to Idle through a reset.
func (s State) CanTransition(next State) bool {
	if next == StateIdle {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Outcome is the result of checking a code.
type Outcome string

// OutcomeVerified in StateLocalOnly means the code passed the local checks
// but the server has yet to confirm it.
const (
	OutcomeVerified    Outcome = "verified"
	OutcomeExpired     Outcome = "expired"
	OutcomeInvalid     Outcome = "invalid"
	OutcomeRateLimited Outcome = "rate_limited"
)
