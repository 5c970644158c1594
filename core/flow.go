package core

// FlowState is the verification flow state machine position.
type FlowState string

const (
	FlowIdle                FlowState = "idle"
	FlowChallengeIssued     FlowState = "challenge_issued"
	FlowListening           FlowState = "listening"
	FlowValidated           FlowState = "validated"
	FlowFailed              FlowState = "failed"
	FlowBound               FlowState = "bound"
	FlowRegistrationPending FlowState = "registration_pending"
	FlowAbandoned           FlowState = "abandoned"
)

// Terminal reports whether no further transitions are possible.
func (s FlowState) Terminal() bool {
	return s == FlowBound || s == FlowAbandoned
}
