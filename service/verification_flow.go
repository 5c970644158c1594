package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/formbt/ndi-gateway/channel"
	"github.com/formbt/ndi-gateway/core"
	"github.com/formbt/ndi-gateway/ports"
	"github.com/formbt/ndi-gateway/verify"
)

// defaultListenWindow matches the challenge expiry window. A proof that has
// not arrived by then will be for an expired challenge anyway.
const defaultListenWindow = 5 * time.Minute

var errListenTimeout = errors.New("timed out waiting for verification event")

// FlowResult is the terminal outcome of one verification attempt.
type FlowResult struct {
	State      core.FlowState
	Outcome    core.VerificationOutcome
	Attributes core.IdentityAttributes
	Payload    []byte
	Bound      *BoundSession
	Err        error
}

// VerificationFlow drives a single scan-to-session run: issue a challenge,
// listen on the event channel for the proof, validate, extract attributes
// and bind a session. One flow serves one end user's attempt; retries reuse
// the same flow, a fresh user gets a fresh flow.
type VerificationFlow struct {
	issuer       ports.ProofIssuer
	hub          *channel.Hub
	binder       *SessionBinder
	listenWindow time.Duration

	mu        sync.Mutex
	state     core.FlowState
	gen       int
	challenge core.Challenge
	sub       *channel.Subscription

	results chan FlowResult
}

// NewVerificationFlow creates an idle flow. A non-positive listenWindow
// selects the default.
func NewVerificationFlow(issuer ports.ProofIssuer, hub *channel.Hub, binder *SessionBinder, listenWindow time.Duration) *VerificationFlow {
	if listenWindow <= 0 {
		listenWindow = defaultListenWindow
	}
	return &VerificationFlow{
		issuer:       issuer,
		hub:          hub,
		binder:       binder,
		listenWindow: listenWindow,
		state:        core.FlowIdle,
		results:      make(chan FlowResult, 4),
	}
}

// State returns the current state machine position.
func (f *VerificationFlow) State() core.FlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Challenge returns the challenge of the current attempt.
func (f *VerificationFlow) Challenge() core.Challenge {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.challenge
}

// Results streams the terminal result of each attempt.
func (f *VerificationFlow) Results() <-chan FlowResult {
	return f.results
}

// Start issues a challenge and begins listening for its proof. The context
// governs the listening goroutine, so callers pass one scoped to the user's
// whole attempt rather than a single request. Start only proceeds from the
// idle or failed states.
func (f *VerificationFlow) Start(ctx context.Context) (core.Challenge, error) {
	f.mu.Lock()
	if f.state.Terminal() {
		f.mu.Unlock()
		return core.Challenge{}, core.ErrFlowTerminal
	}
	if f.state != core.FlowIdle && f.state != core.FlowFailed {
		state := f.state
		f.mu.Unlock()
		return core.Challenge{}, fmt.Errorf("verification flow already in state %s", state)
	}
	f.gen++
	gen := f.gen
	f.state = core.FlowChallengeIssued
	f.mu.Unlock()

	ch, err := f.issuer.Issue(ctx)
	if err != nil {
		f.transition(gen, core.FlowFailed)
		return core.Challenge{}, err
	}

	sub, err := f.hub.Subscribe(ch.ThreadID)
	if err != nil {
		f.transition(gen, core.FlowFailed)
		return core.Challenge{}, err
	}

	f.mu.Lock()
	if f.gen != gen {
		// Cancelled while issuing
		f.mu.Unlock()
		sub.Close()
		return core.Challenge{}, core.ErrFlowTerminal
	}
	f.challenge = ch
	f.sub = sub
	f.state = core.FlowListening
	f.mu.Unlock()

	go f.listen(ctx, gen, sub)
	return ch, nil
}

// Retry abandons the current attempt's subscription and starts over with a
// fresh challenge. At most one live subscription exists per flow.
func (f *VerificationFlow) Retry(ctx context.Context) (core.Challenge, error) {
	f.mu.Lock()
	if f.state.Terminal() {
		f.mu.Unlock()
		return core.Challenge{}, core.ErrFlowTerminal
	}
	f.gen++
	sub := f.sub
	f.sub = nil
	f.state = core.FlowIdle
	f.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	return f.Start(ctx)
}

// Cancel abandons the flow. Once Cancel returns no further event is
// processed; a verification arriving late is dropped.
func (f *VerificationFlow) Cancel() {
	f.mu.Lock()
	if f.state.Terminal() {
		f.mu.Unlock()
		return
	}
	f.gen++
	sub := f.sub
	f.sub = nil
	f.state = core.FlowAbandoned
	f.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	f.finish(FlowResult{State: core.FlowAbandoned})
}

func (f *VerificationFlow) listen(ctx context.Context, gen int, sub *channel.Subscription) {
	timer := time.NewTimer(f.listenWindow)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if f.transition(gen, core.FlowAbandoned) {
				f.detach(gen)
				sub.Close()
				f.finish(FlowResult{State: core.FlowAbandoned, Err: ctx.Err()})
			}
			return
		case <-timer.C:
			if f.transition(gen, core.FlowFailed) {
				f.detach(gen)
				sub.Close()
				f.finish(FlowResult{
					State:   core.FlowFailed,
					Outcome: core.VerificationOutcome{Reason: "verification timed out"},
					Err:     errListenTimeout,
				})
			}
			return
		case ev, ok := <-sub.Events():
			if !ok {
				// Closed underneath us: hub shutdown, Retry or Cancel.
				// The latter two already moved the state on.
				if f.transition(gen, core.FlowFailed) {
					f.finish(FlowResult{State: core.FlowFailed, Err: core.ErrChannelClosed})
				}
				return
			}
			switch ev.Kind {
			case core.EventConnected, core.EventHeartbeat, core.EventUnknown:
				// liveness and noise, keep listening
			case core.EventError:
				if f.transition(gen, core.FlowFailed) {
					f.detach(gen)
					sub.Close()
					f.finish(FlowResult{State: core.FlowFailed, Err: ev.Err})
				}
				return
			case core.EventVerification:
				f.handleVerification(ctx, gen, sub, ev)
				return
			}
		}
	}
}

func (f *VerificationFlow) handleVerification(ctx context.Context, gen int, sub *channel.Subscription, ev core.ChannelEvent) {
	outcome := verify.Validate(ev.Payload)
	if !outcome.Validated {
		if f.transition(gen, core.FlowFailed) {
			f.detach(gen)
			sub.Close()
			log.Printf("flow: verification failed for thread %s: %s", ev.ThreadID, outcome.Reason)
			f.finish(FlowResult{State: core.FlowFailed, Outcome: outcome, Payload: ev.Payload, Err: core.ErrOutcomeNotValidated})
		}
		return
	}

	if !f.transition(gen, core.FlowValidated) {
		return
	}
	f.detach(gen)
	sub.Close()

	attrs := verify.Extract(ev.Payload)
	if !attrs.Complete() {
		f.transition(gen, core.FlowRegistrationPending)
		f.finish(FlowResult{State: core.FlowRegistrationPending, Outcome: outcome, Attributes: attrs, Payload: ev.Payload})
		return
	}

	bound, err := f.binder.BindRegistration(ctx, attrs, ev.Payload)
	switch {
	case errors.Is(err, core.ErrRegistrationBlocked):
		// Never folded into a generic failure: an authenticate attempt
		// holds the guard and the caller must see that.
		log.Printf("flow: registration blocked for thread %s: authenticate attempt in progress", ev.ThreadID)
		f.transition(gen, core.FlowFailed)
		f.finish(FlowResult{State: core.FlowFailed, Outcome: outcome, Attributes: attrs, Payload: ev.Payload, Err: err})
	case errors.Is(err, core.ErrUserExists):
		// Account already exists, hand off to the registration form
		f.transition(gen, core.FlowRegistrationPending)
		f.finish(FlowResult{State: core.FlowRegistrationPending, Outcome: outcome, Attributes: attrs, Payload: ev.Payload, Err: err})
	case err != nil:
		f.transition(gen, core.FlowFailed)
		f.finish(FlowResult{State: core.FlowFailed, Outcome: outcome, Attributes: attrs, Payload: ev.Payload, Err: err})
	default:
		f.transition(gen, core.FlowBound)
		f.finish(FlowResult{State: core.FlowBound, Outcome: outcome, Attributes: attrs, Payload: ev.Payload, Bound: &bound})
	}
}

// transition moves the state machine forward if the attempt is still the
// current one and the flow is not terminal.
func (f *VerificationFlow) transition(gen int, to core.FlowState) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if gen != f.gen || f.state.Terminal() {
		return false
	}
	f.state = to
	return true
}

// detach forgets the current subscription without closing it.
func (f *VerificationFlow) detach(gen int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if gen == f.gen {
		f.sub = nil
	}
}

// finish records an attempt's terminal result without ever blocking the
// state machine on a slow reader.
func (f *VerificationFlow) finish(res FlowResult) {
	select {
	case f.results <- res:
	default:
		log.Printf("flow: dropping result %s, nobody reading", res.State)
	}
}
