package call

// SessionState tracks a peer session through the offer/answer exchange.
//
// Idle -> OfferSent (caller) | OfferReceived (callee) -> AnswerExchanged
// -> Connected -> Closed, with Failed reachable from any non-terminal
// state.
type SessionState int

const (
	StateIdle SessionState = iota
	StateOfferSent
	StateOfferReceived
	StateAnswerExchanged
	StateConnected
	StateClosed
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOfferSent:
		return "offer-sent"
	case StateOfferReceived:
		return "offer-received"
	case StateAnswerExchanged:
		return "answer-exchanged"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s SessionState) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// Role is the side of the offer/answer exchange a session plays.
type Role string

const (
	RoleCaller Role = "caller"
	RoleCallee Role = "callee"
)
