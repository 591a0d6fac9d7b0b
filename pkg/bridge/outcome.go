package bridge

import "fmt"

// OutcomeKind is the tag of the sum type Outcome carries, replacing the
// broad error-only returns of the cascaded STT/LLM/TTS design this
// bridge supersedes with a typed result the router can switch on.
type OutcomeKind int

const (
	// OutcomeOK means the Call ended cleanly: either side hung up in
	// the ordinary way.
	OutcomeOK OutcomeKind = iota
	// OutcomePeerDisconnected means one of the two sockets closed
	// unexpectedly (network failure, abrupt disconnect).
	OutcomePeerDisconnected
	// OutcomeProtocol means a wire frame could not be decoded or
	// violated the dialect's framing rules.
	OutcomeProtocol
	// OutcomeTimeout means the Call was torn down because a bounded
	// wait exceeded its deadline. Run does not return it for tool
	// invocations: a timed-out tool is reported to the AI peer as an
	// error result and the Call continues.
	OutcomeTimeout
	// OutcomeToolFailure means a registered tool returned an error that
	// could not be recovered from within the Call.
	OutcomeToolFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomePeerDisconnected:
		return "peer_disconnected"
	case OutcomeProtocol:
		return "protocol"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeToolFailure:
		return "tool_failure"
	default:
		return "unknown"
	}
}

// Outcome is the typed result of running a Call to completion.
type Outcome struct {
	Kind   OutcomeKind
	Detail string
	Err    error
}

func (o Outcome) Error() string {
	if o.Err != nil {
		return fmt.Sprintf("bridge: %s: %s: %v", o.Kind, o.Detail, o.Err)
	}
	return fmt.Sprintf("bridge: %s: %s", o.Kind, o.Detail)
}

func ok() Outcome { return Outcome{Kind: OutcomeOK} }

func peerDisconnected(detail string, err error) Outcome {
	return Outcome{Kind: OutcomePeerDisconnected, Detail: detail, Err: err}
}

func protocolError(detail string, err error) Outcome {
	return Outcome{Kind: OutcomeProtocol, Detail: detail, Err: err}
}

func timeoutError(detail string) Outcome {
	return Outcome{Kind: OutcomeTimeout, Detail: detail}
}

func toolFailure(detail string, err error) Outcome {
	return Outcome{Kind: OutcomeToolFailure, Detail: detail, Err: err}
}
