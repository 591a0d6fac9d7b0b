// Package call holds the data model shared by every other package in the
// bridge: the Call itself, its audio format negotiation, its input and
// output streams, pending tool calls, and the session configuration sent
// to the realtime AI peer.
package call

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// AudioFormat describes a PCM or encoded audio stream's shape.
type AudioFormat struct {
	SampleRateHz int
	Channels     int
	Encoding     string // "mulaw", "linear16", "opus"
}

// Equal reports whether two formats describe identical audio.
func (f AudioFormat) Equal(other AudioFormat) bool {
	return f.SampleRateHz == other.SampleRateHz &&
		f.Channels == other.Channels &&
		f.Encoding == other.Encoding
}

var (
	// FormatTelephonyMulaw is the near-universal telephony wire format:
	// 8kHz mono mu-law.
	FormatTelephonyMulaw = AudioFormat{SampleRateHz: 8000, Channels: 1, Encoding: "mulaw"}

	// FormatRealtimeLinear16 is the linear PCM16 format most realtime AI
	// peers expect on their audio input/output.
	FormatRealtimeLinear16 = AudioFormat{SampleRateHz: 24000, Channels: 1, Encoding: "linear16"}
)

// Direction identifies which leg of the Call an audio stream belongs to.
type Direction int

const (
	// DirectionInbound carries caller audio toward the AI peer.
	DirectionInbound Direction = iota
	// DirectionOutbound carries AI peer audio toward the caller.
	DirectionOutbound
)

// InputStream tracks the single, always-present inbound audio stream for
// a Call: audio arriving from the telephony peer, destined for the AI
// peer's input audio buffer.
type InputStream struct {
	ID          string
	Format      AudioFormat
	StartedAt   time.Time
	BytesWritten int64
	Committed   bool
}

// OutputStream tracks at most one live AI-peer response stream being
// played back to the telephony peer at a time.
type OutputStream struct {
	ID          string
	ResponseID  string
	Format      AudioFormat
	StartedAt   time.Time
	BytesWritten int64
	Cancelled   bool
	Done        bool
}

// PendingToolCall accumulates streamed JSON argument deltas for one
// in-flight function call, keyed by the AI peer's call_id.
type PendingToolCall struct {
	CallID    string
	Name      string
	Arguments string // accumulated JSON text, not yet guaranteed valid until Done
	ItemID    string
	Done      bool
}

// ToolDefinition describes one locally registered function the AI peer
// may invoke, including its JSON Schema parameter description.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// SessionConfig is the negotiated configuration sent to the AI peer at
// connect time. Model is frozen once a session is established: nothing
// in this package or pkg/realtime permits changing it mid-call.
type SessionConfig struct {
	Model        string
	Instructions string
	Voice        string
	Temperature  float64
	ToolChoice   string // "auto", "none", "required", or a specific tool name
	Tools        []ToolDefinition
	InputFormat  AudioFormat
	OutputFormat AudioFormat
	VADEnabled   bool
}

// Call is the aggregate root for one conversation between a telephony
// peer and the AI peer. Exactly one goroutine (owned by pkg/bridge)
// mutates a Call's fields at any time; no field here needs its own lock.
type Call struct {
	ID         string
	Dialect    string
	CallerID   string
	CalledID   string
	StartedAt  time.Time
	EndedAt    time.Time
	Config     SessionConfig
	Input      InputStream
	Output     *OutputStream
	PendingTools map[string]*PendingToolCall

	// ExpectsGreeting is set when the telephony peer asked the bridge to
	// speak first (dialect A's expectAudioMessages); the session-start
	// handler seeds a synthetic greeting turn when this is true.
	ExpectsGreeting bool

	BytesIn  int64
	BytesOut int64

	Log *slog.Logger
}

// New constructs a Call with a fresh id and a logger pre-bound with
// call_id and caller_id attributes, so every subsequent log line is
// attributable without threading the id through every call site.
func New(dialect, callerID, calledID string, base *slog.Logger) *Call {
	id := uuid.New().String()
	if base == nil {
		base = slog.Default()
	}
	return &Call{
		ID:           id,
		Dialect:      dialect,
		CallerID:     callerID,
		CalledID:     calledID,
		StartedAt:    time.Now(),
		PendingTools: make(map[string]*PendingToolCall),
		Log:          base.With("call_id", id, "caller_id", callerID),
	}
}

// Duration returns how long the Call has been (or was) active.
func (c *Call) Duration() time.Duration {
	if c.EndedAt.IsZero() {
		return time.Since(c.StartedAt)
	}
	return c.EndedAt.Sub(c.StartedAt)
}
