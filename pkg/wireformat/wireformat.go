// Package wireformat defines the Codec abstraction that decouples the
// bridge's core event router from any single telephony wire dialect.
// Each supported dialect lives in its own sub-package and implements
// Codec; pkg/server picks the right one per listening path.
package wireformat

import "github.com/birddigital/voicebridge/pkg/call"

// EventKind identifies the shape of a decoded inbound Event.
type EventKind int

const (
	// EventUnknown is returned for frames the codec could not classify;
	// the router logs and drops these rather than failing the Call.
	EventUnknown EventKind = iota
	// EventSessionStart signals the telephony peer has opened the call
	// and supplied initial metadata (caller id, negotiated audio format).
	EventSessionStart
	// EventSessionResume signals the telephony peer is re-attaching to
	// an in-progress Call after a transient reconnect.
	EventSessionResume
	// EventUserStreamStart signals the start of one caller utterance:
	// input goes idle->active and any live AI output is barged in on.
	EventUserStreamStart
	// EventAudioChunk carries one chunk of inbound caller audio.
	EventAudioChunk
	// EventUserStreamStop signals the end of one caller utterance:
	// buffered input is padded to the minimum commit duration if short,
	// committed to the AI peer, and a response requested if the AI peer
	// isn't doing its own server-side turn detection.
	EventUserStreamStop
	// EventSessionEnd signals the telephony peer is tearing down the
	// call cleanly (hangup).
	EventSessionEnd
	// EventControl carries a dialect-specific out-of-band signal (DTMF,
	// custom activity) that does not map to audio or lifecycle.
	EventControl
)

// Event is the dialect-agnostic decoding of one inbound wire frame.
type Event struct {
	Kind       EventKind
	StreamID   string // dialect's own stream/session identifier, for echoing back
	CallerID   string
	CalledID   string
	Audio      []byte // set for EventAudioChunk
	Format     call.AudioFormat
	// SupportedFormats lists the audio formats the telephony peer
	// offered, set for EventSessionStart on dialects that negotiate
	// (e.g. dialect A's supportedMediaFormats). nil means the dialect
	// has a single fixed format and no negotiation is needed; a non-nil
	// empty slice means the peer offered formats but none is supported
	// locally, and the session is rejected.
	SupportedFormats []call.AudioFormat
	// ExpectsGreeting is set for EventSessionStart when the telephony
	// peer asked the bridge to speak first (dialect A's
	// expectAudioMessages).
	ExpectsGreeting bool
	ControlTag      string         // set for EventControl, e.g. "dtmf"
	Raw             map[string]any // dialect-specific extra fields, for logging
}

// ActionKind identifies the shape of an outbound Action the bridge wants
// encoded onto the wire.
type ActionKind int

const (
	// ActionAccept acknowledges a session start/resume.
	ActionAccept ActionKind = iota
	// ActionSessionReject rejects a session start, e.g. because no
	// mutually supported media format exists.
	ActionSessionReject
	// ActionAudioStart announces a new outbound audio stream; it is
	// sent exactly once per OutputStream, before any of its chunks.
	ActionAudioStart
	// ActionAudioChunk carries one chunk of outbound AI-peer audio to
	// play to the caller.
	ActionAudioChunk
	// ActionAudioStop tells the telephony peer to stop playback: either
	// the output stream finished normally or it was barged in on. Sent
	// exactly once per OutputStream, after ActionAudioStart.
	ActionAudioStop
	// ActionHypothesis carries an interim or final transcript for
	// dialects that surface one to the caller side (e.g. captioning).
	ActionHypothesis
	// ActionError reports a protocol or session error to the telephony
	// peer before the socket is closed.
	ActionError
	// ActionEnd closes the session cleanly.
	ActionEnd
)

// Action is the dialect-agnostic description of one outbound wire frame.
type Action struct {
	Kind     ActionKind
	StreamID string
	OutputID string // identifies the output stream an audio chunk/start/stop belongs to
	Audio    []byte
	Format   call.AudioFormat // negotiated format, set for ActionAccept and ActionAudioStart
	Text     string           // hypothesis/error/reject text
	Final    bool             // for ActionHypothesis: true once the transcript is final
}

// Codec decodes one dialect's wire frames into Events and encodes
// Actions back into that dialect's wire frames. Implementations must be
// safe for concurrent Encode/Decode calls from different goroutines but
// are only ever used by the single goroutine owning one Call in
// practice.
type Codec interface {
	// Name identifies the dialect, e.g. "audiocodes", "twilio", "genesys".
	Name() string

	// Decode parses one raw wire frame into an Event. An unrecognized
	// frame shape yields an EventUnknown event and a nil error, not an
	// error return, so the router can log-and-continue per spec.
	Decode(raw []byte) (Event, error)

	// Encode renders an Action into this dialect's wire frame.
	Encode(a Action) ([]byte, error)

	// MaxChunkBytes is the largest single audio payload this dialect's
	// transport tolerates per frame; callers must split larger buffers.
	MaxChunkBytes() int

	// RequiredInboundFormat is the audio format this dialect always
	// delivers caller audio in.
	RequiredInboundFormat() call.AudioFormat

	// PreferredOutboundFormat is the audio format this dialect expects
	// for playback frames.
	PreferredOutboundFormat() call.AudioFormat

	// SupportedFormats lists every format this dialect can encode/decode,
	// ordered most preferred first (highest sample rate first). Dialects
	// with a single fixed format return a one-element slice.
	SupportedFormats() []call.AudioFormat
}
